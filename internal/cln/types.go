package cln

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// RPCError is a JSON-RPC error returned by lightningd. Payment commands use
// documented numeric codes (201-219) that callers map onto their own error
// taxonomy; everything else surfaces as-is.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Datastore error codes, from lightningd's jsonrpc_errors.
const (
	DatastoreDelDoesNotExist     = 1200
	DatastoreUpdateAlreadyExists = 1202
)

// Msat is an amount in millisatoshi. lightningd emits plain integers in
// current releases but older fields still arrive as "123msat" strings, so
// unmarshaling accepts both.
type Msat uint64

func (m Msat) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(m), 10)), nil
}

func (m *Msat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSuffix(s[1:len(s)-1], "msat")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid msat amount %s: %w", data, err)
	}
	*m = Msat(v)
	return nil
}

// AmountOrAny is an invoice amount that may be the literal "any".
type AmountOrAny struct {
	Any  bool
	Msat uint64
}

func (a AmountOrAny) MarshalJSON() ([]byte, error) {
	if a.Any {
		return []byte(`"any"`), nil
	}
	return []byte(strconv.FormatUint(a.Msat, 10)), nil
}

// GetinfoResult is the subset of `getinfo` this plugin consumes.
type GetinfoResult struct {
	ID          string  `json:"id"`
	Alias       *string `json:"alias,omitempty"`
	Color       string  `json:"color"`
	Network     string  `json:"network"`
	Blockheight uint64  `json:"blockheight"`
	Version     string  `json:"version"`
}

// Decode item types returned in DecodeResult.Type.
const (
	DecodeBolt11Invoice = "bolt11 invoice"
	DecodeBolt12Invoice = "bolt12 invoice"
	DecodeBolt12Offer   = "bolt12 offer"
)

// DecodeResult is the subset of `decode` output needed for invoices and
// offers. BOLT11 and BOLT12 strings populate disjoint field groups; callers
// must branch on Type.
type DecodeResult struct {
	Type  string `json:"type"`
	Valid bool   `json:"valid"`

	// bolt11 invoice
	PaymentHash     string  `json:"payment_hash,omitempty"`
	AmountMsat      *Msat   `json:"amount_msat,omitempty"`
	Description     *string `json:"description,omitempty"`
	DescriptionHash *string `json:"description_hash,omitempty"`
	CreatedAt       *uint64 `json:"created_at,omitempty"`
	Expiry          *uint64 `json:"expiry,omitempty"`

	// bolt12 invoice
	InvoiceAmountMsat     *Msat   `json:"invoice_amount_msat,omitempty"`
	InvoicePaymentHash    string  `json:"invoice_payment_hash,omitempty"`
	InvoiceCreatedAt      *uint64 `json:"invoice_created_at,omitempty"`
	InvoiceRelativeExpiry *uint64 `json:"invoice_relative_expiry,omitempty"`

	// bolt12 offer
	OfferID             string  `json:"offer_id,omitempty"`
	OfferDescription    *string `json:"offer_description,omitempty"`
	OfferIssuer         *string `json:"offer_issuer,omitempty"`
	OfferAmountMsat     *Msat   `json:"offer_amount_msat,omitempty"`
	OfferAbsoluteExpiry *uint64 `json:"offer_absolute_expiry,omitempty"`
}

// InvoiceParams are the arguments for `invoice`.
type InvoiceParams struct {
	AmountMsat   AmountOrAny `json:"amount_msat"`
	Label        string      `json:"label"`
	Description  string      `json:"description"`
	Expiry       *uint64     `json:"expiry,omitempty"`
	DescHashOnly *bool       `json:"deschashonly,omitempty"`
}

// InvoiceResult is the answer to `invoice`.
type InvoiceResult struct {
	Bolt11      string `json:"bolt11"`
	PaymentHash string `json:"payment_hash"`
	ExpiresAt   uint64 `json:"expires_at"`
}

// PayParams are the arguments for the legacy `pay` command.
type PayParams struct {
	Bolt11     string  `json:"bolt11"`
	AmountMsat *uint64 `json:"amount_msat,omitempty"`
}

// XpayParams are the arguments for `xpay`.
type XpayParams struct {
	InvString  string  `json:"invstring"`
	AmountMsat *uint64 `json:"amount_msat,omitempty"`
}

// KeysendParams are the arguments for `keysend`. ExtraTLVs maps the decimal
// TLV type to a hex-encoded value.
type KeysendParams struct {
	Destination string            `json:"destination"`
	AmountMsat  uint64            `json:"amount_msat"`
	ExtraTLVs   map[string]string `json:"extratlvs,omitempty"`
}

// PayResult covers the shared success shape of `pay`, `xpay` and `keysend`.
type PayResult struct {
	PaymentPreimage string `json:"payment_preimage"`
	PaymentHash     string `json:"payment_hash,omitempty"`
	AmountMsat      Msat   `json:"amount_msat"`
	AmountSentMsat  Msat   `json:"amount_sent_msat"`
	Status          string `json:"status,omitempty"`
}

// Invoice statuses from `listinvoices`.
const (
	InvoiceUnpaid  = "unpaid"
	InvoicePaid    = "paid"
	InvoiceExpired = "expired"
)

// ListInvoicesParams are the arguments for `listinvoices`.
type ListInvoicesParams struct {
	Label       string `json:"label,omitempty"`
	InvString   string `json:"invstring,omitempty"`
	PaymentHash string `json:"payment_hash,omitempty"`
}

// Invoice is one element of `listinvoices`.
type Invoice struct {
	Label              string  `json:"label"`
	Bolt11             *string `json:"bolt11,omitempty"`
	Bolt12             *string `json:"bolt12,omitempty"`
	PaymentHash        string  `json:"payment_hash"`
	Status             string  `json:"status"`
	Description        *string `json:"description,omitempty"`
	AmountMsat         *Msat   `json:"amount_msat,omitempty"`
	AmountReceivedMsat *Msat   `json:"amount_received_msat,omitempty"`
	PaymentPreimage    *string `json:"payment_preimage,omitempty"`
	PaidAt             *uint64 `json:"paid_at,omitempty"`
	ExpiresAt          uint64  `json:"expires_at"`
}

// Pay statuses from `listpays`.
const (
	PayPending  = "pending"
	PayFailed   = "failed"
	PayComplete = "complete"
)

// ListPaysParams are the arguments for `listpays`.
type ListPaysParams struct {
	Bolt11      string `json:"bolt11,omitempty"`
	PaymentHash string `json:"payment_hash,omitempty"`
	Status      string `json:"status,omitempty"`
}

// Pay is one element of `listpays`.
type Pay struct {
	PaymentHash    string  `json:"payment_hash"`
	Status         string  `json:"status"`
	Bolt11         *string `json:"bolt11,omitempty"`
	Bolt12         *string `json:"bolt12,omitempty"`
	Description    *string `json:"description,omitempty"`
	AmountMsat     *Msat   `json:"amount_msat,omitempty"`
	AmountSentMsat *Msat   `json:"amount_sent_msat,omitempty"`
	Preimage       *string `json:"preimage,omitempty"`
	CreatedAt      uint64  `json:"created_at"`
	CompletedAt    *uint64 `json:"completed_at,omitempty"`
}

// Channel states that count towards the spendable balance.
const (
	ChannelStateNormal         = "CHANNELD_NORMAL"
	ChannelStateAwaitingSplice = "CHANNELD_AWAITING_SPLICE"
)

// Channel is one element of `listpeerchannels`.
type Channel struct {
	State         string `json:"state"`
	SpendableMsat *Msat  `json:"spendable_msat,omitempty"`
}

// OfferParams are the arguments for `offer`. Amount is an msat number as a
// string, or the literal "any".
type OfferParams struct {
	Amount         string  `json:"amount"`
	Description    string  `json:"description"`
	Issuer         string  `json:"issuer,omitempty"`
	Label          string  `json:"label,omitempty"`
	AbsoluteExpiry *uint64 `json:"absolute_expiry,omitempty"`
	SingleUse      *bool   `json:"single_use,omitempty"`
}

// OfferResult is the answer to `offer`.
type OfferResult struct {
	OfferID   string `json:"offer_id"`
	Bolt12    string `json:"bolt12"`
	Active    bool   `json:"active"`
	SingleUse bool   `json:"single_use"`
	Created   bool   `json:"created"`
	Used      bool   `json:"used"`
}

// FetchInvoiceParams are the arguments for `fetchinvoice`.
type FetchInvoiceParams struct {
	Offer      string  `json:"offer"`
	AmountMsat *uint64 `json:"amount_msat,omitempty"`
	PayerNote  string  `json:"payer_note,omitempty"`
}

// FetchInvoiceResult is the answer to `fetchinvoice`.
type FetchInvoiceResult struct {
	Invoice string `json:"invoice"`
}

// Datastore write modes.
const (
	DatastoreMustCreate      = "must-create"
	DatastoreMustReplace     = "must-replace"
	DatastoreCreateOrReplace = "create-or-replace"
)

// DatastoreParams are the arguments for `datastore`.
type DatastoreParams struct {
	Key    []string `json:"key"`
	String string   `json:"string,omitempty"`
	Hex    string   `json:"hex,omitempty"`
	Mode   string   `json:"mode,omitempty"`
}

// DatastoreEntry is one element of `listdatastore` (and the echo shape of
// `datastore`/`deldatastore`).
type DatastoreEntry struct {
	Key        []string `json:"key"`
	Generation *uint64  `json:"generation,omitempty"`
	Hex        *string  `json:"hex,omitempty"`
	String     *string  `json:"string,omitempty"`
}
