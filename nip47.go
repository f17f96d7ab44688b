package main

import "encoding/json"

// Request is the decrypted content of a kind-23194 event.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the plaintext of a kind-23195 event. Error and Result are
// mutually exclusive but both always appear on the wire, one as null.
type Response struct {
	ResultType string      `json:"result_type"`
	Error      *NIP47Error `json:"error"`
	Result     any         `json:"result"`
}

// Notification is the plaintext of kind-23196/23197 events.
type Notification struct {
	NotificationType string `json:"notification_type"`
	Notification     any    `json:"notification"`
}

// Transaction state values used in lookups and notifications.
const (
	txStatePending  = "pending"
	txStateSettled  = "settled"
	txStateExpired  = "expired"
	txStateFailed   = "failed"
	txStateAccepted = "accepted"
)

// Transaction directions.
const (
	txIncoming = "incoming"
	txOutgoing = "outgoing"
)

// Transaction is the shared payload of lookup_invoice, list_transactions
// items and payment notifications. Amounts are millisatoshi, timestamps
// unix seconds.
type Transaction struct {
	Type            string `json:"type"`
	Invoice         string `json:"invoice,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Preimage        string `json:"preimage,omitempty"`
	PaymentHash     string `json:"payment_hash"`
	Amount          uint64 `json:"amount"`
	FeesPaid        uint64 `json:"fees_paid"`
	CreatedAt       int64  `json:"created_at"`
	ExpiresAt       *int64 `json:"expires_at,omitempty"`
	SettledAt       *int64 `json:"settled_at,omitempty"`
	State           string `json:"state,omitempty"`
}

// PayInvoiceParams also serves as one element of multi_pay_invoice, where
// the optional id correlates the per-item response.
type PayInvoiceParams struct {
	ID      string  `json:"id,omitempty"`
	Invoice string  `json:"invoice"`
	Amount  *uint64 `json:"amount,omitempty"`
}

type MultiPayInvoiceParams struct {
	Invoices []PayInvoiceParams `json:"invoices"`
}

type PayInvoiceResult struct {
	Preimage string  `json:"preimage"`
	FeesPaid *uint64 `json:"fees_paid,omitempty"`
}

// TLVRecord is a custom TLV attached to a keysend payment. Value is the raw
// string; it is hex-encoded on the way to the node.
type TLVRecord struct {
	Type  uint64 `json:"type"`
	Value string `json:"value"`
}

type PayKeysendParams struct {
	ID         string      `json:"id,omitempty"`
	Amount     uint64      `json:"amount"`
	Pubkey     string      `json:"pubkey"`
	Preimage   string      `json:"preimage,omitempty"`
	TLVRecords []TLVRecord `json:"tlv_records,omitempty"`
}

type MultiPayKeysendParams struct {
	Keysends []PayKeysendParams `json:"keysends"`
}

type PayKeysendResult struct {
	Preimage string `json:"preimage"`
}

type MakeInvoiceParams struct {
	Amount          uint64  `json:"amount"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"description_hash,omitempty"`
	Expiry          *uint64 `json:"expiry,omitempty"`
}

type MakeInvoiceResult struct {
	Invoice         string `json:"invoice"`
	PaymentHash     string `json:"payment_hash"`
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Preimage        string `json:"preimage,omitempty"`
	Amount          uint64 `json:"amount"`
	CreatedAt       int64  `json:"created_at"`
	ExpiresAt       *int64 `json:"expires_at,omitempty"`
}

type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

type ListTransactionsParams struct {
	From   *int64  `json:"from,omitempty"`
	Until  *int64  `json:"until,omitempty"`
	Limit  *uint32 `json:"limit,omitempty"`
	Offset *uint32 `json:"offset,omitempty"`
	Unpaid *bool   `json:"unpaid,omitempty"`
	Type   string  `json:"type,omitempty"`
}

type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
}

type GetBalanceResult struct {
	Balance uint64 `json:"balance"`
}

type GetInfoResult struct {
	Alias         string   `json:"alias"`
	Color         string   `json:"color"`
	Pubkey        string   `json:"pubkey"`
	Network       string   `json:"network"`
	BlockHeight   uint64   `json:"block_height"`
	BlockHash     string   `json:"block_hash,omitempty"`
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications"`
}

type GetOfferInfoParams struct {
	Offer string `json:"offer"`
}

type GetOfferInfoResult struct {
	Offer       string  `json:"offer"`
	Description string  `json:"description,omitempty"`
	Amount      *uint64 `json:"amount,omitempty"`
	Issuer      string  `json:"issuer,omitempty"`
	ExpiresAt   *int64  `json:"expires_at,omitempty"`
}

type MakeOfferParams struct {
	Amount         *uint64 `json:"amount,omitempty"`
	Description    string  `json:"description,omitempty"`
	Issuer         string  `json:"issuer,omitempty"`
	AbsoluteExpiry *uint64 `json:"absolute_expiry,omitempty"`
	SingleUse      *bool   `json:"single_use,omitempty"`
}

type MakeOfferResult struct {
	Offer       string  `json:"offer"`
	Description string  `json:"description,omitempty"`
	Amount      *uint64 `json:"amount,omitempty"`
	Issuer      string  `json:"issuer,omitempty"`
	ExpiresAt   *int64  `json:"expires_at,omitempty"`
	SingleUse   bool    `json:"single_use"`
}

// PayOfferParams also serves as one element of multi_pay_offer.
type PayOfferParams struct {
	ID        string  `json:"id,omitempty"`
	Offer     string  `json:"offer"`
	Amount    *uint64 `json:"amount,omitempty"`
	PayerNote string  `json:"payer_note,omitempty"`
}

type MultiPayOfferParams struct {
	Offers []PayOfferParams `json:"offers"`
}

type MakeHoldInvoiceParams struct {
	Amount          uint64  `json:"amount"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"description_hash,omitempty"`
	Expiry          *uint64 `json:"expiry,omitempty"`
	PaymentHash     string  `json:"payment_hash"`
}

type CancelHoldInvoiceParams struct {
	PaymentHash string `json:"payment_hash"`
}

type SettleHoldInvoiceParams struct {
	Preimage string `json:"preimage"`
}
