package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"cln-nwc/internal/cln"
)

const defaultInvoiceDescription = "NWC make_invoice"

// checkDescriptionHash enforces the hash/description contract shared by
// make_invoice and make_hold_invoice: a description_hash requires the
// matching preimage description. Returns whether the node should commit to
// the hash only.
func checkDescriptionHash(description, descriptionHash string) (deschashonly bool, nerr *NIP47Error) {
	if descriptionHash == "" {
		return false, nil
	}
	if description == "" {
		return false, otherError("Must have description when using description_hash")
	}
	given, err := hex.DecodeString(descriptionHash)
	if err != nil {
		return false, internalError(err)
	}
	sum := sha256.Sum256([]byte(description))
	if !bytes.Equal(sum[:], given) {
		return false, otherError("description_hash not matching description")
	}
	return true, nil
}

// makeInvoice creates a BOLT11 invoice under a fresh label. A zero amount
// becomes an any-amount invoice.
func makeInvoice(ctx context.Context, s *PluginState, p *MakeInvoiceParams) (*MakeInvoiceResult, *NIP47Error) {
	deschashonly, nerr := checkDescriptionHash(p.Description, p.DescriptionHash)
	if nerr != nil {
		return nil, nerr
	}

	params := cln.InvoiceParams{
		AmountMsat:  cln.AmountOrAny{Any: p.Amount == 0, Msat: p.Amount},
		Label:       uuid.NewString(),
		Description: p.Description,
		Expiry:      p.Expiry,
	}
	if params.Description == "" {
		params.Description = defaultInvoiceDescription
	}
	if deschashonly {
		params.DescHashOnly = &deschashonly
	}

	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	res, err := s.node.Invoice(ctx, params)
	if err != nil {
		return nil, internalError(err)
	}
	return &MakeInvoiceResult{
		Invoice:         res.Bolt11,
		PaymentHash:     res.PaymentHash,
		Description:     p.Description,
		DescriptionHash: p.DescriptionHash,
		Amount:          p.Amount,
		CreatedAt:       time.Now().Unix(),
		ExpiresAt:       i64ptr(int64(res.ExpiresAt)),
	}, nil
}
