package main

import (
	"context"
	"time"

	"cln-nwc/internal/hold"
)

// holdError maps companion failures: an unknown payment hash is NOT_FOUND,
// transport and server errors are INTERNAL.
func holdError(err error) *NIP47Error {
	if hold.IsNotFound(err) {
		return nip47Error(ErrCodeNotFound, err.Error())
	}
	return internalError(err)
}

// makeHoldInvoice creates an invoice whose HTLCs the companion holds until
// an explicit settle or cancel. The caller supplies the payment hash, since
// only it knows the preimage. Held payments are incoming money; budgets are
// not involved.
func makeHoldInvoice(ctx context.Context, s *PluginState, p *MakeHoldInvoiceParams) (*MakeInvoiceResult, *NIP47Error) {
	if p.PaymentHash == "" {
		return nil, otherError("Missing payment_hash")
	}
	if _, nerr := checkDescriptionHash(p.Description, p.DescriptionHash); nerr != nil {
		return nil, nerr
	}

	res, err := s.hold.Invoice(ctx, hold.InvoiceRequest{
		PaymentHash:     p.PaymentHash,
		AmountMsat:      p.Amount,
		Description:     p.Description,
		DescriptionHash: p.DescriptionHash,
		Expiry:          p.Expiry,
	})
	if err != nil {
		return nil, holdError(err)
	}

	go watchHoldInvoice(s, p.PaymentHash)

	now := time.Now().Unix()
	result := &MakeInvoiceResult{
		Invoice:         res.Invoice,
		PaymentHash:     p.PaymentHash,
		Description:     p.Description,
		DescriptionHash: p.DescriptionHash,
		Amount:          p.Amount,
		CreatedAt:       now,
	}
	if p.Expiry != nil {
		result.ExpiresAt = i64ptr(now + int64(*p.Expiry))
	}
	return result, nil
}

// cancelHoldInvoice releases any held HTLCs back to the payer.
func cancelHoldInvoice(ctx context.Context, s *PluginState, p *CancelHoldInvoiceParams) *NIP47Error {
	if p.PaymentHash == "" {
		return otherError("Missing payment_hash")
	}
	if err := s.hold.Cancel(ctx, p.PaymentHash); err != nil {
		return holdError(err)
	}
	return nil
}

// settleHoldInvoice claims held HTLCs with the preimage.
func settleHoldInvoice(ctx context.Context, s *PluginState, p *SettleHoldInvoiceParams) *NIP47Error {
	if p.Preimage == "" {
		return otherError("Missing preimage")
	}
	if err := s.hold.Settle(ctx, p.Preimage); err != nil {
		return holdError(err)
	}
	return nil
}
