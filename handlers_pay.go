package main

import (
	"context"
	"time"

	"cln-nwc/internal/cln"
)

// batchItemDelay paces multi_* batches so a burst of payments cannot starve
// other node lock holders.
const batchItemDelay = 100 * time.Millisecond

// executePayment runs one payment through xpay on nodes that have it,
// falling back to the legacy pay command on older ones. amountMsat
// overrides the invoice amount when the invoice leaves it open.
func executePayment(ctx context.Context, s *PluginState, invstring string, amountMsat *uint64) (*cln.PayResult, *NIP47Error) {
	useXpay, err := atOrAboveVersion(s.cfg.ClnVersion, clnVersionXpay)
	if err != nil {
		return nil, internalError(err)
	}
	var res *cln.PayResult
	if useXpay {
		res, err = s.node.Xpay(ctx, cln.XpayParams{InvString: invstring, AmountMsat: amountMsat})
	} else {
		res, err = s.node.Pay(ctx, cln.PayParams{Bolt11: invstring, AmountMsat: amountMsat})
	}
	if err != nil {
		return nil, mapPayError(err, useXpay)
	}
	return res, nil
}

// settleBudget debits what the payment actually sent and persists the
// record. Unbudgeted connections are never written back.
func settleBudget(ctx context.Context, s *PluginState, label string, rec *ConnectionRecord, sentMsat uint64) *NIP47Error {
	if rec.BudgetMsat == nil {
		return nil
	}
	debit(rec.BudgetMsat, sentMsat)
	if err := s.records.Save(ctx, label, rec); err != nil {
		return internalError(err)
	}
	return nil
}

func paymentFees(res *cln.PayResult) uint64 {
	if res.AmountSentMsat > res.AmountMsat {
		return uint64(res.AmountSentMsat - res.AmountMsat)
	}
	return 0
}

// payInvoice decodes, authorizes and pays one invoice while holding the
// node lock, so the budget check, the payment and the debit are atomic with
// respect to other spends. The returned id correlates batch sub-responses:
// the caller-supplied id when given, the payment hash otherwise.
func payInvoice(ctx context.Context, s *PluginState, label string, p *PayInvoiceParams) (*PayInvoiceResult, string, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	id := p.ID

	dec, err := s.node.Decode(ctx, p.Invoice)
	if err != nil {
		return nil, id, internalError(err)
	}

	var invoiceMsat *uint64
	switch {
	case !dec.Valid:
		return nil, id, otherError("Not an invoice or invalid invoice")
	case dec.Type == cln.DecodeBolt11Invoice:
		if id == "" {
			id = dec.PaymentHash
		}
		if dec.AmountMsat != nil {
			invoiceMsat = u64ptr(uint64(*dec.AmountMsat))
		}
	case dec.Type == cln.DecodeBolt12Invoice:
		if id == "" {
			id = dec.InvoicePaymentHash
		}
		if dec.InvoiceAmountMsat != nil {
			invoiceMsat = u64ptr(uint64(*dec.InvoiceAmountMsat))
		}
	default:
		return nil, id, otherError("Not an invoice or invalid invoice")
	}

	rec, err := s.records.Load(ctx, label)
	if err != nil {
		return nil, id, internalError(err)
	}
	if err := checkBudget(p.Amount, invoiceMsat, rec.BudgetMsat); err != nil {
		return nil, id, budgetError(err)
	}

	res, nerr := executePayment(ctx, s, p.Invoice, p.Amount)
	if nerr != nil {
		return nil, id, nerr
	}
	if nerr := settleBudget(ctx, s, label, rec, uint64(res.AmountSentMsat)); nerr != nil {
		return nil, id, nerr
	}
	return &PayInvoiceResult{
		Preimage: res.PaymentPreimage,
		FeesPaid: u64ptr(paymentFees(res)),
	}, id, nil
}

// multiPayInvoice pays batch items strictly in order, one correlated
// response per item, never aborting early.
func multiPayInvoice(ctx context.Context, s *PluginState, label string, p *MultiPayInvoiceParams) []taggedResponse {
	responses := make([]taggedResponse, 0, len(p.Invoices))
	for i := range p.Invoices {
		result, id, nerr := payInvoice(ctx, s, label, &p.Invoices[i])
		responses = append(responses, taggedResponse{
			resp: buildResponse(methodMultiPayInvoice, result, nerr),
			id:   id,
		})
		time.Sleep(batchItemDelay)
	}
	return responses
}
