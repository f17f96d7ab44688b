package main

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cln-nwc/internal/cln"
)

// getOfferInfo decodes a BOLT12 offer and reports its terms without
// touching the offer itself.
func getOfferInfo(ctx context.Context, s *PluginState, p *GetOfferInfoParams) (*GetOfferInfoResult, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	dec, err := s.node.Decode(ctx, p.Offer)
	if err != nil {
		return nil, internalError(err)
	}
	if !dec.Valid || dec.Type != cln.DecodeBolt12Offer {
		return nil, otherError("Not an offer or invalid offer")
	}

	res := &GetOfferInfoResult{
		Offer:       p.Offer,
		Description: strOrEmpty(dec.OfferDescription),
		Issuer:      strOrEmpty(dec.OfferIssuer),
	}
	if dec.OfferAmountMsat != nil {
		res.Amount = u64ptr(uint64(*dec.OfferAmountMsat))
	}
	if dec.OfferAbsoluteExpiry != nil {
		res.ExpiresAt = i64ptr(int64(*dec.OfferAbsoluteExpiry))
	}
	return res, nil
}

// makeOffer publishes a reusable BOLT12 offer. No amount means an
// any-amount offer.
func makeOffer(ctx context.Context, s *PluginState, p *MakeOfferParams) (*MakeOfferResult, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	amount := "any"
	if p.Amount != nil {
		amount = strconv.FormatUint(*p.Amount, 10)
	}
	singleUse := p.SingleUse != nil && *p.SingleUse

	res, err := s.node.Offer(ctx, cln.OfferParams{
		Amount:         amount,
		Description:    p.Description,
		Issuer:         p.Issuer,
		Label:          "NWC offer -" + uuid.NewString(),
		AbsoluteExpiry: p.AbsoluteExpiry,
		SingleUse:      &singleUse,
	})
	if err != nil {
		return nil, internalError(err)
	}

	result := &MakeOfferResult{
		Offer:       res.Bolt12,
		Description: p.Description,
		Amount:      p.Amount,
		Issuer:      p.Issuer,
		SingleUse:   singleUse,
	}
	if p.AbsoluteExpiry != nil {
		result.ExpiresAt = i64ptr(int64(*p.AbsoluteExpiry))
	}
	return result, nil
}

// payOffer fetches an invoice for the offer and pays it. The fetched
// invoice fixes the amount, so the payment itself carries no override; a
// request amount only constrains the fetch and must agree with what the
// issuer quoted.
func payOffer(ctx context.Context, s *PluginState, label string, p *PayOfferParams) (*PayInvoiceResult, string, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	id := p.ID

	fetched, err := s.node.FetchInvoice(ctx, cln.FetchInvoiceParams{
		Offer:      p.Offer,
		AmountMsat: p.Amount,
		PayerNote:  p.PayerNote,
	})
	if err != nil {
		return nil, id, internalError(err)
	}

	dec, err := s.node.Decode(ctx, fetched.Invoice)
	if err != nil {
		return nil, id, internalError(err)
	}
	if id == "" {
		if dec.InvoicePaymentHash == "" {
			return nil, id, nip47Error(ErrCodeInternal, "payment_hash missing in decoded bolt12 invoice")
		}
		id = dec.InvoicePaymentHash
	}
	if dec.InvoiceAmountMsat == nil {
		return nil, id, nip47Error(ErrCodeInternal, "Missing amount_msat in decoded bolt12 invoice")
	}
	invoiceMsat := uint64(*dec.InvoiceAmountMsat)

	rec, err := s.records.Load(ctx, label)
	if err != nil {
		return nil, id, internalError(err)
	}
	if err := checkBudget(p.Amount, &invoiceMsat, rec.BudgetMsat); err != nil {
		return nil, id, budgetError(err)
	}

	res, nerr := executePayment(ctx, s, fetched.Invoice, nil)
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

func multiPayOffer(ctx context.Context, s *PluginState, label string, p *MultiPayOfferParams) []taggedResponse {
	responses := make([]taggedResponse, 0, len(p.Offers))
	for i := range p.Offers {
		result, id, nerr := payOffer(ctx, s, label, &p.Offers[i])
		responses = append(responses, taggedResponse{
			resp: buildResponse(methodMultiPayOffer, result, nerr),
			id:   id,
		})
		time.Sleep(batchItemDelay)
	}
	return responses
}
