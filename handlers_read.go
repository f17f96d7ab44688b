package main

import (
	"context"
	"sort"

	"cln-nwc/internal/cln"
)

func u64ptr(v uint64) *uint64 { return &v }
func i64ptr(v int64) *int64   { return &v }

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// invoiceString picks whichever encoding a node record carries.
func invoiceString(bolt11, bolt12 *string) string {
	if bolt11 != nil {
		return *bolt11
	}
	if bolt12 != nil {
		return *bolt12
	}
	return ""
}

// invoiceFacts are the decode-derived fields shared by every transaction
// mapper. BOLT12 invoices use the offer description and carry no
// description hash.
type invoiceFacts struct {
	description     string
	descriptionHash string
	amountMsat      *uint64
	createdAt       int64
	expiresAt       *int64
}

// decodeFacts normalizes a decode result across the two invoice encodings.
// ok is false when the string is not a valid BOLT11 or BOLT12 invoice.
func decodeFacts(dec *cln.DecodeResult) (invoiceFacts, bool) {
	if !dec.Valid {
		return invoiceFacts{}, false
	}
	var facts invoiceFacts
	switch dec.Type {
	case cln.DecodeBolt11Invoice:
		facts.description = strOrEmpty(dec.Description)
		facts.descriptionHash = strOrEmpty(dec.DescriptionHash)
		if dec.AmountMsat != nil {
			facts.amountMsat = u64ptr(uint64(*dec.AmountMsat))
		}
		if dec.CreatedAt != nil {
			facts.createdAt = int64(*dec.CreatedAt)
			if dec.Expiry != nil {
				facts.expiresAt = i64ptr(int64(*dec.CreatedAt + *dec.Expiry))
			}
		}
	case cln.DecodeBolt12Invoice:
		facts.description = strOrEmpty(dec.OfferDescription)
		if dec.InvoiceAmountMsat != nil {
			facts.amountMsat = u64ptr(uint64(*dec.InvoiceAmountMsat))
		}
		if dec.InvoiceCreatedAt != nil {
			facts.createdAt = int64(*dec.InvoiceCreatedAt)
			if dec.InvoiceRelativeExpiry != nil {
				facts.expiresAt = i64ptr(int64(*dec.InvoiceCreatedAt + *dec.InvoiceRelativeExpiry))
			}
		}
	default:
		return invoiceFacts{}, false
	}
	return facts, true
}

// incomingTransaction maps one listinvoices entry plus its decoded invoice
// onto the shared transaction shape. Receives carry no fees.
func incomingTransaction(inv *cln.Invoice, facts invoiceFacts, invstring string) Transaction {
	tx := Transaction{
		Type:            txIncoming,
		Invoice:         invstring,
		Description:     facts.description,
		DescriptionHash: facts.descriptionHash,
		PaymentHash:     inv.PaymentHash,
		CreatedAt:       facts.createdAt,
		ExpiresAt:       i64ptr(int64(inv.ExpiresAt)),
	}
	if facts.amountMsat != nil {
		tx.Amount = *facts.amountMsat
	} else if inv.AmountMsat != nil {
		tx.Amount = uint64(*inv.AmountMsat)
	}
	if inv.PaymentPreimage != nil {
		tx.Preimage = *inv.PaymentPreimage
	}
	if inv.PaidAt != nil {
		tx.SettledAt = i64ptr(int64(*inv.PaidAt))
	}
	return tx
}

// outgoingTransaction maps one listpays entry plus its decoded invoice onto
// the shared transaction shape. Fees are the overpayment over the invoice
// amount.
func outgoingTransaction(pay *cln.Pay, facts invoiceFacts, invstring string) Transaction {
	tx := Transaction{
		Type:            txOutgoing,
		Invoice:         invstring,
		Description:     facts.description,
		DescriptionHash: facts.descriptionHash,
		PaymentHash:     pay.PaymentHash,
		CreatedAt:       int64(pay.CreatedAt),
	}
	if facts.amountMsat != nil {
		tx.Amount = *facts.amountMsat
	} else if pay.AmountMsat != nil {
		tx.Amount = uint64(*pay.AmountMsat)
	}
	if pay.AmountSentMsat != nil && uint64(*pay.AmountSentMsat) > tx.Amount {
		tx.FeesPaid = uint64(*pay.AmountSentMsat) - tx.Amount
	}
	if pay.Preimage != nil {
		tx.Preimage = *pay.Preimage
	}
	if pay.CompletedAt != nil {
		tx.SettledAt = i64ptr(int64(*pay.CompletedAt))
	}
	return tx
}

func outsideWindow(createdAt int64, from, until *int64) bool {
	if from != nil && createdAt < *from {
		return true
	}
	return until != nil && createdAt > *until
}

// getBalance reports the connection budget when one is set, otherwise the
// spendable total across usable channels.
func getBalance(ctx context.Context, s *PluginState, label string) (*GetBalanceResult, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	rec, err := s.records.Load(ctx, label)
	if err != nil {
		return nil, internalError(err)
	}
	if rec.BudgetMsat != nil {
		return &GetBalanceResult{Balance: *rec.BudgetMsat}, nil
	}

	channels, err := s.node.ListPeerChannels(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	var total uint64
	for _, ch := range channels {
		if ch.State != cln.ChannelStateNormal && ch.State != cln.ChannelStateAwaitingSplice {
			continue
		}
		if ch.SpendableMsat != nil {
			total += uint64(*ch.SpendableMsat)
		}
	}
	return &GetBalanceResult{Balance: total}, nil
}

// getInfo reports node identity plus the method set this connection may
// call, which depends on its current read-only standing.
func getInfo(ctx context.Context, s *PluginState, label string) (*GetInfoResult, *NIP47Error) {
	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	info, err := s.node.GetInfo(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	rec, err := s.records.Load(ctx, label)
	if err != nil {
		return nil, internalError(err)
	}

	network := info.Network
	if network == "bitcoin" {
		network = "mainnet"
	}
	methods, topics := buildCapabilities(isReadOnly(rec), s.cfg.OfferSupport, s.holdActive(), s.cfg.Notifications)
	if topics == nil {
		topics = []string{}
	}

	res := &GetInfoResult{
		Alias:         strOrEmpty(info.Alias),
		Color:         info.Color,
		Pubkey:        info.ID,
		Network:       network,
		BlockHeight:   info.Blockheight,
		Methods:       methods,
		Notifications: topics,
	}
	return res, nil
}

// lookupInvoice resolves a single transaction by payment hash or invoice
// string, checking receives before sends. When both selectors are given the
// hash wins; listinvoices rejects combined filters.
func lookupInvoice(ctx context.Context, s *PluginState, p *LookupInvoiceParams) (*Transaction, *NIP47Error) {
	if p.PaymentHash == "" && p.Invoice == "" {
		return nil, otherError("Neither invoice nor payment_hash given")
	}

	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	invstring := p.Invoice
	if p.PaymentHash != "" {
		invstring = ""
	}

	invoices, err := s.node.ListInvoices(ctx, cln.ListInvoicesParams{
		InvString:   invstring,
		PaymentHash: p.PaymentHash,
	})
	if err != nil {
		return nil, internalError(err)
	}
	if len(invoices) == 1 {
		inv := invoices[0]
		str := invoiceString(inv.Bolt11, inv.Bolt12)
		dec, err := s.node.Decode(ctx, str)
		if err != nil {
			return nil, internalError(err)
		}
		facts, ok := decodeFacts(dec)
		if !ok {
			return nil, otherError("Not an invoice or invalid invoice")
		}
		tx := incomingTransaction(&inv, facts, str)
		return &tx, nil
	}

	pays, err := s.node.ListPays(ctx, cln.ListPaysParams{
		Bolt11:      invstring,
		PaymentHash: p.PaymentHash,
	})
	if err != nil {
		return nil, internalError(err)
	}
	if len(pays) != 1 {
		return nil, nip47Error(ErrCodeNotFound, "Transaction not found")
	}
	pay := pays[0]
	str := invoiceString(pay.Bolt11, pay.Bolt12)
	dec, err := s.node.Decode(ctx, str)
	if err != nil {
		return nil, internalError(err)
	}
	facts, ok := decodeFacts(dec)
	if !ok {
		return nil, otherError("Not an invoice or invalid invoice")
	}
	tx := outgoingTransaction(&pay, facts, str)
	return &tx, nil
}

// listTransactions merges receives and sends into one newest-first list.
// Expired invoices are always skipped, unpaid ones only on request; sends
// count only once complete.
func listTransactions(ctx context.Context, s *PluginState, p *ListTransactionsParams) (*ListTransactionsResult, *NIP47Error) {
	queryIncoming := p.Type == "" || p.Type == txIncoming
	queryOutgoing := p.Type == "" || p.Type == txOutgoing
	includeUnpaid := p.Unpaid != nil && *p.Unpaid

	s.nodeMu.Lock()
	defer s.nodeMu.Unlock()

	txs := []Transaction{}
	if queryIncoming {
		invoices, err := s.node.ListInvoices(ctx, cln.ListInvoicesParams{})
		if err != nil {
			return nil, internalError(err)
		}
		for i := range invoices {
			inv := &invoices[i]
			if inv.Status == cln.InvoiceExpired {
				continue
			}
			if !includeUnpaid && inv.Status == cln.InvoiceUnpaid {
				continue
			}
			str := invoiceString(inv.Bolt11, inv.Bolt12)
			if str == "" {
				continue
			}
			dec, err := s.node.Decode(ctx, str)
			if err != nil {
				return nil, internalError(err)
			}
			facts, ok := decodeFacts(dec)
			if !ok {
				continue
			}
			if outsideWindow(facts.createdAt, p.From, p.Until) {
				continue
			}
			txs = append(txs, incomingTransaction(inv, facts, str))
		}
	}
	if queryOutgoing {
		pays, err := s.node.ListPays(ctx, cln.ListPaysParams{})
		if err != nil {
			return nil, internalError(err)
		}
		for i := range pays {
			pay := &pays[i]
			if pay.Status != cln.PayComplete {
				continue
			}
			str := invoiceString(pay.Bolt11, pay.Bolt12)
			if str == "" {
				continue
			}
			dec, err := s.node.Decode(ctx, str)
			if err != nil {
				return nil, internalError(err)
			}
			facts, ok := decodeFacts(dec)
			if !ok {
				continue
			}
			if outsideWindow(int64(pay.CreatedAt), p.From, p.Until) {
				continue
			}
			txs = append(txs, outgoingTransaction(pay, facts, str))
		}
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt > txs[j].CreatedAt
	})
	if p.Limit != nil && len(txs) > int(*p.Limit) {
		txs = txs[:*p.Limit]
	}
	return &ListTransactionsResult{Transactions: txs}, nil
}
