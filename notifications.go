package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"cln-nwc/internal/cln"
	"cln-nwc/internal/hold"
)

// invoiceState maps a listinvoices status onto the notification state
// field.
func invoiceState(status string) string {
	switch status {
	case cln.InvoicePaid:
		return txStateSettled
	case cln.InvoiceExpired:
		return txStateExpired
	default:
		return txStatePending
	}
}

// payState maps a listpays status onto the notification state field.
func payState(status string) string {
	switch status {
	case cln.PayComplete:
		return txStateSettled
	case cln.PayFailed:
		return txStateFailed
	default:
		return txStatePending
	}
}

// paymentReceivedHandler turns the node's invoice_payment notification into
// a payment_received broadcast to every connection.
func paymentReceivedHandler(ctx context.Context, s *PluginState, params json.RawMessage) {
	if !s.cfg.Notifications {
		return
	}
	var payload struct {
		InvoicePayment struct {
			Label string `json:"label"`
		} `json:"invoice_payment"`
	}
	if err := json.Unmarshal(params, &payload); err != nil {
		slog.Warn("Could not parse invoice_payment notification", "error", err)
		return
	}
	label := payload.InvoicePayment.Label

	s.nodeMu.Lock()
	invoices, err := s.node.ListInvoices(ctx, cln.ListInvoicesParams{Label: label})
	if err != nil || len(invoices) != 1 {
		s.nodeMu.Unlock()
		slog.Warn("Paid invoice not found", "invoice_label", label, "error", err)
		return
	}
	inv := invoices[0]
	invstring := invoiceString(inv.Bolt11, inv.Bolt12)
	var facts invoiceFacts
	if invstring != "" {
		dec, err := s.node.Decode(ctx, invstring)
		if err != nil {
			s.nodeMu.Unlock()
			slog.Warn("Could not decode paid invoice", "invoice_label", label, "error", err)
			return
		}
		facts, _ = decodeFacts(dec)
	}
	s.nodeMu.Unlock()

	tx := incomingTransaction(&inv, facts, invstring)
	tx.State = invoiceState(inv.Status)
	tx.ExpiresAt = nil
	fanout(s, topicPaymentReceived, tx)
}

// paymentSentHandler turns the node's sendpay_success notification into a
// payment_sent broadcast. Keysends carry no invoice, their description and
// amount come from the pay record alone.
func paymentSentHandler(ctx context.Context, s *PluginState, params json.RawMessage) {
	if !s.cfg.Notifications {
		return
	}
	var payload struct {
		SendpaySuccess struct {
			PaymentHash string `json:"payment_hash"`
		} `json:"sendpay_success"`
	}
	if err := json.Unmarshal(params, &payload); err != nil {
		slog.Warn("Could not parse sendpay_success notification", "error", err)
		return
	}
	hash := payload.SendpaySuccess.PaymentHash

	s.nodeMu.Lock()
	pays, err := s.node.ListPays(ctx, cln.ListPaysParams{PaymentHash: hash})
	if err != nil || len(pays) != 1 {
		s.nodeMu.Unlock()
		slog.Warn("Completed payment not found", "payment_hash", hash, "error", err)
		return
	}
	pay := pays[0]
	if pay.Status != cln.PayComplete {
		s.nodeMu.Unlock()
		slog.Debug("Skipping notification for incomplete payment", "payment_hash", hash, "status", pay.Status)
		return
	}
	invstring := invoiceString(pay.Bolt11, pay.Bolt12)
	var facts invoiceFacts
	if invstring != "" {
		dec, err := s.node.Decode(ctx, invstring)
		if err != nil {
			s.nodeMu.Unlock()
			slog.Warn("Could not decode sent invoice", "payment_hash", hash, "error", err)
			return
		}
		facts, _ = decodeFacts(dec)
	}
	s.nodeMu.Unlock()

	tx := outgoingTransaction(&pay, facts, invstring)
	if invstring == "" && pay.Description != nil {
		tx.Description = *pay.Description
	}
	tx.State = payState(pay.Status)
	tx.ExpiresAt = nil
	fanout(s, topicPaymentSent, tx)
}

// watchHoldInvoice follows the companion's state stream for one hold
// invoice and broadcasts hold_invoice_accepted when an HTLC arrives. The
// stream ends with the terminal state, settlement itself is reported by the
// node's own invoice_payment notification.
func watchHoldInvoice(s *PluginState, paymentHash string) {
	ctx := context.Background()
	states, err := s.hold.Track(ctx, paymentHash)
	if err != nil {
		slog.Warn("Could not track hold invoice", "payment_hash", paymentHash, "error", err)
		return
	}
	notified := false
	for st := range states {
		if st == hold.StateAccepted && !notified {
			notified = true
			notifyHoldAccepted(ctx, s, paymentHash)
		}
		if st.Terminal() {
			break
		}
	}
	slog.Debug("Hold invoice watch ended", "payment_hash", paymentHash)
}

func notifyHoldAccepted(ctx context.Context, s *PluginState, paymentHash string) {
	if !s.cfg.Notifications {
		return
	}
	invoices, err := s.hold.List(ctx, paymentHash)
	if err != nil || len(invoices) != 1 {
		slog.Warn("Accepted hold invoice not found", "payment_hash", paymentHash, "error", err)
		return
	}
	hi := invoices[0]

	s.nodeMu.Lock()
	dec, err := s.node.Decode(ctx, hi.Invoice)
	s.nodeMu.Unlock()
	if err != nil {
		slog.Warn("Could not decode hold invoice", "payment_hash", paymentHash, "error", err)
		return
	}
	facts, _ := decodeFacts(dec)

	tx := Transaction{
		Type:            txIncoming,
		Invoice:         hi.Invoice,
		Description:     facts.description,
		DescriptionHash: facts.descriptionHash,
		PaymentHash:     paymentHash,
		Amount:          hi.AmountMsat,
		CreatedAt:       hi.CreatedAt,
		State:           txStateAccepted,
	}
	if facts.amountMsat != nil {
		tx.Amount = *facts.amountMsat
	}
	if facts.createdAt != 0 {
		tx.CreatedAt = facts.createdAt
	}
	fanout(s, topicHoldInvoiceAccepted, tx)
}

// fanout delivers one notification to every live session, once per
// supported encryption scheme. Delivery is best effort per recipient.
func fanout(s *PluginState, notificationType string, tx Transaction) {
	payload, err := json.Marshal(Notification{
		NotificationType: notificationType,
		Notification:     tx,
	})
	if err != nil {
		slog.Error("Could not encode notification", "type", notificationType, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, h := range s.sessions.snapshot() {
		events, err := h.codec.notificationEvents(string(payload))
		if err != nil {
			slog.Warn("Could not build notification events", "label", h.label, "error", err)
			continue
		}
		for _, ev := range events {
			if h.relay.Publish(ctx, ev) == 0 {
				slog.Warn("No relay accepted the notification", "label", h.label, "type", notificationType)
			}
		}
	}
}
