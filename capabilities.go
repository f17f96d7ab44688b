package main

// Wallet method names on the wire.
const (
	methodPayInvoice        = "pay_invoice"
	methodMultiPayInvoice   = "multi_pay_invoice"
	methodPayKeysend        = "pay_keysend"
	methodMultiPayKeysend   = "multi_pay_keysend"
	methodMakeInvoice       = "make_invoice"
	methodLookupInvoice     = "lookup_invoice"
	methodListTransactions  = "list_transactions"
	methodGetBalance        = "get_balance"
	methodGetInfo           = "get_info"
	methodGetOfferInfo      = "get_offer_info"
	methodMakeOffer         = "make_offer"
	methodPayOffer          = "pay_offer"
	methodMultiPayOffer     = "multi_pay_offer"
	methodMakeHoldInvoice   = "make_hold_invoice"
	methodCancelHoldInvoice = "cancel_hold_invoice"
	methodSettleHoldInvoice = "settle_hold_invoice"
)

// Notification topics on the wire.
const (
	topicPaymentReceived     = "payment_received"
	topicPaymentSent         = "payment_sent"
	topicHoldInvoiceAccepted = "hold_invoice_accepted"
)

var walletReadMethods = []string{
	methodMakeInvoice,
	methodLookupInvoice,
	methodListTransactions,
	methodGetBalance,
	methodGetInfo,
}

var walletPayMethods = []string{
	methodPayInvoice,
	methodMultiPayInvoice,
	methodPayKeysend,
	methodMultiPayKeysend,
}

var walletOfferReadMethods = []string{
	methodGetOfferInfo,
}

var walletOfferPayMethods = []string{
	methodMakeOffer,
	methodPayOffer,
	methodMultiPayOffer,
}

// Hold methods are gated on the companion at dispatch time and never
// advertised.
var walletHoldMethods = []string{
	methodMakeHoldInvoice,
	methodCancelHoldInvoice,
	methodSettleHoldInvoice,
}

// knownMethods is every method name the dispatcher understands; anything
// else fails request parsing.
var knownMethods = func() map[string]bool {
	m := make(map[string]bool)
	for _, group := range [][]string{
		walletReadMethods,
		walletPayMethods,
		walletOfferReadMethods,
		walletOfferPayMethods,
		walletHoldMethods,
	} {
		for _, name := range group {
			m[name] = true
		}
	}
	return m
}()

// buildCapabilities returns the advertised method and notification sets for
// one connection. Order is stable so repeated advertisements are
// byte-identical. Both the get_info response and the kind-13194 info event
// are built from this and cannot drift apart.
func buildCapabilities(readOnly, offerSupport, holdActive, notifications bool) (methods, topics []string) {
	methods = append(methods, walletReadMethods...)
	if offerSupport {
		methods = append(methods, walletOfferReadMethods...)
	}
	if !readOnly {
		methods = append(methods, walletPayMethods...)
		if offerSupport {
			methods = append(methods, walletOfferPayMethods...)
		}
	}
	if notifications {
		topics = append(topics, topicPaymentReceived, topicPaymentSent)
		if holdActive {
			topics = append(topics, topicHoldInvoiceAccepted)
		}
	}
	return methods, topics
}
