package main

import "errors"

// Ledger check failures. budgetError translates these onto protocol codes.
var (
	errAmountMissing  = errors.New("no amount found in request or invoice")
	errAmountMismatch = errors.New("request amount and invoice amount do not match")
	errQuotaExceeded  = errors.New("budget exceeded")
)

// checkBudget reconciles the requested amount with the invoice amount and
// enforces the connection budget. When both amounts are present they must
// match; when only one is present it is authoritative; when neither is, the
// spend is rejected. A nil budget means uncapped.
func checkBudget(requestMsat, invoiceMsat, budgetMsat *uint64) error {
	var amount uint64
	switch {
	case requestMsat != nil && invoiceMsat != nil:
		if *requestMsat != *invoiceMsat {
			return errAmountMismatch
		}
		amount = *requestMsat
	case requestMsat != nil:
		amount = *requestMsat
	case invoiceMsat != nil:
		amount = *invoiceMsat
	default:
		return errAmountMissing
	}
	if budgetMsat != nil && amount > *budgetMsat {
		return errQuotaExceeded
	}
	return nil
}

// debit subtracts the actually sent amount (fees included) from the budget,
// saturating at zero. A nil budget is untouched.
func debit(budgetMsat *uint64, sentMsat uint64) {
	if budgetMsat == nil {
		return
	}
	if *budgetMsat < sentMsat {
		*budgetMsat = 0
		return
	}
	*budgetMsat -= sentMsat
}

// isReadOnly reports whether the record only permits read methods: a zero
// budget with no refill interval. A zero budget that refills on an interval
// is a spending connection that is merely out of budget right now.
func isReadOnly(rec *ConnectionRecord) bool {
	return rec.BudgetMsat != nil && *rec.BudgetMsat == 0 && rec.Interval == nil
}
