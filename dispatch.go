package main

import (
	"context"
	"encoding/json"
	"fmt"
)

// taggedResponse pairs one response payload with its correlation id; a
// non-empty id lands in a d tag on the response event.
type taggedResponse struct {
	resp *Response
	id   string
}

func buildResponse(method string, result any, nerr *NIP47Error) *Response {
	if nerr != nil {
		return &Response{ResultType: method, Error: nerr}
	}
	return &Response{ResultType: method, Result: result}
}

func single(method string, result any, id string, nerr *NIP47Error) []taggedResponse {
	return []taggedResponse{{resp: buildResponse(method, result, nerr), id: id}}
}

// parseRequest deserializes plaintext into a request with a method this
// wallet understands.
func parseRequest(plaintext string) (*Request, error) {
	var req Request
	if err := json.Unmarshal([]byte(plaintext), &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	if !knownMethods[req.Method] {
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
	return &req, nil
}

func unmarshalParams(req *Request, into any) error {
	params := req.Params
	if len(params) == 0 {
		params = []byte("{}")
	}
	if err := json.Unmarshal(params, into); err != nil {
		return fmt.Errorf("parse %s params: %w", req.Method, err)
	}
	return nil
}

// dispatch routes one decoded request to its handler and collects the
// responses to publish: one for single operations, one per sub-item for
// batches. An error means the params did not deserialize; the event is
// dropped because there is no reliable way to answer a request that cannot
// be read.
func dispatch(ctx context.Context, s *PluginState, label string, req *Request) ([]taggedResponse, error) {
	switch req.Method {
	case methodPayInvoice:
		var p PayInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, id, nerr := payInvoice(ctx, s, label, &p)
		return single(methodPayInvoice, result, id, nerr), nil

	case methodMultiPayInvoice:
		var p MultiPayInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		return multiPayInvoice(ctx, s, label, &p), nil

	case methodPayKeysend:
		var p PayKeysendParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := payKeysend(ctx, s, label, &p)
		return single(methodPayKeysend, result, keysendID(&p), nerr), nil

	case methodMultiPayKeysend:
		var p MultiPayKeysendParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		return multiPayKeysend(ctx, s, label, &p), nil

	case methodMakeInvoice:
		var p MakeInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := makeInvoice(ctx, s, &p)
		return single(methodMakeInvoice, result, "", nerr), nil

	case methodLookupInvoice:
		var p LookupInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := lookupInvoice(ctx, s, &p)
		return single(methodLookupInvoice, result, "", nerr), nil

	case methodListTransactions:
		var p ListTransactionsParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := listTransactions(ctx, s, &p)
		return single(methodListTransactions, result, "", nerr), nil

	case methodGetBalance:
		result, nerr := getBalance(ctx, s, label)
		return single(methodGetBalance, result, "", nerr), nil

	case methodGetInfo:
		result, nerr := getInfo(ctx, s, label)
		return single(methodGetInfo, result, "", nerr), nil

	case methodGetOfferInfo:
		var p GetOfferInfoParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := getOfferInfo(ctx, s, &p)
		return single(methodGetOfferInfo, result, "", nerr), nil

	case methodMakeOffer:
		var p MakeOfferParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, nerr := makeOffer(ctx, s, &p)
		return single(methodMakeOffer, result, "", nerr), nil

	case methodPayOffer:
		var p PayOfferParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		result, id, nerr := payOffer(ctx, s, label, &p)
		return single(methodPayOffer, result, id, nerr), nil

	case methodMultiPayOffer:
		var p MultiPayOfferParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		return multiPayOffer(ctx, s, label, &p), nil

	case methodMakeHoldInvoice:
		var p MakeHoldInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		if !s.holdActive() {
			return single(methodMakeHoldInvoice, nil, "", holdInactiveError()), nil
		}
		result, nerr := makeHoldInvoice(ctx, s, &p)
		return single(methodMakeHoldInvoice, result, "", nerr), nil

	case methodCancelHoldInvoice:
		var p CancelHoldInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		if !s.holdActive() {
			return single(methodCancelHoldInvoice, nil, "", holdInactiveError()), nil
		}
		nerr := cancelHoldInvoice(ctx, s, &p)
		return single(methodCancelHoldInvoice, emptyResult(nerr), "", nerr), nil

	case methodSettleHoldInvoice:
		var p SettleHoldInvoiceParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, err
		}
		if !s.holdActive() {
			return single(methodSettleHoldInvoice, nil, "", holdInactiveError()), nil
		}
		nerr := settleHoldInvoice(ctx, s, &p)
		return single(methodSettleHoldInvoice, emptyResult(nerr), "", nerr), nil
	}

	// parseRequest admits only the methods above.
	return nil, fmt.Errorf("unknown method %q", req.Method)
}

func holdInactiveError() *NIP47Error {
	return nip47Error(ErrCodeNotImplemented, "Not implemented")
}

func emptyResult(nerr *NIP47Error) any {
	if nerr != nil {
		return nil
	}
	return struct{}{}
}
