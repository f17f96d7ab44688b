package main

import (
	"errors"

	"cln-nwc/internal/cln"
)

// ErrorCode is a NIP-47 protocol error code.
type ErrorCode string

const (
	ErrCodeRateLimited           ErrorCode = "RATE_LIMITED"
	ErrCodeNotImplemented        ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeInsufficientBalance   ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeQuotaExceeded         ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeRestricted            ErrorCode = "RESTRICTED"
	ErrCodeUnauthorized          ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal              ErrorCode = "INTERNAL"
	ErrCodeOther                 ErrorCode = "OTHER"
	ErrCodePaymentFailed         ErrorCode = "PAYMENT_FAILED"
	ErrCodeNotFound              ErrorCode = "NOT_FOUND"
	ErrCodeUnsupportedEncryption ErrorCode = "UNSUPPORTED_ENCRYPTION"
)

// NIP47Error is the error member of a wallet response.
type NIP47Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *NIP47Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func nip47Error(code ErrorCode, message string) *NIP47Error {
	return &NIP47Error{Code: code, Message: message}
}

func internalError(err error) *NIP47Error {
	return &NIP47Error{Code: ErrCodeInternal, Message: err.Error()}
}

func otherError(message string) *NIP47Error {
	return &NIP47Error{Code: ErrCodeOther, Message: message}
}

// budgetError maps ledger check failures onto protocol codes: exhausted
// budget is QUOTA_EXCEEDED, inconsistent or missing amounts are OTHER.
func budgetError(err error) *NIP47Error {
	if errors.Is(err, errQuotaExceeded) {
		return nip47Error(ErrCodeQuotaExceeded, err.Error())
	}
	return otherError(err.Error())
}

// mapPayError translates lightningd payment errors onto the protocol
// taxonomy. xpay and the legacy pay command use different code spaces;
// anything unmapped, including errors without a numeric code, is INTERNAL.
func mapPayError(err error, xpay bool) *NIP47Error {
	var rpcErr *cln.RPCError
	if !errors.As(err, &rpcErr) {
		return internalError(err)
	}
	if xpay {
		switch rpcErr.Code {
		case 207, 219:
			return otherError(rpcErr.Message)
		case 203, 205, 209:
			return nip47Error(ErrCodePaymentFailed, rpcErr.Message)
		default:
			return internalError(err)
		}
	}
	switch rpcErr.Code {
	case 201, 207, 219:
		return otherError(rpcErr.Message)
	case 203, 205, 209, 210:
		return nip47Error(ErrCodePaymentFailed, rpcErr.Message)
	case 206:
		return nip47Error(ErrCodeInsufficientBalance, rpcErr.Message)
	default:
		return internalError(err)
	}
}

// mapKeysendError is the keysend variant of mapPayError.
func mapKeysendError(err error) *NIP47Error {
	var rpcErr *cln.RPCError
	if !errors.As(err, &rpcErr) {
		return internalError(err)
	}
	switch rpcErr.Code {
	case 203, 205, 210:
		return nip47Error(ErrCodePaymentFailed, rpcErr.Message)
	case 206:
		return nip47Error(ErrCodeInsufficientBalance, rpcErr.Message)
	default:
		return internalError(err)
	}
}
