package recoverai

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodePaymentRequired     = "payment_required"
	ErrCodeInvoiceNotFound     = "invoice_not_found"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeSettlementFailed    = "settlement_failed"
	ErrCodeAnonymousIdentity   = "anonymous_identity"
	ErrCodeUnsupportedResource = "unsupported_resource"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Ledger errors
var (
	ErrInvoiceNotFound   = errors.New("recoverai: invoice not found")
	ErrAnonymousIdentity = errors.New("recoverai: anonymous identity")
	ErrAlreadyEntitled   = errors.New("recoverai: identity already entitled")
)

// Fetch error taxonomy. A *FetchError matches exactly one of these with errors.Is.
var (
	ErrUnreachable         = errors.New("recoverai: gateway unreachable")
	ErrPaymentNotConfirmed = errors.New("recoverai: payment not confirmed")
	ErrUnhandled           = errors.New("recoverai: unhandled gateway failure")
)

// FetchErrorKind classifies a failed fetch
type FetchErrorKind int

const (
	FetchUnreachable FetchErrorKind = iota
	FetchPaymentNotConfirmed
	FetchUnhandled
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchUnreachable:
		return "Unreachable"
	case FetchPaymentNotConfirmed:
		return "PaymentNotConfirmed"
	default:
		return "Unhandled"
	}
}

func (k FetchErrorKind) sentinel() error {
	switch k {
	case FetchUnreachable:
		return ErrUnreachable
	case FetchPaymentNotConfirmed:
		return ErrPaymentNotConfirmed
	default:
		return ErrUnhandled
	}
}

// FetchError is returned by GatewayClient.Fetch. All kinds are recoverable by polling again.
type FetchError struct {
	Kind      FetchErrorKind
	InvoiceID string
	Err       error
}

func (e *FetchError) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.InvoiceID != "" {
		msg += " (invoice " + e.InvoiceID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the taxonomy sentinel and the underlying cause
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func newFetchError(kind FetchErrorKind, invoiceID string, err error) *FetchError {
	return &FetchError{Kind: kind, InvoiceID: invoiceID, Err: err}
}
