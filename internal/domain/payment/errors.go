package payment

import (
	"errors"
	"fmt"
)

var (
	ErrGatewayMisconfigured  = errors.New("gateway is not configured or disabled")
	ErrUnsupportedCurrency   = errors.New("currency not supported by gateway")
	ErrUpstream              = errors.New("payment provider request failed")
	ErrSignatureInvalid      = errors.New("callback signature invalid")
	ErrConflictingFinalState = errors.New("conflicting final state")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrCaptureNotSupported   = errors.New("gateway does not support explicit capture")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrStaleTransaction      = errors.New("transaction changed concurrently")
	ErrProviderIDMismatch    = errors.New("provider transaction id already set to a different value")
	ErrAlreadyNotified       = errors.New("recovery notification already recorded")
)

// UpstreamError describes a failed call to a payment provider: a non-2xx
// answer, a transport failure or a timeout. It matches ErrUpstream.
type UpstreamError struct {
	Gateway    string
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: provider returned %d", e.Gateway, e.Operation, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Gateway, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s: provider request failed", e.Gateway, e.Operation)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
