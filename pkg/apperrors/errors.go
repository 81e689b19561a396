// Package apperrors defines the trading engine's error taxonomy:
// typed, kind-tagged errors that callers dispatch on instead of matching
// ad-hoc sentinel values.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the abstract error category.
type Kind string

const (
	KindConfiguration   Kind = "configuration"
	KindSafety          Kind = "safety"
	KindRisk            Kind = "risk"
	KindFilter          Kind = "filter"
	KindBrokerTransient Kind = "broker_transient"
	KindPersistence     Kind = "persistence"
	KindReconciliation  Kind = "reconciliation"
	KindExitPublish     Kind = "exit_publish"
)

// TradingError wraps an error with the kind/reason the Risk Manager and
// Order Manager need to decide propagation.
type TradingError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *TradingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *TradingError) Unwrap() error { return e.Err }

// New constructs a TradingError of the given kind with a reason string.
func New(kind Kind, reason string) *TradingError {
	return &TradingError{Kind: kind, Reason: reason}
}

// Wrap constructs a TradingError of the given kind wrapping a cause.
func Wrap(kind Kind, reason string, err error) *TradingError {
	return &TradingError{Kind: kind, Reason: reason, Err: err}
}

// Is reports whether err is a TradingError of the given kind.
func Is(err error, kind Kind) bool {
	var te *TradingError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// Standardized broker-adjacent sentinel errors, carried from the prior
// exchange-error vocabulary for callers that only need identity checks
// (e.g. the errors.Is checks in the order package's isTransientBrokerError).
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrNetwork               = errors.New("network error")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
)
