package provider

import (
	"errors"
	"fmt"
)

// OverloadError signals that a provider rejected work due to overload
// (rate limiting, capacity). Only this class may open a circuit.
type OverloadError struct {
	Provider string
	Message  string
	Err      error
}

// Error formats the overload failure for logs
func (e *OverloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s overloaded: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s overloaded: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *OverloadError) Unwrap() error {
	return e.Err
}

// TransientError is a retryable, non-overload provider failure. It is
// logged and may be retried, but never affects circuit breaker state.
type TransientError struct {
	Provider string
	Message  string
	Err      error
}

// Error formats the transient failure for logs
func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s transient failure: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s transient failure: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As
func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsOverload reports whether err is classified as a provider overload
func IsOverload(err error) bool {
	var oe *OverloadError
	return errors.As(err, &oe)
}
