package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain sentinels wrap exactly one of these so transports can
// classify failures without knowing every package.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation failed")
	// ErrInvariant marks a request that would break a ledger invariant.
	ErrInvariant = errors.New("invariant violation")
	// ErrConfiguration marks missing setup such as an unknown account or series.
	ErrConfiguration = errors.New("configuration error")
	// ErrForbidden indicates the actor may not perform the action.
	ErrForbidden = errors.New("forbidden")
	// ErrConcurrentUpdate indicates the storage layer aborted a conflicting transaction.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// Validation builds a sentinel classified as ErrValidation.
func Validation(msg string) error { return &kindError{kind: ErrValidation, msg: msg} }

// Invariant builds a sentinel classified as ErrInvariant.
func Invariant(msg string) error { return &kindError{kind: ErrInvariant, msg: msg} }

// Configuration builds a sentinel classified as ErrConfiguration.
func Configuration(msg string) error { return &kindError{kind: ErrConfiguration, msg: msg} }

// NotFound builds a sentinel classified as ErrNotFound.
func NotFound(msg string) error { return &kindError{kind: ErrNotFound, msg: msg} }

// Forbidden builds a sentinel classified as ErrForbidden.
func Forbidden(msg string) error { return &kindError{kind: ErrForbidden, msg: msg} }

// Validationf formats an ad-hoc validation failure.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// UserSafeMessage returns the error text for classified errors and a generic
// message for everything else.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, kind := range []error{ErrValidation, ErrInvariant, ErrConfiguration, ErrNotFound, ErrForbidden, ErrConcurrentUpdate} {
		if errors.Is(err, kind) {
			return err.Error()
		}
	}
	return "internal error"
}
