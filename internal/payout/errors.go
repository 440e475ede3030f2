package payout

import (
	"errors"
	"fmt"

	"github.com/trocopix/trocopix/internal/limits"
)

// Stable reason codes surfaced to callers.
const (
	CodeInvalidKey      = "INVALID_KEY"
	CodeInvalidAmount   = "INVALID_AMOUNT"
	CodeNegativeChange  = "NEGATIVE_CHANGE"
	CodeAlreadyTerminal = "ALREADY_TERMINAL"
	CodeNotRetryable    = "NOT_RETRYABLE"
)

// ErrNotFound is returned when the referenced transaction or wallet
// does not exist.
var ErrNotFound = errors.New("record not found")

// ErrTransient is returned when an operation lost the optimistic race
// twice in a row. The caller may simply try again.
var ErrTransient = errors.New("transient conflict, try again")

// ValidationError rejects bad input before any record is created.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PolicyError rejects a payout the limit policy does not admit. No
// record is created; the caller may re-request once conditions change.
type PolicyError struct {
	Reason limits.Denial
}

func (e *PolicyError) Error() string {
	return string(e.Reason)
}

// TransitionError rejects an operation that the transaction's current
// state does not allow.
type TransitionError struct {
	Code   string
	Status string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: transaction is %s", e.Code, e.Status)
}
