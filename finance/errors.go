/*
errors.go - Centralized error types for the agreement engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with the helpers at the bottom rather than
  matching strings.

ERROR CATEGORIES:
  1. Validation errors - bad terms or payment input, rejected before any mutation
  2. Not-found errors  - unknown agreement/installment
  3. Conflict errors   - already-paid installments, lock contention
  4. Invariant violations - aggregate recompute produced impossible state;
     a defect signal, surfaced loudly, never silently clamped
  5. Collaborator errors - persistence/audit/archival failures

USAGE:
  if finance.IsConflict(err) {
      // safe for the caller to retry the whole operation
  }
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTerms is returned when agreement terms fail validation
	// (non-positive installment count, entry exceeding total, bad type).
	ErrInvalidTerms = errors.New("invalid agreement terms")

	// ErrInvalidPayment is returned for a non-positive amount, unknown
	// method, or missing payment date.
	ErrInvalidPayment = errors.New("invalid payment input")

	// ErrAgreementNotFound is returned when a referenced agreement doesn't exist.
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrInstallmentNotFound is returned when a referenced installment doesn't
	// exist or belongs to a cancelled agreement.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrAlreadyPaid is returned when recording a payment against a paid
	// installment. Paid is a terminal state; corrections require an explicit
	// reversal operation.
	ErrAlreadyPaid = errors.New("installment already paid")

	// ErrConcurrentModification is returned when per-agreement serialization
	// detects contention. The caller may retry the whole operation.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvariantViolation is returned when derived aggregates would exceed
	// what the agreement can legally owe. This signals a defect.
	ErrInvariantViolation = errors.New("aggregate invariant violation")

	// ErrStandardAgreementExists is returned when creation would leave a case
	// with two live standard agreements.
	ErrStandardAgreementExists = errors.New("standard agreement already exists for case")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TermsError details which part of the agreement terms was rejected.
type TermsError struct {
	Field  string
	Reason string
}

func (e *TermsError) Error() string {
	return fmt.Sprintf("invalid terms: %s %s", e.Field, e.Reason)
}

func (e *TermsError) Unwrap() error { return ErrInvalidTerms }

// PaymentError details why a payment input was rejected.
type PaymentError struct {
	Field  string
	Reason string
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("invalid payment: %s %s", e.Field, e.Reason)
}

func (e *PaymentError) Unwrap() error { return ErrInvalidPayment }

// InvariantError reports the impossible aggregate state that was about to be
// persisted. Nothing is committed when this is returned.
type InvariantError struct {
	AgreementID AgreementID
	PaidAmount  Money
	MaxOwed     Money
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on agreement %s: paid %s exceeds maximum owed %s",
		e.AgreementID, e.PaidAmount, e.MaxOwed)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// CollaboratorError wraps a failure from an external collaborator
// (persistence, audit sink, document archival).
type CollaboratorError struct {
	Collaborator string // "store", "audit", "archive"
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator failed: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTerms) ||
		errors.Is(err, ErrInvalidPayment)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAgreementNotFound) ||
		errors.Is(err, ErrInstallmentNotFound)
}

// IsConflict returns true for errors the caller may resolve by retrying the
// whole operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStandardAgreementExists)
}

// IsRetryable returns true if the error might succeed on retry with no
// change to the input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
