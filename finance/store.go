/*
store.go - Persistence interface for agreements, installments and payments

PURPOSE:
  Defines the boundary between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage; the
  engine only assumes the contracts below.

KEY INTERFACES:
  Store:    Entity persistence at single-aggregate granularity
  TxStore:  Store plus atomic multi-write transactions
  AuditLog: Append-only record of every mutating operation

ATOMICITY CONTRACT:
  CreateAgreement persists the agreement and its full installment set
  atomically. WithTx gives the service all-or-nothing semantics for a
  payment (payment record + installment update + aggregate recompute).

PAYMENTS ARE APPEND-ONLY:
  There is no update or delete for payment records. Corrections are new
  records. The installments table carries the running amount_paid sum.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - store/memory: in-memory for tests and development
*/
package finance

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Entity persistence
// =============================================================================

// Store handles persistence of the agreement aggregate.
// Lookups return (nil, nil) when the entity does not exist; the service
// layer translates that into the not-found errors of errors.go.
type Store interface {
	// CreateAgreement persists an agreement with its full installment set
	// atomically. Either everything is written or nothing is.
	CreateAgreement(ctx context.Context, ag Agreement, installments []Installment) error

	GetAgreement(ctx context.Context, id AgreementID) (*Agreement, error)
	UpdateAgreement(ctx context.Context, ag Agreement) error

	// DeleteAgreement removes an agreement and its installments outright.
	// Only legal for agreements with no recorded payments; the service
	// enforces that before calling.
	DeleteAgreement(ctx context.Context, id AgreementID) error

	// FindStandardAgreement returns the case's non-cancelled standard
	// agreement, or nil if none exists. At most one may exist at a time.
	FindStandardAgreement(ctx context.Context, caseID CaseID) (*Agreement, error)

	// ListAgreementsByCase returns every agreement for a case, including
	// cancelled history and alvará agreements.
	ListAgreementsByCase(ctx context.Context, caseID CaseID) ([]Agreement, error)

	GetInstallment(ctx context.Context, id InstallmentID) (*Installment, error)

	// ListInstallments returns the agreement's installments ordered by number.
	ListInstallments(ctx context.Context, agreementID AgreementID) ([]Installment, error)

	UpdateInstallment(ctx context.Context, inst Installment) error

	// ReplaceInstallments swaps the agreement's installment set atomically.
	// Used on renegotiation when the schedule must be regenerated.
	ReplaceInstallments(ctx context.Context, agreementID AgreementID, installments []Installment) error

	// AppendPayment adds a payment record. Append-only: no update, no delete.
	AppendPayment(ctx context.Context, p PaymentRecord) error

	// ListPayments returns all payment records for an agreement,
	// chronologically.
	ListPayments(ctx context.Context, agreementID AgreementID) ([]PaymentRecord, error)

	// CountPayments reports how many payment records exist for an agreement.
	// Drives the keep-or-delete policy on case transitions.
	CountPayments(ctx context.Context, agreementID AgreementID) (int, error)
}

// TxStore wraps Store with transaction support.
// Use this when an operation spans multiple writes (recording a payment
// touches the payments, installments and agreements tables).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Append-only record of who did what when
// =============================================================================

type AuditAction string

const (
	AuditAgreementCreated      AuditAction = "agreement_created"
	AuditAgreementUpdated      AuditAction = "agreement_updated"
	AuditAgreementCancelled    AuditAction = "agreement_cancelled"
	AuditAgreementDeleted      AuditAction = "agreement_deleted"
	AuditAgreementRenegotiated AuditAction = "agreement_renegotiated"
	AuditPaymentRecorded       AuditAction = "payment_recorded"
	AuditCaseStatusApplied     AuditAction = "case_status_applied"
)

// AuditEntry records a mutating operation with actor identity and payload.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	Actor         string
	Action        AuditAction
	CaseID        CaseID
	AgreementID   AgreementID
	InstallmentID InstallmentID
	Payload       map[string]any
}

// AuditLog stores audit entries. Append-only; a failed append must never
// roll back the business operation it describes.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	CaseID      *CaseID
	AgreementID *AgreementID
	Actor       *string
	Actions     []AuditAction
	From        *time.Time
	To          *time.Time
}
