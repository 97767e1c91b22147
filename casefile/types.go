// Package casefile implements case-lifecycle automation over the finance
// engine. It observes case status transitions and creates, renegotiates or
// retires the financial agreements attached to a case.
package casefile

import (
	"context"

	"github.com/pactum/agreement-engine/finance"
)

// =============================================================================
// CASE STATUS
// =============================================================================

// CaseStatus is the lifecycle status of the owning legal case, as reported
// by the external case-management layer.
type CaseStatus string

const (
	StatusInProgress   CaseStatus = "in_progress"
	StatusAgreement    CaseStatus = "agreement"
	StatusExtinguished CaseStatus = "extinguished"
	StatusPaid         CaseStatus = "paid"
)

func (s CaseStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusAgreement, StatusExtinguished, StatusPaid:
		return true
	}
	return false
}

// =============================================================================
// CASE UPDATE - the inbound event
// =============================================================================

// Terms carries the negotiated settlement terms attached to a case update.
// Parties are resolved from the case registry when not supplied.
type Terms struct {
	Type             finance.AgreementType
	TotalValue       finance.Money
	EntryValue       finance.Money
	InstallmentCount int
	StartDate        finance.Date
	LateFeePct       finance.Percent
	DailyInterestPct finance.Percent
	Notes            string
}

// CaseUpdate is one observed case status transition.
type CaseUpdate struct {
	PreviousStatus CaseStatus
	NewStatus      CaseStatus

	// Terms for the standard agreement; nil when the update carries none.
	Terms *Terms

	// AlvaraValue is a judicial-release amount, settled cash-in-full in a
	// single installment, independent of the standard terms.
	AlvaraValue *finance.Money

	Actor string
}

// =============================================================================
// EXTERNAL COLLABORATORS - interface only, implementations out of scope
// =============================================================================

// PartyDirectory resolves the two party records of a case. The client is
// the creditor being represented; the executed party is the debtor.
type PartyDirectory interface {
	GetCaseParties(ctx context.Context, caseID finance.CaseID) (client, executed finance.EntityID, err error)
}

// DocumentArchiver archives a case's documents when the case is
// extinguished. Best-effort: failure is reported, never reverts the case
// status change that triggered it.
type DocumentArchiver interface {
	ArchiveCaseDocuments(ctx context.Context, caseID finance.CaseID) error
}
