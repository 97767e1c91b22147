/*
automation.go - Case status transitions driving agreement side effects

STATE MACHINE:
  Case statuses observed: in_progress -> agreement -> {extinguished, paid},
  with agreement reachable again after renegotiation. Effects:

    * -> agreement, terms present
        No existing standard agreement: create one (schedule generated).
        One exists: renegotiate in place and reactivate; the schedule is
        regenerated only if total value or installment count changed.
    * -> agreement, alvará value present
        Create an additional, independent single-installment cash-in-full
        agreement for the released funds. Never replaces the standard one.
    agreement -> anything else
        The standard agreement is deleted if it has no payments, or kept
        as a cancelled historical record if it does.
    * -> extinguished
        No direct financial effect; the case's documents are archived via
        the external collaborator, best-effort.

FAILURE POLICY:
  The case update itself has already been committed by the caller. An
  agreement-side failure is therefore non-fatal: it is logged and surfaced
  on the Result for manual retry, never returned as a hard error. Only a
  malformed update (unknown status) is rejected outright.
*/
package casefile

import (
	"context"
	"fmt"
	"log"

	"github.com/pactum/agreement-engine/finance"
)

// Automation applies case status transitions to the agreements of a case.
type Automation struct {
	finance  *finance.Service
	parties  PartyDirectory
	archiver DocumentArchiver
}

func NewAutomation(svc *finance.Service, parties PartyDirectory, archiver DocumentArchiver) *Automation {
	return &Automation{finance: svc, parties: parties, archiver: archiver}
}

// Result reports what a case update did to the case's agreements.
// AgreementError and ArchiveError are non-fatal: the case transition stands
// and the failed side effect is left for manual retry.
type Result struct {
	StandardAgreement *finance.Agreement
	AlvaraAgreement   *finance.Agreement

	// RetiredAgreementID identifies the standard agreement cancelled or
	// deleted by this update, so callers can drop derived read models.
	RetiredAgreementID finance.AgreementID
	StandardDeleted    bool
	AgreementError     error
	ArchiveError       error
}

// ApplyCaseUpdate reacts to one case status transition.
func (a *Automation) ApplyCaseUpdate(ctx context.Context, caseID finance.CaseID, update CaseUpdate) (*Result, error) {
	if !update.NewStatus.Valid() {
		return nil, fmt.Errorf("unknown case status %q", update.NewStatus)
	}
	if caseID == "" {
		return nil, fmt.Errorf("case id is required")
	}

	result := &Result{}

	switch update.NewStatus {
	case StatusAgreement:
		a.applyAgreementStatus(ctx, caseID, update, result)

	default:
		// Leaving agreement status retires the standard agreement.
		if update.PreviousStatus == StatusAgreement {
			a.retireStandardAgreement(ctx, caseID, update.Actor, result)
		}
		if update.NewStatus == StatusExtinguished && a.archiver != nil {
			if err := a.archiver.ArchiveCaseDocuments(ctx, caseID); err != nil {
				result.ArchiveError = &finance.CollaboratorError{Collaborator: "archive", Err: err}
				log.Printf("case %s: document archival failed (non-fatal): %v", caseID, err)
			}
		}
	}

	return result, nil
}

func (a *Automation) applyAgreementStatus(ctx context.Context, caseID finance.CaseID, update CaseUpdate, result *Result) {
	if update.Terms != nil {
		ag, err := a.upsertStandardAgreement(ctx, caseID, *update.Terms, update.Actor)
		if err != nil {
			result.AgreementError = err
			log.Printf("case %s: standard agreement upsert failed (non-fatal): %v", caseID, err)
		} else {
			result.StandardAgreement = ag
		}
	}

	if update.AlvaraValue != nil && update.AlvaraValue.IsPositive() {
		ag, err := a.createAlvaraAgreement(ctx, caseID, *update.AlvaraValue, update.Actor)
		if err != nil {
			if result.AgreementError == nil {
				result.AgreementError = err
			}
			log.Printf("case %s: alvará agreement creation failed (non-fatal): %v", caseID, err)
		} else {
			result.AlvaraAgreement = ag
		}
	}
}

// upsertStandardAgreement creates the case's standard agreement, or updates
// the existing one in place. At most one may be live per case.
func (a *Automation) upsertStandardAgreement(ctx context.Context, caseID finance.CaseID, terms Terms, actor string) (*finance.Agreement, error) {
	agTerms, err := a.buildTerms(ctx, caseID, terms, finance.KindStandard)
	if err != nil {
		return nil, err
	}

	existing, err := a.finance.StandardAgreementForCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return a.finance.RenegotiateAgreement(ctx, existing.ID, agTerms, actor)
	}

	ag, _, err := a.finance.CreateAgreement(ctx, agTerms, actor)
	return ag, err
}

// createAlvaraAgreement records a judicial release of funds as an
// independent single-installment cash-in-full agreement.
func (a *Automation) createAlvaraAgreement(ctx context.Context, caseID finance.CaseID, value finance.Money, actor string) (*finance.Agreement, error) {
	terms := Terms{
		Type:             finance.TypeCashInFull,
		TotalValue:       value,
		InstallmentCount: 1,
		StartDate:        finance.Today(),
		Notes:            "alvará judicial",
	}
	agTerms, err := a.buildTerms(ctx, caseID, terms, finance.KindAlvara)
	if err != nil {
		return nil, err
	}

	ag, _, err := a.finance.CreateAgreement(ctx, agTerms, actor)
	return ag, err
}

// retireStandardAgreement applies the keep-or-delete policy when a case
// leaves agreement status.
func (a *Automation) retireStandardAgreement(ctx context.Context, caseID finance.CaseID, actor string, result *Result) {
	existing, err := a.finance.StandardAgreementForCase(ctx, caseID)
	if err != nil {
		result.AgreementError = err
		log.Printf("case %s: standard agreement lookup failed (non-fatal): %v", caseID, err)
		return
	}
	if existing == nil {
		return
	}

	deleted, err := a.finance.CancelAgreement(ctx, existing.ID, actor)
	if err != nil {
		result.AgreementError = err
		log.Printf("case %s: standard agreement retirement failed (non-fatal): %v", caseID, err)
		return
	}
	result.RetiredAgreementID = existing.ID
	result.StandardDeleted = deleted
}

func (a *Automation) buildTerms(ctx context.Context, caseID finance.CaseID, terms Terms, kind finance.AgreementKind) (finance.AgreementTerms, error) {
	client, executed, err := a.parties.GetCaseParties(ctx, caseID)
	if err != nil {
		return finance.AgreementTerms{}, &finance.CollaboratorError{Collaborator: "parties", Err: err}
	}

	startDate := terms.StartDate
	if startDate.IsZero() {
		startDate = finance.Today().AddMonths(1)
	}

	return finance.AgreementTerms{
		CaseID:           caseID,
		CreditorID:       client,
		DebtorID:         executed,
		Kind:             kind,
		Type:             terms.Type,
		TotalValue:       terms.TotalValue,
		EntryValue:       terms.EntryValue,
		InstallmentCount: terms.InstallmentCount,
		StartDate:        startDate,
		LateFeePct:       terms.LateFeePct,
		DailyInterestPct: terms.DailyInterestPct,
		Notes:            terms.Notes,
	}, nil
}
