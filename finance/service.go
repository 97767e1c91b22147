/*
service.go - Mutation paths for the agreement aggregate

PURPOSE:
  The Service is the only way agreements, installments and payments are
  mutated. It validates input, runs the schedule generator and accrual
  calculator, applies payments atomically, recomputes aggregates, and
  emits audit entries.

CONCURRENCY:
  The installment set of an agreement is the unit of mutual exclusion.
  Mutations are serialized per agreement with a keyed mutex; operations
  that create or retire a case's standard agreement additionally hold a
  per-case lock so the at-most-one invariant survives concurrent case
  updates. Agreements of different cases proceed fully in parallel.

ATOMICITY:
  Every mutation runs inside the store's WithTx: payment record,
  installment update and aggregate recompute all commit together or not
  at all. Audit emission happens after commit and is fire-and-forget;
  a failed audit write is logged, never propagated.
*/
package finance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Service orchestrates all mutating operations on agreements.
type Service struct {
	store TxStore
	audit AuditLog

	// Pending installments overdue beyond this many days mark the
	// agreement Defaulted. Zero disables the check.
	defaultedAfterDays int

	now func() Date

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithOverdueThreshold sets the days-overdue threshold beyond which an
// agreement is considered Defaulted.
func WithOverdueThreshold(days int) Option {
	return func(s *Service) { s.defaultedAfterDays = days }
}

// WithClock overrides the service's notion of today. Tests use this to pin
// time-dependent derived state.
func WithClock(now func() Date) Option {
	return func(s *Service) { s.now = now }
}

// DefaultOverdueThresholdDays is used when no threshold is configured.
const DefaultOverdueThresholdDays = 30

func NewService(store TxStore, audit AuditLog, opts ...Option) *Service {
	s := &Service{
		store:              store,
		audit:              audit,
		defaultedAfterDays: DefaultOverdueThresholdDays,
		now:                Today,
		locks:              make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// AGREEMENT CREATION
// =============================================================================

// CreateAgreement validates terms, generates the installment schedule, and
// persists the whole aggregate atomically. For standard agreements it
// enforces the at-most-one-per-case invariant.
func (s *Service) CreateAgreement(ctx context.Context, terms AgreementTerms, actor string) (*Agreement, []Installment, error) {
	if terms.Kind == "" {
		terms.Kind = KindStandard
	}

	today := s.now()
	installments, err := GenerateSchedule(terms, today)
	if err != nil {
		return nil, nil, err
	}

	if terms.Kind == KindStandard {
		unlock := s.lock("case:" + string(terms.CaseID))
		defer unlock()

		existing, err := s.store.FindStandardAgreement(ctx, terms.CaseID)
		if err != nil {
			return nil, nil, &CollaboratorError{Collaborator: "store", Err: err}
		}
		if existing != nil {
			return nil, nil, ErrStandardAgreementExists
		}
	}

	ag := newAgreementFromTerms(terms, today)
	ag.InstallmentValue = installments[0].Amount
	for i := range installments {
		installments[i].ID = InstallmentID(newID("ins"))
		installments[i].AgreementID = ag.ID
	}

	if err := Derive(&ag, installments, today, s.defaultedAfterDays); err != nil {
		return nil, nil, err
	}

	if err := s.store.CreateAgreement(ctx, ag, installments); err != nil {
		return nil, nil, &CollaboratorError{Collaborator: "store", Err: err}
	}

	s.emitAudit(ctx, AuditEntry{
		Actor:       actor,
		Action:      AuditAgreementCreated,
		CaseID:      ag.CaseID,
		AgreementID: ag.ID,
		Payload: map[string]any{
			"kind":              string(ag.Kind),
			"type":              string(ag.Type),
			"total_value":       ag.TotalValue.String(),
			"entry_value":       ag.EntryValue.String(),
			"installment_count": ag.InstallmentCount,
		},
	})

	return &ag, installments, nil
}

func newAgreementFromTerms(terms AgreementTerms, today Date) Agreement {
	return Agreement{
		ID:               AgreementID(newID("agr")),
		CaseID:           terms.CaseID,
		DebtorID:         terms.DebtorID,
		CreditorID:       terms.CreditorID,
		GuarantorID:      terms.GuarantorID,
		Kind:             terms.Kind,
		Type:             terms.Type,
		TotalValue:       terms.TotalValue,
		EntryValue:       terms.EntryValue,
		InstallmentCount: terms.InstallmentCount,
		LateFeePct:       terms.LateFeePct,
		DailyInterestPct: terms.DailyInterestPct,
		Notes:            terms.Notes,
		Status:           StatusActive,
		CreatedAt:        today,
		UpdatedAt:        today,
	}
}

// =============================================================================
// RENEGOTIATION
// =============================================================================

// RenegotiateAgreement updates an existing agreement's terms in place and
// reactivates it. The schedule is regenerated only when total_value or
// installment_count changed; otherwise already-issued due dates stand.
func (s *Service) RenegotiateAgreement(ctx context.Context, id AgreementID, terms AgreementTerms, actor string) (*Agreement, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}

	unlockCase := s.lock("case:" + string(terms.CaseID))
	defer unlockCase()
	unlock := s.lock("agr:" + string(id))
	defer unlock()

	today := s.now()
	var updated Agreement

	err := s.store.WithTx(ctx, func(tx Store) error {
		ag, err := tx.GetAgreement(ctx, id)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		if ag == nil {
			return ErrAgreementNotFound
		}

		reschedule := !ag.TotalValue.Equal(terms.TotalValue) || ag.InstallmentCount != terms.InstallmentCount

		ag.Type = terms.Type
		ag.TotalValue = terms.TotalValue
		ag.EntryValue = terms.EntryValue
		ag.InstallmentCount = terms.InstallmentCount
		ag.LateFeePct = terms.LateFeePct
		ag.DailyInterestPct = terms.DailyInterestPct
		if terms.Notes != "" {
			ag.Notes = terms.Notes
		}
		ag.Status = StatusActive
		ag.RenegotiationCount++

		var installments []Installment
		if reschedule {
			installments, err = GenerateSchedule(terms, today)
			if err != nil {
				return err
			}
			for i := range installments {
				installments[i].ID = InstallmentID(newID("ins"))
				installments[i].AgreementID = ag.ID
			}
			ag.InstallmentValue = installments[0].Amount
			if err := tx.ReplaceInstallments(ctx, ag.ID, installments); err != nil {
				return &CollaboratorError{Collaborator: "store", Err: err}
			}
		} else {
			installments, err = tx.ListInstallments(ctx, ag.ID)
			if err != nil {
				return &CollaboratorError{Collaborator: "store", Err: err}
			}
		}

		if err := Derive(ag, installments, today, s.defaultedAfterDays); err != nil {
			return err
		}
		if err := tx.UpdateAgreement(ctx, *ag); err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		updated = *ag
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, AuditEntry{
		Actor:       actor,
		Action:      AuditAgreementRenegotiated,
		CaseID:      updated.CaseID,
		AgreementID: updated.ID,
		Payload: map[string]any{
			"renegotiation_count": updated.RenegotiationCount,
			"total_value":         updated.TotalValue.String(),
			"installment_count":   updated.InstallmentCount,
		},
	})

	return &updated, nil
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelAgreement retires an agreement. With no recorded payments the whole
// aggregate is deleted; with payment history it is kept as a historical
// record, its pending installments marked Cancelled. Returns true when the
// agreement was deleted outright.
func (s *Service) CancelAgreement(ctx context.Context, id AgreementID, actor string) (bool, error) {
	unlock := s.lock("agr:" + string(id))
	defer unlock()

	today := s.now()
	var (
		deleted bool
		caseID  CaseID
	)

	err := s.store.WithTx(ctx, func(tx Store) error {
		ag, err := tx.GetAgreement(ctx, id)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		if ag == nil {
			return ErrAgreementNotFound
		}
		caseID = ag.CaseID

		count, err := tx.CountPayments(ctx, id)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}

		if count == 0 {
			deleted = true
			if err := tx.DeleteAgreement(ctx, id); err != nil {
				return &CollaboratorError{Collaborator: "store", Err: err}
			}
			return nil
		}

		installments, err := tx.ListInstallments(ctx, id)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		for _, inst := range installments {
			if inst.Status != InstallmentPending {
				continue
			}
			inst.Status = InstallmentCancelled
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return &CollaboratorError{Collaborator: "store", Err: err}
			}
		}

		ag.Status = StatusCancelled
		ag.UpdatedAt = today
		if err := tx.UpdateAgreement(ctx, *ag); err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	action := AuditAgreementCancelled
	if deleted {
		action = AuditAgreementDeleted
	}
	s.emitAudit(ctx, AuditEntry{
		Actor:       actor,
		Action:      action,
		CaseID:      caseID,
		AgreementID: id,
		Payload:     map[string]any{"deleted": deleted},
	})

	return deleted, nil
}

// =============================================================================
// PAYMENT APPLIER
// =============================================================================

// RecordPayment applies a payment to an installment: appends the payment
// record, updates the installment's running totals, resolves it as Paid when
// principal is covered, and recomputes the agreement aggregates. The whole
// update is atomic; validation failures mutate nothing.
func (s *Service) RecordPayment(ctx context.Context, installmentID InstallmentID, input PaymentInput) (*Installment, error) {
	if err := validatePaymentInput(input); err != nil {
		return nil, err
	}

	// Locate the owning agreement before taking its lock.
	inst, err := s.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if inst == nil {
		return nil, ErrInstallmentNotFound
	}
	agreementID := inst.AgreementID

	unlock := s.lock("agr:" + string(agreementID))
	defer unlock()

	var (
		updated Installment
		ag      Agreement
		record  PaymentRecord
	)

	err = s.store.WithTx(ctx, func(tx Store) error {
		inst, err := tx.GetInstallment(ctx, installmentID)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		if inst == nil {
			return ErrInstallmentNotFound
		}

		agp, err := tx.GetAgreement(ctx, inst.AgreementID)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		if agp == nil || agp.Status == StatusCancelled {
			return ErrInstallmentNotFound
		}
		if inst.Status == InstallmentPaid {
			return ErrAlreadyPaid
		}
		if inst.Status == InstallmentCancelled {
			return ErrInstallmentNotFound
		}

		// Default the penalty split from the accrual calculator when the
		// caller did not override it. The default is capped at what the
		// installment has not been charged yet: the flat fee is applied at
		// most once, and interest only for days not billed by an earlier
		// partial payment.
		accrual := ComputeAccrual(*inst, input.PaymentDate, agp.LateFeePct, agp.DailyInterestPct)
		lateFee := accrual.LateFee.Sub(inst.LateFeePaid).ClampZero()
		if input.LateFeePaid != nil {
			lateFee = *input.LateFeePaid
		}
		interest := accrual.Interest.Sub(inst.InterestPaid).ClampZero()
		if input.InterestPaid != nil {
			interest = *input.InterestPaid
		}

		record = PaymentRecord{
			ID:            PaymentID(newID("pay")),
			InstallmentID: inst.ID,
			AgreementID:   agp.ID,
			Amount:        input.Amount,
			PaymentDate:   input.PaymentDate,
			Method:        input.Method,
			Reference:     input.Reference,
			LateFee:       lateFee,
			Interest:      interest,
			Discount:      input.Discount,
			Notes:         input.Notes,
			CreatedAt:     s.now(),
		}
		if err := tx.AppendPayment(ctx, record); err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}

		inst.AmountPaid = inst.AmountPaid.Add(input.Amount)
		inst.LateFeePaid = inst.LateFeePaid.Add(lateFee)
		inst.InterestPaid = inst.InterestPaid.Add(interest)

		// Principal is settled when paid amount plus all discounts granted
		// on this installment reaches the original amount.
		totalDiscount, err := installmentDiscount(ctx, tx, agp.ID, inst.ID)
		if err != nil {
			return err
		}
		if inst.AmountPaid.Add(totalDiscount).GreaterOrEqual(inst.Amount) {
			inst.Status = InstallmentPaid
			paidDate := input.PaymentDate
			inst.PaidDate = &paidDate
		}

		if err := tx.UpdateInstallment(ctx, *inst); err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}

		installments, err := tx.ListInstallments(ctx, agp.ID)
		if err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}
		if err := Derive(agp, installments, s.now(), s.defaultedAfterDays); err != nil {
			return err
		}
		if err := tx.UpdateAgreement(ctx, *agp); err != nil {
			return &CollaboratorError{Collaborator: "store", Err: err}
		}

		updated = *inst
		ag = *agp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, AuditEntry{
		Actor:         input.Actor,
		Action:        AuditPaymentRecorded,
		CaseID:        ag.CaseID,
		AgreementID:   ag.ID,
		InstallmentID: updated.ID,
		Payload: map[string]any{
			"payment_id": string(record.ID),
			"amount":     record.Amount.String(),
			"method":     string(record.Method),
			"late_fee":   record.LateFee.String(),
			"interest":   record.Interest.String(),
			"discount":   record.Discount.String(),
			"status":     string(updated.Status),
		},
	})

	return &updated, nil
}

// installmentDiscount sums the discount portions of every payment record for
// one installment, including the record appended in the current transaction.
func installmentDiscount(ctx context.Context, tx Store, agreementID AgreementID, installmentID InstallmentID) (Money, error) {
	payments, err := tx.ListPayments(ctx, agreementID)
	if err != nil {
		return ZeroMoney(), &CollaboratorError{Collaborator: "store", Err: err}
	}
	total := ZeroMoney()
	for _, p := range payments {
		if p.InstallmentID == installmentID {
			total = total.Add(p.Discount)
		}
	}
	return total, nil
}

func validatePaymentInput(input PaymentInput) error {
	if !input.Amount.IsPositive() {
		return &PaymentError{Field: "amount", Reason: "must be positive"}
	}
	if input.PaymentDate.IsZero() {
		return &PaymentError{Field: "payment_date", Reason: "is required"}
	}
	if !input.Method.Valid() {
		return &PaymentError{Field: "payment_method", Reason: fmt.Sprintf("unknown method %q", input.Method)}
	}
	if input.Discount.IsNegative() {
		return &PaymentError{Field: "discount", Reason: "must not be negative"}
	}
	if input.LateFeePaid != nil && input.LateFeePaid.IsNegative() {
		return &PaymentError{Field: "late_fee_paid", Reason: "must not be negative"}
	}
	if input.InterestPaid != nil && input.InterestPaid.IsNegative() {
		return &PaymentError{Field: "interest_paid", Reason: "must not be negative"}
	}
	return nil
}

// =============================================================================
// READ PATHS
// =============================================================================

// InstallmentView pairs an installment with its live accrual, so listings
// show what is owed as of the query date.
type InstallmentView struct {
	Installment
	Accrual Accrual
}

// GetAgreement returns the agreement with aggregates re-derived as of today.
// Days-overdue and Defaulted status shift with the calendar, so stored
// aggregates are refreshed in memory on read without persisting.
func (s *Service) GetAgreement(ctx context.Context, id AgreementID) (*Agreement, error) {
	ag, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if ag == nil {
		return nil, ErrAgreementNotFound
	}

	installments, err := s.store.ListInstallments(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if err := Derive(ag, installments, s.now(), s.defaultedAfterDays); err != nil {
		return nil, err
	}
	return ag, nil
}

// ListInstallments returns the agreement's installments with as-of-today
// accrual attached to each pending one.
func (s *Service) ListInstallments(ctx context.Context, id AgreementID) ([]InstallmentView, error) {
	ag, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if ag == nil {
		return nil, ErrAgreementNotFound
	}

	installments, err := s.store.ListInstallments(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}

	today := s.now()
	views := make([]InstallmentView, len(installments))
	for i, inst := range installments {
		views[i] = InstallmentView{
			Installment: inst,
			Accrual:     ComputeAccrual(inst, today, ag.LateFeePct, ag.DailyInterestPct),
		}
	}
	return views, nil
}

// PaymentHistory returns the agreement's payment records, chronologically.
func (s *Service) PaymentHistory(ctx context.Context, id AgreementID) ([]PaymentRecord, error) {
	ag, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if ag == nil {
		return nil, ErrAgreementNotFound
	}
	payments, err := s.store.ListPayments(ctx, id)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	return payments, nil
}

// PreviewAccrual computes what an installment owes as of a date, without
// mutating anything.
func (s *Service) PreviewAccrual(ctx context.Context, installmentID InstallmentID, asOf Date) (Accrual, error) {
	inst, err := s.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return Accrual{}, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if inst == nil {
		return Accrual{}, ErrInstallmentNotFound
	}
	ag, err := s.store.GetAgreement(ctx, inst.AgreementID)
	if err != nil {
		return Accrual{}, &CollaboratorError{Collaborator: "store", Err: err}
	}
	if ag == nil {
		return Accrual{}, ErrInstallmentNotFound
	}
	return ComputeAccrual(*inst, asOf, ag.LateFeePct, ag.DailyInterestPct), nil
}

// StandardAgreementForCase returns the case's live standard agreement, or
// nil when none exists.
func (s *Service) StandardAgreementForCase(ctx context.Context, caseID CaseID) (*Agreement, error) {
	ag, err := s.store.FindStandardAgreement(ctx, caseID)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	return ag, nil
}

// AgreementsForCase returns every agreement attached to a case, including
// alvará agreements and cancelled history.
func (s *Service) AgreementsForCase(ctx context.Context, caseID CaseID) ([]Agreement, error) {
	ags, err := s.store.ListAgreementsByCase(ctx, caseID)
	if err != nil {
		return nil, &CollaboratorError{Collaborator: "store", Err: err}
	}
	return ags, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// lock serializes work on one key (an agreement or a case). Returns the
// unlock function.
func (s *Service) lock(key string) func() {
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// emitAudit is fire-and-forget: audit failure must never roll back the
// business operation it records.
func (s *Service) emitAudit(ctx context.Context, entry AuditEntry) {
	if s.audit == nil {
		return
	}
	entry.ID = newID("aud")
	entry.Timestamp = time.Now().UTC()
	if err := s.audit.Append(ctx, entry); err != nil {
		log.Printf("audit append failed (non-fatal): %v", err)
	}
}

var idCounter atomic.Uint64

func newID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), idCounter.Add(1))
}
