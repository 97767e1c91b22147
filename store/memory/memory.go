// Package memory provides an in-memory finance.TxStore for tests and dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/pactum/agreement-engine/finance"
)

// Store keeps the whole aggregate in maps. Payments are append-only; there
// is no update or delete path for them.
type Store struct {
	mu           sync.RWMutex
	agreements   map[finance.AgreementID]finance.Agreement
	installments map[finance.InstallmentID]finance.Installment
	payments     []finance.PaymentRecord
}

func New() *Store {
	return &Store{
		agreements:   make(map[finance.AgreementID]finance.Agreement),
		installments: make(map[finance.InstallmentID]finance.Installment),
	}
}

func (s *Store) CreateAgreement(_ context.Context, ag finance.Agreement, installments []finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements[ag.ID] = ag
	for _, inst := range installments {
		s.installments[inst.ID] = inst
	}
	return nil
}

func (s *Store) GetAgreement(_ context.Context, id finance.AgreementID) (*finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ag, ok := s.agreements[id]
	if !ok {
		return nil, nil
	}
	cp := ag
	return &cp, nil
}

func (s *Store) UpdateAgreement(_ context.Context, ag finance.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agreements[ag.ID] = ag
	return nil
}

func (s *Store) DeleteAgreement(_ context.Context, id finance.AgreementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agreements, id)
	for instID, inst := range s.installments {
		if inst.AgreementID == id {
			delete(s.installments, instID)
		}
	}
	return nil
}

func (s *Store) FindStandardAgreement(_ context.Context, caseID finance.CaseID) (*finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ag := range s.agreements {
		if ag.CaseID == caseID && ag.Kind == finance.KindStandard && ag.Status != finance.StatusCancelled {
			cp := ag
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) ListAgreementsByCase(_ context.Context, caseID finance.CaseID) ([]finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []finance.Agreement
	for _, ag := range s.agreements {
		if ag.CaseID == caseID {
			result = append(result, ag)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) GetInstallment(_ context.Context, id finance.InstallmentID) (*finance.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.installments[id]
	if !ok {
		return nil, nil
	}
	cp := inst
	return &cp, nil
}

func (s *Store) ListInstallments(_ context.Context, agreementID finance.AgreementID) ([]finance.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []finance.Installment
	for _, inst := range s.installments {
		if inst.AgreementID == agreementID {
			result = append(result, inst)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (s *Store) UpdateInstallment(_ context.Context, inst finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installments[inst.ID] = inst
	return nil
}

func (s *Store) ReplaceInstallments(_ context.Context, agreementID finance.AgreementID, installments []finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, inst := range s.installments {
		if inst.AgreementID == agreementID {
			delete(s.installments, id)
		}
	}
	for _, inst := range installments {
		s.installments[inst.ID] = inst
	}
	return nil
}

func (s *Store) AppendPayment(_ context.Context, p finance.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
	return nil
}

func (s *Store) ListPayments(_ context.Context, agreementID finance.AgreementID) ([]finance.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []finance.PaymentRecord
	for _, p := range s.payments {
		if p.AgreementID == agreementID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) CountPayments(_ context.Context, agreementID finance.AgreementID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, p := range s.payments {
		if p.AgreementID == agreementID {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// TRANSACTIONS - snapshot and restore on error
// =============================================================================

// WithTx simulates a transaction with a full snapshot, restored if fn fails.
func (s *Store) WithTx(_ context.Context, fn func(finance.Store) error) error {
	s.mu.Lock()
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(&txView{parent: s}); err != nil {
		s.mu.Lock()
		s.restore(snap)
		s.mu.Unlock()
		return err
	}
	return nil
}

type storeSnapshot struct {
	agreements   map[finance.AgreementID]finance.Agreement
	installments map[finance.InstallmentID]finance.Installment
	payments     []finance.PaymentRecord
}

func (s *Store) snapshot() storeSnapshot {
	ags := make(map[finance.AgreementID]finance.Agreement, len(s.agreements))
	for k, v := range s.agreements {
		ags[k] = v
	}
	insts := make(map[finance.InstallmentID]finance.Installment, len(s.installments))
	for k, v := range s.installments {
		insts[k] = v
	}
	pays := append([]finance.PaymentRecord{}, s.payments...)
	return storeSnapshot{agreements: ags, installments: insts, payments: pays}
}

func (s *Store) restore(snap storeSnapshot) {
	s.agreements = snap.agreements
	s.installments = snap.installments
	s.payments = snap.payments
}

// txView delegates to the parent store. Writes inside a failed fn are undone
// by the snapshot restore.
type txView struct {
	parent *Store
}

func (tv *txView) CreateAgreement(ctx context.Context, ag finance.Agreement, installments []finance.Installment) error {
	return tv.parent.CreateAgreement(ctx, ag, installments)
}
func (tv *txView) GetAgreement(ctx context.Context, id finance.AgreementID) (*finance.Agreement, error) {
	return tv.parent.GetAgreement(ctx, id)
}
func (tv *txView) UpdateAgreement(ctx context.Context, ag finance.Agreement) error {
	return tv.parent.UpdateAgreement(ctx, ag)
}
func (tv *txView) DeleteAgreement(ctx context.Context, id finance.AgreementID) error {
	return tv.parent.DeleteAgreement(ctx, id)
}
func (tv *txView) FindStandardAgreement(ctx context.Context, caseID finance.CaseID) (*finance.Agreement, error) {
	return tv.parent.FindStandardAgreement(ctx, caseID)
}
func (tv *txView) ListAgreementsByCase(ctx context.Context, caseID finance.CaseID) ([]finance.Agreement, error) {
	return tv.parent.ListAgreementsByCase(ctx, caseID)
}
func (tv *txView) GetInstallment(ctx context.Context, id finance.InstallmentID) (*finance.Installment, error) {
	return tv.parent.GetInstallment(ctx, id)
}
func (tv *txView) ListInstallments(ctx context.Context, agreementID finance.AgreementID) ([]finance.Installment, error) {
	return tv.parent.ListInstallments(ctx, agreementID)
}
func (tv *txView) UpdateInstallment(ctx context.Context, inst finance.Installment) error {
	return tv.parent.UpdateInstallment(ctx, inst)
}
func (tv *txView) ReplaceInstallments(ctx context.Context, agreementID finance.AgreementID, installments []finance.Installment) error {
	return tv.parent.ReplaceInstallments(ctx, agreementID, installments)
}
func (tv *txView) AppendPayment(ctx context.Context, p finance.PaymentRecord) error {
	return tv.parent.AppendPayment(ctx, p)
}
func (tv *txView) ListPayments(ctx context.Context, agreementID finance.AgreementID) ([]finance.PaymentRecord, error) {
	return tv.parent.ListPayments(ctx, agreementID)
}
func (tv *txView) CountPayments(ctx context.Context, agreementID finance.AgreementID) (int, error) {
	return tv.parent.CountPayments(ctx, agreementID)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditLog is an in-memory finance.AuditLog.
type AuditLog struct {
	mu      sync.RWMutex
	entries []finance.AuditEntry
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Append(_ context.Context, entry finance.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *AuditLog) Query(_ context.Context, filter finance.AuditFilter) ([]finance.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var result []finance.AuditEntry
	for _, e := range a.entries {
		if matches(e, filter) {
			result = append(result, e)
		}
	}
	return result, nil
}

func matches(e finance.AuditEntry, f finance.AuditFilter) bool {
	if f.CaseID != nil && e.CaseID != *f.CaseID {
		return false
	}
	if f.AgreementID != nil && e.AgreementID != *f.AgreementID {
		return false
	}
	if f.Actor != nil && e.Actor != *f.Actor {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
