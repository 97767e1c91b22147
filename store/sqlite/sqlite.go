/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements finance.TxStore and finance.AuditLog using SQLite. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  agreements:   One row per agreement, terms plus derived aggregates
  installments: The agreement's schedule, exclusive ownership
  payments:     Immutable payment ledger - INSERT only, no UPDATE/DELETE
  audit_log:    Append-only record of mutating operations

INVARIANTS ENFORCED IN SCHEMA:
  - idx_one_standard_per_case: a case can hold at most one non-cancelled
    standard agreement
  - installments are unique per (agreement_id, number)
  - payments carry no update path: ledger corrections are new rows

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

SEE ALSO:
  - finance/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pactum/agreement-engine/finance"
)

// Store implements finance.TxStore and finance.AuditLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agreements (
		id TEXT PRIMARY KEY,
		case_id TEXT NOT NULL,
		debtor_id TEXT NOT NULL,
		creditor_id TEXT NOT NULL,
		guarantor_id TEXT,
		kind TEXT NOT NULL,
		agreement_type TEXT NOT NULL,
		total_value TEXT NOT NULL,
		entry_value TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		installment_value TEXT NOT NULL,
		late_fee_pct TEXT NOT NULL,
		daily_interest_pct TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL,
		renegotiation_count INTEGER NOT NULL DEFAULT 0,
		paid_amount TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		completion_pct TEXT NOT NULL,
		next_due_date TEXT,
		days_overdue INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agreements_case
		ON agreements(case_id);

	-- CRITICAL: at most one live standard agreement per case
	CREATE UNIQUE INDEX IF NOT EXISTS idx_one_standard_per_case
		ON agreements(case_id)
		WHERE kind = 'standard' AND status != 'cancelled';

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		agreement_id TEXT NOT NULL REFERENCES agreements(id) ON DELETE CASCADE,
		number INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_date TEXT,
		amount_paid TEXT NOT NULL,
		late_fee_paid TEXT NOT NULL,
		interest_paid TEXT NOT NULL,
		UNIQUE(agreement_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_agreement
		ON installments(agreement_id, number);
	CREATE INDEX IF NOT EXISTS idx_installments_due
		ON installments(status, due_date);

	-- Payments (append-only ledger). No UPDATE or DELETE statements exist
	-- for this table; corrections are new rows.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL,
		agreement_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		method TEXT NOT NULL,
		reference TEXT,
		late_fee TEXT NOT NULL,
		interest TEXT NOT NULL,
		discount TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_agreement
		ON payments(agreement_id, payment_date);
	CREATE INDEX IF NOT EXISTS idx_payments_installment
		ON payments(installment_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		case_id TEXT,
		agreement_id TEXT,
		installment_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_agreement
		ON audit_log(agreement_id);
	CREATE INDEX IF NOT EXISTS idx_audit_case
		ON audit_log(case_id);
	CREATE INDEX IF NOT EXISTS idx_audit_ts
		ON audit_log(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper works
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// AGREEMENTS
// =============================================================================

func (s *Store) CreateAgreement(ctx context.Context, ag finance.Agreement, installments []finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := insertAgreement(ctx, sqlTx, ag); err != nil {
		return err
	}
	for _, inst := range installments {
		if err := insertInstallment(ctx, sqlTx, inst); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

func insertAgreement(ctx context.Context, db dbtx, ag finance.Agreement) error {
	query := `
		INSERT INTO agreements
		(id, case_id, debtor_id, creditor_id, guarantor_id, kind, agreement_type,
		 total_value, entry_value, installment_count, installment_value,
		 late_fee_pct, daily_interest_pct, notes, status, renegotiation_count,
		 paid_amount, remaining_balance, completion_pct, next_due_date,
		 days_overdue, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query, agreementArgs(ag)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrStandardAgreementExists
		}
		return fmt.Errorf("failed to insert agreement: %w", err)
	}
	return nil
}

func updateAgreement(ctx context.Context, db dbtx, ag finance.Agreement) error {
	query := `
		UPDATE agreements SET
			case_id = ?, debtor_id = ?, creditor_id = ?, guarantor_id = ?,
			kind = ?, agreement_type = ?, total_value = ?, entry_value = ?,
			installment_count = ?, installment_value = ?, late_fee_pct = ?,
			daily_interest_pct = ?, notes = ?, status = ?,
			renegotiation_count = ?, paid_amount = ?, remaining_balance = ?,
			completion_pct = ?, next_due_date = ?, days_overdue = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?
	`
	all := agreementArgs(ag)
	// id moves from first position to the WHERE clause
	args := make([]any, 0, len(all))
	args = append(args, all[1:]...)
	args = append(args, all[0])
	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return finance.ErrStandardAgreementExists
		}
		return fmt.Errorf("failed to update agreement: %w", err)
	}
	return nil
}

func agreementArgs(ag finance.Agreement) []any {
	return []any{
		string(ag.ID),
		string(ag.CaseID),
		string(ag.DebtorID),
		string(ag.CreditorID),
		nullString(string(ag.GuarantorID)),
		string(ag.Kind),
		string(ag.Type),
		ag.TotalValue.String(),
		ag.EntryValue.String(),
		ag.InstallmentCount,
		ag.InstallmentValue.String(),
		ag.LateFeePct.String(),
		ag.DailyInterestPct.String(),
		nullString(ag.Notes),
		string(ag.Status),
		ag.RenegotiationCount,
		ag.PaidAmount.String(),
		ag.RemainingBalance.String(),
		ag.CompletionPercentage.String(),
		nullDate(ag.NextDueDate),
		ag.DaysOverdue,
		ag.CreatedAt.String(),
		ag.UpdatedAt.String(),
	}
}

const agreementColumns = `id, case_id, debtor_id, creditor_id, guarantor_id, kind, agreement_type,
	total_value, entry_value, installment_count, installment_value,
	late_fee_pct, daily_interest_pct, notes, status, renegotiation_count,
	paid_amount, remaining_balance, completion_pct, next_due_date,
	days_overdue, created_at, updated_at`

func (s *Store) GetAgreement(ctx context.Context, id finance.AgreementID) (*finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAgreement(ctx, s.db, id)
}

func getAgreement(ctx context.Context, db dbtx, id finance.AgreementID) (*finance.Agreement, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+agreementColumns+" FROM agreements WHERE id = ?", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query agreement: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	ag, err := scanAgreement(rows)
	if err != nil {
		return nil, err
	}
	return &ag, nil
}

func (s *Store) UpdateAgreement(ctx context.Context, ag finance.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAgreement(ctx, s.db, ag)
}

func (s *Store) DeleteAgreement(ctx context.Context, id finance.AgreementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteAgreement(ctx, s.db, id)
}

func deleteAgreement(ctx context.Context, db dbtx, id finance.AgreementID) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM installments WHERE agreement_id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		"DELETE FROM agreements WHERE id = ?", string(id)); err != nil {
		return fmt.Errorf("failed to delete agreement: %w", err)
	}
	return nil
}

func (s *Store) FindStandardAgreement(ctx context.Context, caseID finance.CaseID) (*finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findStandardAgreement(ctx, s.db, caseID)
}

func findStandardAgreement(ctx context.Context, db dbtx, caseID finance.CaseID) (*finance.Agreement, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+agreementColumns+` FROM agreements
		 WHERE case_id = ? AND kind = 'standard' AND status != 'cancelled'`,
		string(caseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query standard agreement: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	ag, err := scanAgreement(rows)
	if err != nil {
		return nil, err
	}
	return &ag, nil
}

func (s *Store) ListAgreementsByCase(ctx context.Context, caseID finance.CaseID) ([]finance.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAgreementsByCase(ctx, s.db, caseID)
}

func listAgreementsByCase(ctx context.Context, db dbtx, caseID finance.CaseID) ([]finance.Agreement, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+agreementColumns+" FROM agreements WHERE case_id = ? ORDER BY created_at, id",
		string(caseID))
	if err != nil {
		return nil, fmt.Errorf("failed to query agreements: %w", err)
	}
	defer rows.Close()

	var result []finance.Agreement
	for rows.Next() {
		ag, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ag)
	}
	return result, rows.Err()
}

func scanAgreement(rows *sql.Rows) (finance.Agreement, error) {
	var (
		ag                                       finance.Agreement
		guarantorID, notes, nextDue              sql.NullString
		totalValue, entryValue, installmentValue string
		lateFeePct, dailyInterestPct             string
		paidAmount, remainingBalance, completion string
		createdAt, updatedAt                     string
	)
	err := rows.Scan(
		&ag.ID, &ag.CaseID, &ag.DebtorID, &ag.CreditorID, &guarantorID,
		&ag.Kind, &ag.Type, &totalValue, &entryValue, &ag.InstallmentCount,
		&installmentValue, &lateFeePct, &dailyInterestPct, &notes, &ag.Status,
		&ag.RenegotiationCount, &paidAmount, &remainingBalance, &completion,
		&nextDue, &ag.DaysOverdue, &createdAt, &updatedAt,
	)
	if err != nil {
		return ag, fmt.Errorf("failed to scan agreement: %w", err)
	}

	ag.GuarantorID = finance.EntityID(guarantorID.String)
	ag.Notes = notes.String
	ag.TotalValue = finance.MoneyFromString(totalValue)
	ag.EntryValue = finance.MoneyFromString(entryValue)
	ag.InstallmentValue = finance.MoneyFromString(installmentValue)
	ag.LateFeePct = finance.PercentFromString(lateFeePct)
	ag.DailyInterestPct = finance.PercentFromString(dailyInterestPct)
	ag.PaidAmount = finance.MoneyFromString(paidAmount)
	ag.RemainingBalance = finance.MoneyFromString(remainingBalance)
	ag.CompletionPercentage = finance.PercentFromString(completion)
	if nextDue.Valid && nextDue.String != "" {
		d, err := finance.ParseDate(nextDue.String)
		if err == nil {
			ag.NextDueDate = &d
		}
	}
	ag.CreatedAt, _ = finance.ParseDate(createdAt)
	ag.UpdatedAt, _ = finance.ParseDate(updatedAt)
	return ag, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func insertInstallment(ctx context.Context, db dbtx, inst finance.Installment) error {
	query := `
		INSERT INTO installments
		(id, agreement_id, number, due_date, amount, status, paid_date,
		 amount_paid, late_fee_paid, interest_paid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(inst.ID), string(inst.AgreementID), inst.Number,
		inst.DueDate.String(), inst.Amount.String(), string(inst.Status),
		nullDate(inst.PaidDate), inst.AmountPaid.String(),
		inst.LateFeePaid.String(), inst.InterestPaid.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert installment: %w", err)
	}
	return nil
}

const installmentColumns = `id, agreement_id, number, due_date, amount, status,
	paid_date, amount_paid, late_fee_paid, interest_paid`

func (s *Store) GetInstallment(ctx context.Context, id finance.InstallmentID) (*finance.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInstallment(ctx, s.db, id)
}

func getInstallment(ctx context.Context, db dbtx, id finance.InstallmentID) (*finance.Installment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+installmentColumns+" FROM installments WHERE id = ?", string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query installment: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	inst, err := scanInstallment(rows)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *Store) ListInstallments(ctx context.Context, agreementID finance.AgreementID) ([]finance.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInstallments(ctx, s.db, agreementID)
}

func listInstallments(ctx context.Context, db dbtx, agreementID finance.AgreementID) ([]finance.Installment, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+installmentColumns+" FROM installments WHERE agreement_id = ? ORDER BY number",
		string(agreementID))
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var result []finance.Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (s *Store) UpdateInstallment(ctx context.Context, inst finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateInstallment(ctx, s.db, inst)
}

func updateInstallment(ctx context.Context, db dbtx, inst finance.Installment) error {
	query := `
		UPDATE installments SET
			number = ?, due_date = ?, amount = ?, status = ?, paid_date = ?,
			amount_paid = ?, late_fee_paid = ?, interest_paid = ?
		WHERE id = ?
	`
	_, err := db.ExecContext(ctx, query,
		inst.Number, inst.DueDate.String(), inst.Amount.String(),
		string(inst.Status), nullDate(inst.PaidDate),
		inst.AmountPaid.String(), inst.LateFeePaid.String(),
		inst.InterestPaid.String(), string(inst.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	return nil
}

func (s *Store) ReplaceInstallments(ctx context.Context, agreementID finance.AgreementID, installments []finance.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return replaceInstallments(ctx, s.db, agreementID, installments)
}

func replaceInstallments(ctx context.Context, db dbtx, agreementID finance.AgreementID, installments []finance.Installment) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM installments WHERE agreement_id = ?", string(agreementID)); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, inst := range installments {
		if err := insertInstallment(ctx, db, inst); err != nil {
			return err
		}
	}
	return nil
}

func scanInstallment(rows *sql.Rows) (finance.Installment, error) {
	var (
		inst                                 finance.Installment
		dueDate                              string
		amount, amountPaid, feePaid, intPaid string
		paidDate                             sql.NullString
	)
	err := rows.Scan(
		&inst.ID, &inst.AgreementID, &inst.Number, &dueDate, &amount,
		&inst.Status, &paidDate, &amountPaid, &feePaid, &intPaid,
	)
	if err != nil {
		return inst, fmt.Errorf("failed to scan installment: %w", err)
	}

	inst.DueDate, _ = finance.ParseDate(dueDate)
	inst.Amount = finance.MoneyFromString(amount)
	inst.AmountPaid = finance.MoneyFromString(amountPaid)
	inst.LateFeePaid = finance.MoneyFromString(feePaid)
	inst.InterestPaid = finance.MoneyFromString(intPaid)
	if paidDate.Valid && paidDate.String != "" {
		d, err := finance.ParseDate(paidDate.String)
		if err == nil {
			inst.PaidDate = &d
		}
	}
	return inst, nil
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func (s *Store) AppendPayment(ctx context.Context, p finance.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendPayment(ctx, s.db, p)
}

func appendPayment(ctx context.Context, db dbtx, p finance.PaymentRecord) error {
	query := `
		INSERT INTO payments
		(id, installment_id, agreement_id, amount, payment_date, method,
		 reference, late_fee, interest, discount, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(p.ID), string(p.InstallmentID), string(p.AgreementID),
		p.Amount.String(), p.PaymentDate.String(), string(p.Method),
		nullString(p.Reference), p.LateFee.String(), p.Interest.String(),
		p.Discount.String(), nullString(p.Notes), p.CreatedAt.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (s *Store) ListPayments(ctx context.Context, agreementID finance.AgreementID) ([]finance.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPayments(ctx, s.db, agreementID)
}

func listPayments(ctx context.Context, db dbtx, agreementID finance.AgreementID) ([]finance.PaymentRecord, error) {
	query := `
		SELECT id, installment_id, agreement_id, amount, payment_date, method,
		       reference, late_fee, interest, discount, notes, created_at
		FROM payments
		WHERE agreement_id = ?
		ORDER BY payment_date ASC, created_at ASC, id ASC
	`
	rows, err := db.QueryContext(ctx, query, string(agreementID))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []finance.PaymentRecord
	for rows.Next() {
		var (
			p                                 finance.PaymentRecord
			amount, fee, interest, discount   string
			paymentDate, createdAt            string
			reference, notes                  sql.NullString
		)
		err := rows.Scan(&p.ID, &p.InstallmentID, &p.AgreementID, &amount,
			&paymentDate, &p.Method, &reference, &fee, &interest, &discount,
			&notes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount = finance.MoneyFromString(amount)
		p.LateFee = finance.MoneyFromString(fee)
		p.Interest = finance.MoneyFromString(interest)
		p.Discount = finance.MoneyFromString(discount)
		p.PaymentDate, _ = finance.ParseDate(paymentDate)
		p.CreatedAt, _ = finance.ParseDate(createdAt)
		p.Reference = reference.String
		p.Notes = notes.String
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) CountPayments(ctx context.Context, agreementID finance.AgreementID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countPayments(ctx, s.db, agreementID)
}

func countPayments(ctx context.Context, db dbtx, agreementID finance.AgreementID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM payments WHERE agreement_id = ?",
		string(agreementID)).Scan(&count)
	return count, err
}

// =============================================================================
// TRANSACTIONAL STORE (finance.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store finance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call through the open sql.Tx. It deliberately does
// not touch the parent mutex, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateAgreement(ctx context.Context, ag finance.Agreement, installments []finance.Installment) error {
	if err := insertAgreement(ctx, ts.tx, ag); err != nil {
		return err
	}
	for _, inst := range installments {
		if err := insertInstallment(ctx, ts.tx, inst); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) GetAgreement(ctx context.Context, id finance.AgreementID) (*finance.Agreement, error) {
	return getAgreement(ctx, ts.tx, id)
}

func (ts *txStore) UpdateAgreement(ctx context.Context, ag finance.Agreement) error {
	return updateAgreement(ctx, ts.tx, ag)
}

func (ts *txStore) DeleteAgreement(ctx context.Context, id finance.AgreementID) error {
	return deleteAgreement(ctx, ts.tx, id)
}

func (ts *txStore) FindStandardAgreement(ctx context.Context, caseID finance.CaseID) (*finance.Agreement, error) {
	return findStandardAgreement(ctx, ts.tx, caseID)
}

func (ts *txStore) ListAgreementsByCase(ctx context.Context, caseID finance.CaseID) ([]finance.Agreement, error) {
	return listAgreementsByCase(ctx, ts.tx, caseID)
}

func (ts *txStore) GetInstallment(ctx context.Context, id finance.InstallmentID) (*finance.Installment, error) {
	return getInstallment(ctx, ts.tx, id)
}

func (ts *txStore) ListInstallments(ctx context.Context, agreementID finance.AgreementID) ([]finance.Installment, error) {
	return listInstallments(ctx, ts.tx, agreementID)
}

func (ts *txStore) UpdateInstallment(ctx context.Context, inst finance.Installment) error {
	return updateInstallment(ctx, ts.tx, inst)
}

func (ts *txStore) ReplaceInstallments(ctx context.Context, agreementID finance.AgreementID, installments []finance.Installment) error {
	return replaceInstallments(ctx, ts.tx, agreementID, installments)
}

func (ts *txStore) AppendPayment(ctx context.Context, p finance.PaymentRecord) error {
	return appendPayment(ctx, ts.tx, p)
}

func (ts *txStore) ListPayments(ctx context.Context, agreementID finance.AgreementID) ([]finance.PaymentRecord, error) {
	return listPayments(ctx, ts.tx, agreementID)
}

func (ts *txStore) CountPayments(ctx context.Context, agreementID finance.AgreementID) (int, error) {
	return countPayments(ctx, ts.tx, agreementID)
}

// =============================================================================
// AUDIT LOG (finance.AuditLog interface)
// =============================================================================

// Append writes an audit entry. Append-only.
func (s *Store) Append(ctx context.Context, entry finance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)
	query := `
		INSERT INTO audit_log
		(id, ts, actor, action, case_id, agreement_id, installment_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.Actor,
		string(entry.Action),
		nullString(string(entry.CaseID)),
		nullString(string(entry.AgreementID)),
		nullString(string(entry.InstallmentID)),
		string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching the filter, oldest first.
func (s *Store) Query(ctx context.Context, filter finance.AuditFilter) ([]finance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, ts, actor, action, case_id, agreement_id, installment_id, payload_json
		FROM audit_log WHERE 1=1`
	var args []any

	if filter.CaseID != nil {
		query += " AND case_id = ?"
		args = append(args, string(*filter.CaseID))
	}
	if filter.AgreementID != nil {
		query += " AND agreement_id = ?"
		args = append(args, string(*filter.AgreementID))
	}
	if filter.Actor != nil {
		query += " AND actor = ?"
		args = append(args, *filter.Actor)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		query += " AND action IN (" + strings.Join(placeholders, ",") + ")"
	}
	if filter.From != nil {
		query += " AND ts >= ?"
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		query += " AND ts <= ?"
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY ts ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var result []finance.AuditEntry
	for rows.Next() {
		var (
			e                               finance.AuditEntry
			ts                              string
			caseID, agreementID, instID     sql.NullString
			payloadJSON                     sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &caseID,
			&agreementID, &instID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		e.CaseID = finance.CaseID(caseID.String)
		e.AgreementID = finance.AgreementID(agreementID.String)
		e.InstallmentID = finance.InstallmentID(instID.String)
		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &e.Payload); err != nil {
				log.Printf("audit entry %s: unreadable payload (non-fatal): %v", e.ID, err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(d *finance.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
