package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactum/agreement-engine/finance"
	"github.com/pactum/agreement-engine/store/sqlite"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAgreement(id finance.AgreementID, caseID finance.CaseID) finance.Agreement {
	nextDue := finance.NewDate(2025, time.February, 10)
	return finance.Agreement{
		ID:                   id,
		CaseID:               caseID,
		DebtorID:             "debtor-1",
		CreditorID:           "creditor-1",
		Kind:                 finance.KindStandard,
		Type:                 finance.TypeJudicial,
		TotalValue:           finance.NewMoney(1800),
		EntryValue:           finance.NewMoney(0),
		InstallmentCount:     3,
		InstallmentValue:     finance.NewMoney(600),
		LateFeePct:           finance.NewPercent(2),
		DailyInterestPct:     finance.NewPercent(0.033),
		Notes:                "negotiated in hearing",
		Status:               finance.StatusActive,
		PaidAmount:           finance.NewMoney(0),
		RemainingBalance:     finance.NewMoney(1800),
		CompletionPercentage: finance.NewPercent(0),
		NextDueDate:          &nextDue,
		CreatedAt:            finance.NewDate(2025, time.January, 1),
		UpdatedAt:            finance.NewDate(2025, time.January, 1),
	}
}

func sampleInstallments(agreementID finance.AgreementID) []finance.Installment {
	installments := make([]finance.Installment, 3)
	for i := range installments {
		installments[i] = finance.Installment{
			ID:           finance.InstallmentID(string(agreementID) + "-ins-" + string(rune('1'+i))),
			AgreementID:  agreementID,
			Number:       i + 1,
			DueDate:      finance.NewDate(2025, time.February, 10).AddMonths(i),
			Amount:       finance.NewMoney(600),
			Status:       finance.InstallmentPending,
			AmountPaid:   finance.NewMoney(0),
			LateFeePaid:  finance.NewMoney(0),
			InterestPaid: finance.NewMoney(0),
		}
	}
	return installments
}

// =============================================================================
// AGREEMENT PERSISTENCE
// =============================================================================

func TestStore_AgreementRoundTrip(t *testing.T) {
	// GIVEN: a fully populated agreement with its schedule
	// WHEN: persisting and reading it back
	// THEN: every field survives, decimals included

	store := newTestStore(t)
	ctx := context.Background()

	ag := sampleAgreement("agr-1", "case-1")
	require.NoError(t, store.CreateAgreement(ctx, ag, sampleInstallments("agr-1")))

	got, err := store.GetAgreement(ctx, "agr-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, ag.CaseID, got.CaseID)
	assert.Equal(t, ag.Kind, got.Kind)
	assert.Equal(t, ag.Type, got.Type)
	assert.Equal(t, ag.Status, got.Status)
	assert.Equal(t, ag.Notes, got.Notes)
	assert.Equal(t, "1800.00", got.TotalValue.String())
	assert.Equal(t, "0.033", got.DailyInterestPct.String())
	require.NotNil(t, got.NextDueDate)
	assert.True(t, got.NextDueDate.Equal(*ag.NextDueDate))
	assert.True(t, got.CreatedAt.Equal(ag.CreatedAt))

	installments, err := store.ListInstallments(ctx, "agr-1")
	require.NoError(t, err)
	require.Len(t, installments, 3)
	for i, inst := range installments {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, "600.00", inst.Amount.String())
		assert.Nil(t, inst.PaidDate)
	}
}

func TestStore_GetAgreement_Missing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetAgreement(context.Background(), "agr-missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_UpdateInstallment_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), sampleInstallments("agr-1")))

	installments, err := store.ListInstallments(ctx, "agr-1")
	require.NoError(t, err)

	inst := installments[0]
	paidDate := finance.NewDate(2025, time.February, 5)
	inst.Status = finance.InstallmentPaid
	inst.PaidDate = &paidDate
	inst.AmountPaid = finance.NewMoney(600)
	require.NoError(t, store.UpdateInstallment(ctx, inst))

	got, err := store.GetInstallment(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, finance.InstallmentPaid, got.Status)
	assert.Equal(t, "600.00", got.AmountPaid.String())
	require.NotNil(t, got.PaidDate)
	assert.True(t, got.PaidDate.Equal(paidDate))
}

func TestStore_ReplaceInstallments(t *testing.T) {
	// GIVEN: an agreement with a 3-installment schedule
	// WHEN: replacing it with a 2-installment one (renegotiation)
	// THEN: only the new schedule remains

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), sampleInstallments("agr-1")))

	replacement := []finance.Installment{
		{
			ID: "agr-1-new-1", AgreementID: "agr-1", Number: 1,
			DueDate: finance.NewDate(2025, time.March, 1), Amount: finance.NewMoney(600),
			Status: finance.InstallmentPending,
		},
		{
			ID: "agr-1-new-2", AgreementID: "agr-1", Number: 2,
			DueDate: finance.NewDate(2025, time.April, 1), Amount: finance.NewMoney(600),
			Status: finance.InstallmentPending,
		},
	}
	require.NoError(t, store.ReplaceInstallments(ctx, "agr-1", replacement))

	installments, err := store.ListInstallments(ctx, "agr-1")
	require.NoError(t, err)
	require.Len(t, installments, 2)
	assert.Equal(t, finance.InstallmentID("agr-1-new-1"), installments[0].ID)
}

func TestStore_DeleteAgreement_RemovesSchedule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), sampleInstallments("agr-1")))
	require.NoError(t, store.DeleteAgreement(ctx, "agr-1"))

	got, err := store.GetAgreement(ctx, "agr-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	installments, err := store.ListInstallments(ctx, "agr-1")
	require.NoError(t, err)
	assert.Empty(t, installments)
}

// =============================================================================
// STANDARD AGREEMENT UNIQUENESS
// =============================================================================

func TestStore_OneStandardAgreementPerCase(t *testing.T) {
	// GIVEN: a case with a live standard agreement
	// WHEN: inserting a second standard agreement for the same case
	// THEN: the partial unique index rejects it

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), nil))

	err := store.CreateAgreement(ctx, sampleAgreement("agr-2", "case-1"), nil)
	assert.ErrorIs(t, err, finance.ErrStandardAgreementExists)

	// A different case is unaffected.
	assert.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-3", "case-2"), nil))
}

func TestStore_CancelledStandardFreesTheSlot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ag := sampleAgreement("agr-1", "case-1")
	require.NoError(t, store.CreateAgreement(ctx, ag, nil))

	ag.Status = finance.StatusCancelled
	require.NoError(t, store.UpdateAgreement(ctx, ag))

	found, err := store.FindStandardAgreement(ctx, "case-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	assert.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-2", "case-1"), nil))
}

func TestStore_AlvaraAgreementsAreAdditive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), nil))

	alvara := sampleAgreement("agr-2", "case-1")
	alvara.Kind = finance.KindAlvara
	alvara.Type = finance.TypeCashInFull
	require.NoError(t, store.CreateAgreement(ctx, alvara, nil))

	found, err := store.FindStandardAgreement(ctx, "case-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, finance.AgreementID("agr-1"), found.ID)

	ags, err := store.ListAgreementsByCase(ctx, "case-1")
	require.NoError(t, err)
	assert.Len(t, ags, 2)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestStore_Payments_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), sampleInstallments("agr-1")))

	for i, day := range []int{5, 1, 3} {
		p := finance.PaymentRecord{
			ID:            finance.PaymentID(string(rune('a' + i))),
			InstallmentID: "agr-1-ins-1",
			AgreementID:   "agr-1",
			Amount:        finance.NewMoney(200),
			PaymentDate:   finance.NewDate(2025, time.February, day),
			Method:        finance.MethodPix,
			LateFee:       finance.NewMoney(0),
			Interest:      finance.NewMoney(0),
			Discount:      finance.NewMoney(0),
			CreatedAt:     finance.NewDate(2025, time.February, day),
		}
		require.NoError(t, store.AppendPayment(ctx, p))
	}

	payments, err := store.ListPayments(ctx, "agr-1")
	require.NoError(t, err)
	require.Len(t, payments, 3)

	// Chronological by payment date regardless of insertion order.
	assert.True(t, payments[0].PaymentDate.Equal(finance.NewDate(2025, time.February, 1)))
	assert.True(t, payments[1].PaymentDate.Equal(finance.NewDate(2025, time.February, 3)))
	assert.True(t, payments[2].PaymentDate.Equal(finance.NewDate(2025, time.February, 5)))

	count, err := store.CountPayments(ctx, "agr-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction updating an agreement and then failing
	// WHEN: WithTx returns the error
	// THEN: none of the transaction's writes are visible

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), nil))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx finance.Store) error {
		ag, err := tx.GetAgreement(ctx, "agr-1")
		require.NoError(t, err)
		require.NotNil(t, ag)

		ag.Status = finance.StatusCompleted
		if err := tx.UpdateAgreement(ctx, *ag); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetAgreement(ctx, "agr-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, finance.StatusActive, got.Status)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateAgreement(ctx, sampleAgreement("agr-1", "case-1"), nil))

	err := store.WithTx(ctx, func(tx finance.Store) error {
		ag, err := tx.GetAgreement(ctx, "agr-1")
		if err != nil {
			return err
		}
		ag.Status = finance.StatusCompleted
		return tx.UpdateAgreement(ctx, *ag)
	})
	require.NoError(t, err)

	got, err := store.GetAgreement(ctx, "agr-1")
	require.NoError(t, err)
	assert.Equal(t, finance.StatusCompleted, got.Status)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestStore_AuditLog_AppendAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, time.February, 1, 12, 0, 0, 0, time.UTC)
	entries := []finance.AuditEntry{
		{
			ID: "aud-1", Timestamp: base, Actor: "lawyer-1",
			Action: finance.AuditAgreementCreated, CaseID: "case-1", AgreementID: "agr-1",
			Payload: map[string]any{"total_value": "1800.00"},
		},
		{
			ID: "aud-2", Timestamp: base.Add(time.Hour), Actor: "clerk-1",
			Action: finance.AuditPaymentRecorded, CaseID: "case-1", AgreementID: "agr-1",
		},
		{
			ID: "aud-3", Timestamp: base.Add(2 * time.Hour), Actor: "lawyer-1",
			Action: finance.AuditAgreementCreated, CaseID: "case-2", AgreementID: "agr-2",
		},
	}
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}

	caseID := finance.CaseID("case-1")
	got, err := store.Query(ctx, finance.AuditFilter{CaseID: &caseID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "aud-1", got[0].ID)
	assert.Equal(t, "aud-2", got[1].ID)
	assert.Equal(t, "1800.00", got[0].Payload["total_value"])

	got, err = store.Query(ctx, finance.AuditFilter{
		Actions: []finance.AuditAction{finance.AuditPaymentRecorded},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "clerk-1", got[0].Actor)

	from := base.Add(90 * time.Minute)
	got, err = store.Query(ctx, finance.AuditFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aud-3", got[0].ID)
}

func TestStore_AuditLog_CorruptPayloadIsNonFatal(t *testing.T) {
	// GIVEN: an audit row whose payload column holds malformed JSON
	// WHEN: querying the log
	// THEN: the entry still comes back, payload empty, no error

	dbPath := filepath.Join(t.TempDir(), "audit.db")
	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, finance.AuditEntry{
		ID: "aud-1", Timestamp: time.Now().UTC(), Actor: "lawyer-1",
		Action: finance.AuditAgreementCreated, AgreementID: "agr-1",
		Payload: map[string]any{"total_value": "1800.00"},
	}))

	raw, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec("UPDATE audit_log SET payload_json = '{broken' WHERE id = 'aud-1'")
	require.NoError(t, err)

	got, err := store.Query(ctx, finance.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aud-1", got[0].ID)
	assert.Empty(t, got[0].Payload)
}
