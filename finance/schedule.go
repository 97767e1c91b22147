/*
schedule.go - Installment schedule generation

PURPOSE:
  Given an agreement's total value, entry value and installment count,
  produce the ordered installment sequence with monthly due dates.

ROUNDING CONTRACT:
  Each installment amount is floor((total - entry) / count) at cent
  precision. The remainder (at most count-1 cents) is added to the LAST
  installment, so:

      entry + sum(installment amounts) == total, exactly.

  This is the schedule sum invariant; it holds for every valid input.

CADENCE:
  Monthly, starting at start_date. A start date in the past is pushed
  forward month by month until the first due date is not behind today,
  so newly generated schedules never start already overdue.
*/
package finance

import (
	"fmt"
)

// GenerateSchedule materializes the installment set for the given terms.
// Installments are returned ordered by number; IDs are assigned by the
// caller (the service) before persistence.
func GenerateSchedule(terms AgreementTerms, today Date) ([]Installment, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}

	financed := terms.TotalValue.Sub(terms.EntryValue)
	count := int64(terms.InstallmentCount)

	base := financed.DivFloor(count)
	remainder := financed.Sub(base.MulInt(count))

	first := terms.StartDate
	for first.Before(today) {
		first = first.AddMonths(1)
	}

	installments := make([]Installment, terms.InstallmentCount)
	for i := range installments {
		amount := base
		if i == len(installments)-1 {
			amount = base.Add(remainder)
		}
		installments[i] = Installment{
			Number:     i + 1,
			DueDate:    first.AddMonths(i),
			Amount:     amount,
			Status:     InstallmentPending,
			AmountPaid: ZeroMoney(),
		}
	}
	return installments, nil
}

// ValidateTerms rejects malformed agreement terms before any mutation.
func ValidateTerms(terms AgreementTerms) error {
	if terms.InstallmentCount < 1 {
		return &TermsError{Field: "installment_count", Reason: fmt.Sprintf("must be >= 1, got %d", terms.InstallmentCount)}
	}
	if !terms.TotalValue.IsPositive() {
		return &TermsError{Field: "total_value", Reason: "must be positive"}
	}
	if terms.EntryValue.IsNegative() {
		return &TermsError{Field: "entry_value", Reason: "must not be negative"}
	}
	if terms.EntryValue.GreaterThan(terms.TotalValue) {
		return &TermsError{Field: "entry_value", Reason: "exceeds total_value"}
	}
	if !terms.Type.Valid() {
		return &TermsError{Field: "agreement_type", Reason: fmt.Sprintf("unknown type %q", terms.Type)}
	}
	if terms.LateFeePct.IsNegative() {
		return &TermsError{Field: "late_payment_fee_pct", Reason: "must not be negative"}
	}
	if terms.DailyInterestPct.IsNegative() {
		return &TermsError{Field: "late_payment_daily_interest_pct", Reason: "must not be negative"}
	}
	if terms.StartDate.IsZero() {
		return &TermsError{Field: "start_date", Reason: "is required"}
	}
	if terms.CaseID == "" {
		return &TermsError{Field: "case_id", Reason: "is required"}
	}
	return nil
}
