/*
derive.go - Aggregate agreement state derivation

PURPOSE:
  Recomputes every derived field on an Agreement from its full installment
  set. Runs after every schedule generation and payment application so the
  aggregates can never drift from the ledger.

DERIVED FIELDS:
  paid_amount            entry value plus amount_paid over all installments
  remaining_balance      total_value - paid_amount, clamped at zero
  completion_percentage  paid_amount / total_value * 100 (0 when total is 0)
  next_due_date          earliest due date among pending installments
  days_overdue           for the earliest overdue pending installment
  status                 Completed / Defaulted / Active

  Cancelled and Renegotiated are set only by case-lifecycle automation,
  never inferred here.

INVARIANT:
  paid_amount must not exceed total_value plus the penalties actually paid.
  A violation aborts the derivation with an InvariantError so the caller
  persists nothing.
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// Derive recomputes the agreement's aggregate fields in place from the full
// installment set. defaultedAfterDays is the configured overdue threshold
// beyond which a pending installment marks the agreement Defaulted.
func Derive(ag *Agreement, installments []Installment, asOf Date, defaultedAfterDays int) error {
	// The entry value is paid up front at signing; installments only cover
	// the financed remainder.
	paid := ag.EntryValue
	penaltiesPaid := ZeroMoney()
	allPaid := len(installments) > 0
	var nextDue *Date
	worstOverdue := 0

	for _, inst := range installments {
		paid = paid.Add(inst.AmountPaid)
		penaltiesPaid = penaltiesPaid.Add(inst.LateFeePaid).Add(inst.InterestPaid)

		switch inst.Status {
		case InstallmentPaid:
			// terminal, counted above
		case InstallmentCancelled:
			allPaid = false
		case InstallmentPending:
			allPaid = false
			due := inst.DueDate
			if nextDue == nil || due.Before(*nextDue) {
				nextDue = &due
			}
			if days := DaysOverdue(due, asOf); days > worstOverdue {
				worstOverdue = days
			}
		}
	}

	maxOwed := ag.TotalValue.Add(penaltiesPaid)
	if paid.GreaterThan(maxOwed) {
		return &InvariantError{AgreementID: ag.ID, PaidAmount: paid, MaxOwed: maxOwed}
	}

	ag.PaidAmount = paid
	ag.RemainingBalance = ag.TotalValue.Sub(paid).ClampZero()
	ag.CompletionPercentage = completionPct(paid, ag.TotalValue)
	ag.NextDueDate = nextDue
	ag.DaysOverdue = worstOverdue

	switch {
	case ag.Status == StatusCancelled || ag.Status == StatusRenegotiated:
		// lifecycle states owned by case automation, left untouched
	case allPaid:
		ag.Status = StatusCompleted
	case defaultedAfterDays > 0 && worstOverdue > defaultedAfterDays:
		ag.Status = StatusDefaulted
	default:
		ag.Status = StatusActive
	}
	ag.UpdatedAt = asOf

	return nil
}

func completionPct(paid, total Money) Percent {
	if total.IsZero() {
		return Percent{Value: decimal.Zero}
	}
	pct := paid.Value.Div(total.Value).Mul(decimal.NewFromInt(100)).Round(moneyScale)
	return Percent{Value: pct}
}
