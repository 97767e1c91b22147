package finance

// =============================================================================
// ACCRUAL - Late fee and daily interest owed on an overdue installment
// =============================================================================

// Accrual is what a pending installment owes as of a given date.
// Pure data; computing it has no side effects.
type Accrual struct {
	AsOf        Date
	DaysOverdue int
	LateFee     Money
	Interest    Money
	TotalDue    Money
}

// ComputeAccrual returns the penalty owed on an installment as of a date.
//
//   - late fee is flat: amount * fee_pct / 100, applied once per overdue
//     installment, not compounding
//   - interest is simple daily: amount * daily_pct / 100 * days_overdue
//
// LateFee and Interest are the cumulative penalties since the due date;
// total_due nets out what has already been paid, so after a partial payment
// it reports only the remainder. When the installment is not overdue both
// penalties are zero. The calculator serves both previews and, at payment
// time, the default split of late_fee_paid/interest_paid.
func ComputeAccrual(inst Installment, asOf Date, lateFeePct, dailyInterestPct Percent) Accrual {
	days := DaysOverdue(inst.DueDate, asOf)
	if inst.Status != InstallmentPending || days == 0 {
		return Accrual{
			AsOf:     asOf,
			LateFee:  ZeroMoney(),
			Interest: ZeroMoney(),
			TotalDue: inst.Amount.Sub(inst.AmountPaid).ClampZero(),
		}
	}

	lateFee := inst.Amount.ApplyPercent(lateFeePct)
	interest := inst.Amount.ApplyDailyPercent(dailyInterestPct, days)

	return Accrual{
		AsOf:        asOf,
		DaysOverdue: days,
		LateFee:     lateFee,
		Interest:    interest,
		TotalDue:    inst.Amount.Add(lateFee).Add(interest).Sub(inst.AmountPaid).ClampZero(),
	}
}
