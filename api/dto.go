/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ENCODING:
  Monetary fields are JSON numbers with two decimal places. They are
  converted to decimal at the boundary; no arithmetic happens on float64.

VALIDATION:
  Structural validation (parseable dates, known enums) happens in handlers;
  business validation lives in the finance package.

SEE ALSO:
  - handlers.go: Uses these types
  - finance/types.go: The domain model these map from
*/
package api

import (
	"github.com/pactum/agreement-engine/casefile"
	"github.com/pactum/agreement-engine/finance"
)

// =============================================================================
// AGREEMENTS
// =============================================================================

// AgreementDTO represents an agreement in API responses, including the
// derived aggregates.
type AgreementDTO struct {
	ID          string `json:"id"`
	CaseID      string `json:"case_id"`
	DebtorID    string `json:"debtor_id"`
	CreditorID  string `json:"creditor_id"`
	GuarantorID string `json:"guarantor_id,omitempty"`
	Kind        string `json:"kind"`
	Type        string `json:"type"`

	TotalValue       float64 `json:"total_value"`
	EntryValue       float64 `json:"entry_value"`
	InstallmentCount int     `json:"installment_count"`
	InstallmentValue float64 `json:"installment_value"`
	LateFeePct       float64 `json:"late_payment_fee_pct"`
	DailyInterestPct float64 `json:"late_payment_daily_interest_pct"`
	Notes            string  `json:"notes,omitempty"`

	Status             string `json:"status"`
	RenegotiationCount int    `json:"renegotiation_count"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`

	PaidAmount           float64 `json:"paid_amount"`
	RemainingBalance     float64 `json:"remaining_balance"`
	CompletionPercentage float64 `json:"completion_percentage"`
	NextDueDate          *string `json:"next_due_date,omitempty"`
	DaysOverdue          int     `json:"days_overdue"`
}

func toAgreementDTO(ag finance.Agreement) AgreementDTO {
	dto := AgreementDTO{
		ID:                   string(ag.ID),
		CaseID:               string(ag.CaseID),
		DebtorID:             string(ag.DebtorID),
		CreditorID:           string(ag.CreditorID),
		GuarantorID:          string(ag.GuarantorID),
		Kind:                 string(ag.Kind),
		Type:                 string(ag.Type),
		TotalValue:           ag.TotalValue.Float64(),
		EntryValue:           ag.EntryValue.Float64(),
		InstallmentCount:     ag.InstallmentCount,
		InstallmentValue:     ag.InstallmentValue.Float64(),
		LateFeePct:           ag.LateFeePct.Float64(),
		DailyInterestPct:     ag.DailyInterestPct.Float64(),
		Notes:                ag.Notes,
		Status:               string(ag.Status),
		RenegotiationCount:   ag.RenegotiationCount,
		CreatedAt:            ag.CreatedAt.String(),
		UpdatedAt:            ag.UpdatedAt.String(),
		PaidAmount:           ag.PaidAmount.Float64(),
		RemainingBalance:     ag.RemainingBalance.Float64(),
		CompletionPercentage: ag.CompletionPercentage.Float64(),
		DaysOverdue:          ag.DaysOverdue,
	}
	if ag.NextDueDate != nil {
		s := ag.NextDueDate.String()
		dto.NextDueDate = &s
	}
	return dto
}

// CreateAgreementRequest is the request to create an agreement directly,
// outside case automation.
type CreateAgreementRequest struct {
	CaseID      string `json:"case_id"`
	DebtorID    string `json:"debtor_id"`
	CreditorID  string `json:"creditor_id"`
	GuarantorID string `json:"guarantor_id,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Type        string `json:"type"`

	TotalValue       float64 `json:"total_value"`
	EntryValue       float64 `json:"entry_value"`
	InstallmentCount int     `json:"installment_count"`
	StartDate        string  `json:"start_date"`
	LateFeePct       float64 `json:"late_payment_fee_pct"`
	DailyInterestPct float64 `json:"late_payment_daily_interest_pct"`
	Notes            string  `json:"notes,omitempty"`

	Actor string `json:"actor,omitempty"`
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

// InstallmentDTO represents an installment with its live accrual.
type InstallmentDTO struct {
	ID          string `json:"id"`
	AgreementID string `json:"agreement_id"`
	Number      int    `json:"installment_number"`
	DueDate     string `json:"due_date"`

	Amount float64 `json:"amount"`
	Status string  `json:"status"`

	PaidDate     *string `json:"paid_date,omitempty"`
	AmountPaid   float64 `json:"amount_paid"`
	LateFeePaid  float64 `json:"late_fee_paid"`
	InterestPaid float64 `json:"interest_paid"`

	DaysOverdue int     `json:"days_overdue"`
	LateFeeDue  float64 `json:"late_fee_due"`
	InterestDue float64 `json:"interest_due"`
	TotalDue    float64 `json:"total_due"`
}

func toInstallmentDTO(v finance.InstallmentView) InstallmentDTO {
	dto := InstallmentDTO{
		ID:           string(v.ID),
		AgreementID:  string(v.AgreementID),
		Number:       v.Number,
		DueDate:      v.DueDate.String(),
		Amount:       v.Amount.Float64(),
		Status:       string(v.EffectiveStatus(v.Accrual.AsOf)),
		AmountPaid:   v.AmountPaid.Float64(),
		LateFeePaid:  v.LateFeePaid.Float64(),
		InterestPaid: v.InterestPaid.Float64(),
		DaysOverdue:  v.Accrual.DaysOverdue,
		LateFeeDue:   v.Accrual.LateFee.Float64(),
		InterestDue:  v.Accrual.Interest.Float64(),
		TotalDue:     v.Accrual.TotalDue.Float64(),
	}
	if v.PaidDate != nil {
		s := v.PaidDate.String()
		dto.PaidDate = &s
	}
	return dto
}

// AccrualDTO is the preview of what an installment owes as of a date.
type AccrualDTO struct {
	InstallmentID string  `json:"installment_id"`
	AsOf          string  `json:"as_of"`
	DaysOverdue   int     `json:"days_overdue"`
	LateFee       float64 `json:"late_fee"`
	Interest      float64 `json:"interest"`
	TotalDue      float64 `json:"total_due"`
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPaymentRequest is the request to apply a payment to an installment.
type RecordPaymentRequest struct {
	Amount        float64  `json:"amount"`
	PaymentDate   string   `json:"payment_date"`
	PaymentMethod string   `json:"payment_method"`
	Reference     string   `json:"reference,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	LateFeePaid   *float64 `json:"late_fee_paid,omitempty"`
	InterestPaid  *float64 `json:"interest_paid,omitempty"`
	Discount      float64  `json:"discount,omitempty"`
	Actor         string   `json:"actor,omitempty"`
}

// PaymentDTO represents one payment ledger entry.
type PaymentDTO struct {
	ID            string  `json:"id"`
	InstallmentID string  `json:"installment_id"`
	AgreementID   string  `json:"agreement_id"`
	Amount        float64 `json:"amount"`
	PaymentDate   string  `json:"payment_date"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"reference,omitempty"`
	LateFee       float64 `json:"late_fee"`
	Interest      float64 `json:"interest"`
	Discount      float64 `json:"discount"`
	Notes         string  `json:"notes,omitempty"`
}

func toPaymentDTO(p finance.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:            string(p.ID),
		InstallmentID: string(p.InstallmentID),
		AgreementID:   string(p.AgreementID),
		Amount:        p.Amount.Float64(),
		PaymentDate:   p.PaymentDate.String(),
		PaymentMethod: string(p.Method),
		Reference:     p.Reference,
		LateFee:       p.LateFee.Float64(),
		Interest:      p.Interest.Float64(),
		Discount:      p.Discount.Float64(),
		Notes:         p.Notes,
	}
}

// =============================================================================
// CASE UPDATES
// =============================================================================

// CaseTermsDTO carries the settlement terms inside a case update.
type CaseTermsDTO struct {
	Type             string  `json:"type"`
	TotalValue       float64 `json:"total_value"`
	EntryValue       float64 `json:"entry_value"`
	InstallmentCount int     `json:"installment_count"`
	StartDate        string  `json:"start_date,omitempty"`
	LateFeePct       float64 `json:"late_payment_fee_pct"`
	DailyInterestPct float64 `json:"late_payment_daily_interest_pct"`
	Notes            string  `json:"notes,omitempty"`
}

// UpdateCaseRequest is the inbound case status transition.
type UpdateCaseRequest struct {
	PreviousStatus string        `json:"previous_status"`
	NewStatus      string        `json:"new_status"`
	Terms          *CaseTermsDTO `json:"terms,omitempty"`
	AlvaraValue    *float64      `json:"alvara_value,omitempty"`
	Actor          string        `json:"actor,omitempty"`
}

// CaseUpdateResultDTO reports what the automation did.
type CaseUpdateResultDTO struct {
	StandardAgreement  *AgreementDTO `json:"standard_agreement,omitempty"`
	AlvaraAgreement    *AgreementDTO `json:"alvara_agreement,omitempty"`
	RetiredAgreementID string        `json:"retired_agreement_id,omitempty"`
	StandardDeleted    bool          `json:"standard_deleted,omitempty"`
	AgreementError     string        `json:"agreement_error,omitempty"`
	ArchiveError       string        `json:"archive_error,omitempty"`
}

func toCaseUpdateResultDTO(r *casefile.Result) CaseUpdateResultDTO {
	dto := CaseUpdateResultDTO{
		RetiredAgreementID: string(r.RetiredAgreementID),
		StandardDeleted:    r.StandardDeleted,
	}
	if r.StandardAgreement != nil {
		d := toAgreementDTO(*r.StandardAgreement)
		dto.StandardAgreement = &d
	}
	if r.AlvaraAgreement != nil {
		d := toAgreementDTO(*r.AlvaraAgreement)
		dto.AlvaraAgreement = &d
	}
	if r.AgreementError != nil {
		dto.AgreementError = r.AgreementError.Error()
	}
	if r.ArchiveError != nil {
		dto.ArchiveError = r.ArchiveError.Error()
	}
	return dto
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntryDTO represents one audit record.
type AuditEntryDTO struct {
	ID            string         `json:"id"`
	Timestamp     string         `json:"timestamp"`
	Actor         string         `json:"actor"`
	Action        string         `json:"action"`
	CaseID        string         `json:"case_id,omitempty"`
	AgreementID   string         `json:"agreement_id,omitempty"`
	InstallmentID string         `json:"installment_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the envelope for API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
