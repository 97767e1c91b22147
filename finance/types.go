/*
types.go - Domain entities for the agreement ledger

KEY TYPES:
  - Agreement: a negotiated settlement, payable in installments
  - Installment: one scheduled payment obligation within an agreement
  - PaymentRecord: an immutable ledger entry for money received
  - AgreementTerms / PaymentInput: validated operation inputs

DESIGN PRINCIPLES:
  1. Derived fields on Agreement (PaidAmount, RemainingBalance, ...) are
     recomputed from the installment set, never hand-edited
  2. PaymentRecords are append-only; corrections are new records
  3. Strong typing for IDs prevents mixing agreement/installment/case IDs
  4. Inputs are explicit structs validated at the boundary, never untyped maps

SEE ALSO:
  - schedule.go: Materializes the installment set from AgreementTerms
  - service.go: The only mutation paths for these entities
*/
package finance

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgreementID string
type InstallmentID string
type PaymentID string
type CaseID string
type EntityID string

// =============================================================================
// AGREEMENT
// =============================================================================

type AgreementType string

const (
	TypeJudicial      AgreementType = "judicial"
	TypeExtrajudicial AgreementType = "extrajudicial"
	TypeInHearing     AgreementType = "in_hearing"
	TypeAtStore       AgreementType = "at_store"
	TypeCashInFull    AgreementType = "cash_in_full"
)

func (t AgreementType) Valid() bool {
	switch t {
	case TypeJudicial, TypeExtrajudicial, TypeInHearing, TypeAtStore, TypeCashInFull:
		return true
	}
	return false
}

type AgreementStatus string

const (
	StatusActive       AgreementStatus = "active"
	StatusCompleted    AgreementStatus = "completed"
	StatusDefaulted    AgreementStatus = "defaulted"
	StatusCancelled    AgreementStatus = "cancelled"
	StatusRenegotiated AgreementStatus = "renegotiated"
)

// AgreementKind distinguishes the single standard settlement of a case from
// additive judicial-release (alvará) agreements.
type AgreementKind string

const (
	KindStandard AgreementKind = "standard"
	KindAlvara   AgreementKind = "alvara"
)

type Agreement struct {
	ID          AgreementID
	CaseID      CaseID
	DebtorID    EntityID
	CreditorID  EntityID
	GuarantorID EntityID // optional, empty when absent

	Kind AgreementKind
	Type AgreementType

	// Terms
	TotalValue       Money
	EntryValue       Money
	InstallmentCount int
	InstallmentValue Money // derived at schedule time; last installment absorbs the remainder
	LateFeePct       Percent
	DailyInterestPct Percent
	Notes            string

	// Lifecycle
	Status             AgreementStatus
	RenegotiationCount int
	CreatedAt          Date
	UpdatedAt          Date

	// Derived aggregates, recomputed by Derive(). Never hand-edited.
	PaidAmount           Money
	RemainingBalance     Money
	CompletionPercentage Percent
	NextDueDate          *Date
	DaysOverdue          int
}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending   InstallmentStatus = "pending"
	InstallmentPaid      InstallmentStatus = "paid"
	InstallmentOverdue   InstallmentStatus = "overdue" // derived view, never stored
	InstallmentCancelled InstallmentStatus = "cancelled"
)

type Installment struct {
	ID          InstallmentID
	AgreementID AgreementID

	Number  int // 1..N, unique within the agreement, defines due-date ordering
	DueDate Date
	Amount  Money // original principal owed

	Status       InstallmentStatus
	PaidDate     *Date
	AmountPaid   Money // running sum across partial payments
	LateFeePaid  Money
	InterestPaid Money
}

// EffectiveStatus reports Overdue for a pending installment past its due
// date. Overdue is a view, not a stored terminal state.
func (i Installment) EffectiveStatus(asOf Date) InstallmentStatus {
	if i.Status == InstallmentPending && asOf.After(i.DueDate) {
		return InstallmentOverdue
	}
	return i.Status
}

// =============================================================================
// PAYMENT RECORD - Append-only ledger entry
// =============================================================================

type PaymentMethod string

const (
	MethodPix          PaymentMethod = "pix"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
	MethodCash         PaymentMethod = "cash"
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodDebitCard    PaymentMethod = "debit_card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodPix, MethodBankTransfer, MethodCheck, MethodCash, MethodCreditCard, MethodDebitCard:
		return true
	}
	return false
}

type PaymentRecord struct {
	ID            PaymentID
	InstallmentID InstallmentID
	AgreementID   AgreementID

	Amount      Money
	PaymentDate Date
	Method      PaymentMethod
	Reference   string // free-text proof identifier

	// Portions of Amount attributed to penalty vs. principal.
	LateFee  Money
	Interest Money
	// Principal forgiven: reduces what is owed without being paid.
	Discount Money

	Notes     string
	CreatedAt Date
}

// =============================================================================
// OPERATION INPUTS
// =============================================================================

// AgreementTerms is the validated input for creating or renegotiating an
// agreement.
type AgreementTerms struct {
	CaseID      CaseID
	DebtorID    EntityID
	CreditorID  EntityID
	GuarantorID EntityID

	Kind AgreementKind
	Type AgreementType

	TotalValue       Money
	EntryValue       Money
	InstallmentCount int
	StartDate        Date
	LateFeePct       Percent
	DailyInterestPct Percent
	Notes            string
}

// PaymentInput is the validated input for recording a payment against an
// installment. LateFeePaid/InterestPaid default to the accrual calculator's
// values for the payment date when nil.
type PaymentInput struct {
	Amount      Money
	PaymentDate Date
	Method      PaymentMethod
	Reference   string
	Notes       string

	LateFeePaid  *Money
	InterestPaid *Money
	Discount     Money

	Actor string // identity recorded in the audit trail
}
