/*
handlers.go - HTTP API handlers for the agreement ledger engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the finance service and case automation.

ENDPOINTS:
  Agreements:
    POST   /api/agreements                     Create agreement
    GET    /api/agreements/{id}                Derived summary (cached)
    GET    /api/agreements/{id}/installments   Installments with live accrual
    GET    /api/agreements/{id}/payments       Payment history

  Installments:
    GET    /api/installments/{id}/accrual      Accrual preview (?as_of=YYYY-MM-DD)
    POST   /api/installments/{id}/payments     Record payment

  Cases:
    POST   /api/cases/{id}/status              Apply case status transition
    GET    /api/cases/{id}/agreements          All agreements of a case

  Audit:
    GET    /api/audit                          Query audit trail

ERROR HANDLING:
  Errors map to HTTP status via the finance error helpers:
  - 400: validation errors, malformed input
  - 404: unknown agreement/installment
  - 409: conflict (already paid, concurrent modification)
  - 422: aggregate invariant violation (defect signal)
  - 500: collaborator/internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pactum/agreement-engine/cache"
	"github.com/pactum/agreement-engine/casefile"
	"github.com/pactum/agreement-engine/finance"
)

// summaryTTL bounds staleness of the cached agreement summary between
// mutations on other replicas.
const summaryTTL = 5 * time.Minute

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *finance.Service
	Automation *casefile.Automation
	Audit      finance.AuditLog
	Cache      cache.Cache
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(svc *finance.Service, automation *casefile.Automation, audit finance.AuditLog, c cache.Cache) *Handler {
	return &Handler{Service: svc, Automation: automation, Audit: audit, Cache: c}
}

// =============================================================================
// AGREEMENT HANDLERS
// =============================================================================

// CreateAgreement creates an agreement with its full installment schedule.
// POST /api/agreements
func (h *Handler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	var req CreateAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startDate, err := finance.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	terms := finance.AgreementTerms{
		CaseID:           finance.CaseID(req.CaseID),
		DebtorID:         finance.EntityID(req.DebtorID),
		CreditorID:       finance.EntityID(req.CreditorID),
		GuarantorID:      finance.EntityID(req.GuarantorID),
		Kind:             finance.AgreementKind(req.Kind),
		Type:             finance.AgreementType(req.Type),
		TotalValue:       finance.NewMoney(req.TotalValue),
		EntryValue:       finance.NewMoney(req.EntryValue),
		InstallmentCount: req.InstallmentCount,
		StartDate:        startDate,
		LateFeePct:       finance.NewPercent(req.LateFeePct),
		DailyInterestPct: finance.NewPercent(req.DailyInterestPct),
		Notes:            req.Notes,
	}

	ag, installments, err := h.Service.CreateAgreement(r.Context(), terms, actorOrDefault(req.Actor))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]finance.InstallmentView, len(installments))
	for i, inst := range installments {
		views[i] = finance.InstallmentView{Installment: inst}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"agreement":    toAgreementDTO(*ag),
		"installments": toInstallmentDTOs(views),
	})
}

// GetAgreement returns the agreement with aggregates derived as of today.
// GET /api/agreements/{id}
func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	id := finance.AgreementID(chi.URLParam(r, "id"))

	key := summaryKey(id)
	if h.Cache != nil {
		if cached, ok := h.Cache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(cached))
			return
		}
	}

	ag, err := h.Service.GetAgreement(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dto := toAgreementDTO(*ag)
	if h.Cache != nil {
		if body, err := json.Marshal(dto); err == nil {
			h.Cache.Set(key, string(body), summaryTTL)
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetAgreementInstallments returns the schedule with live accrual attached.
// GET /api/agreements/{id}/installments
func (h *Handler) GetAgreementInstallments(w http.ResponseWriter, r *http.Request) {
	id := finance.AgreementID(chi.URLParam(r, "id"))

	views, err := h.Service.ListInstallments(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(views))
}

// GetAgreementPaymentHistory returns the payment ledger of an agreement.
// GET /api/agreements/{id}/payments
func (h *Handler) GetAgreementPaymentHistory(w http.ResponseWriter, r *http.Request) {
	id := finance.AgreementID(chi.URLParam(r, "id"))

	payments, err := h.Service.PaymentHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// INSTALLMENT HANDLERS
// =============================================================================

// PreviewAccrual returns what an installment owes as of a date.
// GET /api/installments/{id}/accrual?as_of=YYYY-MM-DD
func (h *Handler) PreviewAccrual(w http.ResponseWriter, r *http.Request) {
	id := finance.InstallmentID(chi.URLParam(r, "id"))

	asOf := finance.Today()
	if q := r.URL.Query().Get("as_of"); q != "" {
		parsed, err := finance.ParseDate(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		asOf = parsed
	}

	accrual, err := h.Service.PreviewAccrual(r.Context(), id, asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AccrualDTO{
		InstallmentID: string(id),
		AsOf:          accrual.AsOf.String(),
		DaysOverdue:   accrual.DaysOverdue,
		LateFee:       accrual.LateFee.Float64(),
		Interest:      accrual.Interest.Float64(),
		TotalDue:      accrual.TotalDue.Float64(),
	})
}

// RecordInstallmentPayment applies a payment to an installment.
// POST /api/installments/{id}/payments
func (h *Handler) RecordInstallmentPayment(w http.ResponseWriter, r *http.Request) {
	id := finance.InstallmentID(chi.URLParam(r, "id"))

	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	paymentDate, err := finance.ParseDate(req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_date format (use YYYY-MM-DD)", err)
		return
	}

	input := finance.PaymentInput{
		Amount:      finance.NewMoney(req.Amount),
		PaymentDate: paymentDate,
		Method:      finance.PaymentMethod(req.PaymentMethod),
		Reference:   req.Reference,
		Notes:       req.Notes,
		Discount:    finance.NewMoney(req.Discount),
		Actor:       actorOrDefault(req.Actor),
	}
	if req.LateFeePaid != nil {
		v := finance.NewMoney(*req.LateFeePaid)
		input.LateFeePaid = &v
	}
	if req.InterestPaid != nil {
		v := finance.NewMoney(*req.InterestPaid)
		input.InterestPaid = &v
	}

	inst, err := h.Service.RecordPayment(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.invalidateSummary(inst.AgreementID)

	writeJSON(w, http.StatusOK, toInstallmentDTO(finance.InstallmentView{Installment: *inst}))
}

// =============================================================================
// CASE HANDLERS
// =============================================================================

// UpdateCase applies a case status transition and its agreement side effects.
// POST /api/cases/{id}/status
func (h *Handler) UpdateCase(w http.ResponseWriter, r *http.Request) {
	caseID := finance.CaseID(chi.URLParam(r, "id"))

	var req UpdateCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	update := casefile.CaseUpdate{
		PreviousStatus: casefile.CaseStatus(req.PreviousStatus),
		NewStatus:      casefile.CaseStatus(req.NewStatus),
		Actor:          actorOrDefault(req.Actor),
	}
	if req.Terms != nil {
		terms, err := caseTermsFromDTO(*req.Terms)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid terms", err)
			return
		}
		update.Terms = &terms
	}
	if req.AlvaraValue != nil {
		v := finance.NewMoney(*req.AlvaraValue)
		update.AlvaraValue = &v
	}

	result, err := h.Automation.ApplyCaseUpdate(r.Context(), caseID, update)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid case update", err)
		return
	}

	if result.StandardAgreement != nil {
		h.invalidateSummary(result.StandardAgreement.ID)
	}
	if result.RetiredAgreementID != "" {
		h.invalidateSummary(result.RetiredAgreementID)
	}
	writeJSON(w, http.StatusOK, toCaseUpdateResultDTO(result))
}

// ListCaseAgreements returns every agreement attached to a case.
// GET /api/cases/{id}/agreements
func (h *Handler) ListCaseAgreements(w http.ResponseWriter, r *http.Request) {
	caseID := finance.CaseID(chi.URLParam(r, "id"))

	ags, err := h.Service.AgreementsForCase(r.Context(), caseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	dtos := make([]AgreementDTO, len(ags))
	for i, ag := range ags {
		dtos[i] = toAgreementDTO(ag)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func caseTermsFromDTO(dto CaseTermsDTO) (casefile.Terms, error) {
	terms := casefile.Terms{
		Type:             finance.AgreementType(dto.Type),
		TotalValue:       finance.NewMoney(dto.TotalValue),
		EntryValue:       finance.NewMoney(dto.EntryValue),
		InstallmentCount: dto.InstallmentCount,
		LateFeePct:       finance.NewPercent(dto.LateFeePct),
		DailyInterestPct: finance.NewPercent(dto.DailyInterestPct),
		Notes:            dto.Notes,
	}
	if dto.StartDate != "" {
		d, err := finance.ParseDate(dto.StartDate)
		if err != nil {
			return casefile.Terms{}, fmt.Errorf("invalid start_date: %w", err)
		}
		terms.StartDate = d
	}
	return terms, nil
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// QueryAudit returns audit entries matching the query filters.
// GET /api/audit?agreement_id=&case_id=&actor=&action=
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	var filter finance.AuditFilter
	q := r.URL.Query()

	if v := q.Get("agreement_id"); v != "" {
		id := finance.AgreementID(v)
		filter.AgreementID = &id
	}
	if v := q.Get("case_id"); v != "" {
		id := finance.CaseID(v)
		filter.CaseID = &id
	}
	if v := q.Get("actor"); v != "" {
		filter.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []finance.AuditAction{finance.AuditAction(v)}
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:            e.ID,
			Timestamp:     e.Timestamp.Format(time.RFC3339),
			Actor:         e.Actor,
			Action:        string(e.Action),
			CaseID:        string(e.CaseID),
			AgreementID:   string(e.AgreementID),
			InstallmentID: string(e.InstallmentID),
			Payload:       e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func toInstallmentDTOs(views []finance.InstallmentView) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(views))
	for i, v := range views {
		dtos[i] = toInstallmentDTO(v)
	}
	return dtos
}

func summaryKey(id finance.AgreementID) string {
	return fmt.Sprintf("agreement:%s:%s", id, finance.Today())
}

func (h *Handler) invalidateSummary(id finance.AgreementID) {
	if h.Cache != nil {
		h.Cache.Delete(summaryKey(id))
	}
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case finance.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case finance.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case finance.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, finance.ErrInvariantViolation):
		writeError(w, http.StatusUnprocessableEntity, "Invariant violation", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
