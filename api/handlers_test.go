package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactum/agreement-engine/api"
	"github.com/pactum/agreement-engine/cache"
	"github.com/pactum/agreement-engine/casefile"
	"github.com/pactum/agreement-engine/finance"
	"github.com/pactum/agreement-engine/store/memory"
)

// =============================================================================
// FIXTURES
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	audit := memory.NewAuditLog()
	svc := finance.NewService(memory.New(), audit)
	auto := casefile.NewAutomation(svc, casefile.DerivedPartyDirectory{}, casefile.NoopArchiver{})
	return api.NewRouter(api.NewHandler(svc, auto, audit, cache.NewMemory()))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// Due dates sit far in the future so derived state is stable under the
// real clock the HTTP layer runs on.
func createRequest(caseID string) api.CreateAgreementRequest {
	return api.CreateAgreementRequest{
		CaseID:           caseID,
		DebtorID:         "debtor-1",
		CreditorID:       "creditor-1",
		Type:             "judicial",
		TotalValue:       1800,
		InstallmentCount: 3,
		StartDate:        "2030-01-10",
		LateFeePct:       2,
		DailyInterestPct: 0.033,
		Actor:            "lawyer-1",
	}
}

type createResponse struct {
	Agreement    api.AgreementDTO     `json:"agreement"`
	Installments []api.InstallmentDTO `json:"installments"`
}

func createAgreement(t *testing.T, router http.Handler, caseID string) createResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/agreements", createRequest(caseID))
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decode[createResponse](t, rec)
}

// =============================================================================
// AGREEMENT ENDPOINTS
// =============================================================================

func TestCreateAgreement_ReturnsAggregate(t *testing.T) {
	router := newTestRouter(t)

	resp := createAgreement(t, router, "case-1")

	assert.Equal(t, "active", resp.Agreement.Status)
	assert.Equal(t, "standard", resp.Agreement.Kind)
	assert.InDelta(t, 1800.0, resp.Agreement.TotalValue, 0.001)
	assert.InDelta(t, 600.0, resp.Agreement.InstallmentValue, 0.001)
	require.Len(t, resp.Installments, 3)
	assert.Equal(t, "2030-01-10", resp.Installments[0].DueDate)
	assert.Equal(t, "pending", resp.Installments[0].Status)
}

func TestCreateAgreement_ValidationAndConflict(t *testing.T) {
	router := newTestRouter(t)

	t.Run("malformed start date", func(t *testing.T) {
		req := createRequest("case-1")
		req.StartDate = "10/01/2030"
		rec := doJSON(t, router, http.MethodPost, "/api/agreements", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid terms", func(t *testing.T) {
		req := createRequest("case-1")
		req.InstallmentCount = 0
		rec := doJSON(t, router, http.MethodPost, "/api/agreements", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		errResp := decode[api.ErrorResponse](t, rec)
		assert.NotEmpty(t, errResp.Details)
	})

	t.Run("second standard agreement for case", func(t *testing.T) {
		createAgreement(t, router, "case-dup")
		rec := doJSON(t, router, http.MethodPost, "/api/agreements", createRequest("case-dup"))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetAgreement_UnknownReturns404(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/agreements/agr-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAgreement_SummaryIsStableAcrossReads(t *testing.T) {
	// Two consecutive reads must agree; the second one is served from cache.
	router := newTestRouter(t)
	created := createAgreement(t, router, "case-1")
	path := "/api/agreements/" + created.Agreement.ID

	first := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, first.Code)
	second := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, second.Code)

	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

// =============================================================================
// PAYMENT FLOW
// =============================================================================

func TestPaymentFlow_CreatePayAndRead(t *testing.T) {
	// GIVEN: a fresh 3 x 600.00 agreement
	// WHEN: paying the first installment in full through the API
	// THEN: the installment resolves Paid and the cached summary reflects it

	router := newTestRouter(t)
	created := createAgreement(t, router, "case-1")

	// Warm the summary cache before mutating.
	rec := doJSON(t, router, http.MethodGet, "/api/agreements/"+created.Agreement.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	payReq := api.RecordPaymentRequest{
		Amount:        600,
		PaymentDate:   "2030-01-05",
		PaymentMethod: "pix",
		Actor:         "clerk-1",
	}
	rec = doJSON(t, router, http.MethodPost,
		"/api/installments/"+created.Installments[0].ID+"/payments", payReq)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	paid := decode[api.InstallmentDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.InDelta(t, 600.0, paid.AmountPaid, 0.001)
	require.NotNil(t, paid.PaidDate)
	assert.Equal(t, "2030-01-05", *paid.PaidDate)

	rec = doJSON(t, router, http.MethodGet, "/api/agreements/"+created.Agreement.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[api.AgreementDTO](t, rec)
	assert.InDelta(t, 600.0, summary.PaidAmount, 0.001)
	assert.InDelta(t, 1200.0, summary.RemainingBalance, 0.001)

	rec = doJSON(t, router, http.MethodGet, "/api/agreements/"+created.Agreement.ID+"/payments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]api.PaymentDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "pix", history[0].PaymentMethod)
}

func TestRecordPayment_ErrorMapping(t *testing.T) {
	router := newTestRouter(t)
	created := createAgreement(t, router, "case-1")
	instPath := "/api/installments/" + created.Installments[0].ID + "/payments"

	t.Run("unknown installment is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/installments/ins-missing/payments",
			api.RecordPaymentRequest{Amount: 100, PaymentDate: "2030-01-05", PaymentMethod: "pix"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid amount is 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, instPath,
			api.RecordPaymentRequest{Amount: -5, PaymentDate: "2030-01-05", PaymentMethod: "pix"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("paying a settled installment is 409", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, instPath,
			api.RecordPaymentRequest{Amount: 600, PaymentDate: "2030-01-05", PaymentMethod: "pix"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost, instPath,
			api.RecordPaymentRequest{Amount: 50, PaymentDate: "2030-01-06", PaymentMethod: "pix"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

// =============================================================================
// ACCRUAL PREVIEW
// =============================================================================

func TestPreviewAccrual_AsOfQuery(t *testing.T) {
	router := newTestRouter(t)
	created := createAgreement(t, router, "case-1")
	path := "/api/installments/" + created.Installments[0].ID + "/accrual"

	// 31 days past the 2030-01-10 due date.
	rec := doJSON(t, router, http.MethodGet, path+"?as_of=2030-02-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	accrual := decode[api.AccrualDTO](t, rec)
	assert.Equal(t, 31, accrual.DaysOverdue)
	assert.InDelta(t, 12.0, accrual.LateFee, 0.001)
	assert.InDelta(t, 6.14, accrual.Interest, 0.001)
	assert.InDelta(t, 618.14, accrual.TotalDue, 0.001)

	rec = doJSON(t, router, http.MethodGet, path+"?as_of=not-a-date", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CASE ENDPOINTS
// =============================================================================

func TestUpdateCase_AgreementTransition(t *testing.T) {
	// GIVEN: a case moving to agreement status with settlement terms
	// WHEN: posting the transition
	// THEN: the automation creates the standard agreement

	router := newTestRouter(t)

	req := api.UpdateCaseRequest{
		PreviousStatus: "in_progress",
		NewStatus:      "agreement",
		Terms: &api.CaseTermsDTO{
			Type:             "judicial",
			TotalValue:       1800,
			InstallmentCount: 3,
			StartDate:        "2030-01-10",
			LateFeePct:       2,
			DailyInterestPct: 0.033,
		},
		Actor: "lawyer-1",
	}
	rec := doJSON(t, router, http.MethodPost, "/api/cases/case-7/status", req)
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	result := decode[api.CaseUpdateResultDTO](t, rec)
	require.NotNil(t, result.StandardAgreement)
	assert.Equal(t, "case-7", result.StandardAgreement.CaseID)
	assert.Empty(t, result.AgreementError)

	rec = doJSON(t, router, http.MethodGet, "/api/cases/case-7/agreements", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ags := decode[[]api.AgreementDTO](t, rec)
	assert.Len(t, ags, 1)
}

func TestUpdateCase_RetiringAgreementEvictsCachedSummary(t *testing.T) {
	// GIVEN: an unpaid standard agreement with a warm cached summary
	// WHEN: the case leaves agreement status, deleting the agreement
	// THEN: reads go back to the service and report 404, not a stale 200

	router := newTestRouter(t)
	created := createAgreement(t, router, "case-7")
	path := "/api/agreements/" + created.Agreement.ID

	rec := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/cases/case-7/status", api.UpdateCaseRequest{
		PreviousStatus: "agreement",
		NewStatus:      "in_progress",
		Actor:          "lawyer-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	result := decode[api.CaseUpdateResultDTO](t, rec)
	assert.True(t, result.StandardDeleted)
	assert.Equal(t, created.Agreement.ID, result.RetiredAgreementID)

	rec = doJSON(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCase_UnknownStatusRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cases/case-7/status",
		api.UpdateCaseRequest{NewStatus: "appealed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// AUDIT ENDPOINT
// =============================================================================

func TestQueryAudit_FiltersByAgreement(t *testing.T) {
	router := newTestRouter(t)
	created := createAgreement(t, router, "case-1")
	createAgreement(t, router, "case-2")

	path := fmt.Sprintf("/api/audit?agreement_id=%s", created.Agreement.ID)
	rec := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decode[[]api.AuditEntryDTO](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "agreement_created", entries[0].Action)
	assert.Equal(t, "lawyer-1", entries[0].Actor)
	assert.Equal(t, created.Agreement.ID, entries[0].AgreementID)
}
