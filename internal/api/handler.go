package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

// Handler contains HTTP handlers for the API.
type Handler struct {
	orch    *decision.Orchestrator
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	version string
}

// NewHandler creates a new Handler.
func NewHandler(orch *decision.Orchestrator, repo domain.Repository, cache domain.Cache, bus domain.EventBus, version string) *Handler {
	return &Handler{
		orch:    orch,
		repo:    repo,
		cache:   cache,
		bus:     bus,
		version: version,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// LoanQuoteRequest is the body of POST /loans/emi.
type LoanQuoteRequest struct {
	domain.LoanTerms
	// ScheduleMonths limits the returned schedule; 0 uses the configured horizon.
	ScheduleMonths int `json:"scheduleMonths,omitempty"`
}

// LoanQuoteResponse is an amortization result with its quote ID.
type LoanQuoteResponse struct {
	QuoteID string `json:"quoteId"`
	*domain.AmortizationResult
}

// CollectionPlanResponse is a collection strategy with its plan ID.
type CollectionPlanResponse struct {
	PlanID string `json:"planId"`
	LoanID string `json:"loanId"`
	*domain.CollectionStrategy
}

// RecordEventsResponse reports the size of a tracked session.
type RecordEventsResponse struct {
	SessionID  string `json:"sessionId"`
	EventCount int    `json:"eventCount"`
}

// FraudCheck handles POST /fraud/check.
func (h *Handler) FraudCheck(w http.ResponseWriter, r *http.Request) {
	var req domain.FraudCheckRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TenantID = GetTenantID(r.Context())

	result, err := h.orch.FraudCheck(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.TraceID == "" {
		result.TraceID = GetTraceID(r.Context())
	}

	writeJSON(w, http.StatusOK, result)
}

// GetFraudCheck handles GET /fraud/checks/{id}.
func (h *Handler) GetFraudCheck(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, r, fmt.Errorf("%w: repository", decision.ErrUnavailable))
		return
	}

	check, err := h.repo.GetFraudCheck(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// ListFraudAlerts handles GET /fraud/alerts.
func (h *Handler) ListFraudAlerts(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, r, fmt.Errorf("%w: repository", decision.ErrUnavailable))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, domain.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	alerts, err := h.repo.ListFraudAlerts(r.Context(), GetTenantID(r.Context()), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*domain.FraudAlert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetFraudAlert handles GET /fraud/alerts/{id}.
func (h *Handler) GetFraudAlert(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, r, fmt.Errorf("%w: repository", decision.ErrUnavailable))
		return
	}

	alert, err := h.repo.GetFraudAlert(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// RecordEvents handles POST /behavior/events.
func (h *Handler) RecordEvents(w http.ResponseWriter, r *http.Request) {
	var session domain.BehaviorSession
	if !decodeJSON(w, r, &session) {
		return
	}

	count, err := h.orch.RecordEvents(r.Context(), GetTenantID(r.Context()), session)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RecordEventsResponse{
		SessionID:  session.SessionID,
		EventCount: count,
	})
}

// AnalyzeSession handles POST /behavior/analyze.
func (h *Handler) AnalyzeSession(w http.ResponseWriter, r *http.Request) {
	var session domain.BehaviorSession
	if !decodeJSON(w, r, &session) {
		return
	}

	result, err := h.orch.AnalyzeSession(r.Context(), GetTenantID(r.Context()), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// QuoteLoan handles POST /loans/emi.
func (h *Handler) QuoteLoan(w http.ResponseWriter, r *http.Request) {
	var req LoanQuoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	quote, err := h.orch.QuoteLoan(r.Context(), GetTenantID(r.Context()), req.LoanTerms, req.ScheduleMonths)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoanQuoteResponse{
		QuoteID:            quote.ID,
		AmortizationResult: quote.Result,
	})
}

// PlanCollection handles POST /collections/strategy.
func (h *Handler) PlanCollection(w http.ResponseWriter, r *http.Request) {
	var c domain.CollectionCase
	if !decodeJSON(w, r, &c) {
		return
	}

	plan, err := h.orch.PlanCollection(r.Context(), GetTenantID(r.Context()), c)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CollectionPlanResponse{
		PlanID:             plan.ID,
		LoanID:             plan.LoanID,
		CollectionStrategy: plan.Strategy,
	})
}

// GetCollectionPlan handles GET /collections/{loanId}/plan.
func (h *Handler) GetCollectionPlan(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, r, fmt.Errorf("%w: repository", decision.ErrUnavailable))
		return
	}

	plan, err := h.repo.GetLatestCollectionPlan(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "loanId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// RecordOutcome handles POST /collections/{loanId}/outcomes.
func (h *Handler) RecordOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome domain.ContactOutcome
	if !decodeJSON(w, r, &outcome) {
		return
	}

	saved, err := h.orch.RecordContactOutcome(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "loanId"), outcome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// ListOutcomes handles GET /collections/{loanId}/outcomes.
func (h *Handler) ListOutcomes(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "loanId")

	outcomes, err := h.orch.ContactHistory(r.Context(), GetTenantID(r.Context()), loanID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if outcomes == nil {
		outcomes = []*domain.ContactOutcome{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"loanId":   loanID,
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready. It answers 503 until every configured port responds.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

// decodeJSON reads the request body into v, writing the error response
// itself when the body is unusable. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return false
		}
		writeError(w, r, domain.NewValidationError("body", "invalid JSON request body: %v", err))
		return false
	}
	return true
}

// writeError maps an error to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, decision.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
