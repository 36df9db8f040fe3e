// Package handlers implements the HTTP API for the analysis service.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/athena-ops/athena-stack/internal/httputil"
	"github.com/athena-ops/athena-stack/internal/logging"
	"github.com/athena-ops/athena-stack/internal/models"
	"github.com/athena-ops/athena-stack/internal/repository"
	"github.com/athena-ops/athena-stack/internal/service"
)

type Handler struct {
	coordinator *service.Coordinator
	logger      *logging.Logger
}

func NewHandler(coordinator *service.Coordinator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{coordinator: coordinator, logger: logger}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "healthy"}
	if h.coordinator != nil {
		resp["components"] = h.coordinator.Components()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Analyze handles POST /api/v1/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAnalysisRequest(w, r)
	if !ok {
		return
	}

	result, err := h.coordinator.Analyze(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// AnalyzeCombined handles POST /api/v1/analyze/combined
func (h *Handler) AnalyzeCombined(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAnalysisRequest(w, r)
	if !ok {
		return
	}

	result, err := h.coordinator.AnalyzeCombined(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Recommendations handles POST /api/v1/recommendations
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAnalysisRequest(w, r)
	if !ok {
		return
	}

	recs, err := h.coordinator.Recommendations(r.Context(), req)
	if err != nil {
		h.writeAnalysisError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

// Intents handles GET /api/v1/intents
func (h *Handler) Intents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"intents": h.coordinator.Intents()})
}

// RecentAnalyses handles GET /api/v1/history/recent
func (h *Handler) RecentAnalyses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := httputil.ParseIntParam(r.URL.Query().Get("limit"), 10)
	results, err := h.coordinator.RecentAnalyses(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "listing analyses failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if results == nil {
		results = []*models.AnalysisResult{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"analyses": results})
}

// RiskTrends handles GET /api/v1/history/trends
func (h *Handler) RiskTrends(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	days := httputil.ParseIntParam(r.URL.Query().Get("days"), 7)
	points, err := h.coordinator.RiskTrends(r.Context(), days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "trend query failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute trends")
		return
	}
	if points == nil {
		points = []repository.TrendPoint{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"days": days, "trends": points})
}

// AnalysisByID handles GET /api/v1/history/{id}
func (h *Handler) AnalysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/history/")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "analysis ID required")
		return
	}

	result, err := h.coordinator.AnalysisByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrAnalysisNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "analysis not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "analysis lookup failed", "id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) decodeAnalysisRequest(w http.ResponseWriter, r *http.Request) (models.AnalysisRequest, bool) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return models.AnalysisRequest{}, false
	}

	var req models.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return models.AnalysisRequest{}, false
	}
	return req, true
}

func (h *Handler) writeAnalysisError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrEmptyQuery) {
		httputil.WriteError(w, http.StatusBadRequest, "query must not be empty")
		return
	}
	h.logger.ErrorContext(r.Context(), "analysis failed", "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "analysis failed")
}
