package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/deal-intel/internal/assess"
	"github.com/sells-group/deal-intel/internal/extract"
	"github.com/sells-group/deal-intel/internal/meddpicc"
	"github.com/sells-group/deal-intel/internal/report"
	"github.com/sells-group/deal-intel/internal/store"
)

type documentRequest struct {
	Title         string `json:"title"`
	Kind          string `json:"kind"`
	Content       string `json:"content"`
	OpportunityID string `json:"opportunity_id"`
}

type payloadRequest struct {
	Payload       json.RawMessage `json:"payload"`
	OpportunityID string          `json:"opportunity_id"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// score is stateless: the request body is the extraction payload itself.
func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	res, err := h.svc.Score(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) assessDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := h.svc.Assess(r.Context(), assess.AssessRequest{
		TenantID:      tenantFrom(r.Context()),
		DealID:        chi.URLParam(r, "dealID"),
		Title:         req.Title,
		Kind:          req.Kind,
		Content:       req.Content,
		OpportunityID: req.OpportunityID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) scorePayload(w http.ResponseWriter, r *http.Request) {
	var req payloadRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Payload) == 0 {
		writeError(w, http.StatusBadRequest, "payload is required")
		return
	}
	out, err := h.svc.ScorePayload(r.Context(), assess.ScoreRequest{
		TenantID:      tenantFrom(r.Context()),
		DealID:        chi.URLParam(r, "dealID"),
		Payload:       req.Payload,
		OpportunityID: req.OpportunityID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	list, err := h.svc.History(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "dealID"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": list, "count": len(list)})
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	dealID := chi.URLParam(r, "dealID")
	list, err := h.svc.History(r.Context(), tenantFrom(r.Context()), dealID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	f, err := report.BuildWorkbook(list)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+dealID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if err := f.Write(w); err != nil {
		zap.L().Error("write xlsx export", zap.String("deal_id", dealID), zap.Error(err))
	}
}

func (h *Handler) getAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := h.svc.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "assessmentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, meddpicc.ErrInvalidInput),
		errors.Is(err, assess.ErrTenantRequired),
		errors.Is(err, assess.ErrDealRequired),
		errors.Is(err, assess.ErrEmptyContent),
		errors.Is(err, store.ErrTenantRequired):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, assess.ErrExtractionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, extract.ErrUnparseableResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
