package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mentor_match/internal/app"
	"mentor_match/internal/domain/matching"
)

type swipeRequest struct {
	CycleID       string `json:"cycle_id" validate:"required"`
	CounterpartID string `json:"counterpart_id" validate:"required"`
	Direction     string `json:"direction" validate:"required"`
}

type swipeResponse struct {
	ParticipantID string             `json:"participant_id"`
	CounterpartID string             `json:"counterpart_id"`
	CycleID       string             `json:"cycle_id"`
	Round         int                `json:"round"`
	Direction     matching.Direction `json:"direction"`
	CreatedAt     time.Time          `json:"created_at"`
}

type candidateResponse struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	Role        matching.Role `json:"role"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (h *Handlers) getCycle(w http.ResponseWriter, r *http.Request) {
	status, err := h.queries.CycleStatus(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) getMatch(w http.ResponseWriter, r *http.Request) {
	status, err := h.queries.MatchStatus(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handlers) listCandidates(w http.ResponseWriter, r *http.Request) {
	limit := h.pageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "limit must be between 1 and 100"})
			return
		}
		limit = n
	}

	candidates, err := h.swipes.Candidates(r.Context(), chi.URLParam(r, "participantID"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]candidateResponse, len(candidates))
	for i, c := range candidates {
		out[i] = candidateResponse{ID: c.ID, DisplayName: c.DisplayName, Role: c.Role}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": out})
}

func (h *Handlers) getRemaining(w http.ResponseWriter, r *http.Request) {
	left, err := h.swipes.Remaining(r.Context(), chi.URLParam(r, "participantID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remaining": left})
}

func (h *Handlers) postSwipe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSwipeBody+1))
	if err != nil || len(body) > maxSwipeBody {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "request body is unreadable or too large"})
		return
	}
	var req swipeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "invalid JSON payload"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()})
		return
	}

	dir := matching.Direction(strings.ToUpper(strings.TrimSpace(req.Direction)))
	swipe, err := h.swipes.Record(r.Context(), dir, chi.URLParam(r, "participantID"), req.CounterpartID, req.CycleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, swipeResponse{
		ParticipantID: swipe.ParticipantID,
		CounterpartID: swipe.CounterpartID,
		CycleID:       swipe.CycleID,
		Round:         swipe.Round,
		Direction:     swipe.Direction,
		CreatedAt:     swipe.CreatedAt,
	})
}

// statusFor maps service errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, matching.ErrParticipantNotFound):
		return http.StatusNotFound, "participant_not_found"
	case errors.Is(err, matching.ErrCycleNotFound):
		return http.StatusNotFound, "cycle_not_found"
	case errors.Is(err, matching.ErrDuplicateSwipe):
		return http.StatusConflict, "duplicate_swipe"
	case errors.Is(err, matching.ErrCycleClosed):
		return http.StatusConflict, "cycle_closed"
	case errors.Is(err, matching.ErrBudgetExceeded):
		return http.StatusUnprocessableEntity, "budget_exceeded"
	case errors.Is(err, matching.ErrUnknownCounterpart):
		return http.StatusBadRequest, "unknown_counterpart"
	case errors.Is(err, app.ErrInvalidDirection):
		return http.StatusBadRequest, "invalid_direction"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: code, Message: err.Error(), RequestID: middleware.GetReqID(r.Context())}
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
