package stats

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
)

// AttemptSource lists every graded attempt a user has on record.
type AttemptSource interface {
	GradedAttempts(ctx context.Context, userID uuid.UUID) ([]Attempt, error)
}

type Handler struct {
	svc     *Service
	history AttemptSource
}

func NewHandler(svc *Service, history AttemptSource) *Handler {
	return &Handler{svc: svc, history: history}
}

// Get returns the caller's own aggregate.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	api.JSON(w, http.StatusOK, h.svc.Get(r.Context(), userID))
}

// Recalculate rebuilds the caller's aggregate from history.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	attempts, err := h.history.GradedAttempts(r.Context(), userID)
	if err != nil {
		slog.Error("loading attempts for recalculation", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	rec, err := h.svc.RecalculateFromHistory(r.Context(), userID, attempts)
	if err != nil {
		slog.Error("recalculating stats", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, rec)
}

// Rollup serves the admin rollup; ?refresh=true forces a recompute.
func (h *Handler) Rollup(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	g, err := h.svc.GlobalRollup(r.Context(), force)
	if err != nil {
		slog.Error("computing admin rollup", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, g)
}
