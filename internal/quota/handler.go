package quota

import (
	"log/slog"
	"net/http"

	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
)

// Handler serves the caller's free-tier quota.
type Handler struct {
	governor *Governor
}

func NewHandler(governor *Governor) *Handler {
	return &Handler{governor: governor}
}

// GetQuota returns used, remaining and the next reset instant. Clients call
// it right after login, so it also creates the day's record.
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.governor.Initialize(r.Context(), userID); err != nil {
		slog.Warn("quota: initializing record", "error", err, "user_id", userID)
	}

	api.JSON(w, http.StatusOK, h.governor.Status(r.Context(), userID))
}
