package history

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	page, err := h.svc.List(r.Context(), userID, r.URL.Query().Get("cursor"))
	if errors.Is(err, ErrInvalidCursor) {
		api.HandleError(w, api.NewBadRequestError("invalid cursor"))
		return
	}
	if err != nil {
		slog.Error("listing history", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSON(w, http.StatusOK, page)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid entry ID"))
		return
	}

	entry, err := h.svc.Get(r.Context(), userID, auth.CurrentSessionID(r.Context()), entryID)
	if err != nil {
		slog.Error("getting history entry", "error", err, "entry_id", entryID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if entry == nil {
		api.HandleError(w, api.NewNotFoundError("history entry not found"))
		return
	}
	api.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid entry ID"))
		return
	}

	err = h.svc.Delete(r.Context(), userID, auth.CurrentSessionID(r.Context()), entryID)
	if errors.Is(err, ErrNotFound) {
		api.HandleError(w, api.NewNotFoundError("history entry not found"))
		return
	}
	if err != nil {
		slog.Error("deleting history entry", "error", err, "entry_id", entryID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "history entry deleted")
}
