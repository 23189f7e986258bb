package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/users"
)

// SessionHook runs after a session ends, on logout or account deletion, to
// drop per-user and per-session state held elsewhere.
type SessionHook func(ctx context.Context, userID uuid.UUID, sessionID string)

type Handler struct {
	authSvc  *Service
	userSvc  *users.Service
	hooks    []SessionHook
	validate *validator.Validate
}

func NewHandler(authSvc *Service, userSvc *users.Service, hooks ...SessionHook) *Handler {
	return &Handler{
		authSvc:  authSvc,
		userSvc:  userSvc,
		hooks:    hooks,
		validate: validator.New(),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	exists, err := h.userSvc.ExistsByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("checking email existence", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if exists {
		api.HandleError(w, api.ErrEmailAlreadyExists)
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		slog.Error("hashing password", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.Create(r.Context(), req.Email, hash)
	if err != nil {
		slog.Error("creating user", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	tokens, err := h.authSvc.StartSession(r.Context(), user.ID.String(), user.Email, string(user.Role))
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusCreated, tokens)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	user, err := h.userSvc.GetByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Error("getting user by email", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if err := ComparePassword(hash, req.Password); err != nil || user == nil {
		api.HandleError(w, api.ErrInvalidCredentials)
		return
	}

	tokens, err := h.authSvc.StartSession(r.Context(), user.ID.String(), user.Email, string(user.Role))
	if err != nil {
		slog.Error("generating tokens", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	tokens, err := h.authSvc.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		if !errors.Is(err, ErrTokenRevoked) {
			slog.Warn("refreshing tokens", "error", err)
		}
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

// Logout revokes the user's refresh tokens and clears cached state of the
// current session. Cache clearing is not optional: a later login on the same
// device must never see this user's data.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(r.Context(), userID.String()); err != nil {
		slog.Error("logging out", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	h.endSession(r.Context(), userID, CurrentSessionID(r.Context()))

	api.JSONMessage(w, http.StatusOK, "logged out successfully")
}

// DeleteAccount removes the user and everything stored for them.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	deleted, err := h.userSvc.Delete(r.Context(), userID)
	if err != nil {
		slog.Error("deleting account", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !deleted {
		api.HandleError(w, api.NewNotFoundError("account not found"))
		return
	}

	if err := h.authSvc.Logout(r.Context(), userID.String()); err != nil {
		slog.Warn("revoking tokens of deleted account", "error", err, "user_id", userID)
	}
	h.endSession(r.Context(), userID, CurrentSessionID(r.Context()))

	api.JSONMessage(w, http.StatusOK, "account deleted")
}

func (h *Handler) endSession(ctx context.Context, userID uuid.UUID, sessionID string) {
	for _, hook := range h.hooks {
		hook(ctx, userID, sessionID)
	}
}
