package ai

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

type proxyRequest struct {
	Instruction  string `json:"instruction" validate:"required,max=50000"`
	ResponseMIME string `json:"response_mime" validate:"omitempty,oneof=application/json text/plain"`
}

// ProxyHandler is the server side of ProxyTransport: it applies the per-user
// sliding window and forwards to the shared-key transport.
type ProxyHandler struct {
	shared   Transport
	limiter  Limiter
	validate *validator.Validate
}

func NewProxyHandler(shared Transport, limiter Limiter) *ProxyHandler {
	return &ProxyHandler{shared: shared, limiter: limiter, validate: validator.New()}
}

func (h *ProxyHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), userID.String())
	if err != nil {
		slog.Warn("ai proxy: rate limiter unavailable, allowing call", "error", err)
	} else if !allowed {
		metrics.RateLimitedTotal.WithLabelValues("proxy").Inc()
		writeProxyError(w, NewError(KindRateLimited, errLimited))
		return
	}

	text, err := h.shared.Complete(r.Context(), Request{Instruction: req.Instruction, ResponseMIME: req.ResponseMIME})
	if err != nil {
		aiErr := AsError(err)
		slog.Warn("ai proxy: upstream call failed", "error", err, "kind", aiErr.Kind, "user_id", userID)
		writeProxyError(w, aiErr)
		return
	}

	api.JSON(w, http.StatusOK, map[string]string{"text": text})
}

func writeProxyError(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]string{"error": e.Message, "kind": string(e.Kind)})
}
