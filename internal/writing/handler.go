package writing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/api"
	"github.com/ieltswriter/ieltswriter/internal/auth"
	"github.com/ieltswriter/ieltswriter/internal/quota"
)

type GenerateReportRequest struct {
	ChartType string `json:"chart_type" validate:"omitempty,oneof=bar line pie table"`
}

type GrammarRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

type EvaluateRequest struct {
	TaskType string           `json:"task_type" validate:"required,oneof=task1 task2"`
	Prompt   string           `json:"prompt" validate:"required,max=5000"`
	Text     string           `json:"text" validate:"required,max=20000"`
	Chart    *ai.ReportPrompt `json:"chart,omitempty"`
	Grammar  []ai.Segment     `json:"grammar,omitempty"`
}

var errQuotaUpdate = api.NewAppError(http.StatusServiceUnavailable,
	"failed to update quota, please try again", "Please try again in a moment.")

type Handler struct {
	svc      *Service
	validate *validator.Validate
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

func (h *Handler) GenerateTask1(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req GenerateReportRequest
	// An empty body asks for a random chart type.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	out, err := h.svc.GenerateReport(r.Context(), userID, req.ChartType)
	if err != nil {
		respondError(w, r, err)
		return
	}
	api.Respond(w, r, http.StatusOK, out)
}

func (h *Handler) GenerateTask2(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	out, err := h.svc.GenerateEssay(r.Context(), userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	api.Respond(w, r, http.StatusOK, out)
}

func (h *Handler) Grammar(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req GrammarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	segments, err := h.svc.CheckGrammar(r.Context(), userID, req.Text)
	if err != nil {
		respondError(w, r, err)
		return
	}
	api.Respond(w, r, http.StatusOK, map[string]any{"segments": segments})
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CurrentUserID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	entry, err := h.svc.Evaluate(r.Context(), userID, EvaluateInput{
		TaskType: req.TaskType,
		Prompt:   req.Prompt,
		Text:     req.Text,
		Chart:    req.Chart,
		Grammar:  req.Grammar,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	api.Respond(w, r, http.StatusCreated, entry)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var aiErr *ai.Error
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		api.RespondError(w, r, api.ErrQuotaExceeded)
	case errors.Is(err, quota.ErrTransactionFailed):
		api.RespondError(w, r, errQuotaUpdate)
	case errors.As(err, &aiErr):
		api.RespondError(w, r, api.NewAppError(aiErr.HTTPStatus(), aiErr.Message, aiErr.Remedy()))
	default:
		slog.Error("writing request failed", "error", err)
		api.RespondError(w, r, api.ErrInternalServer)
	}
}
