package questionbank

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/api"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func taskFilter(r *http.Request) (string, bool) {
	switch t := r.URL.Query().Get("task_type"); t {
	case "", ai.Task1, ai.Task2:
		return t, true
	default:
		return "", false
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskFilter(r)
	if !ok {
		api.HandleError(w, api.NewBadRequestError("task_type must be task1 or task2"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	questions, total, err := h.svc.List(r.Context(), taskType, page, pageSize)
	if err != nil {
		slog.Error("listing question bank", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONPaginated(w, http.StatusOK, questions, total, page, pageSize)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	taskType, ok := taskFilter(r)
	if !ok {
		api.HandleError(w, api.NewBadRequestError("task_type must be task1 or task2"))
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), taskType, &buf); err != nil {
		slog.Error("exporting question bank", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="question-bank.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
