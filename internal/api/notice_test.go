package api_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/api"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) api.Response {
	t.Helper()
	var body api.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleError(t *testing.T) {
	t.Run("remedy becomes a notice", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.HandleError(rec, api.ErrQuotaExceeded)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		body := decodeBody(t, rec)
		require.NotNil(t, body.Notice)
		assert.Equal(t, "error", body.Notice.Level)
		assert.Equal(t, api.ErrQuotaExceeded.Remedy, body.Notice.Remedy)
	})

	t.Run("plain error has no notice", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.HandleError(rec, api.ErrUnauthorized)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, decodeBody(t, rec).Notice)
	})

	t.Run("unknown error is a 500", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.HandleError(rec, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal server error", decodeBody(t, rec).Error)
	})
}

func TestRespond_CarriesCollectedNotices(t *testing.T) {
	h := api.CollectNotices(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.ContextNotifier{}.Notify(r.Context(), "warning", "grammar check unavailable")
		api.ContextNotifier{}.Notify(r.Context(), "error", "model failed")
		if r.URL.Query().Get("fail") != "" {
			api.RespondError(w, r, api.NewAppError(http.StatusServiceUnavailable, "ai unavailable", "Try again later."))
			return
		}
		api.Respond(w, r, http.StatusOK, "ok")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body.Data)
	assert.Len(t, body.Notices, 2)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?fail=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decodeBody(t, rec)
	require.NotNil(t, body.Notice)
	assert.Equal(t, "Try again later.", body.Notice.Remedy)
	require.Len(t, body.Notices, 1)
	assert.Equal(t, "warning", body.Notices[0].Level)
}

func TestContextNotifier_WithoutCollector(t *testing.T) {
	assert.NotPanics(t, func() {
		api.ContextNotifier{}.Notify(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "info", "dropped")
	})
}
