package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/api"
)

func ok(w http.ResponseWriter, r *http.Request) { api.JSON(w, http.StatusOK, r.URL.Path) }

func passthrough(next http.Handler) http.Handler { return next }

func deny(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.HandleError(w, api.ErrForbidden)
	})
}

func handlers() api.HandlerSet {
	return api.HandlerSet{
		Register: ok, Login: ok, Refresh: ok, Logout: ok, DeleteAccount: ok,
		GetCredential: ok, PutCredential: ok, DeleteCredential: ok,
		GetQuota:      ok,
		GenerateTask1: ok, GenerateTask2: ok, CheckGrammar: ok, Evaluate: ok,
		ListHistory: ok, GetHistory: ok, DeleteHistory: ok,
		GetStats: ok, RecalculateStats: ok,
		AIProxy:     ok,
		GlobalStats: ok, ListQuestions: ok, ExportQuestions: ok,
		AuthMiddleware: passthrough,
		AdminOnly:      deny,
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Routes(t *testing.T) {
	h := api.NewRouter(api.RouterConfig{}, handlers())

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/auth/login"},
		{http.MethodDelete, "/api/v1/account"},
		{http.MethodPut, "/api/v1/credentials"},
		{http.MethodGet, "/api/v1/quota"},
		{http.MethodPost, "/api/v1/writing/task1/generate"},
		{http.MethodPost, "/api/v1/writing/evaluate"},
		{http.MethodGet, "/api/v1/history"},
		{http.MethodDelete, "/api/v1/history/abc"},
		{http.MethodPost, "/api/v1/stats/recalculate"},
		{http.MethodPost, "/api/v1/ai/proxy"},
	} {
		rec := do(t, h, tc.method, tc.path)
		assert.Equal(t, http.StatusOK, rec.Code, "%s %s", tc.method, tc.path)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/api/v1/admin/stats").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health/live").Code)
}

func TestRouter_AuthRateLimiterOnlyOnPublicAuth(t *testing.T) {
	h := api.NewRouter(api.RouterConfig{AuthRateLimiter: deny}, handlers())

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/api/v1/auth/register").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/auth/logout").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/quota").Code)
}

func TestRouter_Readiness(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	decode := func(rec *httptest.ResponseRecorder) map[string]string {
		var body struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Data
	}

	h := api.NewRouter(api.RouterConfig{Readiness: []api.ReadinessCheck{
		{Name: "database", Check: up},
		{Name: "nats", Check: down, Optional: true},
	}}, handlers())
	rec := do(t, h, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "degraded", "database": "healthy", "nats": "unhealthy"}, decode(rec))

	h = api.NewRouter(api.RouterConfig{Readiness: []api.ReadinessCheck{
		{Name: "database", Check: down},
	}}, handlers())
	rec = do(t, h, http.MethodGet, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(rec)["database"])
}
