package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/middleware"
	"github.com/ieltswriter/ieltswriter/internal/quota"
)

func setupClientLimit(t *testing.T, max int) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := middleware.NewClientRateLimit(quota.NewRateLimiter(client, "auth", max, time.Minute), time.Minute)
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mr
}

func login(h http.Handler, remote, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClientRateLimit_BlocksOverLimit(t *testing.T) {
	h, _ := setupClientLimit(t, 3)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, login(h, "10.0.0.1:12345", "").Code, "request %d", i+1)
	}

	rec := login(h, "10.0.0.1:12345", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"remedy"`)
}

func TestClientRateLimit_PerClient(t *testing.T) {
	h, _ := setupClientLimit(t, 2)

	login(h, "1.1.1.1:1", "")
	login(h, "1.1.1.1:1", "")
	assert.Equal(t, http.StatusTooManyRequests, login(h, "1.1.1.1:1", "").Code)
	assert.Equal(t, http.StatusOK, login(h, "2.2.2.2:1", "").Code)
}

func TestClientRateLimit_ForwardedFor(t *testing.T) {
	h, _ := setupClientLimit(t, 1)

	assert.Equal(t, http.StatusOK, login(h, "9.9.9.9:1", "5.5.5.5, 9.9.9.9").Code)
	assert.Equal(t, http.StatusTooManyRequests, login(h, "9.9.9.9:1", "5.5.5.5").Code)
	assert.Equal(t, http.StatusOK, login(h, "9.9.9.9:1", "6.6.6.6").Code)
}

func TestClientRateLimit_FailsOpen(t *testing.T) {
	h, mr := setupClientLimit(t, 1)
	mr.Close()

	assert.Equal(t, http.StatusOK, login(h, "3.3.3.3:1", "").Code)
	assert.Equal(t, http.StatusOK, login(h, "3.3.3.3:1", "").Code)
}
