package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Limiter admits or rejects a call for an identity.
type Limiter interface {
	Allow(ctx context.Context, id string) (bool, error)
}

// ClientRateLimit limits unauthenticated endpoints (register, login, refresh)
// per client IP. Limiter errors fail open.
type ClientRateLimit struct {
	limiter    Limiter
	retryAfter time.Duration
}

func NewClientRateLimit(limiter Limiter, retryAfter time.Duration) *ClientRateLimit {
	return &ClientRateLimit{limiter: limiter, retryAfter: retryAfter}
}

func (rl *ClientRateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		allowed, err := rl.limiter.Allow(r.Context(), ip)
		if err != nil {
			slog.Warn("client rate limit: limiter error, failing open", "error", err, "ip", ip)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.retryAfter.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests","notice":{"level":"error","message":"too many requests","remedy":"Wait a minute and try again."}}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
