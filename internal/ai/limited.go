package ai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ieltswriter/ieltswriter/internal/auth"
	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

// Limiter admits or rejects one call for id.
type Limiter interface {
	Allow(ctx context.Context, id string) (bool, error)
}

// LimitedTransport puts a per-user limit in front of another transport.
// Used in-process for the shared key when no external proxy is configured.
type LimitedTransport struct {
	inner   Transport
	limiter Limiter
	name    string
}

func NewLimitedTransport(inner Transport, limiter Limiter, name string) *LimitedTransport {
	return &LimitedTransport{inner: inner, limiter: limiter, name: name}
}

var errLimited = errors.New("per-user rate limit reached")

func (l *LimitedTransport) Complete(ctx context.Context, req Request) (string, error) {
	id := "anonymous"
	if userID, ok := auth.CurrentUserID(ctx); ok {
		id = userID.String()
	}

	allowed, err := l.limiter.Allow(ctx, id)
	if err != nil {
		// Fail open: the daily quota still bounds usage of the shared key.
		slog.Warn("ai: rate limiter unavailable, allowing call", "error", err, "limiter", l.name)
	} else if !allowed {
		metrics.RateLimitedTotal.WithLabelValues(l.name).Inc()
		return "", NewError(KindRateLimited, errLimited)
	}

	return l.inner.Complete(ctx, req)
}
