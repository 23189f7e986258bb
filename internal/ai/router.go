package ai

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// KeySource returns a user's own API key, if one is stored.
type KeySource interface {
	Reveal(ctx context.Context, userID uuid.UUID) (string, bool, error)
}

// Router picks the transport for one call. Nothing is cached between calls,
// so adding or removing a key takes effect on the very next request.
type Router struct {
	keys    KeySource
	direct  func(apiKey string) Transport
	proxied Transport
}

func NewRouter(keys KeySource, direct func(apiKey string) Transport, proxied Transport) *Router {
	return &Router{keys: keys, direct: direct, proxied: proxied}
}

func (r *Router) Resolve(ctx context.Context, userID uuid.UUID) (Transport, Route) {
	key, ok, err := r.keys.Reveal(ctx, userID)
	if err != nil {
		slog.Warn("ai: credential lookup failed, using shared transport", "error", err, "user_id", userID)
	}
	if err == nil && ok {
		return r.direct(key), RouteDirect
	}
	return r.proxied, RouteProxied
}
