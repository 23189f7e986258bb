package cache

import (
	"context"
	"encoding/json"
	"log/slog"
)

// GetList returns owner's cached list, or false on any miss.
func GetList[T any](ctx context.Context, c *Cache, owner string) ([]T, bool) {
	raw, ok := c.list(ctx, owner)
	if !ok {
		return nil, false
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("cache: decoding list", "error", err, "owner", owner)
		return nil, false
	}
	return items, true
}

// SetList stores at most ListCap items for owner under the current version.
func SetList[T any](ctx context.Context, c *Cache, owner string, items []T) {
	if len(items) > c.listCap {
		items = items[:c.listCap]
	}
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		slog.Warn("cache: encoding list", "error", err)
		return
	}
	c.setList(ctx, owner, raw)
}

// GetDetail returns a session-scoped detail record.
func GetDetail[T any](ctx context.Context, c *Cache, session, id string) (*T, bool) {
	raw, ok := c.detail(ctx, session, id)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// SetDetail stores a detail record for the lifetime of the session.
func SetDetail[T any](ctx context.Context, c *Cache, session, id string, v *T) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache: encoding detail", "error", err)
		return
	}
	c.setDetail(ctx, session, id, raw)
}
