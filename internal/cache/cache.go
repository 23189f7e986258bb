package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

// Namespace prefixes every key this package writes.
const Namespace = "ielts:cache:"

const (
	listKeyPrefix    = "list:"
	versionKeyPrefix = "version:"
	detailKeyPrefix  = "detail:"
)

// entry is the durable list payload. It is valid only while Version matches
// the owner's current counter.
type entry struct {
	Version int64           `json:"version"`
	Owner   string          `json:"owner"`
	Items   json.RawMessage `json:"items"`
}

// Cache is a two-tier result cache. The durable tier holds one bounded list
// per owner, invalidated by bumping a per-owner version counter. The session
// tier holds detail records per login session and is never invalidated, only
// cleared.
type Cache struct {
	durable Backend
	session Backend
	listCap int
}

// New creates a Cache over explicit backends.
func New(durable, session Backend, listCap int) *Cache {
	if listCap <= 0 {
		listCap = 10
	}
	return &Cache{durable: durable, session: session, listCap: listCap}
}

// NewRedis creates a Cache with both tiers on one Redis client. Session
// entries expire after sessionTTL.
func NewRedis(rdb redis.Cmdable, listCap int, sessionTTL time.Duration) *Cache {
	return New(
		NewRedisBackend(rdb, Namespace+"durable:", 0),
		NewRedisBackend(rdb, Namespace+"session:", sessionTTL),
		listCap,
	)
}

// ListCap returns the maximum number of items SetList keeps.
func (c *Cache) ListCap() int {
	return c.listCap
}

func (c *Cache) version(ctx context.Context, owner string) (int64, error) {
	raw, ok, err := c.durable.Get(ctx, versionKeyPrefix+owner)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// list returns the raw items for owner, or false on a miss. Stale or foreign
// entries are purged.
func (c *Cache) list(ctx context.Context, owner string) (json.RawMessage, bool) {
	key := listKeyPrefix + owner
	raw, ok, err := c.durable.Get(ctx, key)
	if err != nil {
		slog.Warn("cache: list read failed", "error", err, "owner", owner)
		metrics.CacheLookupsTotal.WithLabelValues("list", "error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("list", "miss").Inc()
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.purge(ctx, key)
		metrics.CacheLookupsTotal.WithLabelValues("list", "miss").Inc()
		return nil, false
	}

	current, err := c.version(ctx, owner)
	if err != nil {
		slog.Warn("cache: version read failed", "error", err, "owner", owner)
		metrics.CacheLookupsTotal.WithLabelValues("list", "error").Inc()
		return nil, false
	}
	if e.Owner != owner || e.Version != current {
		c.purge(ctx, key)
		metrics.CacheLookupsTotal.WithLabelValues("list", "stale").Inc()
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues("list", "hit").Inc()
	return e.Items, true
}

func (c *Cache) setList(ctx context.Context, owner string, items json.RawMessage) {
	current, err := c.version(ctx, owner)
	if err != nil {
		slog.Warn("cache: version read failed, skipping list write", "error", err, "owner", owner)
		return
	}
	raw, err := json.Marshal(entry{Version: current, Owner: owner, Items: items})
	if err != nil {
		slog.Warn("cache: encoding list entry", "error", err)
		return
	}
	if err := c.durable.Set(ctx, listKeyPrefix+owner, raw); err != nil {
		slog.Warn("cache: list write failed", "error", err, "owner", owner)
	}
}

// Invalidate advances owner's version counter by one. The stored list is left
// in place and discarded on the next read.
func (c *Cache) Invalidate(ctx context.Context, owner string) {
	if _, err := c.durable.Incr(ctx, versionKeyPrefix+owner); err != nil {
		slog.Warn("cache: invalidate failed", "error", err, "owner", owner)
	}
}

func detailKey(session, id string) string {
	return session + ":" + detailKeyPrefix + id
}

func (c *Cache) detail(ctx context.Context, session, id string) (json.RawMessage, bool) {
	raw, ok, err := c.session.Get(ctx, detailKey(session, id))
	if err != nil {
		slog.Warn("cache: detail read failed", "error", err, "id", id)
		metrics.CacheLookupsTotal.WithLabelValues("detail", "error").Inc()
		return nil, false
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("detail", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("detail", "hit").Inc()
	return raw, true
}

func (c *Cache) setDetail(ctx context.Context, session, id string, raw []byte) {
	if err := c.session.Set(ctx, detailKey(session, id), raw); err != nil {
		slog.Warn("cache: detail write failed", "error", err, "id", id)
	}
}

// DropDetail removes one detail record from the session tier.
func (c *Cache) DropDetail(ctx context.Context, session, id string) {
	if err := c.session.Del(ctx, detailKey(session, id)); err != nil {
		slog.Warn("cache: dropping detail", "error", err, "id", id)
	}
}

// ClearAll removes owner's durable entries and every entry of the session.
// Failures are logged; the caller cannot do anything more useful with them.
func (c *Cache) ClearAll(ctx context.Context, owner, session string) {
	if err := c.durable.Del(ctx, listKeyPrefix+owner, versionKeyPrefix+owner); err != nil {
		slog.Error("cache: clearing durable tier", "error", err, "owner", owner)
	}
	if session == "" {
		return
	}
	if _, err := c.session.DeleteByPrefix(ctx, session+":"); err != nil {
		slog.Error("cache: clearing session tier", "error", err, "session", session)
	}
}

func (c *Cache) purge(ctx context.Context, key string) {
	if err := c.durable.Del(ctx, key); err != nil {
		slog.Warn("cache: purging stale entry", "error", err)
	}
}
