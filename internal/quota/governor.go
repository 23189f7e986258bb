package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

type cachedUsage struct {
	used int
	date string
}

// Governor meters free-tier generations per user per calendar day. Days are
// computed in a fixed reference timezone, never the caller's.
//
// The usage cache is local to this Governor. Other instances may hold a
// different value until they re-read the store; Increment is the only
// operation that enforces the cap.
type Governor struct {
	store       Store
	credentials CredentialChecker
	limit       int
	loc         *time.Location
	now         func() time.Time

	mu    sync.Mutex
	cache map[uuid.UUID]cachedUsage
	// cacheDate is the newest day remembered; older entries are pruned when it moves.
	cacheDate string
}

// NewGovernor creates a Governor. credentials may be nil, in which case every
// user is metered.
func NewGovernor(store Store, credentials CredentialChecker, limit int, loc *time.Location) *Governor {
	if loc == nil {
		loc = time.UTC
	}
	return &Governor{
		store:       store,
		credentials: credentials,
		limit:       limit,
		loc:         loc,
		now:         time.Now,
		cache:       make(map[uuid.UUID]cachedUsage),
	}
}

// Limit returns the daily cap.
func (g *Governor) Limit() int {
	return g.limit
}

func (g *Governor) today() string {
	return g.now().In(g.loc).Format(dateLayout)
}

// Initialize makes sure the user's record exists and belongs to today.
func (g *Governor) Initialize(ctx context.Context, userID uuid.UUID) error {
	today := g.today()

	rec, ok, err := g.store.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("initializing quota: %w", err)
	}
	if changed := rec.resetIfStale(today); !ok || changed {
		if err := g.store.Put(ctx, userID, rec); err != nil {
			return fmt.Errorf("initializing quota: %w", err)
		}
	}

	g.remember(userID, rec.Used, today)
	return nil
}

// Used returns today's consumed generations. It never fails: a store error
// reads as zero.
func (g *Governor) Used(ctx context.Context, userID uuid.UUID) int {
	today := g.today()
	if c, ok := g.cached(userID); ok && c.date == today {
		return c.used
	}

	rec, _, err := g.store.Get(ctx, userID)
	if err != nil {
		slog.Warn("quota: read failed, assuming fresh day", "error", err, "user_id", userID)
		// Anything cached here is from an earlier day, which resets to zero.
		return 0
	}

	if rec.resetIfStale(today) {
		if err := g.store.Put(ctx, userID, rec); err != nil {
			slog.Warn("quota: daily reset write failed", "error", err, "user_id", userID)
		}
	}

	g.remember(userID, rec.Used, today)
	return rec.Used
}

// Increment consumes one free generation atomically. It returns the new count,
// ErrQuotaExceeded when the cap is already reached, or ErrTransactionFailed.
func (g *Governor) Increment(ctx context.Context, userID uuid.UUID) (int, error) {
	today := g.today()
	seen := 0

	rec, err := g.store.Update(ctx, userID, func(rec *Record) error {
		rec.resetIfStale(today)
		seen = rec.Used
		if rec.Used >= g.limit {
			return ErrQuotaExceeded
		}
		rec.Used++
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			metrics.QuotaRejectionsTotal.Inc()
			g.remember(userID, seen, today)
			return seen, ErrQuotaExceeded
		}
		slog.Error("quota: increment transaction failed", "error", err, "user_id", userID)
		return 0, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	g.remember(userID, rec.Used, today)
	return rec.Used, nil
}

// CanMakeRequest is true for users with their own credential, otherwise while
// free generations remain today.
func (g *Governor) CanMakeRequest(ctx context.Context, userID uuid.UUID) bool {
	if g.hasCredential(ctx, userID) {
		return true
	}
	return g.limit-g.Used(ctx, userID) > 0
}

// Status returns the user's current quota for API display.
func (g *Governor) Status(ctx context.Context, userID uuid.UUID) Status {
	used := g.Used(ctx, userID)
	remaining := g.limit - used
	if remaining < 0 {
		remaining = 0
	}

	now := g.now().In(g.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, g.loc).AddDate(0, 0, 1)

	return Status{
		Used:      used,
		Limit:     g.limit,
		Remaining: remaining,
		Unlimited: g.hasCredential(ctx, userID),
		ResetsAt:  midnight,
	}
}

// Forget drops the cached usage for a user, e.g. on logout.
func (g *Governor) Forget(userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, userID)
}

func (g *Governor) hasCredential(ctx context.Context, userID uuid.UUID) bool {
	return g.credentials != nil && g.credentials.HasCredential(ctx, userID)
}

func (g *Governor) cached(userID uuid.UUID) (cachedUsage, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cache[userID]
	return c, ok
}

func (g *Governor) remember(userID uuid.UUID, used int, date string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if date > g.cacheDate {
		for id, c := range g.cache {
			if c.date != date {
				delete(g.cache, id)
			}
		}
		g.cacheDate = date
	}
	g.cache[userID] = cachedUsage{used: used, date: date}
}
