package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	mstats "github.com/montanaflynn/stats"
	"golang.org/x/sync/singleflight"

	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

// UserCounter reports how many accounts exist.
type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Service maintains per-user aggregates and the global admin rollup.
// Writes are last-write-wins. Attempts carrying an EntryID are folded once
// even when delivered again.
type Service struct {
	repo      Repository
	users     UserCounter
	staleness time.Duration
	window    int
	now       func() time.Time
	group     singleflight.Group
}

func NewService(repo Repository, users UserCounter, staleness time.Duration, window int) *Service {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	return &Service{
		repo:      repo,
		users:     users,
		staleness: staleness,
		window:    window,
		now:       time.Now,
	}
}

// RecordAttempt folds one graded attempt into the user's record, creating it
// on the first attempt.
func (s *Service) RecordAttempt(ctx context.Context, userID uuid.UUID, a Attempt) (*Record, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	if a.At.IsZero() {
		a.At = s.now()
	}

	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}
	if rec == nil {
		rec = &Record{UserID: userID, RecentScores: []float64{}}
	}
	if applied(rec, a) {
		slog.Debug("stats: attempt already folded", "user_id", userID, "entry_id", a.EntryID)
		return rec, nil
	}

	Fold(rec, a, s.window)
	noteApplied(rec, a)
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording attempt: %w", err)
	}

	metrics.AttemptsRecordedTotal.WithLabelValues(a.TaskType).Inc()
	return rec, nil
}

// RecalculateFromHistory discards the stored record and rebuilds it from
// attempts. Invalid attempts are skipped.
func (s *Service) RecalculateFromHistory(ctx context.Context, userID uuid.UUID, attempts []Attempt) (*Record, error) {
	valid := make([]Attempt, 0, len(attempts))
	for _, a := range attempts {
		if err := validate(a); err != nil {
			slog.Warn("stats: skipping attempt during rebuild", "error", err, "user_id", userID)
			continue
		}
		valid = append(valid, a)
	}

	rec := Rebuild(userID, valid, s.window)
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("recalculating stats: %w", err)
	}
	return rec, nil
}

// Get returns the user's record. A missing record or a read failure yields
// an empty record.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) *Record {
	rec, err := s.repo.Get(ctx, userID)
	if err != nil {
		slog.Warn("stats: read failed, returning empty record", "error", err, "user_id", userID)
	}
	if rec == nil {
		return &Record{UserID: userID, RecentScores: []float64{}}
	}
	return rec
}

// GlobalRollup returns the cached rollup while it is younger than the
// staleness threshold, otherwise recomputes it. force skips the cache.
// Concurrent recomputations share one scan.
func (s *Service) GlobalRollup(ctx context.Context, force bool) (*GlobalStats, error) {
	if !force {
		cached, err := s.repo.GetRollup(ctx)
		if err != nil {
			slog.Warn("stats: reading cached rollup failed", "error", err)
		} else if cached != nil && s.now().Sub(cached.ComputedAt) < s.staleness {
			return cached, nil
		}
	}

	v, err, _ := s.group.Do("rollup", func() (any, error) {
		return s.recompute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GlobalStats), nil
}

func (s *Service) recompute(ctx context.Context) (*GlobalStats, error) {
	records, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("recomputing rollup: %w", err)
	}

	now := s.now()
	g := Summarize(records, now)

	if s.users != nil {
		total, err := s.users.Count(ctx)
		if err != nil {
			slog.Warn("stats: counting users failed", "error", err)
		} else {
			g.TotalUsers = total
		}
	}
	if g.TotalUsers < int64(g.UsersWithAttempts) {
		g.TotalUsers = int64(g.UsersWithAttempts)
	}

	metrics.RollupRecomputeTotal.Inc()
	if err := s.repo.SaveRollup(ctx, g); err != nil {
		slog.Warn("stats: caching rollup failed", "error", err)
	}
	return g, nil
}

// Summarize builds the rollup from user records as of now.
func Summarize(records []Record, now time.Time) *GlobalStats {
	g := &GlobalStats{ComputedAt: now}

	var sum, task1Sum, task2Sum float64
	var task1Count, task2Count int
	userAverages := make(mstats.Float64Data, 0, len(records))

	for _, r := range records {
		if r.TotalAttempts == 0 {
			continue
		}
		g.UsersWithAttempts++
		g.TotalAttempts += r.TotalAttempts
		sum += r.AverageScore * float64(r.TotalAttempts)
		task1Sum += r.Task1Average * float64(r.Task1Attempts)
		task1Count += r.Task1Attempts
		task2Sum += r.Task2Average * float64(r.Task2Attempts)
		task2Count += r.Task2Attempts
		userAverages = append(userAverages, r.AverageScore)

		if r.LastAttemptAt != nil {
			age := now.Sub(*r.LastAttemptAt)
			if age <= 24*time.Hour {
				g.ActiveLastDay++
			}
			if age <= 7*24*time.Hour {
				g.ActiveLastWeek++
			}
		}
	}

	if g.TotalAttempts > 0 {
		g.AverageScore = RoundBand(sum / float64(g.TotalAttempts))
	}
	if task1Count > 0 {
		g.Task1Average = RoundBand(task1Sum / float64(task1Count))
	}
	if task2Count > 0 {
		g.Task2Average = RoundBand(task2Sum / float64(task2Count))
	}
	if median, err := mstats.Median(userAverages); err == nil {
		g.MedianUserAverage = RoundBand(median)
	}
	return g
}
