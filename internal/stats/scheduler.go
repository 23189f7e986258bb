package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler refreshes the admin rollup in the background so admin reads are
// usually served from a fresh cached record.
type Scheduler struct {
	cron     *gocron.Scheduler
	svc      *Service
	interval time.Duration
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{cron: s, svc: svc, interval: interval}
}

// Start schedules the refresh job and returns without blocking.
func (s *Scheduler) Start() error {
	if _, err := s.cron.Every(s.interval).Do(s.refresh); err != nil {
		return fmt.Errorf("scheduling rollup refresh: %w", err)
	}
	s.cron.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	g, err := s.svc.GlobalRollup(ctx, true)
	if err != nil {
		slog.Warn("stats: scheduled rollup refresh failed", "error", err)
		return
	}
	slog.Debug("stats: rollup refreshed", "users", g.TotalUsers, "attempts", g.TotalAttempts)
}
