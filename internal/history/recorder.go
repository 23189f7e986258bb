package history

import (
	"context"

	inats "github.com/ieltswriter/ieltswriter/internal/nats"
	"github.com/ieltswriter/ieltswriter/internal/stats"
)

// StatsRecorder folds grades into stats in the request path.
type StatsRecorder struct {
	Stats *stats.Service
}

func (r StatsRecorder) RecordGraded(ctx context.Context, e *Entry) error {
	_, err := r.Stats.RecordAttempt(ctx, e.UserID, stats.Attempt{
		EntryID:  e.ID,
		TaskType: e.TaskType,
		Score:    e.Feedback.Band,
		At:       e.CreatedAt,
	})
	return err
}

// EventRecorder publishes grades for the stats consumer.
type EventRecorder struct {
	Publisher *inats.Publisher
}

func (r EventRecorder) RecordGraded(ctx context.Context, e *Entry) error {
	return r.Publisher.PublishAttemptGraded(ctx, inats.AttemptGraded{
		EntryID:  e.ID,
		UserID:   e.UserID,
		TaskType: e.TaskType,
		Score:    e.Feedback.Band,
		GradedAt: e.CreatedAt,
	})
}
