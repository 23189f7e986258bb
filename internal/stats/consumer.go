package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/ieltswriter/ieltswriter/internal/nats"
)

const consumerName = "stats-recorder"

var errUndecodable = errors.New("undecodable event")

// Consumer folds AttemptGraded events into user stats.
type Consumer struct {
	svc         *Service
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(svc *Service, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{svc: svc, consumerMgr: consumerMgr}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAttemptGraded)
	if err != nil {
		return err
	}

	slog.Info("stats consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("stats consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	err := c.process(ctx, msg.Data())
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errUndecodable), errors.Is(err, ErrInvalidAttempt):
		slog.Error("stats consumer: dropping event", "error", err)
		_ = msg.Term()
	default:
		slog.Error("stats consumer: recording attempt", "error", err)
		_ = msg.Nak()
	}
}

func (c *Consumer) process(ctx context.Context, data []byte) error {
	var event inats.AttemptGraded
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}

	_, err := c.svc.RecordAttempt(ctx, event.UserID, Attempt{
		EntryID:  event.EntryID,
		TaskType: event.TaskType,
		Score:    event.Score,
		At:       event.GradedAt,
	})
	if err != nil {
		return err
	}

	slog.Debug("stats consumer: recorded attempt", "user_id", event.UserID, "entry_id", event.EntryID)
	return nil
}
