package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every domain event; consumers filter by subject.
const StreamEvents = "IELTS_EVENTS"

const (
	SubjectEventsPrefix  = "ielts.events"
	SubjectAttemptGraded = SubjectEventsPrefix + ".attempt_graded"
)

// AttemptGraded is published after a graded submission is saved to history.
type AttemptGraded struct {
	EntryID  uuid.UUID `json:"entry_id"`
	UserID   uuid.UUID `json:"user_id"`
	TaskType string    `json:"task_type"`
	Score    float64   `json:"score"`
	GradedAt time.Time `json:"graded_at"`
}
