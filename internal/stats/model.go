package stats

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultRecentWindow is how many trailing scores a Record keeps.
const DefaultRecentWindow = 10

// appliedWindow bounds AppliedEntries. It must exceed the number of attempts a
// user can grade while one event is still being redelivered.
const appliedWindow = 50

var ErrInvalidAttempt = errors.New("invalid attempt")

// Attempt is one graded submission as seen by aggregation.
type Attempt struct {
	// EntryID names the history entry graded. Attempts with an id are folded
	// at most once; uuid.Nil skips the check.
	EntryID  uuid.UUID
	TaskType string
	Score    float64
	At       time.Time
}

// Record is the per-user running aggregate. Averages are raw, never rounded.
type Record struct {
	UserID        uuid.UUID  `json:"user_id"`
	TotalAttempts int        `json:"total_attempts"`
	AverageScore  float64    `json:"average_score"`
	Task1Attempts int        `json:"task1_attempts"`
	Task1Average  float64    `json:"task1_average"`
	Task2Attempts int        `json:"task2_attempts"`
	Task2Average  float64    `json:"task2_average"`
	RecentScores  []float64  `json:"recent_scores"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	// AppliedEntries holds the ids of the latest folded attempts, newest last.
	AppliedEntries []uuid.UUID `json:"-"`
}

// GlobalStats is the admin rollup over every user's Record. Score fields are
// IELTS-rounded.
type GlobalStats struct {
	TotalUsers        int64     `json:"total_users"`
	UsersWithAttempts int       `json:"users_with_attempts"`
	TotalAttempts     int       `json:"total_attempts"`
	AverageScore      float64   `json:"average_score"`
	Task1Average      float64   `json:"task1_average"`
	Task2Average      float64   `json:"task2_average"`
	MedianUserAverage float64   `json:"median_user_average"`
	ActiveLastDay     int       `json:"active_last_day"`
	ActiveLastWeek    int       `json:"active_last_week"`
	ComputedAt        time.Time `json:"computed_at"`
}
