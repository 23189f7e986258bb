package questionbank

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

// Question is a generated prompt with how often it has been served.
type Question struct {
	ID            uuid.UUID        `json:"id"`
	TaskType      string           `json:"task_type"`
	Prompt        string           `json:"prompt"`
	Chart         *ai.ReportPrompt `json:"chart,omitempty"`
	TimesServed   int              `json:"times_served"`
	FirstServedAt time.Time        `json:"first_served_at"`
	LastServedAt  time.Time        `json:"last_served_at"`
}

// promptHash identifies a prompt regardless of case and spacing.
func promptHash(taskType, prompt string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(prompt), " "))
	sum := sha256.Sum256([]byte(taskType + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}
