package history

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

const (
	// PageSize is the number of summaries per page. The first page is what
	// the list cache holds.
	PageSize = 10
	// PreviewRunes bounds the prompt prefix shown in list views.
	PreviewRunes = 80
)

var (
	ErrNotFound      = errors.New("history entry not found")
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Entry is one attempt with its grading and optional chart and grammar data.
type Entry struct {
	ID           uuid.UUID        `json:"id"`
	UserID       uuid.UUID        `json:"user_id"`
	TaskType     string           `json:"task_type"`
	Prompt       string           `json:"prompt"`
	ResponseText string           `json:"response_text"`
	WordCount    int              `json:"word_count"`
	Feedback     *ai.Feedback     `json:"feedback,omitempty"`
	Chart        *ai.ReportPrompt `json:"chart,omitempty"`
	Grammar      []ai.Segment     `json:"grammar,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Summary is the list projection of an Entry.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	TaskType  string    `json:"task_type"`
	Preview   string    `json:"preview"`
	Score     *float64  `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one slice of a user's history, newest first.
type Page struct {
	Items      []Summary `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func (e *Entry) Summary() Summary {
	s := Summary{
		ID:        e.ID,
		TaskType:  e.TaskType,
		Preview:   preview(e.Prompt),
		CreatedAt: e.CreatedAt,
	}
	if e.Feedback != nil {
		band := e.Feedback.Band
		s.Score = &band
	}
	return s
}

func preview(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= PreviewRunes {
		return prompt
	}
	return string(runes[:PreviewRunes])
}

// Cursor is a keyset position: entries strictly older than (CreatedAt, ID).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (c Cursor) encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: at, ID: parsed}, nil
}

func nextCursor(items []Summary) string {
	if len(items) < PageSize {
		return ""
	}
	last := items[len(items)-1]
	return Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.encode()
}
