package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/cache"
	"github.com/ieltswriter/ieltswriter/internal/stats"
)

// GradedRecorder is told about every saved entry that carries feedback.
type GradedRecorder interface {
	RecordGraded(ctx context.Context, e *Entry) error
}

// Service stores attempts and keeps the user's list cache consistent with
// them. The first page of a user's history is served from the durable cache
// tier; details are cached per login session.
type Service struct {
	repo     Repository
	cache    *cache.Cache
	recorder GradedRecorder
	now      func() time.Time
}

func NewService(repo Repository, c *cache.Cache, recorder GradedRecorder) *Service {
	return &Service{repo: repo, cache: c, recorder: recorder, now: time.Now}
}

// Save stores e, invalidates the owner's list cache and records the grade.
// A recording failure is logged; the entry stays saved and can be folded in
// later by a recalculation.
func (s *Service) Save(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}

	if err := s.repo.Insert(ctx, e); err != nil {
		return fmt.Errorf("saving history entry: %w", err)
	}
	s.cache.Invalidate(ctx, e.UserID.String())

	if e.Feedback != nil && s.recorder != nil {
		if err := s.recorder.RecordGraded(ctx, e); err != nil {
			slog.Error("history: recording graded attempt", "error", err, "entry_id", e.ID, "user_id", e.UserID)
		}
	}
	return nil
}

// List returns one page of summaries, newest first. An empty cursor asks for
// the first page.
func (s *Service) List(ctx context.Context, userID uuid.UUID, cursorToken string) (*Page, error) {
	after, err := decodeCursor(cursorToken)
	if err != nil {
		return nil, err
	}
	owner := userID.String()
	// A cache that cannot hold a whole page would truncate it and hide the cursor.
	cached := after == nil && s.cache.ListCap() >= PageSize

	if cached {
		if items, ok := cache.GetList[Summary](ctx, s.cache, owner); ok {
			return &Page{Items: items, NextCursor: nextCursor(items)}, nil
		}
	}

	items, err := s.repo.List(ctx, userID, after, PageSize)
	if err != nil {
		return nil, err
	}
	if cached {
		cache.SetList(ctx, s.cache, owner, items)
	}
	return &Page{Items: items, NextCursor: nextCursor(items)}, nil
}

// Get returns the entry if userID owns it, or nil. sessionID scopes the
// detail cache.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, sessionID string, id uuid.UUID) (*Entry, error) {
	if sessionID != "" {
		if e, ok := cache.GetDetail[Entry](ctx, s.cache, sessionID, id.String()); ok && e.UserID == userID {
			return e, nil
		}
	}

	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil || e.UserID != userID {
		return nil, nil
	}

	if sessionID != "" {
		cache.SetDetail(ctx, s.cache, sessionID, id.String(), e)
	}
	return e, nil
}

// Delete removes one of the user's entries.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, sessionID string, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}

	s.cache.Invalidate(ctx, userID.String())
	if sessionID != "" {
		s.cache.DropDetail(ctx, sessionID, id.String())
	}
	return nil
}

// GradedAttempts lists every graded attempt of the user in timestamp order.
func (s *Service) GradedAttempts(ctx context.Context, userID uuid.UUID) ([]stats.Attempt, error) {
	return s.repo.Graded(ctx, userID)
}
