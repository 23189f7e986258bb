package history

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/cache"
	"github.com/ieltswriter/ieltswriter/internal/stats"
)

type memRepo struct {
	mu        sync.Mutex
	entries   map[uuid.UUID]Entry
	listCalls int
	getCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{entries: map[uuid.UUID]Entry{}}
}

func (m *memRepo) Insert(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = *e
	return nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func newer(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) > 0
}

func (m *memRepo) List(_ context.Context, userID uuid.UUID, after *Cursor, limit int) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	var mine []Entry
	for _, e := range m.entries {
		if e.UserID != userID {
			continue
		}
		if after != nil && !newer(Entry{CreatedAt: after.CreatedAt, ID: after.ID}, e) {
			continue
		}
		mine = append(mine, e)
	}
	sort.Slice(mine, func(i, j int) bool { return newer(mine[i], mine[j]) })
	if len(mine) > limit {
		mine = mine[:limit]
	}

	out := []Summary{}
	for i := range mine {
		out = append(out, mine[i].Summary())
	}
	return out, nil
}

func (m *memRepo) Delete(_ context.Context, userID, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || e.UserID != userID {
		return false, nil
	}
	delete(m.entries, id)
	return true, nil
}

func (m *memRepo) Graded(_ context.Context, userID uuid.UUID) ([]stats.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []stats.Attempt
	for _, e := range m.entries {
		if e.UserID == userID && e.Feedback != nil {
			out = append(out, stats.Attempt{EntryID: e.ID, TaskType: e.TaskType, Score: e.Feedback.Band, At: e.CreatedAt})
		}
	}
	return out, nil
}

type recorderFunc func(ctx context.Context, e *Entry) error

func (f recorderFunc) RecordGraded(ctx context.Context, e *Entry) error { return f(ctx, e) }

func setup(t *testing.T, recorder GradedRecorder) (*Service, *memRepo) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	repo := newMemRepo()
	return NewService(repo, cache.NewRedis(rdb, PageSize, time.Hour), recorder), repo
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func graded(userID uuid.UUID, i int, band float64) *Entry {
	return &Entry{
		UserID:       userID,
		TaskType:     ai.Task2,
		Prompt:       "Some people believe that question " + string(rune('A'+i%26)),
		ResponseText: "answer",
		WordCount:    260,
		Feedback:     &ai.Feedback{Band: band, Summary: "ok"},
		CreatedAt:    t0.Add(time.Duration(i) * time.Minute),
	}
}

func TestService_FirstPageServedFromCacheUntilSave(t *testing.T) {
	svc, repo := setup(t, nil)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, svc.Save(ctx, graded(userID, 0, 6)))

	page, err := svc.List(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	page, err = svc.List(ctx, userID, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, repo.listCalls)

	require.NoError(t, svc.Save(ctx, graded(userID, 1, 7)))
	page, err = svc.List(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, repo.listCalls)
	require.NotNil(t, page.Items[0].Score)
	assert.Equal(t, 7.0, *page.Items[0].Score)
}

func TestService_SmallListCacheIsBypassed(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	repo := newMemRepo()
	svc := NewService(repo, cache.NewRedis(rdb, PageSize/2, time.Hour), nil)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 15; i++ {
		require.NoError(t, svc.Save(ctx, graded(userID, i, 6)))
	}

	for range 2 {
		page, err := svc.List(ctx, userID, "")
		require.NoError(t, err)
		assert.Len(t, page.Items, PageSize)
		assert.NotEmpty(t, page.NextCursor)
	}
	assert.Equal(t, 2, repo.listCalls)
}

func TestService_CursorPagination(t *testing.T) {
	svc, _ := setup(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	other := uuid.New()

	for i := 0; i < 23; i++ {
		require.NoError(t, svc.Save(ctx, graded(userID, i, 6)))
	}
	require.NoError(t, svc.Save(ctx, graded(other, 99, 5)))

	var seen []uuid.UUID
	token := ""
	pages := 0
	for {
		page, err := svc.List(ctx, userID, token)
		require.NoError(t, err)
		pages++
		for _, s := range page.Items {
			seen = append(seen, s.ID)
		}
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 23)
	unique := map[uuid.UUID]bool{}
	for _, id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 23)

	_, err := svc.List(ctx, userID, "not-a-cursor!")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestService_DetailCachedPerSessionAndOwnerChecked(t *testing.T) {
	svc, repo := setup(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	e := graded(userID, 0, 6.5)
	require.NoError(t, svc.Save(ctx, e))

	got, err := svc.Get(ctx, userID, "sess-1", e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 6.5, got.Feedback.Band)

	_, err = svc.Get(ctx, userID, "sess-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.getCalls)

	stranger, err := svc.Get(ctx, uuid.New(), "sess-1", e.ID)
	require.NoError(t, err)
	assert.Nil(t, stranger)

	missing, err := svc.Get(ctx, userID, "sess-1", uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_DeleteInvalidatesCaches(t *testing.T) {
	svc, _ := setup(t, nil)
	ctx := context.Background()
	userID := uuid.New()
	e := graded(userID, 0, 6)
	require.NoError(t, svc.Save(ctx, e))

	_, err := svc.List(ctx, userID, "")
	require.NoError(t, err)
	_, err = svc.Get(ctx, userID, "sess-1", e.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), "sess-1", e.ID), ErrNotFound)
	require.NoError(t, svc.Delete(ctx, userID, "sess-1", e.ID))

	page, err := svc.List(ctx, userID, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	got, err := svc.Get(ctx, userID, "sess-1", e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, svc.Delete(ctx, userID, "sess-1", e.ID), ErrNotFound)
}

func TestService_SaveRecordsGradedOnly(t *testing.T) {
	var recorded []uuid.UUID
	svc, _ := setup(t, recorderFunc(func(_ context.Context, e *Entry) error {
		recorded = append(recorded, e.ID)
		return errors.New("stats store down")
	}))
	ctx := context.Background()
	userID := uuid.New()

	g := graded(userID, 0, 7)
	require.NoError(t, svc.Save(ctx, g))

	ungraded := &Entry{UserID: userID, TaskType: ai.Task1, Prompt: "p", ResponseText: "r"}
	require.NoError(t, svc.Save(ctx, ungraded))
	assert.NotEqual(t, uuid.Nil, ungraded.ID)
	assert.False(t, ungraded.CreatedAt.IsZero())

	assert.Equal(t, []uuid.UUID{g.ID}, recorded)

	attempts, err := svc.GradedAttempts(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestSummary_PreviewIsRuneSafe(t *testing.T) {
	long := strings.Repeat("é", 100)
	e := Entry{Prompt: long}
	s := e.Summary()
	assert.Equal(t, 80, len([]rune(s.Preview)))
	assert.Nil(t, s.Score)

	short := Entry{Prompt: "Describe the chart."}
	assert.Equal(t, "Describe the chart.", short.Summary().Preview)
}

func TestCursor_RoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: t0.Add(123 * time.Nanosecond), ID: uuid.New()}
	got, err := decodeCursor(c.encode())
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, c.ID, got.ID)

	none, err := decodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, none)
}
