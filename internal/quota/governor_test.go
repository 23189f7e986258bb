package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCredentials map[uuid.UUID]bool

func (c staticCredentials) HasCredential(_ context.Context, userID uuid.UUID) bool {
	return c[userID]
}

type failingStore struct{}

func (failingStore) Get(context.Context, uuid.UUID) (Record, bool, error) {
	return Record{}, false, errors.New("store down")
}

func (failingStore) Put(context.Context, uuid.UUID, Record) error {
	return errors.New("store down")
}

func (failingStore) Update(context.Context, uuid.UUID, func(*Record) error) (Record, error) {
	return Record{}, errors.New("store down")
}

func newTestGovernor(t *testing.T, limit int, loc *time.Location, creds CredentialChecker) (*Governor, *RedisStore) {
	t.Helper()
	store := NewRedisStore(setupMiniredis(t))
	return NewGovernor(store, creds, limit, loc), store
}

func TestGovernor_IncrementUntilCap(t *testing.T) {
	g, _ := newTestGovernor(t, 3, time.UTC, nil)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, g.Initialize(ctx, userID))
	assert.Equal(t, 0, g.Used(ctx, userID))

	for want := 1; want <= 3; want++ {
		used, err := g.Increment(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, used)
	}

	used, err := g.Increment(ctx, userID)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 3, used)
	assert.False(t, g.CanMakeRequest(ctx, userID))

	st := g.Status(ctx, userID)
	assert.Equal(t, 3, st.Used)
	assert.Equal(t, 0, st.Remaining)
	assert.False(t, st.Unlimited)
}

func TestGovernor_ConcurrentIncrementAtLastSlot(t *testing.T) {
	const limit = 5
	g, store := newTestGovernor(t, limit, time.UTC, nil)
	ctx := context.Background()
	userID := uuid.New()

	today := time.Now().UTC().Format(dateLayout)
	require.NoError(t, store.Put(ctx, userID, Record{Used: limit - 1, LastResetDate: today}))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		exceeded  int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Increment(ctx, userID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrQuotaExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, exceeded)

	rec, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, limit, rec.Used)
}

func TestGovernor_ResetsAtReferenceMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	g, store := newTestGovernor(t, 10, loc, nil)
	ctx := context.Background()
	userID := uuid.New()

	// 16:59 UTC is 23:59 in UTC+7.
	before := time.Date(2025, 1, 1, 16, 59, 0, 0, time.UTC)
	g.now = func() time.Time { return before }
	for i := 0; i < 10; i++ {
		_, err := g.Increment(ctx, userID)
		require.NoError(t, err)
	}
	assert.False(t, g.CanMakeRequest(ctx, userID))

	// Two minutes later the reference day has rolled over, while UTC has not.
	after := before.Add(2 * time.Minute)
	g.now = func() time.Time { return after }
	assert.Equal(t, 0, g.Used(ctx, userID))
	assert.True(t, g.CanMakeRequest(ctx, userID))

	used, err := g.Increment(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	rec, _, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02", rec.LastResetDate)
}

func TestGovernor_StaleRecordReadsAsZero(t *testing.T) {
	g, store := newTestGovernor(t, 10, time.UTC, nil)
	ctx := context.Background()
	userID := uuid.New()

	require.NoError(t, store.Put(ctx, userID, Record{Used: 7, LastResetDate: "2020-01-01"}))
	assert.Equal(t, 0, g.Used(ctx, userID))

	rec, _, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Used)
}

func TestGovernor_OwnCredentialBypassesCap(t *testing.T) {
	userID := uuid.New()
	g, _ := newTestGovernor(t, 1, time.UTC, staticCredentials{userID: true})
	ctx := context.Background()

	_, err := g.Increment(ctx, userID)
	require.NoError(t, err)

	assert.True(t, g.CanMakeRequest(ctx, userID))
	assert.True(t, g.Status(ctx, userID).Unlimited)
}

func TestGovernor_StoreFailure(t *testing.T) {
	g := NewGovernor(failingStore{}, nil, 10, time.UTC)
	ctx := context.Background()
	userID := uuid.New()

	_, err := g.Increment(ctx, userID)
	assert.ErrorIs(t, err, ErrTransactionFailed)

	assert.Equal(t, 0, g.Used(ctx, userID))
	assert.Error(t, g.Initialize(ctx, userID))
}

func TestGovernor_StatusResetsAtNextMidnight(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	g, _ := newTestGovernor(t, 10, loc, nil)
	g.now = func() time.Time { return time.Date(2025, 6, 10, 3, 0, 0, 0, time.UTC) }

	st := g.Status(context.Background(), uuid.New())
	assert.True(t, st.ResetsAt.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, loc)), "got %s", st.ResetsAt)
	assert.Equal(t, 10, st.Remaining)
}

func TestGovernor_ForgetDropsCache(t *testing.T) {
	g, store := newTestGovernor(t, 10, time.UTC, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := g.Increment(ctx, userID)
	require.NoError(t, err)

	// Another instance wrote behind this governor's back.
	today := time.Now().UTC().Format(dateLayout)
	require.NoError(t, store.Put(ctx, userID, Record{Used: 4, LastResetDate: today}))
	assert.Equal(t, 1, g.Used(ctx, userID))

	g.Forget(userID)
	assert.Equal(t, 4, g.Used(ctx, userID))
}

func TestGovernor_NewDayPrunesCache(t *testing.T) {
	g, _ := newTestGovernor(t, 10, time.UTC, nil)
	ctx := context.Background()
	day1 := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return day1 }

	idle, active := uuid.New(), uuid.New()
	assert.Equal(t, 0, g.Used(ctx, idle))
	assert.Equal(t, 0, g.Used(ctx, active))
	require.Len(t, g.cache, 2)

	g.now = func() time.Time { return day1.Add(24 * time.Hour) }
	_, err := g.Increment(ctx, active)
	require.NoError(t, err)

	assert.Len(t, g.cache, 1)
	_, ok := g.cached(idle)
	assert.False(t, ok)
}
