//go:build integration

package integration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ieltswriter/ieltswriter/internal/quota"
)

func TestQuotaStores_ConcurrentIncrementsRespectLimit(t *testing.T) {
	env := SetupTestEnv(t)

	email := "race@example.com"
	RegisterUser(t, env, email, "password123")
	userID := userIDByEmail(t, env, email)

	stores := map[string]quota.Store{
		"postgres": quota.NewPostgresStore(env.Pool),
		"redis":    quota.NewRedisStore(env.Redis),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			governor := quota.NewGovernor(store, nil, dailyLimit, time.UTC)
			ctx := context.Background()
			require.NoError(t, governor.Initialize(ctx, userID))

			var ok, rejected atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := governor.Increment(ctx, userID)
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, quota.ErrQuotaExceeded):
						rejected.Add(1)
					}
				}()
			}
			wg.Wait()

			// Optimistic stores may give up under contention; none may overshoot.
			assert.LessOrEqual(t, ok.Load(), int64(dailyLimit))
			if name == "postgres" {
				assert.Equal(t, int64(dailyLimit), ok.Load())
				assert.Equal(t, int64(20-dailyLimit), rejected.Load())
			}

			for i := 0; i < dailyLimit; i++ {
				_, _ = governor.Increment(ctx, userID)
			}
			_, err := governor.Increment(ctx, userID)
			assert.ErrorIs(t, err, quota.ErrQuotaExceeded)
			assert.Equal(t, dailyLimit, governor.Used(ctx, userID))
		})
	}
}
