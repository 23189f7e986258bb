package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ieltswriter/ieltswriter/internal/database"
)

// PostgresStore handles user_quotas PostgreSQL operations.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   *database.Transactor
}

// NewPostgresStore creates a new quota PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, tx: database.NewTransactor(pool)}
}

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (Record, bool, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT quota_used, last_reset_date FROM user_quotas WHERE user_id = $1`, userID,
	).Scan(&rec.Used, &rec.LastResetDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("fetching user quota: %w", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, userID uuid.UUID, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_quotas (user_id, quota_used, last_reset_date, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET quota_used = EXCLUDED.quota_used,
		     last_reset_date = EXCLUDED.last_reset_date,
		     updated_at = NOW()`,
		userID, rec.Used, rec.LastResetDate)
	if err != nil {
		return fmt.Errorf("writing user quota: %w", err)
	}
	return nil
}

// Update locks the user's row for the duration of the transaction so that
// concurrent increments queue behind each other.
func (s *PostgresStore) Update(ctx context.Context, userID uuid.UUID, fn func(rec *Record) error) (Record, error) {
	var out Record
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_quotas (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
		if err != nil {
			return fmt.Errorf("ensuring user quota: %w", err)
		}

		var rec Record
		err = tx.QueryRow(ctx,
			`SELECT quota_used, last_reset_date FROM user_quotas WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&rec.Used, &rec.LastResetDate)
		if err != nil {
			return fmt.Errorf("locking user quota: %w", err)
		}

		if err := fn(&rec); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE user_quotas
			 SET quota_used = $2, last_reset_date = $3, updated_at = NOW()
			 WHERE user_id = $1`, userID, rec.Used, rec.LastResetDate)
		if err != nil {
			return fmt.Errorf("updating user quota: %w", err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}
