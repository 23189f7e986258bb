package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (*Stored, error)
	Upsert(ctx context.Context, c *Stored) error
	Delete(ctx context.Context, userID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Get(ctx context.Context, userID uuid.UUID) (*Stored, error) {
	c := &Stored{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, sealed, cipher, updated_at FROM user_credentials WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.Sealed, &c.Cipher, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, c *Stored) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_credentials (user_id, sealed, cipher, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET sealed = EXCLUDED.sealed, cipher = EXCLUDED.cipher, updated_at = EXCLUDED.updated_at`,
		c.UserID, c.Sealed, c.Cipher, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("deleting credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
