package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (*Record, error)
	Upsert(ctx context.Context, rec *Record) error
	All(ctx context.Context) ([]Record, error)
	GetRollup(ctx context.Context) (*GlobalStats, error)
	SaveRollup(ctx context.Context, g *GlobalStats) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const recordColumns = `user_id, total_attempts, average_score, task1_attempts, task1_average,
	task2_attempts, task2_average, recent_scores, last_attempt_at, applied_entries`

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var recent, appliedIDs []byte
	err := row.Scan(&rec.UserID, &rec.TotalAttempts, &rec.AverageScore, &rec.Task1Attempts, &rec.Task1Average,
		&rec.Task2Attempts, &rec.Task2Average, &recent, &rec.LastAttemptAt, &appliedIDs)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recent, &rec.RecentScores); err != nil {
		return nil, fmt.Errorf("decoding recent scores: %w", err)
	}
	if err := json.Unmarshal(appliedIDs, &rec.AppliedEntries); err != nil {
		return nil, fmt.Errorf("decoding applied entries: %w", err)
	}
	return rec, nil
}

func (r *postgresRepository) Get(ctx context.Context, userID uuid.UUID) (*Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM user_stats WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user stats: %w", err)
	}
	return rec, nil
}

func (r *postgresRepository) Upsert(ctx context.Context, rec *Record) error {
	recent, err := json.Marshal(rec.RecentScores)
	if err != nil {
		return fmt.Errorf("encoding recent scores: %w", err)
	}
	appliedIDs := rec.AppliedEntries
	if appliedIDs == nil {
		appliedIDs = []uuid.UUID{}
	}
	appliedJSON, err := json.Marshal(appliedIDs)
	if err != nil {
		return fmt.Errorf("encoding applied entries: %w", err)
	}

	query := `
		INSERT INTO user_stats (user_id, total_attempts, average_score, task1_attempts, task1_average,
			task2_attempts, task2_average, recent_scores, last_attempt_at, applied_entries, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_attempts = EXCLUDED.total_attempts,
			average_score = EXCLUDED.average_score,
			task1_attempts = EXCLUDED.task1_attempts,
			task1_average = EXCLUDED.task1_average,
			task2_attempts = EXCLUDED.task2_attempts,
			task2_average = EXCLUDED.task2_average,
			recent_scores = EXCLUDED.recent_scores,
			last_attempt_at = EXCLUDED.last_attempt_at,
			applied_entries = EXCLUDED.applied_entries,
			updated_at = NOW()`

	_, err = r.pool.Exec(ctx, query, rec.UserID, rec.TotalAttempts, rec.AverageScore, rec.Task1Attempts,
		rec.Task1Average, rec.Task2Attempts, rec.Task2Average, recent, rec.LastAttemptAt, appliedJSON)
	if err != nil {
		return fmt.Errorf("upserting user stats: %w", err)
	}
	return nil
}

func (r *postgresRepository) All(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM user_stats`)
	if err != nil {
		return nil, fmt.Errorf("querying all user stats: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user stats: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *postgresRepository) GetRollup(ctx context.Context) (*GlobalStats, error) {
	var payload []byte
	var computedAt time.Time
	err := r.pool.QueryRow(ctx, `SELECT payload, computed_at FROM admin_rollup WHERE id = 1`).Scan(&payload, &computedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying admin rollup: %w", err)
	}

	var g GlobalStats
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, fmt.Errorf("decoding admin rollup: %w", err)
	}
	g.ComputedAt = computedAt
	return &g, nil
}

func (r *postgresRepository) SaveRollup(ctx context.Context, g *GlobalStats) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encoding admin rollup: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO admin_rollup (id, payload, computed_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, computed_at = EXCLUDED.computed_at`,
		payload, g.ComputedAt)
	if err != nil {
		return fmt.Errorf("saving admin rollup: %w", err)
	}
	return nil
}
