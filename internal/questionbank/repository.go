package questionbank

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

type Repository interface {
	Upsert(ctx context.Context, q *Question) error
	List(ctx context.Context, taskType string, limit, offset int) ([]Question, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// Upsert inserts q or, when the prompt is already known, bumps its usage.
// q is updated with the stored row.
func (r *postgresRepository) Upsert(ctx context.Context, q *Question) error {
	var chart []byte
	if q.Chart != nil {
		var err error
		if chart, err = json.Marshal(q.Chart); err != nil {
			return fmt.Errorf("encoding chart: %w", err)
		}
	}

	query := `
		INSERT INTO question_bank (id, task_type, prompt, prompt_hash, chart)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prompt_hash) DO UPDATE SET
			times_served = question_bank.times_served + 1,
			last_served_at = NOW()
		RETURNING id, times_served, first_served_at, last_served_at`

	err := r.pool.QueryRow(ctx, query, uuid.New(), q.TaskType, q.Prompt, promptHash(q.TaskType, q.Prompt), chart).
		Scan(&q.ID, &q.TimesServed, &q.FirstServedAt, &q.LastServedAt)
	if err != nil {
		return fmt.Errorf("upserting question: %w", err)
	}
	return nil
}

// List returns questions most recently served first. An empty taskType
// matches every task.
func (r *postgresRepository) List(ctx context.Context, taskType string, limit, offset int) ([]Question, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM question_bank WHERE ($1 = '' OR task_type = $1)`, taskType).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting questions: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, task_type, prompt, chart, times_served, first_served_at, last_served_at
		FROM question_bank
		WHERE ($1 = '' OR task_type = $1)
		ORDER BY last_served_at DESC, id
		LIMIT $2 OFFSET $3`, taskType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	out := []Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func scanQuestion(row pgx.Row) (*Question, error) {
	q := &Question{}
	var chart []byte
	if err := row.Scan(&q.ID, &q.TaskType, &q.Prompt, &chart, &q.TimesServed, &q.FirstServedAt, &q.LastServedAt); err != nil {
		return nil, fmt.Errorf("scanning question: %w", err)
	}
	if chart != nil {
		q.Chart = &ai.ReportPrompt{}
		if err := json.Unmarshal(chart, q.Chart); err != nil {
			return nil, fmt.Errorf("decoding chart: %w", err)
		}
	}
	return q, nil
}
