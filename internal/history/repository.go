package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/stats"
)

type Repository interface {
	Insert(ctx context.Context, e *Entry) error
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)
	List(ctx context.Context, userID uuid.UUID, after *Cursor, limit int) ([]Summary, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (bool, error)
	Graded(ctx context.Context, userID uuid.UUID) ([]stats.Attempt, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// nullableJSON encodes v, mapping nil pointers and empty slices to SQL NULL.
func nullableJSON(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}

func (r *postgresRepository) Insert(ctx context.Context, e *Entry) error {
	feedback, err := nullableJSON(e.Feedback, e.Feedback == nil)
	if err != nil {
		return fmt.Errorf("encoding feedback: %w", err)
	}
	chart, err := nullableJSON(e.Chart, e.Chart == nil)
	if err != nil {
		return fmt.Errorf("encoding chart: %w", err)
	}
	grammar, err := nullableJSON(e.Grammar, len(e.Grammar) == 0)
	if err != nil {
		return fmt.Errorf("encoding grammar: %w", err)
	}

	query := `
		INSERT INTO history_entries (id, user_id, task_type, prompt, response_text, word_count,
			feedback, chart, grammar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query, e.ID, e.UserID, e.TaskType, e.Prompt, e.ResponseText, e.WordCount,
		feedback, chart, grammar, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e := &Entry{}
	var feedback, chart, grammar []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, task_type, prompt, response_text, word_count, feedback, chart, grammar, created_at
		FROM history_entries WHERE id = $1`, id).
		Scan(&e.ID, &e.UserID, &e.TaskType, &e.Prompt, &e.ResponseText, &e.WordCount,
			&feedback, &chart, &grammar, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying history entry: %w", err)
	}

	if feedback != nil {
		e.Feedback = &ai.Feedback{}
		if err := json.Unmarshal(feedback, e.Feedback); err != nil {
			return nil, fmt.Errorf("decoding feedback: %w", err)
		}
	}
	if chart != nil {
		e.Chart = &ai.ReportPrompt{}
		if err := json.Unmarshal(chart, e.Chart); err != nil {
			return nil, fmt.Errorf("decoding chart: %w", err)
		}
	}
	if grammar != nil {
		if err := json.Unmarshal(grammar, &e.Grammar); err != nil {
			return nil, fmt.Errorf("decoding grammar: %w", err)
		}
	}
	return e, nil
}

func (r *postgresRepository) List(ctx context.Context, userID uuid.UUID, after *Cursor, limit int) ([]Summary, error) {
	query := `
		SELECT id, task_type, LEFT(prompt, $2), (feedback->>'band')::double precision, created_at
		FROM history_entries
		WHERE user_id = $1`
	args := []any{userID, PreviewRunes}
	if after != nil {
		query += ` AND (created_at, id) < ($3, $4)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.TaskType, &s.Preview, &s.Score, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *postgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM history_entries WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("deleting history entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepository) Graded(ctx context.Context, userID uuid.UUID) ([]stats.Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_type, (feedback->>'band')::double precision, created_at
		FROM history_entries
		WHERE user_id = $1 AND feedback IS NOT NULL AND feedback ? 'band'
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing graded attempts: %w", err)
	}
	defer rows.Close()

	var out []stats.Attempt
	for rows.Next() {
		var a stats.Attempt
		if err := rows.Scan(&a.EntryID, &a.TaskType, &a.Score, &a.At); err != nil {
			return nil, fmt.Errorf("scanning graded attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
