package questionbank

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

const (
	exportSheet    = "Questions"
	exportPageSize = 500
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecordReport remembers a served Task 1 prompt. Failures are logged only:
// the bank is bookkeeping and must not fail a generation.
func (s *Service) RecordReport(ctx context.Context, p *ai.ReportPrompt) {
	s.record(ctx, &Question{TaskType: ai.Task1, Prompt: p.Instruction, Chart: p})
}

// RecordEssay remembers a served Task 2 question.
func (s *Service) RecordEssay(ctx context.Context, p *ai.EssayPrompt) {
	s.record(ctx, &Question{TaskType: ai.Task2, Prompt: p.Question})
}

func (s *Service) record(ctx context.Context, q *Question) {
	if q.Prompt == "" {
		return
	}
	if err := s.repo.Upsert(ctx, q); err != nil {
		slog.Warn("questionbank: recording prompt", "error", err, "task_type", q.TaskType)
	}
}

func (s *Service) List(ctx context.Context, taskType string, page, pageSize int) ([]Question, int64, error) {
	return s.repo.List(ctx, taskType, pageSize, (page-1)*pageSize)
}

// Export writes every question of taskType (all when empty) as an XLSX
// workbook to w.
func (s *Service) Export(ctx context.Context, taskType string, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("preparing sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("opening stream writer: %w", err)
	}
	// Column widths must be set before the first row is streamed.
	if err := sw.SetColWidth(3, 3, 80); err != nil {
		return fmt.Errorf("sizing prompt column: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	headers := []any{"ID", "Task", "Prompt", "Chart type", "Times served", "First served", "Last served"}
	if err := sw.SetRow("A1", headers, excelize.RowOpts{StyleID: bold}); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := 2
	for offset := 0; ; offset += exportPageSize {
		questions, _, err := s.repo.List(ctx, taskType, exportPageSize, offset)
		if err != nil {
			return err
		}
		for _, q := range questions {
			chartType := ""
			if q.Chart != nil {
				chartType = q.Chart.ChartType
			}
			cell, err := excelize.CoordinatesToCellName(1, row)
			if err != nil {
				return err
			}
			values := []any{
				q.ID.String(), q.TaskType, q.Prompt, chartType, q.TimesServed,
				q.FirstServedAt.UTC().Format(time.RFC3339), q.LastServedAt.UTC().Format(time.RFC3339),
			}
			if err := sw.SetRow(cell, values); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
			row++
		}
		if len(questions) < exportPageSize {
			break
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flushing sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
