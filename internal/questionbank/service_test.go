package questionbank

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ieltswriter/ieltswriter/internal/ai"
)

type memRepo struct {
	mu     sync.Mutex
	byHash map[string]*Question
	fail   bool
	clock  time.Time
}

func newMemRepo() *memRepo {
	return &memRepo{byHash: map[string]*Question{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memRepo) Upsert(_ context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.clock = m.clock.Add(time.Minute)
	h := promptHash(q.TaskType, q.Prompt)
	if existing, ok := m.byHash[h]; ok {
		existing.TimesServed++
		existing.LastServedAt = m.clock
		*q = *existing
		return nil
	}
	stored := *q
	stored.ID = uuid.New()
	stored.TimesServed = 1
	stored.FirstServedAt = m.clock
	stored.LastServedAt = m.clock
	m.byHash[h] = &stored
	*q = stored
	return nil
}

func (m *memRepo) List(_ context.Context, taskType string, limit, offset int) ([]Question, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Question
	for _, q := range m.byHash {
		if taskType == "" || q.TaskType == taskType {
			all = append(all, *q)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastServedAt.After(all[j].LastServedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return []Question{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func TestPromptHash_IgnoresCaseAndSpacing(t *testing.T) {
	a := promptHash(ai.Task2, "Some people think  that\ncities are crowded.")
	b := promptHash(ai.Task2, "  some people THINK that cities are crowded. ")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, promptHash(ai.Task1, "some people think that cities are crowded."))
}

func TestService_RecordCountsRepeats(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	svc.RecordEssay(ctx, &ai.EssayPrompt{Topic: "Cities", Question: "Are cities too crowded?"})
	svc.RecordEssay(ctx, &ai.EssayPrompt{Topic: "Cities", Question: "are cities too  crowded?"})
	svc.RecordEssay(ctx, &ai.EssayPrompt{Topic: "Empty"})
	svc.RecordReport(ctx, &ai.ReportPrompt{Instruction: "The chart shows sales.", ChartType: ai.ChartBar})

	questions, total, err := svc.List(ctx, ai.Task2, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, questions, 1)
	assert.Equal(t, 2, questions[0].TimesServed)

	_, total, err = svc.List(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	repo.fail = true
	assert.NotPanics(t, func() {
		svc.RecordEssay(ctx, &ai.EssayPrompt{Question: "Another question?"})
	})
}

func TestService_ExportWritesWorkbook(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.RecordEssay(ctx, &ai.EssayPrompt{Question: "Question number " + strconv.Itoa(i)})
	}
	svc.RecordReport(ctx, &ai.ReportPrompt{Instruction: "Describe the pie chart.", ChartType: ai.ChartPie})

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, "", &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Prompt", rows[0][2])
	assert.Equal(t, "Describe the pie chart.", rows[1][2])
	assert.Equal(t, ai.ChartPie, rows[1][3])
	assert.Equal(t, "1", rows[1][4])
}

func TestService_ExportSpansRepositoryPages(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	total := exportPageSize + 3
	for i := 0; i < total; i++ {
		svc.RecordEssay(ctx, &ai.EssayPrompt{Question: "Essay question " + strconv.Itoa(i)})
	}

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, ai.Task2, &buf))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, total+1)
	assert.Equal(t, "ID", rows[0][0])
}

func TestHandler_Export(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	svc.RecordEssay(context.Background(), &ai.EssayPrompt{Question: "Is technology helpful?"})
	h := NewHandler(svc)

	rec := httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/admin/questions/export?task_type=task2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())

	rec = httptest.NewRecorder()
	h.Export(rec, httptest.NewRequest(http.MethodGet, "/admin/questions/export?task_type=task9", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
