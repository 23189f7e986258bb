package writing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/ieltswriter/ieltswriter/internal/ai"
	"github.com/ieltswriter/ieltswriter/internal/history"
	"github.com/ieltswriter/ieltswriter/internal/metrics"
	"github.com/ieltswriter/ieltswriter/internal/questionbank"
	"github.com/ieltswriter/ieltswriter/internal/quota"
)

// Generated is a prompt together with how it was produced.
type Generated[T any] struct {
	Prompt T            `json:"prompt"`
	Route  ai.Route     `json:"route"`
	Quota  quota.Status `json:"quota"`
}

// EvaluateInput is a submission to grade.
type EvaluateInput struct {
	TaskType string
	Prompt   string
	Text     string
	Chart    *ai.ReportPrompt
	Grammar  []ai.Segment
}

// Service runs the generate, check and evaluate use cases. Generation on the
// shared key is metered by the governor; grammar and evaluation calls are
// limited per user per window instead.
type Service struct {
	router   *ai.Router
	client   *ai.Client
	governor *quota.Governor
	grammar  ai.Limiter
	evaluate ai.Limiter
	history  *history.Service
	bank     *questionbank.Service
	notifier ai.Notifier
}

type Deps struct {
	Router          *ai.Router
	Client          *ai.Client
	Governor        *quota.Governor
	GrammarLimiter  ai.Limiter
	EvaluateLimiter ai.Limiter
	History         *history.Service
	Bank            *questionbank.Service
	Notifier        ai.Notifier
}

func NewService(d Deps) *Service {
	n := d.Notifier
	if n == nil {
		n = ai.LogNotifier{}
	}
	return &Service{
		router:   d.Router,
		client:   d.Client,
		governor: d.Governor,
		grammar:  d.GrammarLimiter,
		evaluate: d.EvaluateLimiter,
		history:  d.History,
		bank:     d.Bank,
		notifier: n,
	}
}

// GenerateReport produces a Task 1 prompt. An empty chartType picks one at
// random.
func (s *Service) GenerateReport(ctx context.Context, userID uuid.UUID, chartType string) (*Generated[*ai.ReportPrompt], error) {
	if chartType == "" {
		chartType = ai.ChartTypes[rand.IntN(len(ai.ChartTypes))]
	}

	t, route := s.router.Resolve(ctx, userID)
	if err := s.admit(ctx, userID, route); err != nil {
		return nil, err
	}

	p, err := s.client.GenerateReport(ctx, t, route, chartType)
	if err != nil {
		return nil, err
	}
	if err := s.charge(ctx, userID, route); err != nil {
		return nil, err
	}

	s.bank.RecordReport(ctx, p)
	return &Generated[*ai.ReportPrompt]{Prompt: p, Route: route, Quota: s.governor.Status(ctx, userID)}, nil
}

// GenerateEssay produces a Task 2 question.
func (s *Service) GenerateEssay(ctx context.Context, userID uuid.UUID) (*Generated[*ai.EssayPrompt], error) {
	t, route := s.router.Resolve(ctx, userID)
	if err := s.admit(ctx, userID, route); err != nil {
		return nil, err
	}

	p, err := s.client.GenerateEssay(ctx, t, route)
	if err != nil {
		return nil, err
	}
	if err := s.charge(ctx, userID, route); err != nil {
		return nil, err
	}

	s.bank.RecordEssay(ctx, p)
	return &Generated[*ai.EssayPrompt]{Prompt: p, Route: route, Quota: s.governor.Status(ctx, userID)}, nil
}

// admit rejects a metered generation when no free generations remain.
func (s *Service) admit(ctx context.Context, userID uuid.UUID, route ai.Route) error {
	if route != ai.RouteProxied {
		return nil
	}
	if !s.governor.CanMakeRequest(ctx, userID) {
		return quota.ErrQuotaExceeded
	}
	return nil
}

// charge consumes one free generation after a metered call succeeded. The
// increment is the authoritative cap check; losing a race here discards the
// generated prompt.
func (s *Service) charge(ctx context.Context, userID uuid.UUID, route ai.Route) error {
	if route != ai.RouteProxied {
		return nil
	}
	if _, err := s.governor.Increment(ctx, userID); err != nil {
		return err
	}
	return nil
}

// CheckGrammar returns correction segments for text. Only the per-user
// limit can fail it; every AI failure degrades to an empty list.
func (s *Service) CheckGrammar(ctx context.Context, userID uuid.UUID, text string) ([]ai.Segment, error) {
	if err := s.allow(ctx, s.grammar, "grammar", userID); err != nil {
		return nil, err
	}
	t, route := s.router.Resolve(ctx, userID)
	return s.client.CheckGrammar(ctx, t, route, text), nil
}

// Evaluate grades a submission and saves it to history.
func (s *Service) Evaluate(ctx context.Context, userID uuid.UUID, in EvaluateInput) (*history.Entry, error) {
	if err := s.allow(ctx, s.evaluate, "evaluate", userID); err != nil {
		return nil, err
	}

	words := CountWords(in.Text)
	if minWords := ai.MinWords[in.TaskType]; words < minWords {
		s.notifier.Notify(ctx, ai.LevelInfo,
			fmt.Sprintf("Your response has %d words; this task expects at least %d.", words, minWords))
	}

	t, route := s.router.Resolve(ctx, userID)
	feedback, err := s.client.Evaluate(ctx, t, route, in.TaskType, in.Prompt, in.Text, words)
	if err != nil {
		return nil, err
	}

	entry := &history.Entry{
		UserID:       userID,
		TaskType:     in.TaskType,
		Prompt:       in.Prompt,
		ResponseText: in.Text,
		WordCount:    words,
		Feedback:     feedback,
		Chart:        in.Chart,
		Grammar:      in.Grammar,
	}
	if err := s.history.Save(ctx, entry); err != nil {
		return nil, fmt.Errorf("evaluating: %w", err)
	}
	return entry, nil
}

var errWindowLimited = errors.New("per-user window limit reached")

func (s *Service) allow(ctx context.Context, l ai.Limiter, name string, userID uuid.UUID) error {
	if l == nil {
		return nil
	}
	ok, err := l.Allow(ctx, userID.String())
	if err != nil {
		slog.Warn("writing: limiter unavailable, allowing call", "error", err, "limiter", name)
		return nil
	}
	if !ok {
		metrics.RateLimitedTotal.WithLabelValues(name).Inc()
		return ai.NewError(ai.KindRateLimited, errWindowLimited)
	}
	return nil
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
