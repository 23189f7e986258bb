package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/ieltswriter/ieltswriter/internal/metrics"
)

const mimeJSON = "application/json"

// Client builds prompts, calls a transport and normalizes the result. It does
// not retry; a retry is the user pressing the button again.
type Client struct {
	notifier Notifier
}

func NewClient(notifier Notifier) *Client {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Client{notifier: notifier}
}

func (c *Client) call(ctx context.Context, t Transport, route Route, op, instruction string) (string, error) {
	start := time.Now()
	text, err := t.Complete(ctx, Request{Instruction: instruction, ResponseMIME: mimeJSON})
	metrics.AICallDuration.WithLabelValues(string(route)).Observe(time.Since(start).Seconds())
	if err != nil {
		aiErr := AsError(err)
		metrics.AICallsTotal.WithLabelValues(string(route), op, string(aiErr.Kind)).Inc()
		return "", aiErr
	}
	metrics.AICallsTotal.WithLabelValues(string(route), op, "ok").Inc()
	return text, nil
}

// fail reports a primary-path failure to the user and returns it.
func (c *Client) fail(ctx context.Context, op string, err *Error) error {
	slog.WarnContext(ctx, "ai call failed", "operation", op, "kind", err.Kind, "error", err.Err)
	c.notifier.Notify(ctx, LevelError, err.Message+" "+err.Remedy())
	return err
}

func (c *Client) malformed(ctx context.Context, op string, err error) error {
	return c.fail(ctx, op, &Error{
		Kind:    KindUnknown,
		Message: "The AI returned an unexpected response.",
		Err:     err,
	})
}

// GenerateReport produces a Task 1 prompt for chartType.
func (c *Client) GenerateReport(ctx context.Context, t Transport, route Route, chartType string) (*ReportPrompt, error) {
	raw, err := c.call(ctx, t, route, "report", BuildReportPrompt(chartType))
	if err != nil {
		return nil, c.fail(ctx, "report", AsError(err))
	}
	p, err := NormalizeReport(raw, chartType)
	if err != nil {
		return nil, c.malformed(ctx, "report", err)
	}
	return p, nil
}

// GenerateEssay produces a Task 2 question.
func (c *Client) GenerateEssay(ctx context.Context, t Transport, route Route) (*EssayPrompt, error) {
	raw, err := c.call(ctx, t, route, "essay", BuildEssayPrompt())
	if err != nil {
		return nil, c.fail(ctx, "essay", AsError(err))
	}
	p, err := NormalizeEssay(raw)
	if err != nil {
		return nil, c.malformed(ctx, "essay", err)
	}
	return p, nil
}

// CheckGrammar never fails. Transport errors and unusable responses yield an
// empty list and a warning notice.
func (c *Client) CheckGrammar(ctx context.Context, t Transport, route Route, text string) []Segment {
	raw, err := c.call(ctx, t, route, "grammar", BuildGrammarPrompt(text))
	if err != nil {
		slog.WarnContext(ctx, "grammar check failed", "error", err)
		c.notifier.Notify(ctx, LevelWarning, "No grammar feedback available right now.")
		return []Segment{}
	}

	segs, kind := NormalizeGrammar(text, raw)
	if kind == ShapeUnrecognized {
		slog.WarnContext(ctx, "grammar check returned an unrecognized shape")
		c.notifier.Notify(ctx, LevelWarning, "No grammar feedback available right now.")
	}
	return segs
}

// Evaluate grades a response. wordCount is passed to the model verbatim.
func (c *Client) Evaluate(ctx context.Context, t Transport, route Route, taskType, prompt, text string, wordCount int) (*Feedback, error) {
	raw, err := c.call(ctx, t, route, "evaluate", BuildEvaluationPrompt(taskType, prompt, text, wordCount))
	if err != nil {
		return nil, c.fail(ctx, "evaluate", AsError(err))
	}
	f, err := NormalizeFeedback(raw)
	if err != nil {
		return nil, c.malformed(ctx, "evaluate", err)
	}
	return f, nil
}
