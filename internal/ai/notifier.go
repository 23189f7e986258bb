package ai

import (
	"context"
	"log/slog"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notifier receives short user-facing messages about AI calls. The HTTP
// layer turns them into notices on the response.
type Notifier interface {
	Notify(ctx context.Context, level, message string)
}

// LogNotifier writes notices to slog.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, level, message string) {
	switch level {
	case LevelError:
		slog.ErrorContext(ctx, "ai notice", "message", message)
	case LevelWarning:
		slog.WarnContext(ctx, "ai notice", "message", message)
	default:
		slog.InfoContext(ctx, "ai notice", "message", message)
	}
}

// MultiNotifier fans out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, level, message string) {
	for _, n := range m {
		n.Notify(ctx, level, message)
	}
}
