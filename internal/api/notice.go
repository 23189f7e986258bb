package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// Notice is a short, dismissable message for the user.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Remedy  string `json:"remedy,omitempty"`
}

type noticesKey struct{}

// Notices collects the notices raised while serving one request.
type Notices struct {
	mu   sync.Mutex
	list []Notice
}

func (n *Notices) Add(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, notice)
}

// List returns collected notices, skipping those at level.
func (n *Notices) List(skipLevel string) []Notice {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notice
	for _, notice := range n.list {
		if notice.Level != skipLevel {
			out = append(out, notice)
		}
	}
	return out
}

// WithNotices attaches an empty collector to ctx.
func WithNotices(ctx context.Context) (context.Context, *Notices) {
	n := &Notices{}
	return context.WithValue(ctx, noticesKey{}, n), n
}

// NoticesFrom returns the collector in ctx, or nil.
func NoticesFrom(ctx context.Context) *Notices {
	n, _ := ctx.Value(noticesKey{}).(*Notices)
	return n
}

// CollectNotices gives every request a notice collector.
func CollectNotices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := WithNotices(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextNotifier records notices on the request's collector. Requests
// without a collector drop them.
type ContextNotifier struct{}

func (ContextNotifier) Notify(ctx context.Context, level, message string) {
	if n := NoticesFrom(ctx); n != nil {
		n.Add(Notice{Level: level, Message: message})
	}
}

// Respond writes data together with any notices raised for the request.
func Respond(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, Response{Data: data, Notices: NoticesFrom(r.Context()).List("")})
}

// RespondError writes err as an error body whose notice carries the remedy.
// Error-level notices already collected are folded into that notice.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := ErrInternalServer
	var target *AppError
	if errors.As(err, &target) {
		appErr = target
	}

	writeJSON(w, appErr.Code, Response{
		Error:   appErr.Message,
		Notice:  &Notice{Level: "error", Message: appErr.Message, Remedy: appErr.Remedy},
		Notices: NoticesFrom(r.Context()).List("error"),
	})
}
