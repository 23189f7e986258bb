package ai

import "context"

// Request is a single instruction for the model.
type Request struct {
	Instruction  string `json:"instruction"`
	ResponseMIME string `json:"response_mime,omitempty"`
}

// Transport submits an instruction and returns the model's text payload.
// Failures are returned as *Error.
type Transport interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (string, error)

func (f TransportFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Route names which transport served a call.
type Route string

const (
	// RouteDirect uses the caller's own key and is not metered.
	RouteDirect Route = "direct"
	// RouteProxied uses the shared key and is metered.
	RouteProxied Route = "proxied"
)
