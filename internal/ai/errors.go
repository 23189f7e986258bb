package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind classifies transport failures into what the user can do about them.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindAuthFailed         Kind = "auth_failed"
	KindBadRequest         Kind = "bad_request"
	KindServiceUnavailable Kind = "service_unavailable"
	KindNetworkError       Kind = "network_error"
	KindUnknown            Kind = "unknown"
)

// Error is a classified AI call failure. Message is short and safe to show;
// Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Remedy is the concrete next step offered to the user.
func (e *Error) Remedy() string {
	return remedies[e.Kind]
}

// HTTPStatus is the status an API handler answers with for this error.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindAuthFailed:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case KindNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var messages = map[Kind]string{
	KindRateLimited:        "Too many AI requests right now.",
	KindAuthFailed:         "The AI service rejected the API key.",
	KindBadRequest:         "The AI service could not process this request.",
	KindServiceUnavailable: "The AI service is temporarily unavailable.",
	KindNetworkError:       "Could not reach the AI service.",
	KindUnknown:            "Something went wrong while contacting the AI service.",
}

var remedies = map[Kind]string{
	KindRateLimited:        "Please wait a minute before trying again, or add your own API key for unlimited access.",
	KindAuthFailed:         "Check your API key in settings, or sign in again.",
	KindBadRequest:         "Please try again.",
	KindServiceUnavailable: "Please try again later.",
	KindNetworkError:       "Check your connection and try again.",
	KindUnknown:            "Please try again.",
}

// NewError builds an Error with the default user message for kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Message: messages[kind], Err: err}
}

// Classify maps an HTTP status and/or transport error to a Kind. A zero
// status means no response was received.
func Classify(status int, err error) *Error {
	if status == 0 {
		var netErr net.Error
		switch {
		case err == nil:
			return NewError(KindUnknown, nil)
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
			return NewError(KindNetworkError, err)
		default:
			return NewError(KindUnknown, err)
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimited, err)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return NewError(KindAuthFailed, err)
	case status == http.StatusBadRequest:
		// Gemini reports a bad key as 400 INVALID_ARGUMENT.
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "api key") {
			return NewError(KindAuthFailed, err)
		}
		return NewError(KindBadRequest, err)
	case status >= 500:
		return NewError(KindServiceUnavailable, err)
	case status >= 400:
		return NewError(KindBadRequest, err)
	default:
		return NewError(KindUnknown, err)
	}
}

// AsError returns err as a classified Error, classifying unknown errors.
func AsError(err error) *Error {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}
	return Classify(0, err)
}
