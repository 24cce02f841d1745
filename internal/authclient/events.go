package authclient

import (
	"context"
)

// Messages shown to users for the events emitted by the transport.
const (
	MessageSessionExpired   = "Session expired. Please login again."
	MessageForbidden        = "You do not have permission to perform this action."
	MessageValidationFailed = "Validation error."
	MessageServerError      = "Server error. Please try again later."
)

// EventKind identifies what happened.
type EventKind int

const (
	// EventSessionExpired means the session ended and the user has to log in again.
	EventSessionExpired EventKind = iota + 1
	// EventForbidden is a 403 on an authenticated request.
	EventForbidden
	// EventValidationFailed is a 422; Message holds the server's explanation.
	EventValidationFailed
	// EventServerError is a 500.
	EventServerError
)

func (k EventKind) String() string {
	switch k {
	case EventSessionExpired:
		return "session_expired"
	case EventForbidden:
		return "forbidden"
	case EventValidationFailed:
		return "validation_failed"
	case EventServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Event is a user-facing notice raised by the transport.
type Event struct {
	Kind    EventKind
	Message string

	// Method and Path of the request that caused the event.
	Method string
	Path   string

	// Err is set for EventSessionExpired.
	Err error
}

// Notifier receives events from the transport. Implementations must not block
// for long; they run on the request's goroutine.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) {
	f(ctx, ev)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, Event) {}
