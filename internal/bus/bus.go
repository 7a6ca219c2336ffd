// ABOUTME: Transport abstraction over the publish/subscribe message bus.
// ABOUTME: Publish is fire-and-forget at-most-once; Request pairs exactly one reply or times out.

package bus

import (
	"context"
	"errors"
)

// ErrTimeout indicates a request got no reply within its window.
var ErrTimeout = errors.New("bus: request timed out")

// ErrClosed indicates the bus connection has been closed.
var ErrClosed = errors.New("bus: connection closed")

// Msg is a delivered message. Reply is non-empty for request-shaped
// deliveries and names the subject the handler should respond on.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte

	respond func(data []byte) error
}

// Respond sends a reply for a request-shaped delivery. It is a no-op error
// for messages that carry no reply subject.
func (m *Msg) Respond(data []byte) error {
	if m.respond == nil {
		return errors.New("bus: message has no reply subject")
	}
	return m.respond(data)
}

// Handler processes one delivered message. Handlers for distinct messages
// run concurrently; a slow handler must not delay unrelated traffic.
type Handler func(msg *Msg)

// Subscription is an active subject subscription.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport contract every component is built against. Subjects
// are `.`-delimited; subscribe patterns may contain `*` (one segment) and a
// trailing `>` (one or more segments).
type Bus interface {
	// Publish sends data on subject with no reply expected.
	Publish(subject string, data []byte) error

	// Request sends data on subject and waits for exactly one reply,
	// correlated by a unique per-request reply subject. Returns ErrTimeout
	// (or the context error) when no reply arrives in time.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Subscribe delivers every message matching pattern to handler.
	Subscribe(pattern string, handler Handler) (Subscription, error)

	// Close tears down the connection and all subscriptions.
	Close()
}
