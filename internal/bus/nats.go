// ABOUTME: NATS adapter implementing the Bus interface over nats.go.
// ABOUTME: The production transport; reply inboxes and wildcard semantics come from the server.

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS adapts a nats.go connection to the Bus interface.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NATSOptions configures the NATS connection.
type NATSOptions struct {
	// URL is the server address, e.g. "nats://localhost:4222".
	URL string
	// Name identifies this connection to the server (shows up in monitoring).
	Name string
	// ReconnectWait is the delay between reconnect attempts. Zero uses 2s.
	ReconnectWait time.Duration
	Logger        *slog.Logger
}

// ConnectNATS dials the NATS server. The connection reconnects forever
// on failure; the protocol layer's own recovery handles everything above
// the socket.
func ConnectNATS(opts NATSOptions) (*NATS, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "bus")
	}
	wait := opts.ReconnectWait
	if wait == 0 {
		wait = 2 * time.Second
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("bus disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("bus reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", opts.URL, err)
	}

	return &NATS{conn: conn, logger: logger}, nil
}

// Publish sends data fire-and-forget.
func (b *NATS) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

// Request sends data and waits for one reply or the context deadline.
func (b *NATS) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrTimeout),
			errors.Is(err, nats.ErrNoResponders),
			errors.Is(err, context.DeadlineExceeded):
			return nil, ErrTimeout
		case errors.Is(err, nats.ErrConnectionClosed):
			return nil, ErrClosed
		}
		return nil, err
	}
	return msg.Data, nil
}

// Subscribe registers handler for pattern. Each delivery is handed off to
// its own goroutine so one slow tool call cannot stall a heartbeat or
// handshake sharing the connection.
func (b *NATS) Subscribe(pattern string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		msg := &Msg{Subject: m.Subject, Reply: m.Reply, Data: m.Data}
		if m.Reply != "" {
			msg.respond = m.Respond
		}
		go handler(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %q: %w", pattern, err)
	}
	return sub, nil
}

// Close drains and closes the connection.
func (b *NATS) Close() {
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("draining bus connection", "error", err)
		b.conn.Close()
	}
}
