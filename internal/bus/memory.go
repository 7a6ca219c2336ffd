// ABOUTME: In-process bus implementation with full subject wildcard matching.
// ABOUTME: Preserves the transport semantics (at-most-once, request/reply, no persistence) for tests and single-node runs.

package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/toolweave/toolweave/internal/subject"
)

// Memory is an in-process Bus. Deliveries run on their own goroutines so a
// slow handler never blocks publishers or unrelated subscriptions.
type Memory struct {
	mu     sync.RWMutex
	subs   map[int64]*memorySub
	nextID int64
	closed bool
}

type memorySub struct {
	id      int64
	pattern string
	handler Handler
	bus     *Memory
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int64]*memorySub)}
}

// Publish delivers data to every matching subscription, each on its own
// goroutine. Publishing with no subscribers is not an error.
func (b *Memory) Publish(subj string, data []byte) error {
	return b.publish(subj, "", data)
}

func (b *Memory) publish(subj, reply string, data []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	var matched []*memorySub
	for _, s := range b.subs {
		if subject.Matches(s.pattern, subj) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		msg := &Msg{Subject: subj, Reply: reply, Data: data}
		if reply != "" {
			msg.respond = func(out []byte) error {
				return b.publish(reply, "", out)
			}
		}
		go s.handler(msg)
	}
	return nil
}

// Request publishes data with a unique reply inbox and waits for the first
// reply, the context, or ErrClosed.
func (b *Memory) Request(ctx context.Context, subj string, data []byte) ([]byte, error) {
	inbox := subject.Router{}.Inbox(uuid.New().String())

	replies := make(chan []byte, 1)
	sub, err := b.Subscribe(inbox, func(m *Msg) {
		select {
		case replies <- m.Data:
		default:
			// Exactly one reply is consumed per request; extras are dropped.
		}
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.publish(subj, inbox, data); err != nil {
		return nil, err
	}

	select {
	case data := <-replies:
		return data, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Subscribe registers handler for every subject matching pattern.
func (b *Memory) Subscribe(pattern string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	s := &memorySub{id: b.nextID, pattern: pattern, handler: handler, bus: b}
	b.subs[s.id] = s
	return s, nil
}

// Close drops all subscriptions. Subsequent operations return ErrClosed.
func (b *Memory) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[int64]*memorySub)
}
