// ABOUTME: Typed message envelope and the process-wide message type registry.
// ABOUTME: Maps wire type tags to decoders so raw bus payloads become typed messages.

package protocol

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/toolweave/toolweave/internal/subject"
)

// Shape distinguishes fire-and-forget publishes from request/reply exchanges.
type Shape int

const (
	// Publish messages expect no reply (broadcasts, capability announcements).
	Publish Shape = iota
	// Request messages expect exactly one reply per request, or a timeout.
	Request
)

// Message is implemented by every wire message type. Validate must hold
// before a message may be sent or accepted; Subject derives the publish
// subject from payload fields.
type Message interface {
	Type() string
	Shape() Shape
	Validate() error
	Subject(r subject.Router) string
}

// RequestMessage is implemented by request-shaped types, which additionally
// declare the pattern a server-side handler listens on.
type RequestMessage interface {
	Message
	SubscribePattern(r subject.Router) string
}

// Envelope is the wire form of a message: a type tag discriminating the
// payload, an optional correlation id for request/reply pairing, and the
// typed payload itself. The subject is derived, never stored.
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Registry maps type tags to payload decoders. It is populated once at
// process start; lookups of unregistered tags are a hard decode failure.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]func() Message
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]func() Message)}
}

// Register associates a type tag with a factory for its payload type.
// Registration order is irrelevant; registering the same tag twice returns
// ErrDuplicateType.
func (g *Registry) Register(tag string, factory func() Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.decoders[tag]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateType, tag)
	}
	g.decoders[tag] = factory
	return nil
}

// Known reports whether a tag is registered.
func (g *Registry) Known(tag string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.decoders[tag]
	return ok
}

// Decode parses a raw envelope into its typed message and validates it.
// An unregistered tag yields UnknownTypeError.
func (g *Registry) Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	g.mu.RLock()
	factory, ok := g.decoders[env.Type]
	g.mu.RUnlock()
	if !ok {
		return nil, &UnknownTypeError{Tag: env.Type}
	}

	msg := factory()
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("decoding %q payload: %w", env.Type, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode validates a message and wraps it in its envelope. Invalid messages
// are never placed on the wire.
func Encode(msg Message) ([]byte, error) {
	return EncodeCorrelated(msg, "")
}

// EncodeCorrelated is Encode with an explicit correlation id for
// protocol-assigned request/reply pairing.
func EncodeCorrelated(msg Message, correlationID string) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %q payload: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{
		Type:          msg.Type(),
		CorrelationID: correlationID,
		Payload:       payload,
	})
}

// NewDefaultRegistry returns a registry with every known message type
// registered. Called once at process start.
func NewDefaultRegistry() *Registry {
	g := NewRegistry()
	for tag, factory := range map[string]func() Message{
		TypeConnect:                    func() Message { return &ConnectRequest{} },
		TypeAgentCapabilities:          func() Message { return &AgentCapabilities{} },
		TypeRequestToolsetCapabilities: func() Message { return &RequestToolsetCapabilities{} },
		TypeCallTool:                   func() Message { return &CallToolRequest{} },
		TypeReconnectRuntimes:          func() Message { return &ReconnectRuntimes{} },
	} {
		// The map is literal and tag-unique, so Register cannot fail here.
		if err := g.Register(tag, factory); err != nil {
			panic(err)
		}
	}
	return g
}
