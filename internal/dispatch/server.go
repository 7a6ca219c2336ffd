// ABOUTME: Serving side of the dispatcher: per-runtime tool subscriptions and capability exchange.
// ABOUTME: A fully-qualified subject guarantees a tool runs on exactly the addressed instance.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/subject"
)

// BoundIdentity is the identity a server answers for, fixed at handshake.
type BoundIdentity struct {
	ID          string
	Name        string
	WorkspaceID string
}

// ToolHandler executes one tool call and returns the result payload.
type ToolHandler func(ctx context.Context, req *protocol.CallToolRequest) (json.RawMessage, error)

// Server subscribes a bound identity's tool subjects and answers calls.
// One Server exists per binding; a rebind after reset builds a new one.
type Server struct {
	bus      bus.Bus
	router   subject.Router
	registry *protocol.Registry
	bound    BoundIdentity
	logger   *slog.Logger

	// redelivered requests are recognized by correlation id and dropped.
	redeliveries *redeliveryFilter

	mu   sync.Mutex
	subs []bus.Subscription
	caps []protocol.Capability
}

// ServerParams configures a Server.
type ServerParams struct {
	Bus      bus.Bus
	Router   subject.Router
	Registry *protocol.Registry
	Bound    BoundIdentity
	Logger   *slog.Logger
}

// NewServer creates a serving endpoint for a bound identity.
func NewServer(p ServerParams) *Server {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatch-server")
	}
	return &Server{
		bus:          p.Bus,
		router:       p.Router,
		registry:     p.Registry,
		bound:        p.Bound,
		logger:       logger,
		redeliveries: newRedeliveryFilter(),
	}
}

// Bound returns the identity this server answers for.
func (s *Server) Bound() BoundIdentity {
	return s.bound
}

// ServeTool subscribes the fully-qualified subject for this instance, so a
// tool registered on several runtimes executes on exactly the addressed
// one. The subscription carries no wildcards.
func (s *Server) ServeTool(toolID string, handler ToolHandler) error {
	subj := s.router.CallToolOnRuntime(s.bound.WorkspaceID, toolID, s.bound.ID)

	sub, err := s.bus.Subscribe(subj, func(m *bus.Msg) {
		s.handleCall(toolID, handler, m)
	})
	if err != nil {
		return fmt.Errorf("subscribing tool %q: %w", toolID, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.caps = append(s.caps, protocol.Capability{Name: toolID})
	s.mu.Unlock()

	s.logger.Info("tool subscribed", "tool_id", toolID, "subject", subj)
	return nil
}

// WatchCalls subscribes the all-workspaces wildcard pattern. Monitoring and
// fan-out only — observers must never respond, or they would break the
// one-reply contract of the addressed runtime.
func (s *Server) WatchCalls(observer func(*protocol.CallToolRequest)) (bus.Subscription, error) {
	return s.bus.Subscribe(s.router.CallToolAll(), func(m *bus.Msg) {
		msg, err := s.registry.Decode(m.Data)
		if err != nil {
			return
		}
		if call, ok := msg.(*protocol.CallToolRequest); ok {
			observer(call)
		}
	})
}

func (s *Server) handleCall(toolID string, handler ToolHandler, m *bus.Msg) {
	// Drop redeliveries before decoding the payload. The first delivery
	// already answered (or will); a second reply has no one listening.
	var env protocol.Envelope
	if err := json.Unmarshal(m.Data, &env); err == nil && env.CorrelationID != "" {
		if s.redeliveries.duplicate(env.CorrelationID) {
			s.logger.Debug("dropping redelivered tool call", "tool_id", toolID, "call_id", env.CorrelationID)
			return
		}
	}

	msg, err := s.registry.Decode(m.Data)
	if err != nil {
		s.logger.Warn("dropping undecodable tool call", "tool_id", toolID, "error", err)
		s.respond(m, &protocol.CallToolReply{Error: err.Error()})
		return
	}

	call, ok := msg.(*protocol.CallToolRequest)
	if !ok {
		s.respond(m, &protocol.CallToolReply{Error: "unexpected message type " + msg.Type()})
		return
	}

	// Tenancy guard: a subject can only match our workspace, but the
	// payload travels separately and must agree.
	if call.WorkspaceID != s.bound.WorkspaceID {
		s.respond(m, &protocol.CallToolReply{Error: "workspace mismatch"})
		return
	}

	result, err := handler(context.Background(), call)
	if err != nil {
		s.logger.Warn("tool handler failed", "tool_id", toolID, "error", err)
		s.respond(m, &protocol.CallToolReply{Error: err.Error()})
		return
	}
	s.respond(m, &protocol.CallToolReply{Result: result})
}

func (s *Server) respond(m *bus.Msg, reply *protocol.CallToolReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("encoding tool reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		s.logger.Warn("sending tool reply", "error", err)
	}
}

// AnnounceCapabilities broadcasts the served tools on the toolset subject.
// Fire-and-forget; listeners that miss it can query instead.
func (s *Server) AnnounceCapabilities() error {
	s.mu.Lock()
	caps := make([]protocol.Capability, len(s.caps))
	copy(caps, s.caps)
	s.mu.Unlock()

	msg := &protocol.AgentCapabilities{Name: s.bound.Name, Capabilities: caps}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return s.bus.Publish(msg.Subject(s.router), data)
}

// ServeCapabilities answers capability queries addressed to this identity's
// name.
func (s *Server) ServeCapabilities() error {
	pattern := s.router.RequestToolsetCapabilities(s.bound.Name)

	sub, err := s.bus.Subscribe(pattern, func(m *bus.Msg) {
		s.mu.Lock()
		caps := make([]protocol.Capability, len(s.caps))
		copy(caps, s.caps)
		s.mu.Unlock()

		reply := protocol.AgentCapabilities{Name: s.bound.Name, Capabilities: caps}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("encoding capabilities reply", "error", err)
			return
		}
		if err := m.Respond(data); err != nil {
			s.logger.Warn("sending capabilities reply", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing capability queries: %w", err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return nil
}

// Close drops every subscription. The identity remains in the database;
// only the live binding ends.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribing", "error", err)
		}
	}
	s.subs = nil
}
