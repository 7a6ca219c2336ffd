// ABOUTME: Identity/handshake service resolving connecting processes to durable workspace-scoped identities.
// ABOUTME: Answers connect requests on the bus and notifies registered observers once per handshake.

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/store"
	"github.com/toolweave/toolweave/internal/subject"
)

// WorkspaceDefault is the sentinel workspace id a connection declares to
// bind against whatever workspace is currently the default. Reconnecting
// runtimes use it after a reset, when their previous workspace is gone.
const WorkspaceDefault = "default"

// Handshake is the transient record passed to observers: the candidate
// connection metadata plus the resolved identity. It is not persisted.
type Handshake struct {
	Meta     store.ConnectionMeta
	Identity *store.Identity
}

// HandshakeFunc observes completed handshakes.
type HandshakeFunc func(Handshake)

// Service resolves connect requests to persistent identities.
type Service struct {
	store             store.Store
	bus               bus.Bus
	router            subject.Router
	registry          *protocol.Registry
	heartbeatInterval time.Duration
	logger            *slog.Logger

	mu        sync.RWMutex
	observers map[protocol.RuntimeType][]HandshakeFunc
	sub       bus.Subscription
}

// ServiceParams configures a Service.
type ServiceParams struct {
	Store             store.Store
	Bus               bus.Bus
	Router            subject.Router
	Registry          *protocol.Registry
	HeartbeatInterval time.Duration
	Logger            *slog.Logger
}

// NewService creates the handshake service.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "identity")
	}
	interval := p.HeartbeatInterval
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Service{
		store:             p.Store,
		bus:               p.Bus,
		router:            p.Router,
		registry:          p.Registry,
		heartbeatInterval: interval,
		logger:            logger,
		observers:         make(map[protocol.RuntimeType][]HandshakeFunc),
	}
}

// OnHandshake registers a callback invoked exactly once per successful
// handshake of the given kind. Callbacks run in registration order; a
// panicking callback is isolated and logged so delivery to later callbacks
// is never blocked.
func (s *Service) OnHandshake(kind protocol.RuntimeType, fn HandshakeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[kind] = append(s.observers[kind], fn)
}

// Connect validates the request, resolves (or creates) the identity for
// the declared workspace, marks it ACTIVE, stamps lastSeenAt, and notifies
// observers. Validation failures surface before any store access.
//
// A declared workspace of "default" — or one that no longer exists, which
// is what a straggler sees after a reset — resolves against the current
// default workspace.
func (s *Service) Connect(ctx context.Context, req *protocol.ConnectRequest) (*store.Identity, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ws, err := s.resolveWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	meta := store.ConnectionMeta{
		ProcessID: req.PID,
		HostIP:    req.HostIP,
		Hostname:  req.Hostname,
	}
	ident, err := s.store.FindOrCreateIdentity(ctx, ws.ID, req.Name, string(req.RuntimeType), meta)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}

	s.logger.Info("handshake completed",
		"identity_id", ident.ID,
		"name", ident.Name,
		"kind", ident.Kind,
		"workspace_id", ident.WorkspaceID,
		"pid", meta.ProcessID,
		"host", meta.Hostname,
	)

	s.notify(req.RuntimeType, Handshake{Meta: meta, Identity: ident})
	return ident, nil
}

func (s *Service) resolveWorkspace(ctx context.Context, declared string) (*store.Workspace, error) {
	if declared != WorkspaceDefault {
		ws, err := s.store.GetWorkspace(ctx, declared)
		if err == nil {
			return ws, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up workspace: %w", err)
		}
		s.logger.Info("declared workspace gone, binding to default", "declared", declared)
	}

	ws, err := s.store.DefaultWorkspace(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving default workspace: %w", err)
	}
	return ws, nil
}

func (s *Service) notify(kind protocol.RuntimeType, h Handshake) {
	s.mu.RLock()
	callbacks := make([]HandshakeFunc, len(s.observers[kind]))
	copy(callbacks, s.observers[kind])
	s.mu.RUnlock()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("handshake observer panicked",
						"kind", string(kind),
						"identity_id", h.Identity.ID,
						"panic", r,
					)
				}
			}()
			fn(h)
		}()
	}
}

// Start subscribes the service to the connect subject and answers every
// request. Validation and resolution failures are reported to the caller
// in the reply, never dropped.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.bus.Subscribe(s.router.Connect(), func(m *bus.Msg) {
		s.handleConnect(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("subscribing to connect subject: %w", err)
	}
	s.sub = sub
	s.logger.Info("identity service listening", "subject", s.router.Connect())
	return nil
}

// Stop unsubscribes from the connect subject.
func (s *Service) Stop() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("unsubscribing connect handler", "error", err)
		}
	}
}

func (s *Service) handleConnect(ctx context.Context, m *bus.Msg) {
	msg, err := s.registry.Decode(m.Data)
	if err != nil {
		// Decode failures are fatal for this message only.
		s.logger.Warn("dropping undecodable connect request", "error", err)
		s.reply(m, &protocol.ConnectReply{Error: err.Error()})
		return
	}

	req, ok := msg.(*protocol.ConnectRequest)
	if !ok {
		s.logger.Warn("unexpected message on connect subject", "type", msg.Type())
		s.reply(m, &protocol.ConnectReply{Error: "unexpected message type " + msg.Type()})
		return
	}

	ident, err := s.Connect(ctx, req)
	if err != nil {
		s.reply(m, &protocol.ConnectReply{Error: err.Error()})
		return
	}

	s.reply(m, &protocol.ConnectReply{
		IdentityID:          ident.ID,
		Name:                ident.Name,
		WorkspaceID:         ident.WorkspaceID,
		Status:              string(ident.Status),
		HeartbeatIntervalMS: s.heartbeatInterval.Milliseconds(),
	})
}

func (s *Service) reply(m *bus.Msg, r *protocol.ConnectReply) {
	data, err := json.Marshal(r)
	if err != nil {
		s.logger.Error("encoding connect reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		s.logger.Warn("sending connect reply", "error", err)
	}
}
