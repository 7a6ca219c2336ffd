// ABOUTME: Request/reply invocation of a tool on a specific runtime, addressed by subject.
// ABOUTME: Validates before any network I/O and maps missing replies to a timeout error.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/toolweave/toolweave/internal/bus"
	"github.com/toolweave/toolweave/internal/heartbeat"
	"github.com/toolweave/toolweave/internal/protocol"
	"github.com/toolweave/toolweave/internal/subject"
)

// DefaultTimeout is the default window for a tool-call reply.
const DefaultTimeout = 30 * time.Second

// CallRequest describes one tool invocation.
type CallRequest struct {
	WorkspaceID string
	ToolID      string
	// CallerID identifies the caller and forms the final subject segment.
	// Optional; defaults so anonymous callers still get a valid subject.
	CallerID string
	// TargetID, when set, addresses the call at one specific runtime: it
	// replaces the final subject segment and the target's heartbeat is
	// checked before the request leaves the process. Which side addresses
	// which is a deployment choice.
	TargetID  string
	Arguments json.RawMessage
	// IsTest marks test invocations. Defaults to false.
	IsTest bool
}

// Dispatcher issues tool calls over the bus. Each call gets its own reply
// correlation; any number may be in flight concurrently.
type Dispatcher struct {
	bus     bus.Bus
	router  subject.Router
	monitor *heartbeat.Monitor
	timeout time.Duration
	logger  *slog.Logger
}

// DispatcherParams configures a Dispatcher. Monitor is optional; without
// it no staleness check is performed before dispatch.
type DispatcherParams struct {
	Bus     bus.Bus
	Router  subject.Router
	Monitor *heartbeat.Monitor
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(p DispatcherParams) *Dispatcher {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default().With("component", "dispatch")
	}
	return &Dispatcher{
		bus:     p.Bus,
		router:  p.Router,
		monitor: p.Monitor,
		timeout: timeout,
		logger:  logger,
	}
}

// Call invokes a tool and waits for exactly one reply or the timeout.
// Validation failures surface before any network interaction; an addressed
// target with no fresh heartbeat surfaces StaleIdentityError; no reply
// within the window surfaces DispatchTimeoutError. A timeout means this
// target may be unreachable — other runtimes in the workspace may still be.
func (d *Dispatcher) Call(ctx context.Context, req CallRequest) (*protocol.CallToolReply, error) {
	segment := req.CallerID
	if req.TargetID != "" {
		segment = req.TargetID
	}

	msg := &protocol.CallToolRequest{
		WorkspaceID: req.WorkspaceID,
		ToolID:      req.ToolID,
		CallerID:    segment,
		Arguments:   req.Arguments,
		IsTest:      req.IsTest,
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	if req.TargetID != "" && d.monitor != nil {
		alive, err := d.monitor.Alive(ctx, req.TargetID)
		if err != nil {
			return nil, fmt.Errorf("checking target liveness: %w", err)
		}
		if !alive {
			return nil, &protocol.StaleIdentityError{IdentityID: req.TargetID}
		}
	}

	// Every call carries its own correlation id so the serving side can
	// recognize a redelivered request.
	callID := uuid.NewString()
	data, err := protocol.EncodeCorrelated(msg, callID)
	if err != nil {
		return nil, err
	}

	subj := msg.Subject(d.router)
	d.logger.Debug("dispatching tool call",
		"subject", subj,
		"call_id", callID,
		"tool_id", req.ToolID,
		"workspace_id", req.WorkspaceID,
		"is_test", req.IsTest,
	)

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.bus.Request(callCtx, subj, data)
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &protocol.DispatchTimeoutError{Subject: subj, Timeout: d.timeout}
		}
		return nil, fmt.Errorf("dispatching tool call: %w", err)
	}

	var reply protocol.CallToolReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding tool reply: %w", err)
	}
	return &reply, nil
}

// QueryCapabilities asks one toolset for its capabilities and waits for the
// reply or the timeout.
func (d *Dispatcher) QueryCapabilities(ctx context.Context, toolsetName string) (*protocol.AgentCapabilities, error) {
	msg := &protocol.RequestToolsetCapabilities{ToolSetName: toolsetName}
	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}

	subj := msg.Subject(d.router)
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	raw, err := d.bus.Request(callCtx, subj, data)
	if err != nil {
		if errors.Is(err, bus.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &protocol.DispatchTimeoutError{Subject: subj, Timeout: d.timeout}
		}
		return nil, fmt.Errorf("querying capabilities: %w", err)
	}

	var caps protocol.AgentCapabilities
	if err := json.Unmarshal(raw, &caps); err != nil {
		return nil, fmt.Errorf("decoding capabilities reply: %w", err)
	}
	return &caps, nil
}
