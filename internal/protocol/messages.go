// ABOUTME: Wire message types for connect, capabilities, tool calls, and reconnect.
// ABOUTME: Each type declares its tag, shape, validation rule, and subject derivation.

package protocol

import (
	"encoding/json"

	"github.com/toolweave/toolweave/internal/subject"
)

// Wire type tags. Globally unique; the registry rejects duplicates.
const (
	TypeConnect                    = "connect"
	TypeAgentCapabilities          = "agent-capabilities"
	TypeRequestToolsetCapabilities = "request-toolset-capabilities"
	TypeCallTool                   = "call-tool"
	TypeReconnectRuntimes          = "reconnect-runtimes"
)

// RuntimeType identifies what kind of endpoint is connecting.
type RuntimeType string

const (
	// RuntimeMCP hosts tools backed by MCP servers.
	RuntimeMCP RuntimeType = "MCP"
	// RuntimeEdge hosts tools running at the edge.
	RuntimeEdge RuntimeType = "EDGE"
	// RuntimeToolset is an agent-side connector that issues tool calls.
	RuntimeToolset RuntimeType = "TOOLSET"
)

// Valid reports whether t is a recognized endpoint type.
func (t RuntimeType) Valid() bool {
	switch t {
	case RuntimeMCP, RuntimeEdge, RuntimeToolset:
		return true
	}
	return false
}

// ConnectRequest is sent by a runtime or toolset on startup (and on every
// reconnect) to resolve its durable identity. Connection metadata identifies
// the physical process; the workspace id is the tenancy key.
type ConnectRequest struct {
	Name        string      `json:"name"`
	PID         string      `json:"pid"`
	HostIP      string      `json:"hostIP"`
	Hostname    string      `json:"hostname"`
	WorkspaceID string      `json:"workspaceId"`
	RuntimeType RuntimeType `json:"type"`
}

func (m *ConnectRequest) Type() string { return TypeConnect }
func (m *ConnectRequest) Shape() Shape { return Request }

func (m *ConnectRequest) Validate() error {
	switch {
	case m.Name == "":
		return missingField("name")
	case m.PID == "":
		return missingField("pid")
	case m.HostIP == "":
		return missingField("hostIP")
	case m.Hostname == "":
		return missingField("hostname")
	case m.WorkspaceID == "":
		return missingField("workspaceId")
	}
	if !m.RuntimeType.Valid() {
		return &ValidationError{Field: "type", Reason: "must be one of MCP, EDGE, TOOLSET"}
	}
	return nil
}

func (m *ConnectRequest) Subject(r subject.Router) string { return r.Connect() }

// SubscribePattern is the subject the identity service listens on.
func (m *ConnectRequest) SubscribePattern(r subject.Router) string { return r.Connect() }

// ConnectReply is the handshake response: the resolved identity plus
// server-assigned configuration. Replies travel on the per-request reply
// subject, so they are not registered envelope types.
type ConnectReply struct {
	IdentityID          string `json:"identityId,omitempty"`
	Name                string `json:"name,omitempty"`
	WorkspaceID         string `json:"workspaceId,omitempty"`
	Status              string `json:"status,omitempty"`
	HeartbeatIntervalMS int64  `json:"heartbeatIntervalMs,omitempty"`
	Error               string `json:"error,omitempty"`
}

// Capability describes one tool a toolset or runtime exposes.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AgentCapabilities is a broadcast announcement of a toolset's tools.
type AgentCapabilities struct {
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
}

func (m *AgentCapabilities) Type() string { return TypeAgentCapabilities }
func (m *AgentCapabilities) Shape() Shape { return Publish }

func (m *AgentCapabilities) Validate() error {
	if m.Name == "" {
		return missingField("name")
	}
	if m.Capabilities == nil {
		return missingField("capabilities")
	}
	if !subject.ValidToken(m.Name) {
		return &ValidationError{Field: "name", Reason: "must be a valid subject segment"}
	}
	return nil
}

func (m *AgentCapabilities) Subject(r subject.Router) string {
	return r.ToolsetCapabilities(m.Name)
}

// RequestToolsetCapabilities queries one toolset for its capabilities.
type RequestToolsetCapabilities struct {
	ToolSetName string `json:"toolSetName"`
}

func (m *RequestToolsetCapabilities) Type() string { return TypeRequestToolsetCapabilities }
func (m *RequestToolsetCapabilities) Shape() Shape { return Request }

func (m *RequestToolsetCapabilities) Validate() error {
	if m.ToolSetName == "" {
		return missingField("toolSetName")
	}
	return nil
}

func (m *RequestToolsetCapabilities) Subject(r subject.Router) string {
	return r.RequestToolsetCapabilities(m.ToolSetName)
}

// SubscribePattern is the per-toolset subject the owning toolset answers on.
func (m *RequestToolsetCapabilities) SubscribePattern(r subject.Router) string {
	return r.RequestToolsetCapabilities(m.ToolSetName)
}

// CallToolRequest invokes one tool within a workspace. The caller id is
// embedded in the subject so concurrent calls to the same tool never
// cross-wire; it defaults when absent. IsTest defaults to false.
type CallToolRequest struct {
	WorkspaceID string          `json:"workspaceId"`
	ToolID      string          `json:"toolId"`
	CallerID    string          `json:"callerId,omitempty"`
	Arguments   json.RawMessage `json:"arguments"`
	IsTest      bool            `json:"isTest,omitempty"`
}

func (m *CallToolRequest) Type() string { return TypeCallTool }
func (m *CallToolRequest) Shape() Shape { return Request }

func (m *CallToolRequest) Validate() error {
	switch {
	case m.WorkspaceID == "":
		return missingField("workspaceId")
	case m.ToolID == "":
		return missingField("toolId")
	case len(m.Arguments) == 0:
		return missingField("arguments")
	}
	if !subject.ValidToken(m.WorkspaceID) {
		return &ValidationError{Field: "workspaceId", Reason: "must be a valid subject segment"}
	}
	if !subject.ValidToken(m.ToolID) {
		return &ValidationError{Field: "toolId", Reason: "must be a valid subject segment"}
	}
	if m.CallerID != "" && !subject.ValidToken(m.CallerID) {
		return &ValidationError{Field: "callerId", Reason: "must be a valid subject segment"}
	}
	return nil
}

func (m *CallToolRequest) Subject(r subject.Router) string {
	return r.CallTool(m.WorkspaceID, m.ToolID, m.CallerID)
}

// SubscribePattern is the broad per-tool pattern ("this tool, any caller").
// Runtimes serving exactly one instance subscribe the fully-qualified
// subject instead (Router.CallToolOnRuntime).
func (m *CallToolRequest) SubscribePattern(r subject.Router) string {
	return r.CallToolAnyCaller(m.WorkspaceID, m.ToolID)
}

// CallToolReply carries the tool result or a tool-level error string.
type CallToolReply struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ReconnectRuntimes instructs every live connection to tear down its bound
// identity and re-run the connect handshake. Broadcast, best-effort, no
// reply channel; the heartbeat monitor backstops missed deliveries.
type ReconnectRuntimes struct {
	Reason string `json:"reason,omitempty"`
}

func (m *ReconnectRuntimes) Type() string { return TypeReconnectRuntimes }
func (m *ReconnectRuntimes) Shape() Shape { return Publish }

// Validate always succeeds: reconnect-runtimes has no required fields.
func (m *ReconnectRuntimes) Validate() error { return nil }

func (m *ReconnectRuntimes) Subject(r subject.Router) string {
	return r.ReconnectRuntimes()
}
