// ABOUTME: Validation and subject derivation tests for every wire message type.
// ABOUTME: Any payload missing a required field must fail validation before publish.

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolweave/toolweave/internal/subject"
)

func validConnect() *ConnectRequest {
	return &ConnectRequest{
		Name:        "r1",
		PID:         "123",
		HostIP:      "10.0.0.1",
		Hostname:    "h1",
		WorkspaceID: "w1",
		RuntimeType: RuntimeMCP,
	}
}

func TestConnectRequestValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ConnectRequest)
		wantField string
	}{
		{"missing name", func(m *ConnectRequest) { m.Name = "" }, "name"},
		{"missing pid", func(m *ConnectRequest) { m.PID = "" }, "pid"},
		{"missing hostIP", func(m *ConnectRequest) { m.HostIP = "" }, "hostIP"},
		{"missing hostname", func(m *ConnectRequest) { m.Hostname = "" }, "hostname"},
		{"missing workspaceId", func(m *ConnectRequest) { m.WorkspaceID = "" }, "workspaceId"},
		{"bad type", func(m *ConnectRequest) { m.RuntimeType = "GRPC" }, "type"},
		{"empty type", func(m *ConnectRequest) { m.RuntimeType = "" }, "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validConnect()
			tt.mutate(m)

			err := m.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	assert.NoError(t, validConnect().Validate())
}

func TestConnectRequestSubject(t *testing.T) {
	r := subject.Router{}
	m := validConnect()

	assert.Equal(t, "runtime.connect", m.Subject(r))
	assert.Equal(t, m.Subject(r), m.SubscribePattern(r))
}

func TestRuntimeTypeValid(t *testing.T) {
	assert.True(t, RuntimeMCP.Valid())
	assert.True(t, RuntimeEdge.Valid())
	assert.True(t, RuntimeToolset.Valid())
	assert.False(t, RuntimeType("mcp").Valid())
	assert.False(t, RuntimeType("").Valid())
}

func TestAgentCapabilitiesValidation(t *testing.T) {
	valid := &AgentCapabilities{
		Name:         "crawler",
		Capabilities: []Capability{{Name: "fetch_page"}},
	}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "toolsets.crawler", valid.Subject(subject.Router{}))

	assert.Error(t, (&AgentCapabilities{Capabilities: []Capability{}}).Validate())
	assert.Error(t, (&AgentCapabilities{Name: "crawler"}).Validate())
	assert.Error(t, (&AgentCapabilities{Name: "has space", Capabilities: []Capability{}}).Validate())

	// Empty but present capability list is valid: a toolset may have no tools yet.
	assert.NoError(t, (&AgentCapabilities{Name: "bare", Capabilities: []Capability{}}).Validate())
}

func TestRequestToolsetCapabilitiesValidation(t *testing.T) {
	m := &RequestToolsetCapabilities{ToolSetName: "crawler"}
	assert.NoError(t, m.Validate())

	r := subject.Router{}
	assert.Equal(t, "toolsets.request-toolset-capabilities.crawler", m.Subject(r))
	assert.Equal(t, m.Subject(r), m.SubscribePattern(r))

	assert.Error(t, (&RequestToolsetCapabilities{}).Validate())
}

func TestCallToolValidation(t *testing.T) {
	valid := func() *CallToolRequest {
		return &CallToolRequest{
			WorkspaceID: "w1",
			ToolID:      "t1",
			CallerID:    "c1",
			Arguments:   json.RawMessage(`{"q":1}`),
		}
	}
	assert.NoError(t, valid().Validate())

	tests := []struct {
		name      string
		mutate    func(*CallToolRequest)
		wantField string
	}{
		{"missing workspaceId", func(m *CallToolRequest) { m.WorkspaceID = "" }, "workspaceId"},
		{"missing toolId", func(m *CallToolRequest) { m.ToolID = "" }, "toolId"},
		{"missing arguments", func(m *CallToolRequest) { m.Arguments = nil }, "arguments"},
		{"workspace with dot", func(m *CallToolRequest) { m.WorkspaceID = "a.b" }, "workspaceId"},
		{"caller with wildcard", func(m *CallToolRequest) { m.CallerID = "*" }, "callerId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)

			err := m.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}

	// callerId and isTest are optional
	m := valid()
	m.CallerID = ""
	m.IsTest = false
	assert.NoError(t, m.Validate())
}

func TestCallToolSubject(t *testing.T) {
	r := subject.Router{}
	m := &CallToolRequest{
		WorkspaceID: "w1",
		ToolID:      "t1",
		CallerID:    "c1",
		Arguments:   json.RawMessage(`{}`),
	}

	assert.Equal(t, "w1.call-tool.t1.c1", m.Subject(r))
	assert.Equal(t, "w1.call-tool.t1.*", m.SubscribePattern(r))

	// Subject addressing one runtime instance equals the publish subject
	// when the caller segment names that runtime.
	assert.Equal(t, m.Subject(r), r.CallToolOnRuntime("w1", "t1", "c1"))

	m.CallerID = ""
	assert.Equal(t, "w1.call-tool.t1.anonymous", m.Subject(r))
}

func TestReconnectRuntimes(t *testing.T) {
	r := subject.Router{}

	m := &ReconnectRuntimes{}
	assert.NoError(t, m.Validate())
	assert.Equal(t, "reconnect-runtimes", m.Subject(r))
	assert.Equal(t, Publish, m.Shape())

	withReason := &ReconnectRuntimes{Reason: "workspace reset"}
	assert.NoError(t, withReason.Validate())
}
