// ABOUTME: Tests for the message envelope and type registry.
// ABOUTME: Validates duplicate-tag rejection, unknown-type decode failures, and encode gating.

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicateTags(t *testing.T) {
	g := NewRegistry()

	err := g.Register("connect", func() Message { return &ConnectRequest{} })
	require.NoError(t, err)

	err = g.Register("connect", func() Message { return &ConnectRequest{} })
	assert.ErrorIs(t, err, ErrDuplicateType)
}

func TestRegistryDistinctTagsNeverCollide(t *testing.T) {
	g := NewDefaultRegistry()

	for _, tag := range []string{
		TypeConnect,
		TypeAgentCapabilities,
		TypeRequestToolsetCapabilities,
		TypeCallTool,
		TypeReconnectRuntimes,
	} {
		assert.True(t, g.Known(tag), "tag %q should be registered", tag)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	g := NewDefaultRegistry()

	data, err := json.Marshal(Envelope{Type: "no-such-type", Payload: []byte(`{}`)})
	require.NoError(t, err)

	_, err = g.Decode(data)

	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "no-such-type", unknown.Tag)
}

func TestDecodeRoundTrip(t *testing.T) {
	g := NewDefaultRegistry()

	original := &CallToolRequest{
		WorkspaceID: "w1",
		ToolID:      "t1",
		CallerID:    "c1",
		Arguments:   json.RawMessage(`{"query":"weather"}`),
	}
	data, err := EncodeCorrelated(original, "req-1")
	require.NoError(t, err)

	msg, err := g.Decode(data)
	require.NoError(t, err)

	decoded, ok := msg.(*CallToolRequest)
	require.True(t, ok)
	assert.Equal(t, original.WorkspaceID, decoded.WorkspaceID)
	assert.Equal(t, original.ToolID, decoded.ToolID)
	assert.Equal(t, original.CallerID, decoded.CallerID)
	assert.JSONEq(t, string(original.Arguments), string(decoded.Arguments))
	assert.False(t, decoded.IsTest)
}

func TestEncodeRejectsInvalidMessage(t *testing.T) {
	// Missing workspaceId: the message must never reach the wire.
	_, err := Encode(&CallToolRequest{ToolID: "t1", Arguments: json.RawMessage(`{}`)})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "workspaceId", verr.Field)
}

func TestDecodeRejectsInvalidPayload(t *testing.T) {
	g := NewDefaultRegistry()

	data, err := json.Marshal(Envelope{
		Type:    TypeConnect,
		Payload: []byte(`{"name":"r1"}`),
	})
	require.NoError(t, err)

	_, err = g.Decode(data)

	var verr *ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestDecodeMalformedEnvelope(t *testing.T) {
	g := NewDefaultRegistry()

	_, err := g.Decode([]byte(`{not json`))
	assert.Error(t, err)

	var unknown *UnknownTypeError
	assert.False(t, errors.As(err, &unknown))
}
