// ABOUTME: Tests for subject computation and wildcard pattern matching.
// ABOUTME: Validates namespace isolation and call-tool addressing equality.

package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouterSubjects(t *testing.T) {
	r := Router{}

	assert.Equal(t, "runtime.connect", r.Connect())
	assert.Equal(t, "toolsets.crawler", r.ToolsetCapabilities("crawler"))
	assert.Equal(t, "toolsets.request-toolset-capabilities.crawler", r.RequestToolsetCapabilities("crawler"))
	assert.Equal(t, "w1.call-tool.t1.c1", r.CallTool("w1", "t1", "c1"))
	assert.Equal(t, "w1.call-tool.t1.*", r.CallToolAnyCaller("w1", "t1"))
	assert.Equal(t, "*.call-tool.*.*", r.CallToolAll())
	assert.Equal(t, "reconnect-runtimes", r.ReconnectRuntimes())
	assert.Equal(t, "_inbox.req-1", r.Inbox("req-1"))
}

func TestRouterNamespaceIsolation(t *testing.T) {
	a := Router{Namespace: "deploy-a"}
	b := Router{Namespace: "deploy-b"}

	assert.Equal(t, "deploy-a.runtime.connect", a.Connect())
	assert.NotEqual(t, a.Connect(), b.Connect())
	assert.False(t, Matches(a.CallToolAll(), b.CallTool("w1", "t1", "c1")))
	assert.True(t, Matches(a.CallToolAll(), a.CallTool("w1", "t1", "c1")))
}

func TestCallToolDefaultCaller(t *testing.T) {
	r := Router{}
	assert.Equal(t, "w1.call-tool.t1.anonymous", r.CallTool("w1", "t1", ""))
}

// A runtime subscribed for one instance must receive exactly the calls
// addressed to it: publish and subscribe subjects are equal when the caller
// segment names the runtime.
func TestCallToolOnRuntimeMatchesPublishSubject(t *testing.T) {
	r := Router{Namespace: "prod"}

	sub := r.CallToolOnRuntime("w1", "t1", "run-42")
	pub := r.CallTool("w1", "t1", "run-42")
	assert.Equal(t, pub, sub)

	other := r.CallTool("w1", "t1", "run-43")
	assert.NotEqual(t, other, sub)
	assert.False(t, Matches(sub, other))
}

func TestMatches(t *testing.T) {
	tests := []struct {
		pattern string
		subject string
		want    bool
	}{
		{"w1.call-tool.t1.c1", "w1.call-tool.t1.c1", true},
		{"w1.call-tool.t1.*", "w1.call-tool.t1.c1", true},
		{"w1.call-tool.t1.*", "w1.call-tool.t1.c1.extra", false},
		{"w1.call-tool.*.c1", "w1.call-tool.t9.c1", true},
		{"*.call-tool.*.*", "w1.call-tool.t1.c1", true},
		{"*.call-tool.*.*", "w1.call-tool.t1", false},
		{"reconnect-runtimes", "reconnect-runtimes", true},
		{"reconnect-runtimes", "reconnect-runtimes.extra", false},
		{"toolsets.>", "toolsets.request-toolset-capabilities.crawler", true},
		{"toolsets.>", "toolsets", false},
		{"toolsets.*", "toolsets.crawler", true},
		{"w1.>", "w1.call-tool.t1.c1", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.subject))
		})
	}
}

func TestValidToken(t *testing.T) {
	assert.True(t, ValidToken("w1"))
	assert.True(t, ValidToken("tool-runtime"))
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("a.b"))
	assert.False(t, ValidToken("a b"))
	assert.False(t, ValidToken("*"))
	assert.False(t, ValidToken(">"))
}
