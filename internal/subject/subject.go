// ABOUTME: Hierarchical subject addressing for the toolweave message bus.
// ABOUTME: Computes publish subjects and subscribe patterns from message fields.

package subject

import (
	"strings"
)

// Wildcard tokens understood by Matches and by the in-memory bus.
const (
	// TokenWildcard matches exactly one subject segment.
	TokenWildcard = "*"
	// TailWildcard matches one or more trailing segments.
	TailWildcard = ">"
)

// DefaultCallerID is used as the final call-tool segment when the caller
// does not identify itself.
const DefaultCallerID = "anonymous"

// Router computes subjects within a deployment namespace. The namespace is
// prefixed to every subject so isolated deployments (and tests) sharing a bus
// never cross-talk. The zero value routes in the root namespace.
type Router struct {
	Namespace string
}

func (r Router) join(segments ...string) string {
	s := strings.Join(segments, ".")
	if r.Namespace == "" {
		return s
	}
	return r.Namespace + "." + s
}

// Connect is the well-known subject the identity service answers connect
// requests on.
func (r Router) Connect() string {
	return r.join("runtime", "connect")
}

// ToolsetCapabilities is the subject a toolset announces its capabilities on.
func (r Router) ToolsetCapabilities(name string) string {
	return r.join("toolsets", name)
}

// RequestToolsetCapabilities is the subject used to query a toolset for its
// capabilities.
func (r Router) RequestToolsetCapabilities(name string) string {
	return r.join("toolsets", "request-toolset-capabilities", name)
}

// CallTool is the publish subject for invoking a tool. The final segment
// identifies the caller (or the targeted runtime, depending on which
// direction a deployment dispatches in) so concurrent invocations of the
// same tool never cross-talk.
func (r Router) CallTool(workspaceID, toolID, callerID string) string {
	if callerID == "" {
		callerID = DefaultCallerID
	}
	return r.join(workspaceID, "call-tool", toolID, callerID)
}

// CallToolOnRuntime is the subscribe subject a runtime uses so that a tool
// registered on several runtimes is invoked on exactly this instance. It is
// identical to the publish subject when the caller addresses this runtime.
func (r Router) CallToolOnRuntime(workspaceID, toolID, runtimeID string) string {
	return r.CallTool(workspaceID, toolID, runtimeID)
}

// CallToolAnyCaller subscribes to a tool regardless of caller. Serving this
// pattern executes the tool for every caller in the workspace.
func (r Router) CallToolAnyCaller(workspaceID, toolID string) string {
	return r.join(workspaceID, "call-tool", toolID, TokenWildcard)
}

// CallToolAll matches every tool call in every workspace. Monitoring and
// fan-out only: it must never back the at-most-one-execution path.
func (r Router) CallToolAll() string {
	return r.join(TokenWildcard, "call-tool", TokenWildcard, TokenWildcard)
}

// ReconnectRuntimes is the well-known broadcast subject for reset-driven
// reconnect instructions. No wildcards.
func (r Router) ReconnectRuntimes() string {
	return r.join("reconnect-runtimes")
}

// Inbox returns a unique reply subject for a single request/reply exchange.
func (r Router) Inbox(id string) string {
	return r.join("_inbox", id)
}

// ValidToken reports whether s may be used as a single subject segment.
func ValidToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, ".* >\t\n")
}

// Matches reports whether subject matches pattern. Patterns may contain
// "*" for exactly one segment and a trailing ">" for one or more segments.
// Subjects themselves must not contain wildcards.
func Matches(pattern, subj string) bool {
	if pattern == subj {
		return true
	}

	pt := strings.Split(pattern, ".")
	st := strings.Split(subj, ".")

	for i, p := range pt {
		if p == TailWildcard {
			// ">" must be the last pattern token and match at least one segment
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != TokenWildcard && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
