// Package toolrouter registers tools, enforces permission policy, and
// routes calls with per-call timeout and call/result event emission.
package toolrouter

import (
	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/tools"
)

// Policy evaluates whether a tool call is permitted under an AgentContext.
// Ordering is unambiguous: denylist > allowlist > risk-level
// default > allow.
type Policy struct{}

// Check returns an empty reason string when the call is allowed, or the
// deny reason otherwise.
func (Policy) Check(ctx agent.Context, name string, risk tools.RiskLevel) (allowed bool, reason string) {
	for _, d := range ctx.Denied {
		if d == name {
			return false, "tool denied by policy: " + name
		}
	}
	if ctx.Delegated != nil {
		for _, d := range ctx.Delegated.Deny {
			if d == name {
				return false, "tool denied by delegated policy: " + name
			}
		}
	}

	if len(ctx.Allowed) > 0 {
		found := false
		for _, a := range ctx.Allowed {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			return false, "tool not in allowlist: " + name
		}
	}
	if ctx.Delegated != nil && len(ctx.Delegated.Allow) > 0 {
		found := false
		for _, a := range ctx.Delegated.Allow {
			if a == name {
				found = true
				break
			}
		}
		if !found {
			return false, "tool not in delegated allowlist: " + name
		}
	}

	if risk == tools.RiskHigh && !explicitlyAllowed(ctx, name) {
		return false, "high-risk tool requires explicit allow: " + name
	}

	return true, ""
}

func explicitlyAllowed(ctx agent.Context, name string) bool {
	for _, a := range ctx.Allowed {
		if a == name {
			return true
		}
	}
	if ctx.Delegated != nil {
		for _, a := range ctx.Delegated.Allow {
			if a == name {
				return true
			}
		}
	}
	return false
}
