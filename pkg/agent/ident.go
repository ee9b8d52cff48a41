// Package agent defines identifiers and scoping types shared across the
// runtime core.
package agent

import "fmt"

// Ident is an agent identifier, e.g. "agent_researcher" or "agent_dispatcher".
type Ident string

// String implements fmt.Stringer.
func (i Ident) String() string { return string(i) }

// Valid reports whether the identifier is non-empty.
func (i Ident) Valid() bool { return i != "" }

// Scope isolates all reads and writes to an (org, user, optional project)
// triple. Cross-scope access must be rejected as NotFound, never Forbidden,
// to avoid leaking existence of out-of-scope entities.
type Scope struct {
	OrgID     string
	UserID    string
	ProjectID string
}

// Contains reports whether other is the same scope or a narrower one nested
// under this scope (same org/user, project unspecified on the parent).
func (s Scope) Contains(other Scope) bool {
	if s.OrgID != other.OrgID || s.UserID != other.UserID {
		return false
	}
	if s.ProjectID == "" {
		return true
	}
	return s.ProjectID == other.ProjectID
}

// String renders a stable key usable for logging and map keys.
func (s Scope) String() string {
	if s.ProjectID == "" {
		return fmt.Sprintf("%s/%s", s.OrgID, s.UserID)
	}
	return fmt.Sprintf("%s/%s/%s", s.OrgID, s.UserID, s.ProjectID)
}

// DelegatedPermissions carries allow/deny tool lists inherited from a parent
// run into a child AgentContext.
type DelegatedPermissions struct {
	Allow []string
	Deny  []string
}

// Context is the AgentContext: the permission and scoping envelope an
// AgentRunner step executes under.
type Context struct {
	Scope      Scope
	AgentID    Ident
	Allowed    []string
	Denied     []string
	Delegated  *DelegatedPermissions
	SessionKey string
}
