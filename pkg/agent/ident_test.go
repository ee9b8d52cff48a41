package agent

import "testing"

func TestScopeContains(t *testing.T) {
	parent := Scope{OrgID: "org1", UserID: "user1"}
	child := Scope{OrgID: "org1", UserID: "user1", ProjectID: "proj1"}

	if !parent.Contains(child) {
		t.Fatalf("expected org/user-level scope to contain a narrower project scope")
	}
	if !parent.Contains(parent) {
		t.Fatalf("expected a scope to contain itself")
	}
	if child.Contains(parent) {
		t.Fatalf("a project-scoped caller must not see org-wide data")
	}

	other := Scope{OrgID: "org2", UserID: "user1"}
	if parent.Contains(other) {
		t.Fatalf("different org must never be contained")
	}
}

func TestIdentValid(t *testing.T) {
	if (Ident("")).Valid() {
		t.Fatalf("empty ident must be invalid")
	}
	if !(Ident("agent_researcher")).Valid() {
		t.Fatalf("non-empty ident must be valid")
	}
}
