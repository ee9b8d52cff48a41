package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/memory"
)

func TestWriteAssignsIDWhenAbsent(t *testing.T) {
	s := New()
	entry := memory.Entry{Content: "remember this"}
	require.NoError(t, s.Write(context.Background(), entry))

	hits, err := s.Search(context.Background(), agent.Scope{}, "remember", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotEmpty(t, hits[0].ID)
}

func TestGetEnforcesScopeIsolation(t *testing.T) {
	s := New()
	scope := agent.Scope{OrgID: "org1", UserID: "user1"}
	require.NoError(t, s.Write(context.Background(), memory.Entry{ID: "mem_1", Scope: scope, Content: "secret"}))

	_, err := s.Get(context.Background(), agent.Scope{OrgID: "org2", UserID: "user1"}, "mem_1")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	e, err := s.Get(context.Background(), scope, "mem_1")
	require.NoError(t, err)
	assert.Equal(t, "secret", e.Content)
}

func TestSearchMatchesCaseInsensitiveSubstring(t *testing.T) {
	s := New()
	scope := agent.Scope{OrgID: "org1", UserID: "user1"}
	require.NoError(t, s.Write(context.Background(), memory.Entry{Scope: scope, Content: "User prefers Terse replies"}))

	hits, err := s.Search(context.Background(), scope, "terse", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	hits, err = s.Search(context.Background(), scope, "verbose", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchExcludesOutOfScopeEntries(t *testing.T) {
	s := New()
	scopeA := agent.Scope{OrgID: "org1", UserID: "user1"}
	scopeB := agent.Scope{OrgID: "org2", UserID: "user1"}
	require.NoError(t, s.Write(context.Background(), memory.Entry{Scope: scopeA, Content: "alpha notes"}))
	require.NoError(t, s.Write(context.Background(), memory.Entry{Scope: scopeB, Content: "alpha notes"}))

	hits, err := s.Search(context.Background(), scopeA, "alpha", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchRespectsLimit(t *testing.T) {
	s := New()
	scope := agent.Scope{OrgID: "org1", UserID: "user1"}
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(context.Background(), memory.Entry{Scope: scope, Content: "note"}))
	}

	hits, err := s.Search(context.Background(), scope, "note", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
