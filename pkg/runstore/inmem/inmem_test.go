package inmem

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/runstore"
)

func TestCreateRunRejectsCycles(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "run_a"}))
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "run_b", ParentRunID: "run_a"}))

	err := s.CreateRun(ctx, runstore.Record{ID: "run_a2", ParentRunID: "run_b"})
	require.NoError(t, err)

	err = s.CreateRun(ctx, runstore.Record{ID: "run_a", ParentRunID: "run_a2"})
	assert.ErrorIs(t, err, runstore.ErrCycle)
}

func TestLoadEnforcesScope(t *testing.T) {
	s := New()
	ctx := context.Background()
	scope := agent.Scope{OrgID: "org1", UserID: "user1"}
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "run_a", Scope: scope}))

	_, err := s.Load(ctx, agent.Scope{OrgID: "org2", UserID: "user1"}, "run_a")
	assert.ErrorIs(t, err, runstore.ErrNotFound)

	rec, err := s.Load(ctx, scope, "run_a")
	require.NoError(t, err)
	assert.Equal(t, "run_a", rec.ID)
}

func TestUpdateStatusRejectsWritesAfterTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "run_a"}))
	require.NoError(t, s.UpdateStatus(ctx, "run_a", runstore.StatusCompleted, "done", nil))

	err := s.UpdateStatus(ctx, "run_a", runstore.StatusFailed, nil, &runstore.RunError{Code: "X"})
	assert.Error(t, err)
}

// TestCompleteDependencyAtomicWakesExactlyOnce exercises invariant E3:
// under concurrent sibling completions, exactly one observes
// PendingCount == 0.
func TestCompleteDependencyAtomicWakesExactlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "parent"}))

	children := []string{"child_1", "child_2", "child_3"}
	for _, c := range children {
		require.NoError(t, s.CreateDependency(ctx, runstore.Dependency{
			ParentRunID: "parent", ChildRunID: c, ToolCallID: "call_1",
		}))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	zeroObservations := 0

	for _, c := range children {
		wg.Add(1)
		go func(childID string) {
			defer wg.Done()
			res, err := s.CompleteDependencyAtomic(ctx, childID, runstore.DependencyCompleted, "ok", "")
			require.NoError(t, err)
			if res.PendingCount == 0 {
				mu.Lock()
				zeroObservations++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 1, zeroObservations)

	deps, err := s.ListDependencies(ctx, "parent")
	require.NoError(t, err)
	for _, d := range deps {
		assert.Equal(t, runstore.DependencyCompleted, d.Status)
	}
}

func TestCompleteDependencyAtomicUnknownChildIsNotFound(t *testing.T) {
	s := New()
	_, err := s.CompleteDependencyAtomic(context.Background(), "nonexistent", runstore.DependencyCompleted, nil, "")
	assert.ErrorIs(t, err, runstore.ErrNotFound)
}

func TestParentChainWalksAncestry(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "grandparent"}))
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "parent", ParentRunID: "grandparent"}))
	require.NoError(t, s.CreateRun(ctx, runstore.Record{ID: "child", ParentRunID: "parent"}))

	chain, err := s.ParentChain(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"parent", "grandparent"}, chain)
}
