package fsjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
)

func TestSaveAndLoadLatestRoundTrips(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	cp := checkpoint.Checkpoint{
		RunID: "run_a", AgentID: "agent_1", StepNumber: 2,
		Messages: []model.Message{{Role: model.RoleUser, Text: "hello"}},
	}
	require.NoError(t, s.SaveLatest(ctx, cp))

	loaded, err := s.LoadLatest(ctx, "run_a")
	require.NoError(t, err)
	assert.Equal(t, cp.StepNumber, loaded.StepNumber)
	assert.Equal(t, "hello", loaded.Messages[0].Text)
}

func TestLoadLatestMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.LoadLatest(context.Background(), "absent")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestSaveHistoricalRejectsMalformedStepID(t *testing.T) {
	s := New(t.TempDir())
	err := s.SaveHistorical(context.Background(), checkpoint.Checkpoint{RunID: "run_a"}, "not-a-step-id")
	assert.Error(t, err)
}

func TestAppendToolResultsRequiresExistingCheckpoint(t *testing.T) {
	s := New(t.TempDir())
	err := s.AppendToolResults(context.Background(), "run_a", "agent_1", []model.Message{{Role: model.RoleTool, Text: "result"}})
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestAppendToolResultsAppendsInOrder(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	cp := checkpoint.Checkpoint{
		RunID: "run_a",
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "do the thing"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_1", Name: "dispatch_subtasks"}}},
		},
	}
	require.NoError(t, s.SaveLatest(ctx, cp))

	toolResult := model.Message{Role: model.RoleTool, ToolCallID: "call_1", Text: `{"child_results":[]}`}
	require.NoError(t, s.AppendToolResults(ctx, "run_a", "agent_1", []model.Message{toolResult}))

	loaded, err := s.LoadLatest(ctx, "run_a")
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, toolResult.Text, loaded.Messages[2].Text)
}

func TestListHistoricalReturnsSortedStepIDs(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	cp := checkpoint.Checkpoint{RunID: "run_a"}
	require.NoError(t, s.SaveHistorical(ctx, cp, "step_0002"))
	require.NoError(t, s.SaveHistorical(ctx, cp, "step_0001"))

	ids, err := s.ListHistorical(ctx, "run_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"step_0001", "step_0002"}, ids)
}
