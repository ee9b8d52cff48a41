package agentrunner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/checkpoint/fsjson"
	"github.com/agentcore/runtime/pkg/ctxbuild"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/retry"
	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/runlog/inmem"
	"github.com/agentcore/runtime/pkg/toolrouter"
	"github.com/agentcore/runtime/pkg/tools"
)

// scriptedClient replays a fixed sequence of responses, one per Complete call.
type scriptedClient struct {
	mu        sync.Mutex
	responses []model.Response
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	if err != nil {
		return model.Response{}, err
	}
	if i >= len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[i], nil
}

func newDeps(t *testing.T, client model.Client, router *toolrouter.Router) Deps {
	t.Helper()
	return Deps{
		Model:       client,
		Checkpoints: fsjson.New(t.TempDir()),
		EventLog:    inmem.New(),
		Router:      router,
		Scheduler:   &toolrouter.Scheduler{},
		Retry:       retry.New(retry.Options{MaxRetries: 2}),
		Builder:     ctxbuild.Builder{},
		Compactor:   ctxbuild.Compactor{},
	}
}

func baseInput(runID string) RunInput {
	return RunInput{
		RunID:        runID,
		SessionKey:   "session_1",
		AgentContext: agent.Context{AgentID: "agent_researcher", Scope: agent.Scope{OrgID: "org1", UserID: "user1"}},
		Input:        "do the task",
	}
}

func TestRunCompletesWithoutToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []model.Response{{Text: "final answer"}}}
	router := toolrouter.New(toolrouter.Options{})
	runner := New(newDeps(t, client, router), Config{MaxSteps: 5})

	out := runner.Run(context.Background(), baseInput("run_a"))

	assert.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "final answer", out.Result)
}

func TestRunDispatchesToolCallsThenCompletes(t *testing.T) {
	router := toolrouter.New(toolrouter.Options{})
	require.NoError(t, router.RegisterTool(&tools.Definition{
		Name: "search_docs",
		Handler: func(ctx context.Context, params map[string]any) (tools.Result, error) {
			return tools.Result{Output: "search hit"}, nil
		},
	}))

	client := &scriptedClient{responses: []model.Response{
		{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "search_docs", Parameters: map[string]any{}}}},
		{Text: "done, found it"},
	}}
	deps := newDeps(t, client, router)
	runner := New(deps, Config{MaxSteps: 5})

	out := runner.Run(context.Background(), baseInput("run_b"))

	require.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, "done, found it", out.Result)

	cp, err := deps.Checkpoints.LoadLatest(context.Background(), "run_b")
	require.NoError(t, err)
	var sawToolResult bool
	for _, m := range cp.Messages {
		if m.Role == model.RoleTool && m.ToolCallID == "call_1" {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult, "checkpoint must record the tool result message")
}

func TestRunSuspendsOnToolRequiringSuspension(t *testing.T) {
	router := toolrouter.New(toolrouter.Options{})
	require.NoError(t, router.RegisterTool(&tools.Definition{
		Name: "dispatch_subtasks",
		Handler: func(ctx context.Context, params map[string]any) (tools.Result, error) {
			return tools.Result{RequiresSuspension: true, ChildRunIDs: []string{"child_1", "child_2"}}, nil
		},
	}))

	client := &scriptedClient{responses: []model.Response{
		{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "dispatch_subtasks", Parameters: map[string]any{}}}},
	}}
	runner := New(newDeps(t, client, router), Config{MaxSteps: 5})

	out := runner.Run(context.Background(), baseInput("run_c"))

	assert.Equal(t, StatusSuspended, out.Status)
	assert.ElementsMatch(t, []string{"child_1", "child_2"}, out.ChildRunIDs)
}

func TestRunFailsOnFatalLLMError(t *testing.T) {
	client := &scriptedClient{errs: []error{&model.ProviderError{Provider: "anthropic", StatusCode: 400, Message: "bad request"}}}
	router := toolrouter.New(toolrouter.Options{})
	runner := New(newDeps(t, client, router), Config{MaxSteps: 5})

	out := runner.Run(context.Background(), baseInput("run_d"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "LLMError", out.FailureCode)
}

func TestRunFailsAfterMaxStepsWithoutFinalAnswer(t *testing.T) {
	router := toolrouter.New(toolrouter.Options{})
	require.NoError(t, router.RegisterTool(&tools.Definition{
		Name: "search_docs",
		Handler: func(ctx context.Context, params map[string]any) (tools.Result, error) {
			return tools.Result{Output: "still going"}, nil
		},
	}))
	client := &scriptedClient{responses: []model.Response{
		{ToolCalls: []model.ToolCall{{ID: "call_1", Name: "search_docs", Parameters: map[string]any{}}}},
	}}
	runner := New(newDeps(t, client, router), Config{MaxSteps: 2})

	out := runner.Run(context.Background(), baseInput("run_e"))

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "AgentError", out.FailureCode)
}

func TestRunCancelledWhenContextAlreadyDone(t *testing.T) {
	client := &scriptedClient{responses: []model.Response{{Text: "should not be reached"}}}
	router := toolrouter.New(toolrouter.Options{})
	runner := New(newDeps(t, client, router), Config{MaxSteps: 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := runner.Run(ctx, baseInput("run_f"))

	assert.Equal(t, StatusCancelled, out.Status)
	assert.Equal(t, 0, client.calls, "a cancelled context must short-circuit before calling the model")
}

func TestRunResumeRepairsOrphanToolCallBeforeContinuing(t *testing.T) {
	client := &scriptedClient{responses: []model.Response{{Text: "wrapped up"}}}
	router := toolrouter.New(toolrouter.Options{})
	runner := New(newDeps(t, client, router), Config{MaxSteps: 5})

	in := baseInput("run_g")
	in.Resume = &ResumeFrom{
		StepNumber: 1,
		Messages: []model.Message{
			{Role: model.RoleUser, Text: "do the task"},
			{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_orphan", Name: "search_docs"}}},
		},
	}

	out := runner.Run(context.Background(), in)

	require.Equal(t, StatusCompleted, out.Status)
	assert.Equal(t, 1, client.calls)
}

func TestRepairOrphansSynthesizesMissingToolResult(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleUser, Text: "hi"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_1", Name: "search_docs"}}},
		{Role: model.RoleTool, ToolCallID: "call_1", Text: "answered"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "call_2", Name: "search_docs"}}},
	}

	out := repairOrphans(messages)

	require.Len(t, out, 5)
	last := out[4]
	assert.Equal(t, model.RoleTool, last.Role)
	assert.Equal(t, "call_2", last.ToolCallID)
}

func TestRunDoesNotPanicAndRecordsEvents(t *testing.T) {
	client := &scriptedClient{responses: []model.Response{{Text: "final"}}}
	router := toolrouter.New(toolrouter.Options{})
	deps := newDeps(t, client, router)
	runner := New(deps, Config{MaxSteps: 5})

	in := baseInput("run_h")
	assert.NotPanics(t, func() {
		runner.Run(context.Background(), in)
	})

	events, err := deps.EventLog.ReadStream(context.Background(), runlog.StreamID{SessionKey: "session_1", RunID: "run_h"})
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}
