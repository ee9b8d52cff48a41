// Package swarm bridges child-run terminal events to parent wake-up via
// SwarmCoordinator.OnChildTerminal.
package swarm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/runstore"
)

// Enqueuer is the slice of RunQueue the coordinator needs: re-admitting the
// woken parent.
type Enqueuer interface {
	Enqueue(ctx context.Context, runID string) error
}

// Coordinator implements the fan-in algorithm: it completes a child's
// Dependency row, and once no Dependency row of the parent is still
// pending, aggregates all of them (one tool message per tool-call id) and
// wakes the parent run.
type Coordinator struct {
	Runs        runstore.Store
	Checkpoints checkpoint.Store
	Queue       Enqueuer
}

// childResult is one entry of the synthetic tool-result payload injected
// back into the parent run once all of its children are terminal.
type childResult struct {
	ChildRunID string `json:"child_run_id"`
	Role       string `json:"role"`
	Goal       string `json:"goal"`
	Status     string `json:"status"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

type aggregatedPayload struct {
	ChildResults []childResult `json:"child_results"`
}

// OnChildTerminal implements the 6-step algorithm. Under concurrent calls
// for siblings of the same parent, only the call observing PendingCount==0
// proceeds past step 2, so the parent is woken exactly once.
func (c *Coordinator) OnChildTerminal(ctx context.Context, childRunID string, status runstore.DependencyStatus, result any, errText string) error {
	res, err := c.Runs.CompleteDependencyAtomic(ctx, childRunID, status, result, errText)
	if err != nil {
		if err == runstore.ErrNotFound {
			return nil // not a managed dependency
		}
		return fmt.Errorf("swarm: complete dependency: %w", err)
	}

	if res.PendingCount > 0 {
		return nil // siblings still running
	}

	parentRunID := res.Dependency.ParentRunID
	allDeps, err := c.Runs.ListDependencies(ctx, parentRunID)
	if err != nil {
		return fmt.Errorf("swarm: list dependencies: %w", err)
	}

	byToolCall := make(map[string][]runstore.Dependency)
	var order []string
	for _, d := range allDeps {
		if _, ok := byToolCall[d.ToolCallID]; !ok {
			order = append(order, d.ToolCallID)
		}
		byToolCall[d.ToolCallID] = append(byToolCall[d.ToolCallID], d)
	}

	syntheticMessages := make([]model.Message, 0, len(order))
	for _, toolCallID := range order {
		deps := byToolCall[toolCallID]
		payload := aggregatedPayload{ChildResults: make([]childResult, 0, len(deps))}
		for _, d := range deps {
			payload.ChildResults = append(payload.ChildResults, childResult{
				ChildRunID: d.ChildRunID,
				Role:       d.Role,
				Goal:       d.Goal,
				Status:     string(d.Status),
				Result:     d.Result,
				Error:      d.Err,
			})
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("swarm: marshal child results: %w", err)
		}
		syntheticMessages = append(syntheticMessages, model.Message{
			Role:       model.RoleTool,
			ToolCallID: toolCallID,
			Text:       string(data),
		})
	}

	parent, err := c.Runs.LoadUnscoped(ctx, parentRunID)
	if err != nil {
		return fmt.Errorf("swarm: load parent: %w", err)
	}

	if err := c.Checkpoints.AppendToolResults(ctx, parentRunID, string(parent.AgentID), syntheticMessages); err != nil {
		return fmt.Errorf("swarm: append tool results: %w", err)
	}

	if err := c.Runs.SetRunResumedFromSuspension(ctx, parentRunID); err != nil {
		return fmt.Errorf("swarm: resume from suspension: %w", err)
	}

	if err := c.Queue.Enqueue(ctx, parentRunID); err != nil {
		return fmt.Errorf("swarm: enqueue parent: %w", err)
	}
	return nil
}
