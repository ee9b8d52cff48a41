package swarm

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/runstore"
	"github.com/agentcore/runtime/pkg/toolerrors"
	"github.com/agentcore/runtime/pkg/toolrouter"
	"github.com/agentcore/runtime/pkg/tools"
)

// subtaskParams is one entry of dispatch_subtasks' "subtasks" array and the
// whole of handoff_to's params.
type subtaskParams struct {
	Role  string `json:"role"`
	Goal  string `json:"goal"`
	Input string `json:"input"`
}

var dispatchSubtasksSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"subtasks": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"role":  {"type": "string"},
					"goal":  {"type": "string"},
					"input": {"type": "string"}
				},
				"required": ["role", "goal", "input"]
			}
		}
	},
	"required": ["subtasks"]
}`)

var handoffToSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"role":  {"type": "string"},
		"goal":  {"type": "string"},
		"input": {"type": "string"}
	},
	"required": ["role", "goal", "input"]
}`)

// DispatchSubtasksTool builds the dispatch_subtasks tools.Definition: one
// call fans out into N child runs, each tracked by a Dependency row keyed on
// the call's tool-call id, and suspends the calling run until Coordinator's
// fan-in wakes it with the aggregated results.
func (c *Coordinator) DispatchSubtasksTool() *tools.Definition {
	return &tools.Definition{
		Name:        "dispatch_subtasks",
		Description: "Dispatch one or more subtasks to independent child runs and suspend until they all complete.",
		Parameters:  dispatchSubtasksSchema,
		Metadata:    tools.Metadata{Risk: tools.RiskHigh, Mutating: true},
		Handler: func(ctx context.Context, params map[string]any) (tools.Result, error) {
			cc, ok := toolrouter.CallContextFromContext(ctx)
			if !ok || cc.AgentContext == nil {
				return tools.Result{}, toolerrors.New("dispatch_subtasks", "missing call context")
			}

			var decoded struct {
				Subtasks []subtaskParams `json:"subtasks"`
			}
			if err := remarshal(params, &decoded); err != nil {
				return tools.Result{}, toolerrors.New("dispatch_subtasks", "invalid subtasks: "+err.Error())
			}
			if len(decoded.Subtasks) == 0 {
				return tools.Result{}, toolerrors.New("dispatch_subtasks", "subtasks must not be empty")
			}

			childIDs, err := c.spawnChildren(ctx, *cc.AgentContext, cc.RunID, cc.ToolCallID, decoded.Subtasks)
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{RequiresSuspension: true, ChildRunIDs: childIDs}, nil
		},
	}
}

// HandoffToTool builds the handoff_to tools.Definition: a one-child
// dispatch, for the common case of delegating the whole rest of a task to a
// specialized agent rather than fanning out to several.
func (c *Coordinator) HandoffToTool() *tools.Definition {
	return &tools.Definition{
		Name:        "handoff_to",
		Description: "Hand the remainder of this task off to a single child run and suspend until it completes.",
		Parameters:  handoffToSchema,
		Metadata:    tools.Metadata{Risk: tools.RiskHigh, Mutating: true},
		Handler: func(ctx context.Context, params map[string]any) (tools.Result, error) {
			cc, ok := toolrouter.CallContextFromContext(ctx)
			if !ok || cc.AgentContext == nil {
				return tools.Result{}, toolerrors.New("handoff_to", "missing call context")
			}

			var decoded subtaskParams
			if err := remarshal(params, &decoded); err != nil {
				return tools.Result{}, toolerrors.New("handoff_to", "invalid params: "+err.Error())
			}
			if decoded.Role == "" || decoded.Goal == "" {
				return tools.Result{}, toolerrors.New("handoff_to", "role and goal are required")
			}

			childIDs, err := c.spawnChildren(ctx, *cc.AgentContext, cc.RunID, cc.ToolCallID, []subtaskParams{decoded})
			if err != nil {
				return tools.Result{}, err
			}
			return tools.Result{RequiresSuspension: true, ChildRunIDs: childIDs}, nil
		},
	}
}

// spawnChildren creates and enqueues one child run per subtask, linking each
// to parentRunID via a Dependency row keyed on toolCallID so Coordinator's
// fan-in can aggregate them once all are terminal.
func (c *Coordinator) spawnChildren(ctx context.Context, parentAgentCtx agent.Context, parentRunID, toolCallID string, subtasks []subtaskParams) ([]string, error) {
	childIDs := make([]string, 0, len(subtasks))
	for _, st := range subtasks {
		childID := "run_" + uuid.NewString()
		child := runstore.Record{
			ID:          childID,
			Scope:       parentAgentCtx.Scope,
			SessionKey:  parentAgentCtx.SessionKey,
			Input:       st.Input,
			AgentID:     agent.Ident(st.Role),
			Status:      runstore.StatusPending,
			ParentRunID: parentRunID,
			Delegated:   parentAgentCtx.Delegated,
			CreatedAt:   time.Now(),
		}
		if err := c.Runs.CreateRun(ctx, child); err != nil {
			return nil, err
		}
		if err := c.Runs.CreateDependency(ctx, runstore.Dependency{
			ParentRunID: parentRunID,
			ChildRunID:  childID,
			ToolCallID:  toolCallID,
			Role:        st.Role,
			Goal:        st.Goal,
		}); err != nil {
			return nil, err
		}
		if err := c.Queue.Enqueue(ctx, childID); err != nil {
			return nil, err
		}
		childIDs = append(childIDs, childID)
	}
	return childIDs, nil
}

func remarshal(params map[string]any, out any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
