// Package agentrunner implements the AgentRunner step loop: plan/act/observe
// per run, suspension detection, checkpointing, and resumption with orphan
// tool-call repair. The loop runs against a plain context.Context rather
// than a durable workflow engine, since cross-restart replay is out of
// scope here.
package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/checkpoint"
	"github.com/agentcore/runtime/pkg/ctxbuild"
	"github.com/agentcore/runtime/pkg/model"
	"github.com/agentcore/runtime/pkg/retry"
	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/telemetry"
	"github.com/agentcore/runtime/pkg/toolrouter"
	"github.com/agentcore/runtime/pkg/tools"
)

// Status is the terminal (or suspended) outcome of one Run call.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Outcome is what Runner.Run returns.
type Outcome struct {
	Status      Status
	Result      any
	FailureCode string
	FailureMsg  string
	ChildRunIDs []string
}

// ResumeFrom carries the rehydration state for a resumed run.
type ResumeFrom struct {
	StepNumber   int
	Messages     []model.Message
	WorkingState map[string]any
}

// Deps bundles the collaborators AgentRunner drives each step.
type Deps struct {
	Model       model.Client
	Checkpoints checkpoint.Store
	EventLog    runlog.Store
	Router      *toolrouter.Router
	Scheduler   *toolrouter.Scheduler
	Retry       *retry.Policy
	Builder     ctxbuild.Builder
	Compactor   ctxbuild.Compactor
	Telemetry   telemetry.ToolTelemetry
}

// Config is the per-run tuning knobs for the step loop.
type Config struct {
	MaxSteps           int
	TrailingMessages   int
	PreserveTurns      int
	MaxToolOutputChars int
	MaxContextTokens   int
	BaseSystemPrompt   string
	ProviderHints      string
	Provider           string
	Model              string
}

// Runner executes the step loop for one run.
type Runner struct {
	deps Deps
	cfg  Config
}

// New constructs a Runner.
func New(deps Deps, cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 50
	}
	if deps.Telemetry.Logger == nil {
		deps.Telemetry = telemetry.Noop
	}
	return &Runner{deps: deps, cfg: cfg}
}

// RunInput is everything one Run call needs about the run it is driving.
type RunInput struct {
	RunID        string
	SessionKey   string
	AgentContext agent.Context
	Input        string
	Resume       *ResumeFrom
}

func (r *Runner) stream(runID, sessionKey string) runlog.StreamID {
	return runlog.StreamID{SessionKey: sessionKey, RunID: runID}
}

func (r *Runner) emit(ctx context.Context, in RunInput, stepID string, t runlog.Type, payload any) {
	data, _ := json.Marshal(payload)
	event := runlog.Event{
		V:          1,
		TS:         time.Now().UTC(),
		SessionKey: in.SessionKey,
		RunID:      in.RunID,
		AgentID:    string(in.AgentContext.AgentID),
		StepID:     stepID,
		SpanID:     spanID(in.RunID, stepID, t),
		Type:       t,
		Payload:    data,
	}
	_ = r.deps.EventLog.Append(ctx, r.stream(in.RunID, in.SessionKey), event)
}

func spanID(runID, stepID string, t runlog.Type) string {
	return fmt.Sprintf("%s_%s_%s_%d", runID, stepID, t, time.Now().UnixNano())
}

// Run drives the loop to a terminal, suspended, or cancelled outcome.
func (r *Runner) Run(ctx context.Context, in RunInput) Outcome {
	var messages []model.Message
	step := 0
	workingState := map[string]any{}

	if in.Resume != nil {
		messages = repairOrphans(in.Resume.Messages)
		workingState = in.Resume.WorkingState
		step = in.Resume.StepNumber
		r.emit(ctx, in, runlog.StepIDFor(step), runlog.TypeRunResumed, nil)
	} else {
		messages = append(messages, model.Message{Role: model.RoleUser, Text: in.Input})
		r.emit(ctx, in, runlog.StepIDFor(0), runlog.TypeRunStarted, map[string]string{"input": in.Input})
	}

	budget := ctxbuild.NewTokenBudgetManager(r.cfg.maxContextTokens(), 0)

	for step < r.cfg.MaxSteps {
		step++
		stepID := runlog.StepIDFor(step)

		if ctx.Err() != nil {
			return Outcome{Status: StatusCancelled}
		}

		r.emit(ctx, in, stepID, runlog.TypeStepStarted, nil)

		if budget.ShouldCompact() {
			compacted, report := r.deps.Compactor.CompactMessages(messages, ctxbuild.CompactOptions{
				PreserveTurns:      r.cfg.PreserveTurns,
				MaxToolOutputChars: r.cfg.MaxToolOutputChars,
			})
			messages = compacted
			budget.RecordCompaction()
			r.emit(ctx, in, stepID, runlog.TypeMessageDecision, report)
		}

		composed := r.deps.Builder.Compose(ctxbuild.Inputs{
			BaseSystemPrompt: r.cfg.BaseSystemPrompt,
			ProviderHints:    r.cfg.ProviderHints,
			AllowedTools:     in.AgentContext.Allowed,
			DeniedTools:      in.AgentContext.Denied,
			Now:              time.Now(),
			AvailableTools:   toolNames(r.deps.Router),
			BudgetWarning:    budget.WarningMessage(),
			History:          messages,
			TrailingMessages: r.cfg.trailingMessages(),
		})

		reqTools := toolSpecs(r.deps.Router)
		req := model.Request{Provider: r.cfg.Provider, Model: r.cfg.Model, Messages: composed, Tools: reqTools}

		resp, attempts, err := retry.Execute(ctx, r.deps.Retry, "llm.complete", func(ctx context.Context) (model.Response, error) {
			return r.deps.Model.Complete(ctx, req)
		})
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{Status: StatusCancelled}
			}
			r.saveFailureCheckpoint(ctx, in, step, messages, workingState)
			r.emit(ctx, in, stepID, runlog.TypeRunFailed, map[string]string{"code": "LLMError", "message": err.Error()})
			return Outcome{Status: StatusFailed, FailureCode: "LLMError", FailureMsg: err.Error()}
		}
		budget.RecordUsage(resp.Usage)
		r.emit(ctx, in, stepID, runlog.TypeLLMCalled, map[string]any{"usage": resp.Usage, "attempts": attempts})
		if attempts > 1 {
			r.emit(ctx, in, stepID, runlog.TypeStepRetried, map[string]int{"attempts": attempts})
		}

		if !resp.HasToolCalls() {
			messages = append(messages, model.Message{Role: model.RoleAssistant, Text: resp.Text})
			r.saveCheckpoint(ctx, in, step, messages, workingState, stepID)
			r.emit(ctx, in, stepID, runlog.TypeStepCompleted, nil)
			r.emit(ctx, in, stepID, runlog.TypeRunCompleted, map[string]string{"result": resp.Text})
			return Outcome{Status: StatusCompleted, Result: resp.Text}
		}

		messages = append(messages, model.Message{Role: model.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})

		toolMsgs, suspend, approval, childRunIDs := r.runToolCalls(ctx, in, stepID, resp.ToolCalls)
		messages = append(messages, toolMsgs...)

		if suspend || approval {
			r.saveCheckpoint(ctx, in, step, messages, workingState, stepID)
			r.emit(ctx, in, stepID, runlog.TypeRunSuspended, map[string]bool{"approval": approval})
			return Outcome{Status: StatusSuspended, ChildRunIDs: childRunIDs}
		}

		r.saveCheckpoint(ctx, in, step, messages, workingState, stepID)
		r.emit(ctx, in, stepID, runlog.TypeStepCompleted, nil)
	}

	r.saveFailureCheckpoint(ctx, in, step, messages, workingState)
	r.emit(ctx, in, runlog.StepIDFor(step), runlog.TypeRunFailed, map[string]string{"code": "AgentError", "message": "Max steps reached"})
	return Outcome{Status: StatusFailed, FailureCode: "AgentError", FailureMsg: "Max steps reached"}
}

func (c Config) maxContextTokens() int {
	if c.MaxContextTokens <= 0 {
		return 128000
	}
	return c.MaxContextTokens
}

func (c Config) trailingMessages() int {
	if c.TrailingMessages <= 0 {
		return 12
	}
	return c.TrailingMessages
}

func toolNames(router *toolrouter.Router) []string {
	defs := router.ListTools()
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = string(d.Name)
	}
	return out
}

func toolSpecs(router *toolrouter.Router) []model.ToolSpec {
	defs := router.ListTools()
	out := make([]model.ToolSpec, len(defs))
	for i, d := range defs {
		out[i] = model.ToolSpec{Name: string(d.Name), Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// runToolCalls dispatches one step's tool calls through the Scheduler,
// preserving LLM-given order in the returned tool-role messages regardless
// of execution interleaving.
func (r *Runner) runToolCalls(ctx context.Context, in RunInput, stepID string, calls []model.ToolCall) (messages []model.Message, suspend, approval bool, childRunIDs []string) {
	pending := make([]toolrouter.PendingCall, len(calls))
	for i, c := range calls {
		meta := tools.Metadata{}
		if def, ok := r.deps.Router.GetTool(c.Name); ok {
			meta = def.Metadata
		}
		pending[i] = toolrouter.PendingCall{Index: i, Call: c, Risk: meta}
	}

	results := r.deps.Scheduler.Execute(ctx, pending, func(ctx context.Context, call model.ToolCall) toolrouter.Result {
		cc := toolrouter.CallContext{RunID: in.RunID, StepID: stepID, ToolCallID: call.ID, AgentContext: &in.AgentContext}
		return r.deps.Router.CallTool(ctx, cc, call.Name, call.Parameters)
	})

	ordered := make([]toolrouter.CallResult, len(results))
	copy(ordered, results)

	out := make([]model.Message, len(ordered))
	for i, cr := range ordered {
		content := resultContent(cr.Result)
		out[i] = model.Message{Role: model.RoleTool, ToolCallID: cr.Call.ID, Text: content}
		if cr.Result.RequiresSuspension {
			suspend = true
			childRunIDs = append(childRunIDs, cr.Result.ChildRunIDs...)
		}
		if cr.Result.RequiresApproval {
			approval = true
		}
	}
	return out, suspend, approval, childRunIDs
}

func resultContent(res toolrouter.Result) string {
	if res.Success {
		data, _ := json.Marshal(res.Output)
		return string(data)
	}
	return res.Error
}

func (r *Runner) saveCheckpoint(ctx context.Context, in RunInput, step int, messages []model.Message, workingState map[string]any, stepID string) {
	cp := checkpoint.Checkpoint{
		RunID: in.RunID, AgentID: string(in.AgentContext.AgentID), StepNumber: step,
		Messages: messages, WorkingState: workingState,
	}
	_ = r.deps.Checkpoints.SaveLatest(ctx, cp)
	_ = r.deps.Checkpoints.SaveHistorical(ctx, cp, stepID)
}

func (r *Runner) saveFailureCheckpoint(ctx context.Context, in RunInput, step int, messages []model.Message, workingState map[string]any) {
	cp := checkpoint.Checkpoint{
		RunID: in.RunID, AgentID: string(in.AgentContext.AgentID), StepNumber: step,
		Messages: messages, WorkingState: workingState,
	}
	_ = r.deps.Checkpoints.SaveLatest(ctx, cp)
}

// repairOrphans synthesizes stub tool-result messages for any assistant
// tool-call without a matching tool-role follow-up, so the LLM input is
// well-formed before resumption.
func repairOrphans(messages []model.Message) []model.Message {
	answered := map[string]bool{}
	for _, m := range messages {
		if m.Role == model.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	out := make([]model.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m)
		if m.Role != model.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		for _, tc := range m.ToolCalls {
			if answered[tc.ID] {
				continue
			}
			out = append(out, model.Message{
				Role:       model.RoleTool,
				ToolCallID: tc.ID,
				Text:       "[synthetic: no result recorded]",
			})
		}
	}
	return out
}
