package toolrouter

import (
	"context"
	"sync"
	"time"

	"github.com/agentcore/runtime/pkg/agent"
	"github.com/agentcore/runtime/pkg/telemetry"
	"github.com/agentcore/runtime/pkg/tools"
)

// CallContext carries the optional AgentContext a call is scoped to, plus
// the identifiers ToolRouter stamps onto tool.called/tool.result events and
// hands to the Handler so routing tools (dispatch_subtasks, handoff_to) can
// attribute the children they create back to the call that spawned them.
type CallContext struct {
	RunID        string
	StepID       string
	ToolCallID   string
	SpanID       string
	ParentSpanID string
	AgentContext *agent.Context
}

type callContextKey struct{}

// callContextFrom extracts the CallContext a Handler is running under, if
// the Router placed one on ctx.
func callContextFrom(ctx context.Context) (CallContext, bool) {
	cc, ok := ctx.Value(callContextKey{}).(CallContext)
	return cc, ok
}

// CallContextFromContext extracts the CallContext a tool Handler is running
// under. Tools that need to know which run and tool-call invoked them
// (dispatch_subtasks, handoff_to) call this instead of taking the value as a
// parameter, since tools.Handler's signature is shared with every other
// tool.
func CallContextFromContext(ctx context.Context) (CallContext, bool) {
	return callContextFrom(ctx)
}

// Result is the outcome of a single tool call.
type Result struct {
	Success               bool
	Output                any
	Error                 string
	DurationMS            int64
	HumanInterventionNote string
	RequiresSuspension    bool
	ChildRunIDs           []string
	RequiresApproval      bool
}

// EventSink receives tool.called/tool.result notifications. AgentRunner
// implements this to append them to the event log.
type EventSink interface {
	ToolCalled(ctx context.Context, cc CallContext, name string, params map[string]any)
	ToolResult(ctx context.Context, cc CallContext, name string, result Result)
}

// Router maintains the tool-name -> Definition registry and dispatches
// calls through ToolPolicy, a per-call timeout race, and event emission.
type Router struct {
	mu    sync.RWMutex
	tools map[string]*tools.Definition

	policy         Policy
	defaultTimeout time.Duration
	sink           EventSink
	telemetry      telemetry.ToolTelemetry
}

// Options configures a Router.
type Options struct {
	DefaultTimeout time.Duration
	Sink           EventSink
	Telemetry      telemetry.ToolTelemetry
}

// New constructs a Router.
func New(opts Options) *Router {
	timeout := opts.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tel := opts.Telemetry
	if tel.Logger == nil {
		tel = telemetry.Noop
	}
	return &Router{
		tools:          make(map[string]*tools.Definition),
		defaultTimeout: timeout,
		sink:           opts.Sink,
		telemetry:      tel,
	}
}

// RegisterTool implements ToolRouter.registerTool.
func (r *Router) RegisterTool(def *tools.Definition) error {
	if err := def.CompileSchema(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[string(def.Name)] = def
	return nil
}

// UnregisterTool implements ToolRouter.unregisterTool.
func (r *Router) UnregisterTool(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// ListTools implements ToolRouter.listTools.
func (r *Router) ListTools() []*tools.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*tools.Definition, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	return out
}

// GetTool implements ToolRouter.getTool.
func (r *Router) GetTool(name string) (*tools.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// HasTool implements ToolRouter.hasTool.
func (r *Router) HasTool(name string) bool {
	_, ok := r.GetTool(name)
	return ok
}

// GetToolCount implements ToolRouter.getToolCount.
func (r *Router) GetToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ReplaceCatalog atomically swaps the whole tool map, used when an
// external tool server reconnects and republishes its catalog").
func (r *Router) ReplaceCatalog(defs []*tools.Definition, source tools.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, d := range r.tools {
		if d.Metadata.Source == source {
			delete(r.tools, name)
		}
	}
	for _, d := range defs {
		_ = d.CompileSchema()
		r.tools[string(d.Name)] = d
	}
}

// CallTool implements ToolRouter.callTool's 4-step sequence.
func (r *Router) CallTool(ctx context.Context, cc CallContext, name string, params map[string]any) Result {
	if r.sink != nil {
		r.sink.ToolCalled(ctx, cc, name, params)
	}
	start := time.Now()
	result := r.callToolInner(ctx, cc, name, params)
	result.DurationMS = time.Since(start).Milliseconds()
	if r.sink != nil {
		r.sink.ToolResult(ctx, cc, name, result)
	}
	r.telemetry.Metrics.IncrCounter("tool.calls", "tool", name, "success", boolTag(result.Success))
	return result
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *Router) callToolInner(ctx context.Context, cc CallContext, name string, params map[string]any) Result {
	def, ok := r.GetTool(name)
	if !ok {
		return Result{Success: false, Error: "Tool not found: " + name}
	}

	if cc.AgentContext != nil {
		if allowed, reason := r.policy.Check(*cc.AgentContext, name, def.Metadata.Risk); !allowed {
			return Result{Success: false, Error: reason}
		}
	}

	if err := def.Validate(params); err != nil {
		return Result{Success: false, Error: "validation: " + err.Error()}
	}

	timeout := r.defaultTimeout
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	handlerCtx := context.WithValue(callCtx, callContextKey{}, cc)

	type outcome struct {
		res tools.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := def.Handler(handlerCtx, params)
		ch <- outcome{res, err}
	}()

	select {
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return Result{Success: false, Error: "cancelled"}
		}
		return Result{Success: false, Error: "handler timed out after " + timeout.String()}
	case o := <-ch:
		if o.err != nil {
			return Result{Success: false, Error: o.err.Error()}
		}
		return Result{
			Success:               true,
			Output:                o.res.Output,
			HumanInterventionNote: o.res.HumanInterventionNote,
			RequiresSuspension:    o.res.RequiresSuspension,
			ChildRunIDs:           o.res.ChildRunIDs,
			RequiresApproval:      o.res.RequiresApproval,
		}
	}
}
