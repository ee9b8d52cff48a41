package agentrunner

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentcore/runtime/pkg/runlog"
	"github.com/agentcore/runtime/pkg/toolrouter"
)

// RunnerSink is the toolrouter.EventSink AgentRunner hands to the Router:
// it appends tool.called before the handler dispatches and tool.result once
// it returns, so a live SSE subscriber sees both the in-flight and the
// completed state of every tool call.
type RunnerSink struct {
	EventLog runlog.Store
}

// ToolCalled implements toolrouter.EventSink.
func (s RunnerSink) ToolCalled(ctx context.Context, cc toolrouter.CallContext, name string, params map[string]any) {
	s.append(ctx, cc, runlog.TypeToolCalled, map[string]any{"tool": name, "params": params})
}

// ToolResult implements toolrouter.EventSink.
func (s RunnerSink) ToolResult(ctx context.Context, cc toolrouter.CallContext, name string, result toolrouter.Result) {
	s.append(ctx, cc, runlog.TypeToolResult, map[string]any{"tool": name, "success": result.Success})
}

func (s RunnerSink) append(ctx context.Context, cc toolrouter.CallContext, t runlog.Type, payload any) {
	if s.EventLog == nil {
		return
	}
	sessionKey, agentID := "", ""
	if cc.AgentContext != nil {
		sessionKey = cc.AgentContext.SessionKey
		agentID = string(cc.AgentContext.AgentID)
	}
	data, _ := json.Marshal(payload)
	event := runlog.Event{
		V:          1,
		TS:         time.Now().UTC(),
		SessionKey: sessionKey,
		RunID:      cc.RunID,
		AgentID:    agentID,
		StepID:     cc.StepID,
		SpanID:     spanID(cc.RunID, cc.StepID, t),
		Type:       t,
		Payload:    data,
	}
	_ = s.EventLog.Append(ctx, runlog.StreamID{SessionKey: sessionKey, RunID: cc.RunID}, event)
}
