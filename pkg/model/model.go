// Package model defines the provider-agnostic conversation and completion
// types AgentRunner composes and the anthropic/openai adapters translate
// to/from vendor wire formats.
package model

import (
	"context"
	"encoding/json"
)

// Role is the Message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part is one piece of multipart user content (text, image, document).
// Only TextPart is required by the core; richer parts are accepted and
// passed through untouched by providers that support them.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// ToolCall is a tool-call record attached to an assistant message.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// Message is one turn of the conversation the LLM sees.
type Message struct {
	Role Role

	// Content is either plain text (Text != "") or multipart (Parts non-nil).
	Text  string
	Parts []Part

	// ToolCallID is set for Role == RoleTool: which call this is a result of.
	ToolCallID string

	// ToolCalls is set for Role == RoleAssistant when the model requested
	// tool invocations.
	ToolCalls []ToolCall
}

// ContentString renders Text, or a best-effort flattening of Parts, for
// contexts that need a single string (logging, truncation, compaction
// summaries).
func (m Message) ContentString() string {
	if m.Text != "" || len(m.Parts) == 0 {
		return m.Text
	}
	out := ""
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}
	return out
}

// ToolSpec is the subset of a ToolDefinition a provider adapter needs to
// advertise a callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is one LLM call: the composed messages, the tool catalog on
// offer, and provider/model selection.
type Request struct {
	Provider    string
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Usage reports token accounting for a completed call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the LLM's answer: either a final text answer, or a set of
// tool calls to execute next.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
	StopReason string
}

// HasToolCalls reports whether the step loop must dispatch tool calls
// before it can continue.
func (r Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// Client is the minimal abstract LLM client the core depends on. Vendor
// wire formats are out of scope; adapters under model/anthropic
// and model/openai implement this seam.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
