package ctxbuild

import (
	"fmt"
	"strings"

	"github.com/agentcore/runtime/pkg/model"
)

// CompactOptions configures Compactor.CompactMessages.
type CompactOptions struct {
	PreserveTurns     int // default 12
	MaxToolOutputChars int // default 8000
}

func (o CompactOptions) withDefaults() CompactOptions {
	if o.PreserveTurns <= 0 {
		o.PreserveTurns = 12
	}
	if o.MaxToolOutputChars <= 0 {
		o.MaxToolOutputChars = 8000
	}
	return o
}

// CompactReport is what CompactMessages reports,.6.
type CompactReport struct {
	MessagesBefore       int
	MessagesAfter        int
	EstimatedTokensSaved int
}

// Compactor implements ContextBuilder's compaction half: summarize old
// turns, truncate oversized tool outputs, and report savings.
type Compactor struct{}

// CompactMessages implements Compactor.compactMessages.
func (Compactor) CompactMessages(history []model.Message, opts CompactOptions) ([]model.Message, CompactReport) {
	opts = opts.withDefaults()
	before := len(history)

	if len(history) <= opts.PreserveTurns+1 {
		return history, CompactReport{MessagesBefore: before, MessagesAfter: before}
	}

	cut := len(history) - opts.PreserveTurns
	older := history[:cut]
	preserved := history[cut:]

	summary := summarize(older)
	preserved = truncateToolOutputs(preserved, opts.MaxToolOutputChars)

	out := make([]model.Message, 0, 1+len(preserved))
	out = append(out, model.Message{Role: model.RoleSystem, Text: summary})
	out = append(out, preserved...)

	savedChars := 0
	for _, m := range older {
		savedChars += len(m.ContentString())
	}
	savedChars -= len(summary)
	if savedChars < 0 {
		savedChars = 0
	}

	return out, CompactReport{
		MessagesBefore:       before,
		MessagesAfter:        len(out),
		EstimatedTokensSaved: savedChars / 4, // rough chars-per-token heuristic
	}
}

// summarize condenses older non-system messages into one synthesized
// system message, preserving tool-call names but not their arguments or
// results in full.
func summarize(messages []model.Message) string {
	var b strings.Builder
	b.WriteString("summary of earlier conversation:\n")
	for _, m := range messages {
		if m.Role == model.RoleSystem {
			continue
		}
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintf(&b, "- user asked: %s\n", truncate(m.ContentString(), 200))
		case model.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				names := make([]string, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					names[i] = tc.Name
				}
				fmt.Fprintf(&b, "- assistant called tools: %s\n", strings.Join(names, ", "))
			} else {
				fmt.Fprintf(&b, "- assistant said: %s\n", truncate(m.ContentString(), 200))
			}
		case model.RoleTool:
			fmt.Fprintf(&b, "- tool %s returned a result (elided)\n", m.ToolCallID)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// truncateToolOutputs annotates any preserved tool-role message longer than
// maxChars with an omitted-character-count suffix.
func truncateToolOutputs(messages []model.Message, maxChars int) []model.Message {
	out := make([]model.Message, len(messages))
	copy(out, messages)
	for i, m := range out {
		if m.Role != model.RoleTool {
			continue
		}
		content := m.ContentString()
		if len(content) <= maxChars {
			continue
		}
		omitted := len(content) - maxChars
		out[i].Text = fmt.Sprintf("%s\n[...truncated, %d characters omitted]", content[:maxChars], omitted)
		out[i].Parts = nil
	}
	return out
}
