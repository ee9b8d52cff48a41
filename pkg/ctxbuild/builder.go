// Package ctxbuild composes the LLM prompt from layered system directives
// and conversation history, compacts old turns under token pressure, and
// tracks the token budget that drives compaction.
package ctxbuild

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentcore/runtime/pkg/model"
)

// Inputs are the pieces Builder.Compose layers into the system preamble,
// in the fixed order (a)-(h).6.
type Inputs struct {
	BaseSystemPrompt   string   // (a)
	ProviderHints      string   // (b)
	AllowedTools       []string // (c)
	DeniedTools        []string // (c)
	Cwd                string   // (d)
	Now                time.Time
	AvailableTools     []string // (d)/(e)
	SkillCatalog       []string // (f)
	LoadedSkills       []string // (f)
	MemorySummary      string   // (g)
	BudgetWarning      string   // (h)
	History            []model.Message
	TrailingMessages    int // default 12
}

// Builder assembles the messages AgentRunner hands to the LLM client.
type Builder struct{}

// Compose implements ContextBuilder.compose.
func (Builder) Compose(in Inputs) []model.Message {
	var sections []string

	if in.BaseSystemPrompt != "" {
		sections = append(sections, in.BaseSystemPrompt)
	}
	if in.ProviderHints != "" {
		sections = append(sections, in.ProviderHints)
	}
	sections = append(sections, fmt.Sprintf("allowed: %s, denied: %s",
		joinOrNone(in.AllowedTools), joinOrNone(in.DeniedTools)))

	env := fmt.Sprintf("cwd: %s\ndate: %s\navailable tools: %s",
		in.Cwd, in.Now.Format(time.RFC3339), joinOrNone(in.AvailableTools))
	sections = append(sections, env)

	if len(in.AvailableTools) > 0 {
		shown := in.AvailableTools
		truncated := false
		if len(shown) > 5 {
			shown = shown[:5]
			truncated = true
		}
		groups := "available groups: " + strings.Join(shown, ", ")
		if truncated {
			groups += fmt.Sprintf(" (and %d more; list_tools to see the rest)", len(in.AvailableTools)-5)
		}
		sections = append(sections, groups)
	}

	if len(in.SkillCatalog) > 0 || len(in.LoadedSkills) > 0 {
		skills := "skills: " + joinOrNone(in.SkillCatalog)
		if len(in.LoadedSkills) > 0 {
			skills += "\nloaded:\n" + strings.Join(in.LoadedSkills, "\n---\n")
		}
		sections = append(sections, skills)
	}

	if in.MemorySummary != "" {
		sections = append(sections, "memory:\n"+in.MemorySummary)
	}

	if in.BudgetWarning != "" {
		sections = append(sections, in.BudgetWarning)
	}

	preamble := strings.Join(sections, "\n\n")

	n := in.TrailingMessages
	if n <= 0 {
		n = 12
	}
	history := in.History
	if len(history) > n {
		history = history[len(history)-n:]
	}

	out := make([]model.Message, 0, 1+len(history))
	out = append(out, model.Message{Role: model.RoleSystem, Text: preamble})
	out = append(out, history...)
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
