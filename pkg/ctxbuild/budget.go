package ctxbuild

import "github.com/agentcore/runtime/pkg/model"

// TokenBudgetManager tracks prompt/completion token usage and signals the
// compaction/warning thresholds.
type TokenBudgetManager struct {
	MaxContext int
	Reserve    int // tokens reserved for the completion

	lastUsage       model.Usage
	compactionCount int
}

// NewTokenBudgetManager constructs a manager for the given context window.
func NewTokenBudgetManager(maxContext, reserve int) *TokenBudgetManager {
	if reserve <= 0 {
		reserve = maxContext / 10
	}
	return &TokenBudgetManager{MaxContext: maxContext, Reserve: reserve}
}

// RecordUsage stores the last prompt/completion usage observed.
func (b *TokenBudgetManager) RecordUsage(u model.Usage) { b.lastUsage = u }

// Utilization computes prompt / (max - reserve).
func (b *TokenBudgetManager) Utilization() float64 {
	denom := b.MaxContext - b.Reserve
	if denom <= 0 {
		return 1
	}
	return float64(b.lastUsage.PromptTokens) / float64(denom)
}

// ShouldCompact reports whether utilization has crossed the compaction
// threshold (>= 0.8).
func (b *TokenBudgetManager) ShouldCompact() bool { return b.Utilization() >= 0.8 }

// ShouldWarn reports whether utilization is at or past the warning
// threshold (>= 0.7) and compaction is not already warranted.
func (b *TokenBudgetManager) ShouldWarn() bool {
	u := b.Utilization()
	return u >= 0.7 && u < 0.8
}

// RecordCompaction increments the compaction counter; AgentRunner calls
// this once per applied compaction.
func (b *TokenBudgetManager) RecordCompaction() { b.compactionCount++ }

// CompactionCount returns the number of compactions applied so far.
func (b *TokenBudgetManager) CompactionCount() int { return b.compactionCount }

// WarningMessage renders the context-budget warning layered into the
// system preamble when ShouldWarn is true.
func (b *TokenBudgetManager) WarningMessage() string {
	if !b.ShouldWarn() {
		return ""
	}
	return "context budget warning: approaching the compaction threshold, consider wrapping up"
}
