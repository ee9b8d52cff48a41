package ctxbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentcore/runtime/pkg/model"
)

func TestNewTokenBudgetManagerDefaultsReserve(t *testing.T) {
	b := NewTokenBudgetManager(1000, 0)
	assert.Equal(t, 100, b.Reserve)
}

func TestShouldCompactCrossesEightyPercent(t *testing.T) {
	b := NewTokenBudgetManager(1000, 0) // denom = 900
	b.RecordUsage(model.Usage{PromptTokens: 719})
	assert.False(t, b.ShouldCompact())

	b.RecordUsage(model.Usage{PromptTokens: 720})
	assert.True(t, b.ShouldCompact())
}

func TestShouldWarnBetweenSeventyAndEightyPercent(t *testing.T) {
	b := NewTokenBudgetManager(1000, 0) // denom = 900
	b.RecordUsage(model.Usage{PromptTokens: 630})
	assert.True(t, b.ShouldWarn())

	b.RecordUsage(model.Usage{PromptTokens: 720})
	assert.False(t, b.ShouldWarn(), "ShouldWarn must not fire once compaction is warranted")

	b.RecordUsage(model.Usage{PromptTokens: 100})
	assert.False(t, b.ShouldWarn())
}

func TestWarningMessageEmptyOutsideWarnWindow(t *testing.T) {
	b := NewTokenBudgetManager(1000, 0)
	b.RecordUsage(model.Usage{PromptTokens: 100})
	assert.Empty(t, b.WarningMessage())

	b.RecordUsage(model.Usage{PromptTokens: 650})
	assert.NotEmpty(t, b.WarningMessage())
}

func TestRecordCompactionIncrementsCount(t *testing.T) {
	b := NewTokenBudgetManager(1000, 100)
	assert.Equal(t, 0, b.CompactionCount())
	b.RecordCompaction()
	b.RecordCompaction()
	assert.Equal(t, 2, b.CompactionCount())
}

func TestUtilizationFullWhenReserveExceedsMax(t *testing.T) {
	b := NewTokenBudgetManager(100, 200)
	b.RecordUsage(model.Usage{PromptTokens: 1})
	assert.Equal(t, float64(1), b.Utilization())
}
