package toolerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapChain(t *testing.T) {
	root := New("shell", "command not found")
	wrapped := Wrap("dispatch_subtasks", "child tool failed", root)

	assert.Equal(t, root, wrapped.Cause)
	assert.ErrorIs(t, wrapped, root)

	var te *ToolError
	require.True(t, errors.As(wrapped, &te))
	assert.Equal(t, "dispatch_subtasks", te.Tool)
}

func TestConstructors(t *testing.T) {
	denied := Denied("low-priority-tool", "tool not in allowlist: low-priority-tool")
	assert.Equal(t, "low-priority-tool", denied.Tool)
	assert.Contains(t, denied.Message, "allowlist")

	assert.Contains(t, NotFound("missing-tool").Message, "missing-tool")
	assert.Contains(t, Timeout("slow-tool", 5000).Message, "timed out")
}

func TestAsExtractsToolError(t *testing.T) {
	wrapped := fmt.Errorf("step failed: %w", New("shell", "boom"))
	te, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "shell", te.Tool)
}
