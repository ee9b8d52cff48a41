// Package toolerrors defines the ToolError wrap chain tools use to report
// failures back through the ToolRouter without losing the underlying cause.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError is a tool-level failure with a tool name attached. It is not
// fatal to the owning run: the ToolRouter surfaces it to the LLM as
// success=false rather than aborting the step loop.
type ToolError struct {
	Tool    string
	Message string
	Cause   *ToolError
}

// New constructs a ToolError for tool.
func New(tool, message string) *ToolError {
	return &ToolError{Tool: tool, Message: message}
}

// Wrap attaches cause as the originating error of a new ToolError for tool.
func Wrap(tool, message string, cause *ToolError) *ToolError {
	return &ToolError{Tool: tool, Message: message, Cause: cause}
}

func (e *ToolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Tool, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Tool, e.Message)
}

// Unwrap lets errors.Is/errors.As walk the ToolError chain.
func (e *ToolError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Timeout constructs a ToolError describing a handler timeout.
func Timeout(tool string, timeoutMs int64) *ToolError {
	return New(tool, fmt.Sprintf("handler timed out after %dms", timeoutMs))
}

// NotFound constructs the ToolError ToolRouter.callTool returns for an
// unregistered tool name.
func NotFound(tool string) *ToolError {
	return New(tool, fmt.Sprintf("Tool not found: %s", tool))
}

// Denied constructs the ToolError a failed ToolPolicy check returns.
func Denied(tool, reason string) *ToolError {
	return New(tool, reason)
}

// As is a convenience wrapper over errors.As for the common case of
// extracting a *ToolError from an arbitrary error value.
func As(err error) (*ToolError, bool) {
	var te *ToolError
	ok := errors.As(err, &te)
	return te, ok
}
