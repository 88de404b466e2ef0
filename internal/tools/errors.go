package tools

import "fmt"

// ErrToolUnavailable is returned when the model names a tool that is
// not registered. The chat bridge reports it back to the model as a
// failed tool result instead of aborting the exchange.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}
