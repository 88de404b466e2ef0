package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "delete_customer"}
	want := `tool "delete_customer" is not available`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrToolUnavailable_WrappedErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("tool execution: %w", &ErrToolUnavailable{ToolName: "send_sms"})

	var target *ErrToolUnavailable
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to match wrapped *ErrToolUnavailable")
	}
	if target.ToolName != "send_sms" {
		t.Errorf("ToolName = %q, want %q", target.ToolName, "send_sms")
	}
}

func TestErrToolUnavailable_NotMatchOtherErrors(t *testing.T) {
	var target *ErrToolUnavailable
	if errors.As(fmt.Errorf("some other error"), &target) {
		t.Error("errors.As should not match non-ErrToolUnavailable error")
	}
}
