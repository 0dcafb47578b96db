package result

import (
	"errors"
	"testing"
)

func TestExitCodeContract(t *testing.T) {
	if OK().ExitCode() != 0 {
		t.Fatalf("expected ok to exit 0")
	}
	if Blocked().ExitCode() != 2 {
		t.Fatalf("expected policy_block to exit 2")
	}
	if ToolError(errors.New("boom")).ExitCode() != 1 {
		t.Fatalf("expected tool_error to exit 1")
	}
}

func TestToolErrorCarriesTheError(t *testing.T) {
	err := errors.New("boom")
	r := ToolError(err)
	if r.Status != StatusToolError || r.Err != err {
		t.Fatalf("unexpected result: %#v", r)
	}
}
