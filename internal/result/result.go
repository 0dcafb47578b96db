// Package result defines the tri-state outcome the core reports to its
// host CLI (spec.md §6.5), decoupled from any particular command's
// flag parsing or output formatting.
package result

// Status is the top-level disposition of a planning or apply run.
type Status string

const (
	// StatusOK means the run completed with no tool error and no
	// operation was blocked in a way the caller asked to be treated as
	// failure-worthy.
	StatusOK Status = "ok"
	// StatusPolicyBlock means at least one operation was blocked by
	// policy, a cap, or a precondition mismatch; the run still
	// completed and produced an artifact.
	StatusPolicyBlock Status = "policy_block"
	// StatusToolError means the run aborted before producing a
	// complete artifact (unreadable input, unparseable manifest,
	// unreachable write path).
	StatusToolError Status = "tool_error"
)

// ExitCode maps a Status to the CLI exit code contract of spec.md §6.5.
func (s Status) ExitCode() int {
	switch s {
	case StatusOK:
		return 0
	case StatusPolicyBlock:
		return 2
	default:
		return 1
	}
}

// Result is the structured outcome of one planning or apply invocation.
type Result struct {
	Status Status
	Err    error // non-nil only when Status == StatusToolError
}

// OK builds a successful Result.
func OK() Result { return Result{Status: StatusOK} }

// Blocked builds a policy-block Result.
func Blocked() Result { return Result{Status: StatusPolicyBlock} }

// ToolError builds a tool-error Result wrapping err.
func ToolError(err error) Result { return Result{Status: StatusToolError, Err: err} }

// ExitCode is a convenience forwarding to Status.ExitCode.
func (r Result) ExitCode() int { return r.Status.ExitCode() }
