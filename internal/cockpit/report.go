// Package cockpit builds the buildfix.report.v1 envelope of spec.md
// §6.4: the cockpit-compatible summary carrying verdict and
// capabilities. Unlike the plan and apply-record artifacts, the report
// is explicitly NOT part of core determinism (it may carry a
// generation timestamp), so this package takes that timestamp as a
// parameter from its caller rather than reading the clock itself.
package cockpit

import (
	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
)

// SchemaVersion is the report artifact's schema identifier.
const SchemaVersion = "buildfix.report.v1"

// Verdict mirrors a receipt's own verdict shape (spec.md §6.1) so
// cockpit-style hosts can treat buildfix like any other sensor.
type Verdict struct {
	Status  string   `json:"status"`
	Reasons []string `json:"reasons,omitempty"`
}

// Capabilities surfaces which receipt inputs were available versus
// failed to load, so a clean-looking plan can never be mistaken for
// "nothing was wrong" when inputs were actually missing (spec.md §9,
// "no green by omission").
type Capabilities struct {
	InputsAvailable []string      `json:"inputs_available"`
	InputsFailed    []InputFailure `json:"inputs_failed,omitempty"`
}

// InputFailure mirrors receipt.InputFailure for the report surface.
type InputFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the complete cockpit-compatible envelope.
type Report struct {
	Schema       string       `json:"schema"`
	Tool         plan.ToolInfo `json:"tool"`
	GeneratedAt  string       `json:"generated_at"`
	Verdict      Verdict      `json:"verdict"`
	Capabilities Capabilities `json:"capabilities"`
}

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

// Build computes the report envelope for a plan and, if an apply was
// attempted, its record. generatedAt is caller-supplied (e.g. the
// hosting CLI's clock at render time) since the report is explicitly
// excluded from determinism comparisons.
func Build(p *plan.Plan, record *apply.Record, inputsFailed []InputFailure, generatedAt string) Report {
	inputsAvailable := make([]string, 0, len(p.Inputs))
	for _, in := range p.Inputs {
		inputsAvailable = append(inputsAvailable, in.Path)
	}

	status, reasons := verdict(p, record, inputsAvailable, inputsFailed)

	return Report{
		Schema:      SchemaVersion,
		Tool:        p.Tool,
		GeneratedAt: generatedAt,
		Verdict:     Verdict{Status: status, Reasons: reasons},
		Capabilities: Capabilities{
			InputsAvailable: inputsAvailable,
			InputsFailed:    inputsFailed,
		},
	}
}

func verdict(p *plan.Plan, record *apply.Record, inputsAvailable []string, inputsFailed []InputFailure) (string, []string) {
	var reasons []string

	if record != nil {
		if !record.Preconditions.Verified {
			reasons = append(reasons, "preconditions.mismatch")
			return statusFail, reasons
		}
		for _, r := range record.Results {
			if r.Status == apply.StatusFailed {
				reasons = append(reasons, "apply.failed")
				return statusFail, reasons
			}
		}
	}

	if p.Summary.OpsTotal == 0 {
		if len(inputsAvailable) == 0 {
			reasons = append(reasons, "no_inputs_available")
			return statusWarn, reasons
		}
		if record == nil || record.Summary.Applied == p.Summary.OpsTotal {
			return statusPass, nil
		}
	}

	if p.Summary.OpsBlocked > 0 {
		reasons = append(reasons, "ops_blocked")
		return statusWarn, reasons
	}

	if record == nil {
		if p.Summary.OpsTotal > 0 {
			reasons = append(reasons, "not_applied")
			return statusWarn, reasons
		}
		return statusPass, nil
	}

	if record.Summary.Applied < record.Summary.Attempted {
		reasons = append(reasons, "not_fully_applied")
		return statusWarn, reasons
	}
	return statusPass, nil
}
