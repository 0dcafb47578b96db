// Package fixer implements the five built-in fixers of spec.md §4.2: pure,
// deterministic planning units that translate routed findings and
// read-only repository state into candidate Operations. The interface
// and registry composition mirror the teacher's analysis Registry/
// Analyser pattern (internal/analysis/service.go), adapted from
// "analyse a file and merge results" to "plan zero or more edits from a
// finding".
package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
)

// Context carries the caller-supplied parameters a fixer may need to
// resolve an otherwise-unsafe operation (e.g. --param version=1.2.3),
// keyed by the parameter name named in the fixer's ParamsRequired.
type Context struct {
	Params map[string]string
}

func (c Context) param(name string) (string, bool) {
	if c.Params == nil {
		return "", false
	}
	v, ok := c.Params[name]
	return v, ok && v != ""
}

// Fixer is a pure planning unit (spec.md §4.2). Plan MUST be
// deterministic and idempotent: given the same receipts and repo
// contents it returns the same operations, and emits nothing when the
// repository already satisfies its invariant.
type Fixer interface {
	FixKey() string
	ConsumesSensors() []string
	ConsumesCheckIDs() []string
	NominalSafety() plan.SafetyClass
	Plan(ctx Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error)
}

// Registry holds the ordered set of fixers the planner routes findings
// through. Order only affects routing iteration, never the final op
// order, which is re-sorted by the planner regardless (spec.md §4.3
// step 5).
type Registry struct {
	fixers []Fixer
}

// NewRegistry builds a registry from the given fixers, in order.
func NewRegistry(fixers ...Fixer) *Registry {
	return &Registry{fixers: append([]Fixer(nil), fixers...)}
}

// Default builds the v1 registry: the five built-in fixers.
func Default() *Registry {
	return NewRegistry(
		NewResolverV2(),
		NewPathDepAddVersion(),
		NewUseWorkspaceDependency(),
		NewNormalizeRustVersion(),
		NewNormalizeEdition(),
	)
}

// Fixers returns the registered fixers in routing order.
func (r *Registry) Fixers() []Fixer {
	return append([]Fixer(nil), r.fixers...)
}

// Route projects findings onto the subset each fixer consumes, per
// spec.md §4.3 step 2.
func Route(f Fixer, findings []receipt.Finding) []receipt.Finding {
	var matched []receipt.Finding
	for _, fi := range findings {
		if receipt.Matches(fi, f.ConsumesSensors(), f.ConsumesCheckIDs()) {
			matched = append(matched, fi)
		}
	}
	return matched
}

// rationale builds an Operation's Rationale from a fix key, a
// human-readable description, and the findings that justified it
// (copied by value, never referenced, per spec.md §3's ownership rule).
func rationale(fixKey, description string, findings ...receipt.Finding) plan.Rationale {
	out := make([]plan.RationaleFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, plan.RationaleFinding{
			Sensor:   f.Sensor,
			CheckID:  f.CheckID,
			Code:     f.Code,
			Path:     f.Path,
			Line:     f.Line,
			Severity: string(f.Severity),
		})
	}
	return plan.Rationale{FixKey: fixKey, Description: description, Findings: out}
}
