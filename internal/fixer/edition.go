package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// NormalizeEdition enforces that each member's edition equals the
// canonical workspace edition (spec.md §4.2).
type NormalizeEdition struct{}

func NewNormalizeEdition() *NormalizeEdition { return &NormalizeEdition{} }

func (f *NormalizeEdition) FixKey() string             { return "cargo.normalize_edition" }
func (f *NormalizeEdition) ConsumesSensors() []string  { return []string{"builddiag"} }
func (f *NormalizeEdition) ConsumesCheckIDs() []string  { return []string{"rust.edition_consistent"} }
func (f *NormalizeEdition) NominalSafety() plan.SafetyClass { return plan.SafetyGuarded }

func (f *NormalizeEdition) Plan(ctx Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error) {
	return planCanonicalScalar(ctx, repo, findings, canonicalScalarFixer{
		fixKey:       f.FixKey(),
		canonicalKey: "edition",
		paramName:    "edition",
		ruleID:       tomledit.RuleNormalizeEdition,
		description:  "normalize edition to the workspace canonical value",
	})
}
