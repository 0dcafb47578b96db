package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// NormalizeRustVersion enforces that each member's [package].rust-version
// equals the canonical workspace value (spec.md §4.2, §8 scenario 4).
type NormalizeRustVersion struct{}

func NewNormalizeRustVersion() *NormalizeRustVersion { return &NormalizeRustVersion{} }

func (f *NormalizeRustVersion) FixKey() string            { return "cargo.normalize_rust_version" }
func (f *NormalizeRustVersion) ConsumesSensors() []string { return []string{"builddiag"} }
func (f *NormalizeRustVersion) ConsumesCheckIDs() []string {
	return []string{"rust.msrv_consistent"}
}
func (f *NormalizeRustVersion) NominalSafety() plan.SafetyClass { return plan.SafetyGuarded }

func (f *NormalizeRustVersion) Plan(ctx Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error) {
	return planCanonicalScalar(ctx, repo, findings, canonicalScalarFixer{
		fixKey:      f.FixKey(),
		canonicalKey: "rust-version",
		paramName:   "rust_version",
		ruleID:      tomledit.RuleNormalizeRustVersion,
		description: "normalize rust-version to the workspace canonical value",
	})
}
