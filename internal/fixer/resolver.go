package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// ResolverV2 enforces [workspace].resolver = "2" on the root manifest
// (spec.md §4.2, §8 scenario 1).
type ResolverV2 struct{}

func NewResolverV2() *ResolverV2 { return &ResolverV2{} }

func (f *ResolverV2) FixKey() string                 { return "cargo.workspace_resolver_v2" }
func (f *ResolverV2) ConsumesSensors() []string      { return []string{"builddiag"} }
func (f *ResolverV2) ConsumesCheckIDs() []string     { return []string{"workspace.resolver_v2"} }
func (f *ResolverV2) NominalSafety() plan.SafetyClass { return plan.SafetySafe }

func (f *ResolverV2) Plan(_ Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error) {
	var ops []plan.Operation
	for _, fi := range findings {
		target := fi.Path
		if target == "" {
			continue
		}

		doc, _, err := readManifest(repo, target)
		if err != nil {
			return nil, err
		}
		if v, ok := doc.ScalarValue("workspace", "resolver"); ok && v == `"2"` {
			continue // already satisfies the invariant: idempotent no-op
		}

		ops = append(ops, plan.Operation{
			TargetPath: target,
			Kind:       plan.TomlTransform(tomledit.RuleEnsureWorkspaceResolverV2, nil),
			Safety:     plan.SafetySafe,
			Rationale:  rationale(f.FixKey(), `set [workspace].resolver = "2"`, fi),
		})
	}
	return ops, nil
}
