package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
)

// canonicalScalarFixer parameterizes the shared shape of
// NormalizeRustVersion and NormalizeEdition: both compare a member's
// [package].<canonicalKey> against the workspace's
// [workspace.package].<canonicalKey>, and both escalate to Unsafe with
// the same named --param when no canonical value exists.
type canonicalScalarFixer struct {
	fixKey       string
	canonicalKey string
	paramName    string
	ruleID       string
	description  string
}

func planCanonicalScalar(ctx Context, repo repoview.View, findings []receipt.Finding, f canonicalScalarFixer) ([]plan.Operation, error) {
	var ops []plan.Operation
	seenByFile := make(map[string]bool)

	for _, fi := range findings {
		target := fi.Path
		if target == "" || seenByFile[target] {
			continue
		}
		seenByFile[target] = true

		doc, _, err := readManifest(repo, target)
		if err != nil {
			return nil, err
		}
		current, _ := scalarString(doc, "package", f.canonicalKey)

		canonical, hasCanonical := workspaceCanonical(repo, rootManifestPath, f.canonicalKey)
		if hasCanonical {
			if current == canonical {
				continue // already satisfies the invariant
			}
			ops = append(ops, plan.Operation{
				TargetPath: target,
				Kind:       plan.TomlTransform(f.ruleID, map[string]any{"value": canonical}),
				Safety:     plan.SafetyGuarded,
				Rationale:  rationale(f.fixKey, f.description, fi),
			})
			continue
		}

		if override, ok := ctx.param(f.paramName); ok {
			if current == override {
				continue
			}
			ops = append(ops, plan.Operation{
				TargetPath: target,
				Kind:       plan.TomlTransform(f.ruleID, map[string]any{"value": override}),
				Safety:     plan.SafetyGuarded,
				Rationale:  rationale(f.fixKey, f.description+" (from --param "+f.paramName+")", fi),
			})
			continue
		}

		// No canonical value exists anywhere and none was supplied:
		// escalate to Unsafe (spec.md §4.2 escalation rule).
		ops = append(ops, plan.Operation{
			TargetPath:     target,
			Kind:           plan.TomlTransform(f.ruleID, map[string]any{}),
			Safety:         plan.SafetyUnsafe,
			ParamsRequired: []string{f.paramName},
			Rationale:      rationale(f.fixKey, "no canonical "+f.canonicalKey+" value exists", fi),
		})
	}
	return ops, nil
}
