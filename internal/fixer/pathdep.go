package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// PathDepAddVersion enforces that path dependencies carry a version
// derived from the target member's [package].version (spec.md §4.2,
// §8 scenarios 2 and 3).
type PathDepAddVersion struct{}

func NewPathDepAddVersion() *PathDepAddVersion { return &PathDepAddVersion{} }

func (f *PathDepAddVersion) FixKey() string             { return "cargo.path_dep_add_version" }
func (f *PathDepAddVersion) ConsumesSensors() []string  { return []string{"depguard"} }
func (f *PathDepAddVersion) ConsumesCheckIDs() []string { return []string{"deps.path_requires_version"} }
func (f *PathDepAddVersion) NominalSafety() plan.SafetyClass { return plan.SafetySafe }

func (f *PathDepAddVersion) Plan(ctx Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error) {
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
		entries, err := findPathDependencies(doc)
		if err != nil {
			return nil, err
		}

		for _, entry := range entries {
			if entry.hasVersion {
				continue // already satisfies the invariant
			}

			version, resolved := "", false
			depManifest, err := resolveRelative(target, entry.path)
			if err == nil {
				version, resolved = packageVersion(repo, depManifest)
			}

			if resolved {
				ops = append(ops, plan.Operation{
					TargetPath: target,
					Kind: plan.TomlTransform(tomledit.RuleAddPathDepVersion, map[string]any{
						"table":   entry.table,
						"key":     entry.key,
						"version": version,
					}),
					Safety:    plan.SafetySafe,
					Rationale: rationale(f.FixKey(), "add version to path dependency "+entry.key, fi),
				})
				continue
			}

			if override, ok := ctx.param("version"); ok {
				ops = append(ops, plan.Operation{
					TargetPath: target,
					Kind: plan.TomlTransform(tomledit.RuleAddPathDepVersion, map[string]any{
						"table":   entry.table,
						"key":     entry.key,
						"version": override,
					}),
					Safety:    plan.SafetySafe,
					Rationale: rationale(f.FixKey(), "add version to path dependency "+entry.key+" from --param version", fi),
				})
				continue
			}

			// Target version unreadable or ambiguous, and no override
			// supplied: escalate to Unsafe (spec.md §4.2 escalation rule).
			ops = append(ops, plan.Operation{
				TargetPath:     target,
				Kind:           plan.TomlTransform(tomledit.RuleAddPathDepVersion, map[string]any{"table": entry.table, "key": entry.key}),
				Safety:         plan.SafetyUnsafe,
				ParamsRequired: []string{"version"},
				Rationale:      rationale(f.FixKey(), "version for path dependency "+entry.key+" could not be resolved", fi),
			})
		}
	}
	return ops, nil
}
