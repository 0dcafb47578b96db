package fixer

import (
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// UseWorkspaceDependency enforces that member dependency entries listed
// in [workspace.dependencies] use inheritance (spec.md §4.2).
type UseWorkspaceDependency struct{}

func NewUseWorkspaceDependency() *UseWorkspaceDependency { return &UseWorkspaceDependency{} }

func (f *UseWorkspaceDependency) FixKey() string            { return "cargo.use_workspace_dependency" }
func (f *UseWorkspaceDependency) ConsumesSensors() []string { return []string{"depguard"} }
func (f *UseWorkspaceDependency) ConsumesCheckIDs() []string {
	return []string{"deps.use_workspace_dependency"}
}
func (f *UseWorkspaceDependency) NominalSafety() plan.SafetyClass { return plan.SafetySafe }

func (f *UseWorkspaceDependency) Plan(_ Context, repo repoview.View, findings []receipt.Finding) ([]plan.Operation, error) {
	workspaceKeys, err := workspaceDependencyKeys(repo, rootManifestPath)
	if err != nil {
		return nil, err
	}
	rootDoc, _, err := readManifest(repo, rootManifestPath)
	if err != nil {
		return nil, err
	}

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

		for _, table := range dependencyTables {
			inlineKeys, err := doc.InlineTableKeys(table)
			if err != nil {
				return nil, err
			}
			for _, key := range inlineKeys {
				if !workspaceKeys[key] {
					continue
				}
				fields, ok, err := doc.GetInlineTable(table, key)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				alreadyInherited := false
				var explicitVersion string
				for _, field := range fields {
					if field.Key == "workspace" {
						alreadyInherited = true
					}
					if field.Key == "version" {
						explicitVersion = unquote(field.Value)
					}
				}
				if alreadyInherited {
					continue // satisfies the invariant
				}

				safety := plan.SafetySafe
				if explicitVersion != "" {
					if sourceVersion, ok := workspaceDependencyVersion(rootDoc, key); ok && sourceVersion != explicitVersion {
						safety = plan.SafetyGuarded
					}
				}

				op := plan.Operation{
					TargetPath: target,
					Kind:       plan.TomlTransform(tomledit.RuleInheritWorkspaceDependency, map[string]any{"table": table, "key": key}),
					Safety:     safety,
					Rationale:  rationale(f.FixKey(), "inherit workspace dependency "+key, fi),
				}
				// A member entry overriding a field the rule can't safely fold
				// into `{ workspace = true }` form is planned already-blocked:
				// the edit alone fails, not the whole run (spec.md §4.4).
				if badKey, unsupported := tomledit.UnsupportedOverrideKey(fields); unsupported {
					op.Blocked = true
					op.BlockedReason = "edit.unsupported_override"
					op.Rationale.Description += ": unsupported override field " + badKey
				}
				ops = append(ops, op)
			}

			// A bare `key = "1.0"` entry carries no overrides at all; it
			// folds straight to `{ workspace = true }` (tomledit.inheritWorkspaceDependency's
			// bare-version branch).
			scalarKeys, err := doc.ScalarKeys(table)
			if err != nil {
				return nil, err
			}
			for _, key := range scalarKeys {
				if !workspaceKeys[key] {
					continue
				}
				value, ok := doc.ScalarValue(table, key)
				if !ok {
					continue
				}
				explicitVersion := unquote(value)
				if explicitVersion == "" || (value[0] != '"' && value[0] != '\'') {
					continue // not a plain version string (e.g. a bool/array entry)
				}

				safety := plan.SafetySafe
				if sourceVersion, ok := workspaceDependencyVersion(rootDoc, key); ok && sourceVersion != explicitVersion {
					safety = plan.SafetyGuarded
				}

				ops = append(ops, plan.Operation{
					TargetPath: target,
					Kind:       plan.TomlTransform(tomledit.RuleInheritWorkspaceDependency, map[string]any{"table": table, "key": key}),
					Safety:     safety,
					Rationale:  rationale(f.FixKey(), "inherit workspace dependency "+key, fi),
				})
			}
		}
	}
	return ops, nil
}
