package tomledit

import (
	"fmt"
	"sort"
)

// ApplyRule dispatches a TomlTransform operation's rule_id to its
// concrete edit, using args exactly as the planner recorded them on the
// Operation (spec.md §4.4: the five v1 rules correspond one-to-one to
// the fixers of §4.2). Returns whether the document changed.
func ApplyRule(doc *Document, ruleID string, args map[string]any) (changed bool, err error) {
	switch ruleID {
	case RuleEnsureWorkspaceResolverV2:
		return ensureWorkspaceResolverV2(doc, args)
	case RuleAddPathDepVersion:
		return addPathDepVersion(doc, args)
	case RuleInheritWorkspaceDependency:
		return inheritWorkspaceDependency(doc, args)
	case RuleNormalizeRustVersion:
		return setPackageScalar(doc, "rust-version", args)
	case RuleNormalizeEdition:
		return setPackageScalar(doc, "edition", args)
	default:
		return false, fmt.Errorf("tomledit: unknown rule %q", ruleID)
	}
}

// Rule ids, one per v1 fixer (spec.md §4.2/§4.4).
const (
	RuleEnsureWorkspaceResolverV2 = "ensure_workspace_resolver_v2"
	RuleAddPathDepVersion         = "add_path_dep_version"
	RuleInheritWorkspaceDependency = "inherit_workspace_dependency"
	RuleNormalizeRustVersion      = "normalize_rust_version"
	RuleNormalizeEdition          = "normalize_edition"
)

// ensureWorkspaceResolverV2 sets [workspace].resolver = "2", anchored
// immediately after the members line when inserting fresh.
func ensureWorkspaceResolverV2(doc *Document, _ map[string]any) (bool, error) {
	return doc.SetScalar("workspace", "resolver", `"2"`, "members")
}

// setPackageScalar sets [package].<key> to args["value"], used by both
// the rust-version and edition normalizers; args["table"] overrides the
// target table for the workspace-level package defaults table
// ([workspace.package]).
func setPackageScalar(doc *Document, key string, args map[string]any) (bool, error) {
	table, _ := args["table"].(string)
	if table == "" {
		table = "package"
	}
	value, ok := args["value"].(string)
	if !ok {
		return false, fmt.Errorf("tomledit: %s: missing string arg %q", key, "value")
	}
	return doc.SetScalar(table, key, quoteString(value), "")
}

// addPathDepVersion appends a "version" field to a path dependency's
// inline table, e.g. turning `b = { path = "../b" }` into
// `b = { path = "../b", version = "0.3.1" }` (spec.md §4.2, §8
// scenario 2). args: table (dotted dependency table name), key
// (dependency name), version (string).
func addPathDepVersion(doc *Document, args map[string]any) (bool, error) {
	table, _ := args["table"].(string)
	key, _ := args["key"].(string)
	version, _ := args["version"].(string)
	if table == "" || key == "" || version == "" {
		return false, fmt.Errorf("tomledit: add_path_dep_version: missing table/key/version arg")
	}

	fields, found, err := doc.GetInlineTable(table, key)
	if err != nil {
		return false, fmt.Errorf("tomledit: add_path_dep_version: %w", err)
	}
	if !found {
		return false, fmt.Errorf("tomledit: add_path_dep_version: %s.%s is not an inline table dependency", table, key)
	}
	for i, f := range fields {
		if f.Key == "version" {
			want := quoteString(version)
			if f.Value == want {
				return false, nil
			}
			fields[i].Value = want
			return doc.SetInlineTable(table, key, fields)
		}
	}
	fields = append(fields, InlineField{Key: "version", Value: quoteString(version)})
	return doc.SetInlineTable(table, key, fields)
}

// workspaceInheritablePreserveFields are the dependency-entry fields an
// inherited workspace dependency may still carry locally; anything else
// present on the member's entry is an override the rule refuses to
// silently discard (spec.md §4.2's use_workspace_dependency edge case).
var workspaceInheritablePreserveFields = map[string]bool{
	"features":         true,
	"optional":         true,
	"default-features": true,
	"package":          true,
	"registry":         true,
}

// inheritWorkspaceDependency rewrites a member's dependency entry to
// `{ workspace = true, <preserved fields...> }`. args: table, key.
func inheritWorkspaceDependency(doc *Document, args map[string]any) (bool, error) {
	table, _ := args["table"].(string)
	key, _ := args["key"].(string)
	if table == "" || key == "" {
		return false, fmt.Errorf("tomledit: inherit_workspace_dependency: missing table/key arg")
	}

	_, lineIdx, found := doc.findKeyLine(table, key)
	if !found {
		return false, fmt.Errorf("tomledit: inherit_workspace_dependency: %s.%s not found", table, key)
	}
	existing := doc.lines[lineIdx].value

	var preserved []InlineField
	if len(existing) > 0 && existing[0] == '{' {
		fields, err := parseInlineTable(existing)
		if err != nil {
			return false, fmt.Errorf("tomledit: inherit_workspace_dependency: %w", err)
		}
		for _, f := range fields {
			if f.Key == "workspace" {
				return false, nil // already inherited
			}
			if f.Key == "version" {
				continue // the workspace declaration becomes the source of truth
			}
			if !workspaceInheritablePreserveFields[f.Key] {
				return false, fmt.Errorf(
					"tomledit: inherit_workspace_dependency: %s.%s has unsupported override %q: %w",
					table, key, f.Key, errUnsupportedOverride)
			}
			preserved = append(preserved, f)
		}
	}
	// else: a bare version string like `b = "1.0"` carries no overrides.

	sort.SliceStable(preserved, func(i, j int) bool {
		return fieldOrder(preserved[i].Key) < fieldOrder(preserved[j].Key)
	})

	newFields := append([]InlineField{{Key: "workspace", Value: "true"}}, preserved...)
	return doc.SetInlineTable(table, key, newFields)
}

// errUnsupportedOverride is wrapped into the error returned when a
// member dependency carries an override inherit_workspace_dependency
// cannot safely fold into `{ workspace = true }` form. Fixers check for
// this ahead of time via UnsupportedOverrideKey so the affected
// operation is planned already-blocked instead of failing the whole
// plan at preview time (spec.md §4.4: the operation fails, not the run).
var errUnsupportedOverride = fmt.Errorf("edit.unsupported_override")

// UnsupportedOverrideKey returns the first field key among fields that
// inherit_workspace_dependency cannot safely preserve, and ok=true if
// one exists.
func UnsupportedOverrideKey(fields []InlineField) (key string, ok bool) {
	for _, f := range fields {
		if f.Key == "workspace" || f.Key == "version" {
			continue
		}
		if !workspaceInheritablePreserveFields[f.Key] {
			return f.Key, true
		}
	}
	return "", false
}

// fieldOrder fixes a stable, readable field order for the preserved
// fields of an inherited dependency entry.
func fieldOrder(key string) int {
	switch key {
	case "features":
		return 0
	case "optional":
		return 1
	case "default-features":
		return 2
	case "package":
		return 3
	case "registry":
		return 4
	default:
		return 5
	}
}

// quoteString renders s as a TOML basic string literal. Cargo manifest
// values this package writes (resolver numbers, versions, editions) are
// always plain ASCII with no characters requiring escaping beyond the
// quote and backslash themselves.
func quoteString(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	out = append(out, '"')
	return string(out)
}
