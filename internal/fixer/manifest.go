package fixer

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/EffortlessMetrics/buildfix/internal/pathsafe"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// dependencyTables are the table names under which Cargo.toml
// dependency entries commonly live; fixers that scan for dependency
// entries check all of them in this fixed order, which also doubles as
// tie-break order when more than one table has a candidate.
var dependencyTables = []string{"dependencies", "dev-dependencies", "build-dependencies"}

// readManifest loads and parses the TOML document at path under repo.
func readManifest(repo repoview.View, target string) (*tomledit.Document, []byte, error) {
	content, err := repo.ReadText(target)
	if err != nil {
		return nil, nil, fmt.Errorf("fixer: read %s: %w", target, err)
	}
	doc, err := tomledit.Parse(content)
	if err != nil {
		return nil, nil, fmt.Errorf("fixer: parse %s: %w", target, err)
	}
	return doc, content, nil
}

// resolveRelative resolves a Cargo path-dependency value (e.g. "../b")
// against the directory containing fromManifest, appends "Cargo.toml",
// and canonicalizes the result.
func resolveRelative(fromManifest, rel string) (string, error) {
	dir := path.Dir(fromManifest)
	joined := path.Join(dir, rel, "Cargo.toml")
	return pathsafe.Canonicalize(joined)
}

// packageVersion reads [package].version from the manifest at target,
// if present.
func packageVersion(repo repoview.View, target string) (string, bool) {
	doc, _, err := readManifest(repo, target)
	if err != nil {
		return "", false
	}
	return scalarString(doc, "package", "version")
}

// workspaceCanonical reads a [workspace.package] scalar (rust-version,
// edition) from the repository's root manifest.
func workspaceCanonical(repo repoview.View, rootManifest, key string) (string, bool) {
	doc, _, err := readManifest(repo, rootManifest)
	if err != nil {
		return "", false
	}
	return scalarString(doc, "workspace.package", key)
}

// scalarString reads table.key as an unquoted string scalar.
func scalarString(doc *tomledit.Document, table, key string) (string, bool) {
	raw, ok := doc.ScalarValue(table, key)
	if !ok {
		return "", false
	}
	return unquote(raw), true
}

// unquote strips a leading and trailing '"' from a raw TOML string
// value, if present; non-string raw values (bools, numbers) pass
// through unchanged.
func unquote(raw string) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		v, err := strconv.Unquote(raw)
		if err == nil {
			return v
		}
		return raw[1 : len(raw)-1]
	}
	return raw
}

// pathDepEntry describes one inline-table dependency entry found while
// scanning a manifest's dependency tables.
type pathDepEntry struct {
	table string
	key   string
	path  string // the dependency's "path" field value, unquoted
	hasVersion bool
}

// findPathDependencies scans every dependency table in doc for inline
// table entries carrying a "path" field, returning each one along with
// whether it already has a "version" field.
func findPathDependencies(doc *tomledit.Document) ([]pathDepEntry, error) {
	var found []pathDepEntry
	for _, table := range dependencyTables {
		keys, err := doc.InlineTableKeys(table)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			fields, ok, err := doc.GetInlineTable(table, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			var pathValue string
			var hasPath, hasVersion bool
			for _, f := range fields {
				switch f.Key {
				case "path":
					hasPath = true
					pathValue = unquote(f.Value)
				case "version":
					hasVersion = true
				}
			}
			if hasPath {
				found = append(found, pathDepEntry{table: table, key: key, path: pathValue, hasVersion: hasVersion})
			}
		}
	}
	return found, nil
}

// workspaceDependencyKeys returns the set of dependency names declared
// under the root manifest's [workspace.dependencies] table.
func workspaceDependencyKeys(repo repoview.View, rootManifest string) (map[string]bool, error) {
	doc, _, err := readManifest(repo, rootManifest)
	if err != nil {
		return nil, err
	}
	keys, err := doc.InlineTableKeys("workspace.dependencies")
	if err != nil {
		return nil, err
	}
	simple, err := doc.ScalarKeys("workspace.dependencies")
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(keys)+len(simple))
	for _, k := range keys {
		set[k] = true
	}
	for _, k := range simple {
		set[k] = true
	}
	return set, nil
}

// workspaceDependencyVersion reads the source-of-truth version of a
// [workspace.dependencies] entry, whether declared as a bare version
// string or as an inline table's "version" field.
func workspaceDependencyVersion(rootDoc *tomledit.Document, key string) (string, bool) {
	if fields, ok, err := rootDoc.GetInlineTable("workspace.dependencies", key); err == nil && ok {
		for _, f := range fields {
			if f.Key == "version" {
				return unquote(f.Value), true
			}
		}
		return "", false
	}
	if v, ok := rootDoc.ScalarValue("workspace.dependencies", key); ok {
		return unquote(v), true
	}
	return "", false
}

// rootManifestPath is the root workspace manifest path: findings
// for the v1 fixers always carry the member manifest's path, and the
// root manifest is conventionally the top-level "Cargo.toml".
const rootManifestPath = "Cargo.toml"

// dirOf is a small readability wrapper over path.Dir for repo-relative,
// forward-slash paths.
func dirOf(p string) string {
	if !strings.Contains(p, "/") {
		return "."
	}
	return path.Dir(p)
}
