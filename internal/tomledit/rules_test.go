package tomledit

import "testing"

func TestApplyRuleEnsureWorkspaceResolverV2(t *testing.T) {
	doc, err := Parse([]byte("[workspace]\nmembers = [\"a\"]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	changed, err := ApplyRule(doc, RuleEnsureWorkspaceResolverV2, nil)
	if err != nil {
		t.Fatalf("apply rule: %v", err)
	}
	if !changed {
		t.Fatalf("expected change")
	}
	want := "[workspace]\nmembers = [\"a\"]\nresolver = \"2\"\n"
	if got := string(doc.Bytes()); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestApplyRuleAddPathDepVersion(t *testing.T) {
	doc, err := Parse([]byte("[dependencies]\nb = { path = \"../b\" }\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	changed, err := ApplyRule(doc, RuleAddPathDepVersion, map[string]any{
		"table": "dependencies", "key": "b", "version": "0.3.1",
	})
	if err != nil {
		t.Fatalf("apply rule: %v", err)
	}
	if !changed {
		t.Fatalf("expected change")
	}
	want := "[dependencies]\nb = { path = \"../b\", version = \"0.3.1\" }\n"
	if got := string(doc.Bytes()); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestApplyRuleAddPathDepVersionRejectsNonInlineTable(t *testing.T) {
	doc, err := Parse([]byte("[dependencies]\nb = \"0.1\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = ApplyRule(doc, RuleAddPathDepVersion, map[string]any{
		"table": "dependencies", "key": "b", "version": "0.3.1",
	})
	if err == nil {
		t.Fatalf("expected error for a non-inline-table dependency entry")
	}
}

func TestApplyRuleInheritWorkspaceDependencyPreservesAllowedFields(t *testing.T) {
	doc, err := Parse([]byte("[dependencies]\nserde = { version = \"1\", features = [\"derive\"] }\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	changed, err := ApplyRule(doc, RuleInheritWorkspaceDependency, map[string]any{
		"table": "dependencies", "key": "serde",
	})
	if err != nil {
		t.Fatalf("apply rule: %v", err)
	}
	if !changed {
		t.Fatalf("expected change")
	}
	want := "[dependencies]\nserde = { workspace = true, features = [\"derive\"] }\n"
	if got := string(doc.Bytes()); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestApplyRuleInheritWorkspaceDependencyIsNoOpWhenAlreadyInherited(t *testing.T) {
	doc, err := Parse([]byte("[dependencies]\nserde = { workspace = true }\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	changed, err := ApplyRule(doc, RuleInheritWorkspaceDependency, map[string]any{
		"table": "dependencies", "key": "serde",
	})
	if err != nil {
		t.Fatalf("apply rule: %v", err)
	}
	if changed {
		t.Fatalf("expected no-op, already inherited")
	}
}

func TestApplyRuleInheritWorkspaceDependencyRejectsUnsupportedOverride(t *testing.T) {
	doc, err := Parse([]byte("[dependencies]\nserde = { git = \"https://example.com/serde\" }\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = ApplyRule(doc, RuleInheritWorkspaceDependency, map[string]any{
		"table": "dependencies", "key": "serde",
	})
	if err == nil {
		t.Fatalf("expected error for unsupported override field")
	}
}

func TestUnsupportedOverrideKey(t *testing.T) {
	if _, ok := UnsupportedOverrideKey([]InlineField{{Key: "features", Value: `["derive"]`}}); ok {
		t.Fatalf("expected no unsupported override among preservable fields")
	}
	key, ok := UnsupportedOverrideKey([]InlineField{{Key: "git", Value: `"https://example.com"`}})
	if !ok || key != "git" {
		t.Fatalf("expected unsupported override %q, got key=%q ok=%v", "git", key, ok)
	}
}

func TestApplyRuleNormalizeRustVersionAndEdition(t *testing.T) {
	doc, err := Parse([]byte("[package]\nname = \"a\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ApplyRule(doc, RuleNormalizeRustVersion, map[string]any{"value": "1.74"}); err != nil {
		t.Fatalf("apply rust-version rule: %v", err)
	}
	if _, err := ApplyRule(doc, RuleNormalizeEdition, map[string]any{"value": "2021"}); err != nil {
		t.Fatalf("apply edition rule: %v", err)
	}
	want := "[package]\nname = \"a\"\nrust-version = \"1.74\"\nedition = \"2021\"\n"
	if got := string(doc.Bytes()); got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestApplyRuleUnknownRuleID(t *testing.T) {
	doc, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ApplyRule(doc, "not_a_real_rule", nil); err == nil {
		t.Fatalf("expected error for unknown rule id")
	}
}
