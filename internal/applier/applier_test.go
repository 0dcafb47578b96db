package applier

import (
	"testing"

	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/planner"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
)

func planResolverFix(t *testing.T, repo *repoview.Memory, cfg policy.Config) *plan.Plan {
	t.Helper()
	receipts := receipt.NewSet([]receipt.Finding{
		{Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver", Path: "Cargo.toml", Severity: receipt.SeverityWarn},
	}, nil, nil)
	p, err := planner.Plan(planner.Request{Repo: repo, Receipts: receipts, Policy: cfg, Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return p
}

func TestApplyWritesThroughAndRecordsApplied(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	p := planResolverFix(t, repo, policy.DefaultConfig())

	record, err := Apply(repo, repo, p, Options{Policy: policy.DefaultConfig()}, apply.ToolInfo{Name: "buildfix", Version: "test"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !record.Preconditions.Verified {
		t.Fatalf("expected preconditions to verify, got %#v", record.Preconditions)
	}
	if record.Summary.Applied != 1 || record.Summary.Blocked != 0 || record.Summary.Failed != 0 {
		t.Fatalf("unexpected summary: %#v", record.Summary)
	}
	got := string(repo.Snapshot()["Cargo.toml"])
	want := "[workspace]\nmembers = [\"a\"]\nresolver = \"2\"\n"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestApplyDryRunDoesNotWrite(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	p := planResolverFix(t, repo, policy.DefaultConfig())

	record, err := Apply(repo, repo, p, Options{Policy: policy.DefaultConfig(), DryRun: true}, apply.ToolInfo{Name: "buildfix", Version: "test"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if record.Results[0].Status != apply.StatusSkipped {
		t.Fatalf("expected skipped status in dry run, got %#v", record.Results[0])
	}
	got := string(repo.Snapshot()["Cargo.toml"])
	want := "[workspace]\nmembers = [\"a\"]\n"
	if got != want {
		t.Fatalf("expected dry run to leave file untouched, got:\n%s", got)
	}
}

func TestApplyAbortsOnPreconditionMismatch(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	p := planResolverFix(t, repo, policy.DefaultConfig())

	// Mutate the file after planning so the recorded precondition hash
	// no longer matches what apply observes.
	if err := repo.WriteFile("Cargo.toml", []byte("[workspace]\nmembers = [\"a\", \"b\"]\n")); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	record, err := Apply(repo, repo, p, Options{Policy: policy.DefaultConfig()}, apply.ToolInfo{Name: "buildfix", Version: "test"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if record.Preconditions.Verified {
		t.Fatalf("expected precondition mismatch to be detected")
	}
	if len(record.Preconditions.Mismatches) == 0 {
		t.Fatalf("expected at least one recorded mismatch")
	}
	if record.Results[0].Status != apply.StatusBlocked {
		t.Fatalf("expected op blocked on precondition mismatch, got %#v", record.Results[0])
	}
	got := string(repo.Snapshot()["Cargo.toml"])
	if got != "[workspace]\nmembers = [\"a\", \"b\"]\n" {
		t.Fatalf("expected no write when preconditions mismatch, got:\n%s", got)
	}
}

func TestApplyReGatesAgainstStricterPolicy(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml":   []byte("[workspace]\nmembers = [\"a\"]\n\n[workspace.package]\nrust-version = \"1.74\"\n"),
		"a/Cargo.toml": []byte("[package]\nname = \"a\"\nrust-version = \"1.70\"\n"),
	})
	planPolicy := policy.DefaultConfig()
	planPolicy.AllowGuarded = true
	receipts := receipt.NewSet([]receipt.Finding{
		{Sensor: "builddiag", CheckID: "rust.msrv_consistent", Code: "mismatch", Path: "a/Cargo.toml", Severity: receipt.SeverityWarn},
	}, nil, nil)
	p, err := planner.Plan(planner.Request{Repo: repo, Receipts: receipts, Policy: planPolicy, Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Ops[0].Blocked {
		t.Fatalf("expected guarded op to be unblocked under a guarded-allowing plan policy")
	}

	// Apply with a stricter policy than the one the plan was computed under.
	record, err := Apply(repo, repo, p, Options{Policy: policy.DefaultConfig()}, apply.ToolInfo{Name: "buildfix", Version: "test"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if record.Results[0].Status != apply.StatusBlocked {
		t.Fatalf("expected re-gate to block op under stricter apply-time policy, got %#v", record.Results[0])
	}
}

func TestApplyBackupWritesOriginalContentBeforeOverwrite(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	p := planResolverFix(t, repo, policy.DefaultConfig())

	_, err := Apply(repo, repo, p, Options{
		Policy: policy.DefaultConfig(), BackupEnabled: true, BackupDir: "backups", BackupSuffix: ".bak",
	}, apply.ToolInfo{Name: "buildfix", Version: "test"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	backup, ok := repo.Snapshot()["backups/Cargo.toml.bak"]
	if !ok {
		t.Fatalf("expected a backup file to be written")
	}
	if string(backup) != "[workspace]\nmembers = [\"a\"]\n" {
		t.Fatalf("expected backup to hold pre-edit content, got:\n%s", backup)
	}
}
