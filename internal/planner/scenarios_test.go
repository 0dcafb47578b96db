package planner

import (
	"strings"
	"testing"

	"github.com/EffortlessMetrics/buildfix/internal/fixer"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
)

func findingSet(findings ...receipt.Finding) receipt.Set {
	return receipt.NewSet(findings, nil, nil)
}

func TestPlanResolverV2ProducesSafeOp(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver",
		Path: "Cargo.toml", Severity: receipt.SeverityWarn,
	})

	p, err := Plan(Request{Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(), Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p.Ops) != 1 {
		t.Fatalf("expected 1 op, got %d: %#v", len(p.Ops), p.Ops)
	}
	op := p.Ops[0]
	if op.ID == "" {
		t.Fatalf("expected an assigned ID")
	}
	if op.Blocked {
		t.Fatalf("expected an unblocked Safe op under default policy, got %#v", op)
	}
	if !strings.Contains(op.Preview, "resolver") {
		t.Fatalf("expected preview to mention resolver, got %q", op.Preview)
	}
	if p.Summary.OpsTotal != 1 || p.Summary.OpsBlocked != 0 || p.Summary.FilesTouched != 1 {
		t.Fatalf("unexpected summary: %#v", p.Summary)
	}
	if p.Summary.PatchBytes == 0 {
		t.Fatalf("expected non-zero patch bytes")
	}
}

func TestPlanDeterministicIDsAcrossRuns(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver",
		Path: "Cargo.toml", Severity: receipt.SeverityWarn,
	})
	req := Request{Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(), Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}}

	first, err := Plan(req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := Plan(req)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if first.Ops[0].ID != second.Ops[0].ID {
		t.Fatalf("expected identical operation ids across runs, got %q vs %q", first.Ops[0].ID, second.Ops[0].ID)
	}
}

func TestPlanGuardedOpBlockedWithoutAllowGuarded(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml":   []byte("[workspace]\nmembers = [\"a\"]\n\n[workspace.package]\nrust-version = \"1.74\"\n"),
		"a/Cargo.toml": []byte("[package]\nname = \"a\"\nrust-version = \"1.70\"\n"),
	})
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "rust.msrv_consistent", Code: "mismatch",
		Path: "a/Cargo.toml", Severity: receipt.SeverityWarn,
	})

	p, err := Plan(Request{Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(), Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p.Ops) != 1 || !p.Ops[0].Blocked || p.Ops[0].BlockedReason != policy.ReasonGuardedRequired {
		t.Fatalf("expected guarded op blocked by default, got %#v", p.Ops)
	}
	if p.Summary.OpsBlocked != 1 {
		t.Fatalf("expected 1 blocked op in summary, got %#v", p.Summary)
	}
}

func TestPlanCapsZeroOutPatchBytesWhenExceeded(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver",
		Path: "Cargo.toml", Severity: receipt.SeverityWarn,
	})
	cfg := policy.DefaultConfig()
	cfg.MaxOps = 0 // unlimited by zero-value semantics; force via MaxPatchBytes instead
	cfg.MaxFiles = 0
	cfg.MaxPatchBytes = 1 // any real patch exceeds 1 byte

	p, err := Plan(Request{Repo: repo, Receipts: receipts, Policy: cfg, Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !p.Ops[0].Blocked || p.Ops[0].BlockedReason != policy.ReasonCapMaxPatchBytes {
		t.Fatalf("expected op blocked by max_patch_bytes cap, got %#v", p.Ops)
	}
	if p.Ops[0].Preview != "" {
		t.Fatalf("expected preview cleared on a cap-blocked op, got %q", p.Ops[0].Preview)
	}
	if p.Summary.PatchBytes != 0 {
		t.Fatalf("expected patch_bytes zeroed when caps block everything, got %d", p.Summary.PatchBytes)
	}
}

func TestPlanDedupCollapsesIdenticalOperations(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	receipts := findingSet(
		receipt.Finding{Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver", Path: "Cargo.toml", Severity: receipt.SeverityWarn, Line: 1},
		receipt.Finding{Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver", Path: "Cargo.toml", Severity: receipt.SeverityWarn, Line: 2},
	)

	p, err := Plan(Request{Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(), Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p.Ops) != 1 {
		t.Fatalf("expected duplicate findings to collapse into one op, got %d: %#v", len(p.Ops), p.Ops)
	}
	if len(p.Ops[0].Rationale.Findings) != 2 {
		t.Fatalf("expected unioned findings, got %#v", p.Ops[0].Rationale.Findings)
	}
}

func TestPlanAttachesPreconditionsPerTouchedFile(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	}).WithGitHead("deadbeef").WithWorkingTreeDirty(false)
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver",
		Path: "Cargo.toml", Severity: receipt.SeverityWarn,
	})

	p, err := Plan(Request{
		Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(),
		Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}, RequireGitHeadPrecondition: true,
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p.Preconditions.Files) != 1 || p.Preconditions.Files[0].Path != "Cargo.toml" {
		t.Fatalf("expected one file precondition, got %#v", p.Preconditions.Files)
	}
	if p.Preconditions.HeadSHA != "deadbeef" {
		t.Fatalf("expected head sha precondition recorded, got %q", p.Preconditions.HeadSHA)
	}

	var kinds []string
	for _, pre := range p.Ops[0].Preconditions {
		kinds = append(kinds, pre.Kind)
	}
	wantKinds := []string{plan.PreconditionFileExists, plan.PreconditionFileSHA256, plan.PreconditionGitHeadSHA, plan.PreconditionWorkingTreeOK}
	if len(kinds) != len(wantKinds) {
		t.Fatalf("unexpected op preconditions: %#v", kinds)
	}
	for i, k := range wantKinds {
		if kinds[i] != k {
			t.Fatalf("precondition[%d] = %q, want %q", i, kinds[i], k)
		}
	}
}

func TestPlanUnsupportedOverrideBlocksOnlyThatOperation(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml":   []byte("[workspace]\nmembers = [\"a\", \"b\"]\n\n[workspace.dependencies]\nserde = { version = \"1\" }\n"),
		"a/Cargo.toml": []byte("[package]\nname = \"a\"\n\n[dependencies]\nserde = { git = \"https://example.com/serde\" }\n"),
		"b/Cargo.toml": []byte("[package]\nname = \"b\"\n\n[dependencies]\nserde = { version = \"1\" }\n"),
	})
	receipts := findingSet(
		receipt.Finding{Sensor: "depguard", CheckID: "deps.use_workspace_dependency", Code: "not_inherited", Path: "a/Cargo.toml", Severity: receipt.SeverityWarn},
		receipt.Finding{Sensor: "depguard", CheckID: "deps.use_workspace_dependency", Code: "not_inherited", Path: "b/Cargo.toml", Severity: receipt.SeverityWarn},
	)

	p, err := Plan(Request{Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(), Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}})
	if err != nil {
		t.Fatalf("plan did not abort the run for an unsupported override: %v", err)
	}
	if len(p.Ops) != 2 {
		t.Fatalf("expected both member ops to be planned, got %d: %#v", len(p.Ops), p.Ops)
	}
	var blockedCount, liveCount int
	for _, op := range p.Ops {
		if op.Blocked {
			blockedCount++
			if op.BlockedReason != "edit.unsupported_override" {
				t.Fatalf("expected edit.unsupported_override reason, got %q", op.BlockedReason)
			}
		} else {
			liveCount++
		}
	}
	if blockedCount != 1 || liveCount != 1 {
		t.Fatalf("expected exactly one blocked and one live op, got blocked=%d live=%d", blockedCount, liveCount)
	}
}

func TestPlanCustomRegistryIsUsedOverDefault(t *testing.T) {
	repo := repoview.NewMemory("/repo", map[string][]byte{
		"Cargo.toml": []byte("[workspace]\nmembers = [\"a\"]\n"),
	})
	receipts := findingSet(receipt.Finding{
		Sensor: "builddiag", CheckID: "workspace.resolver_v2", Code: "missing_resolver",
		Path: "Cargo.toml", Severity: receipt.SeverityWarn,
	})

	p, err := Plan(Request{
		Repo: repo, Receipts: receipts, Policy: policy.DefaultConfig(),
		Tool: plan.ToolInfo{Name: "buildfix", Version: "test"}, Registry: fixer.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p.Ops) != 0 {
		t.Fatalf("expected an empty registry to produce no ops, got %#v", p.Ops)
	}
}
