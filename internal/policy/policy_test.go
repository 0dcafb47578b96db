package policy

import "testing"

func TestEvaluateDenyWinsOverAllow(t *testing.T) {
	cfg := Config{Allow: []string{"*/*/*"}, Deny: []string{"depguard/*/*"}}
	result := cfg.Evaluate("depguard/deps.path_requires_version/missing_version", SafetyInput{Safety: "Safe"})
	if !result.Blocked || result.Reason != ReasonDenied {
		t.Fatalf("expected deny to block, got %#v", result)
	}
}

func TestEvaluateNotAllowedWhenAllowListNonEmpty(t *testing.T) {
	cfg := Config{Allow: []string{"depguard/*/*"}}
	result := cfg.Evaluate("builddiag/workspace.resolver_v2/missing_resolver", SafetyInput{Safety: "Safe"})
	if !result.Blocked || result.Reason != ReasonNotAllowed {
		t.Fatalf("expected not-allowed block, got %#v", result)
	}
}

func TestEvaluateGuardedRequiresOptIn(t *testing.T) {
	cfg := Config{}
	blocked := cfg.Evaluate("x/y/z", SafetyInput{Safety: "Guarded"})
	if !blocked.Blocked || blocked.Reason != ReasonGuardedRequired {
		t.Fatalf("expected guarded to require opt-in, got %#v", blocked)
	}
	cfg.AllowGuarded = true
	allowed := cfg.Evaluate("x/y/z", SafetyInput{Safety: "Guarded"})
	if allowed.Blocked {
		t.Fatalf("expected guarded to pass once allowed, got %#v", allowed)
	}
}

func TestEvaluateUnsafeRequiresOptInAndParams(t *testing.T) {
	cfg := Config{AllowUnsafe: true, Params: map[string]string{}}
	blocked := cfg.Evaluate("x/y/z", SafetyInput{Safety: "Unsafe", ParamsRequired: []string{"version"}})
	if !blocked.Blocked || blocked.Reason != ReasonUnsafeRequired {
		t.Fatalf("expected missing param to block unsafe op, got %#v", blocked)
	}

	cfg.Params = map[string]string{"version": "1.2.3"}
	allowed := cfg.Evaluate("x/y/z", SafetyInput{Safety: "Unsafe", ParamsRequired: []string{"version"}})
	if allowed.Blocked {
		t.Fatalf("expected unsafe op to pass with opt-in and params, got %#v", allowed)
	}
}

func TestEvaluateCapsOrderOpsThenFilesThenBytes(t *testing.T) {
	cfg := Config{MaxOps: 1, MaxFiles: 5, MaxPatchBytes: 100}
	if out := cfg.EvaluateCaps(2, 1, 10); !out.Exceeded || out.Reason != ReasonCapMaxOps {
		t.Fatalf("expected max_ops to trip first, got %#v", out)
	}
	cfg = Config{MaxFiles: 1, MaxPatchBytes: 100}
	if out := cfg.EvaluateCaps(1, 2, 10); !out.Exceeded || out.Reason != ReasonCapMaxFiles {
		t.Fatalf("expected max_files to trip, got %#v", out)
	}
	cfg = Config{MaxPatchBytes: 10}
	if out := cfg.EvaluateCaps(1, 1, 11); !out.Exceeded || out.Reason != ReasonCapMaxPatchBytes {
		t.Fatalf("expected max_patch_bytes to trip, got %#v", out)
	}
}

func TestEvaluateCapsZeroMeansUnlimited(t *testing.T) {
	cfg := Config{}
	if out := cfg.EvaluateCaps(1000, 1000, 1 << 20); out.Exceeded {
		t.Fatalf("expected zero-valued caps to never trip, got %#v", out)
	}
}

func TestMatchGlobIsSegmentAware(t *testing.T) {
	if !MatchGlob("depguard/*/*", "depguard/deps.path_requires_version/missing_version") {
		t.Fatalf("expected glob to match within one segment")
	}
	if MatchGlob("depguard/*", "depguard/deps.path_requires_version/missing_version") {
		t.Fatalf("expected glob not to cross a path separator")
	}
}
