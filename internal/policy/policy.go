// Package policy implements the allow/deny glob matching, safety gates,
// and operational caps of spec.md §4.5, and the YAML-decodable Config
// shape the Policy Engine's contract includes.
//
// Glob matching is grounded on the teacher pack's
// felixgeelhaar-preflight internal/domain/policy evaluator, which uses
// path/filepath's segment-aware Match against a colon-joined routing
// key; buildfix adapts the same approach to PolicyKey's "/"-joined
// three-segment form.
package policy

import (
	"path/filepath"
	"strings"
)

// Config is the effective policy configuration: allow/deny globs over
// PolicyKey, safety opt-ins, caps, and working-tree tolerance.
type Config struct {
	Allow        []string `yaml:"allow"`
	Deny         []string `yaml:"deny"`
	AllowGuarded bool     `yaml:"allow_guarded"`
	AllowUnsafe  bool     `yaml:"allow_unsafe"`
	AllowDirty   bool     `yaml:"allow_dirty"`
	MaxOps       int      `yaml:"max_ops"`
	MaxFiles     int      `yaml:"max_files"`
	MaxPatchBytes int     `yaml:"max_patch_bytes"`
	Params       map[string]string `yaml:"params"`
}

// Block reasons (spec.md §7).
const (
	ReasonDenied              = "policy.denied"
	ReasonNotAllowed          = "policy.not_allowed"
	ReasonGuardedRequired     = "safety.guarded_required"
	ReasonUnsafeRequired      = "safety.unsafe_required_or_missing_params"
	ReasonCapMaxOps           = "cap.max_ops"
	ReasonCapMaxFiles         = "cap.max_files"
	ReasonCapMaxPatchBytes    = "cap.max_patch_bytes"
	ReasonPreconditionMismatch = "preconditions.mismatch"
	ReasonWorkingTreeDirty    = "workingtree.dirty"
	ReasonApplyNotEnabled     = "apply.not_enabled"
	ReasonSafetyGateDenied    = "safety_gate_denied"
)

// MatchGlob reports whether value matches pattern, where pattern and
// value are both "/"-separated strings and "*"/"?" act over a single
// segment at a time (filepath.Match never crosses a path separator).
// Evaluation is case-sensitive, per spec.md §4.5.
func MatchGlob(pattern, value string) bool {
	matched, err := filepath.Match(pattern, value)
	return err == nil && matched
}

// anyMatch reports whether value matches any of patterns.
func anyMatch(patterns []string, value string) bool {
	for _, p := range patterns {
		if MatchGlob(p, value) {
			return true
		}
	}
	return false
}

// GateResult is the outcome of evaluating one operation against policy.
type GateResult struct {
	Blocked bool
	Reason  string
}

// SafetyInput carries the facts the safety gate needs beyond the glob
// match: the operation's (possibly escalated) safety class and its
// required parameters.
type SafetyInput struct {
	Safety         string
	ParamsRequired []string
}

// Evaluate runs the allow/deny/safety-gate order of spec.md §4.3 step 4
// / §4.5 against one operation's policy key. Caps are evaluated
// separately, over the whole filtered op set, by EvaluateCaps.
func (c Config) Evaluate(policyKey string, safety SafetyInput) GateResult {
	if anyMatch(c.Deny, policyKey) {
		return GateResult{Blocked: true, Reason: ReasonDenied}
	}
	if len(c.Allow) > 0 && !anyMatch(c.Allow, policyKey) {
		return GateResult{Blocked: true, Reason: ReasonNotAllowed}
	}

	switch safety.Safety {
	case "Guarded":
		if !c.AllowGuarded {
			return GateResult{Blocked: true, Reason: ReasonGuardedRequired}
		}
	case "Unsafe":
		if !c.AllowUnsafe || !c.hasAllParams(safety.ParamsRequired) {
			return GateResult{Blocked: true, Reason: ReasonUnsafeRequired}
		}
	}
	return GateResult{}
}

func (c Config) hasAllParams(required []string) bool {
	for _, name := range required {
		if strings.TrimSpace(c.Params[name]) == "" {
			return false
		}
	}
	return true
}

// CapOutcome reports which cap, if any, was exceeded by a candidate op
// set (spec.md §4.3 step 6: exceeding any cap blocks ALL ops).
type CapOutcome struct {
	Exceeded bool
	Reason   string
}

// EvaluateCaps checks the post-filter operation set against the
// configured caps, in the order ops/files/patch-bytes.
func (c Config) EvaluateCaps(opsCount, filesCount, patchBytes int) CapOutcome {
	if c.MaxOps > 0 && opsCount > c.MaxOps {
		return CapOutcome{Exceeded: true, Reason: ReasonCapMaxOps}
	}
	if c.MaxFiles > 0 && filesCount > c.MaxFiles {
		return CapOutcome{Exceeded: true, Reason: ReasonCapMaxFiles}
	}
	if c.MaxPatchBytes > 0 && patchBytes > c.MaxPatchBytes {
		return CapOutcome{Exceeded: true, Reason: ReasonCapMaxPatchBytes}
	}
	return CapOutcome{}
}
