// Package planner orchestrates the ten ordered phases of spec.md §4.3:
// discovery and routing, fixer planning, policy filtering, ordering and
// dedup, caps, ID assignment, preconditions, preview, and plan
// emission. It is the one place that sequences the Fixer Registry, the
// Policy Engine, and the Edit Engine against a read-only Repository
// View.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/EffortlessMetrics/buildfix/internal/fixer"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/receipt"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
	"github.com/EffortlessMetrics/buildfix/internal/toolerr"
)

// Request bundles everything a single planning run needs.
type Request struct {
	Repo     repoview.View
	Receipts receipt.Set
	Policy   policy.Config
	Params   map[string]string
	Registry *fixer.Registry

	Tool plan.ToolInfo

	// RequireGitHeadPrecondition records a GitHeadSha precondition on
	// every op when true.
	RequireGitHeadPrecondition bool
}

// Plan runs the ten phases and returns the resulting artifact. An error
// is a tool error (spec.md §7): it aborts the entire run, as opposed to
// a blocked operation, which is recorded and does not abort.
func Plan(req Request) (*plan.Plan, error) {
	registry := req.Registry
	if registry == nil {
		registry = fixer.Default()
	}

	// Phase 1: discovery (the caller already loaded the ReceiptSet;
	// here we only apply the routing sort).
	sorted := req.Receipts.SortedForRouting()

	fixerCtx := fixer.Context{Params: req.Params}

	// Phases 2-3: routing and planning.
	var ops []plan.Operation
	for _, f := range registry.Fixers() {
		matched := fixer.Route(f, sorted)
		produced, err := f.Plan(fixerCtx, req.Repo, matched)
		if err != nil {
			return nil, fmt.Errorf("planner: fixer %s: %w", f.FixKey(), err)
		}
		ops = append(ops, produced...)
	}

	// Phase 4: policy filtering.
	for i := range ops {
		result := req.Policy.Evaluate(ops[i].PolicyKey(), policy.SafetyInput{
			Safety:         string(ops[i].Safety),
			ParamsRequired: ops[i].ParamsRequired,
		})
		if result.Blocked {
			ops[i].Blocked = true
			ops[i].BlockedReason = result.Reason
		}
	}

	// Phase 5: ordering & dedup.
	if err := plan.SortOperations(ops); err != nil {
		return nil, fmt.Errorf("planner: sort operations: %w", err)
	}
	ops, err := dedup(ops)
	if err != nil {
		return nil, fmt.Errorf("planner: dedup operations: %w", err)
	}
	if ops == nil {
		ops = []plan.Operation{} // an empty plan emits "ops": [], not null
	}

	// Preview pass, run once before phase 6: its byte count feeds the
	// caps check, and its previews are kept unless caps block every op,
	// in which case phase 6 clears them and zeroes patch_bytes.
	patchBytes, err := renderPreviews(req.Repo, ops)
	if err != nil {
		return nil, err
	}

	// Phase 6: caps.
	liveOps, filesTouched := liveOpsAndFiles(ops)
	capResult := req.Policy.EvaluateCaps(len(liveOps), len(filesTouched), patchBytes)
	if capResult.Exceeded {
		for i := range ops {
			if !ops[i].Blocked {
				ops[i].Blocked = true
				ops[i].BlockedReason = capResult.Reason
				ops[i].Preview = ""
			}
		}
		patchBytes = 0
	}

	// Phase 7: ID assignment.
	for i := range ops {
		if err := ops[i].AssignID(); err != nil {
			return nil, fmt.Errorf("planner: assign operation id: %w", err)
		}
	}

	// Phase 8: preconditions.
	preconditionFiles, err := attachPreconditions(req.Repo, ops, req.Policy.AllowDirty, req.RequireGitHeadPrecondition)
	if err != nil {
		return nil, err
	}

	inputs := make([]plan.InputRef, 0, len(req.Receipts.Inputs))
	for _, in := range req.Receipts.Inputs {
		inputs = append(inputs, plan.InputRef{Path: in.Path, Schema: in.Schema, Tool: in.ToolName})
	}

	opsBlocked := 0
	for _, op := range ops {
		if op.Blocked {
			opsBlocked++
		}
	}

	p := &plan.Plan{
		Schema: plan.SchemaVersion,
		Tool:   req.Tool,
		Repo:   repoInfo(req.Repo),
		Inputs: inputs,
		Policy: policySnapshot(req.Policy),
		Preconditions: plan.PreconditionSnapshot{
			Files:   preconditionFiles,
			HeadSHA: headSHAIfEnabled(req.Repo, req.RequireGitHeadPrecondition),
			Dirty:   dirtyPointerIfTracked(req.Repo, req.Policy.AllowDirty),
		},
		Ops: ops,
		Summary: plan.Summary{
			OpsTotal:     len(ops),
			OpsBlocked:   opsBlocked,
			FilesTouched: len(filesTouched),
			PatchBytes:   patchBytes,
		},
	}
	return p, nil
}

func liveOpsAndFiles(ops []plan.Operation) ([]plan.Operation, map[string]bool) {
	var live []plan.Operation
	files := make(map[string]bool)
	for _, op := range ops {
		if op.Blocked {
			continue
		}
		live = append(live, op)
		files[op.TargetPath] = true
	}
	return live, files
}

func repoInfo(repo repoview.View) plan.RepoInfo {
	info := plan.RepoInfo{Root: repo.Root()}
	if sha, ok := repo.GitHead(); ok {
		info.HeadSHA = sha
	}
	if dirty, ok := repo.WorkingTreeDirty(); ok {
		d := dirty
		info.Dirty = &d
	}
	return info
}

func headSHAIfEnabled(repo repoview.View, enabled bool) string {
	if !enabled {
		return ""
	}
	sha, _ := repo.GitHead()
	return sha
}

func dirtyPointerIfTracked(repo repoview.View, allowDirty bool) *bool {
	if allowDirty {
		return nil
	}
	dirty, ok := repo.WorkingTreeDirty()
	if !ok {
		return nil
	}
	return &dirty
}

func policySnapshot(cfg policy.Config) plan.PolicySnapshot {
	return plan.PolicySnapshot{
		Allow:         cfg.Allow,
		Deny:          cfg.Deny,
		AllowGuarded:  cfg.AllowGuarded,
		AllowUnsafe:   cfg.AllowUnsafe,
		AllowDirty:    cfg.AllowDirty,
		MaxOps:        cfg.MaxOps,
		MaxFiles:      cfg.MaxFiles,
		MaxPatchBytes: cfg.MaxPatchBytes,
	}
}

// attachPreconditions computes, for each unique target path among
// non-blocked ops, a FileExists+FileSha256 precondition pair (and
// optionally GitHeadSha/WorkingTreeClean), attaches a copy to every op
// touching that path, and returns the deduplicated file list for the
// plan-level snapshot (spec.md §4.3 step 8).
func attachPreconditions(repo repoview.View, ops []plan.Operation, allowDirty, requireGitHead bool) ([]plan.FilePrecondition, error) {
	shas := make(map[string]string)
	var order []string
	for _, op := range ops {
		if op.Blocked {
			continue
		}
		if _, ok := shas[op.TargetPath]; ok {
			continue
		}
		content, err := repo.ReadText(op.TargetPath)
		if err != nil {
			return nil, fmt.Errorf("planner: read %s for precondition: %w", op.TargetPath, err)
		}
		sum := sha256.Sum256(content)
		shas[op.TargetPath] = hex.EncodeToString(sum[:])
		order = append(order, op.TargetPath)
	}
	sort.Strings(order)

	var headSHA string
	var haveHead bool
	if requireGitHead {
		headSHA, haveHead = repo.GitHead()
	}

	for i := range ops {
		if ops[i].Blocked {
			continue
		}
		sha, ok := shas[ops[i].TargetPath]
		if !ok {
			continue
		}
		preconditions := []plan.Precondition{
			{Kind: plan.PreconditionFileExists, Path: ops[i].TargetPath},
			{Kind: plan.PreconditionFileSHA256, Path: ops[i].TargetPath, SHA256: sha},
		}
		if haveHead {
			preconditions = append(preconditions, plan.Precondition{Kind: plan.PreconditionGitHeadSHA, GitHeadSHA: headSHA})
		}
		if !allowDirty {
			preconditions = append(preconditions, plan.Precondition{Kind: plan.PreconditionWorkingTreeOK, MustBeClean: true})
		}
		ops[i].Preconditions = preconditions
	}

	files := make([]plan.FilePrecondition, 0, len(order))
	for _, path := range order {
		files = append(files, plan.FilePrecondition{Path: path, SHA256: shas[path]})
	}
	return files, nil
}

// renderPreviews applies every non-blocked operation to an in-memory
// copy of each touched file (grouped and applied together per file, in
// plan order), computes one unified diff per file, assigns that diff
// text to every op touching the file's Preview field, and returns the
// total byte length of the concatenated, target-path-ordered patch
// (spec.md §4.3 step 9).
func renderPreviews(repo repoview.View, ops []plan.Operation) (int, error) {
	byFile := make(map[string][]int) // target path -> indices into ops, in order
	var fileOrder []string
	for i, op := range ops {
		if op.Blocked {
			continue
		}
		if _, ok := byFile[op.TargetPath]; !ok {
			fileOrder = append(fileOrder, op.TargetPath)
		}
		byFile[op.TargetPath] = append(byFile[op.TargetPath], i)
	}
	sort.Strings(fileOrder)

	total := 0
	for _, path := range fileOrder {
		original, err := repo.ReadText(path)
		if err != nil {
			return 0, fmt.Errorf("planner: read %s for preview: %w", path, err)
		}
		doc, err := tomledit.Parse(original)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", toolerr.ErrUnparseableManifest, path)
		}

		for _, idx := range byFile[path] {
			if err := applyKind(doc, ops[idx].Kind); err != nil {
				return 0, fmt.Errorf("planner: render op for %s: %w", path, err)
			}
		}

		rendered := doc.Bytes()
		diffText := unifiedDiff(path, string(original), string(rendered))
		for _, idx := range byFile[path] {
			ops[idx].Preview = diffText
		}
		total += len(diffText)
	}
	return total, nil
}

// applyKind applies one operation's edit to doc, dispatching on its
// tagged kind.
func applyKind(doc *tomledit.Document, kind plan.OperationKind) error {
	switch kind.Tag {
	case plan.KindTomlSet:
		table, key, err := splitTableKey(kind.SetPath)
		if err != nil {
			return err
		}
		rawValue, err := encodeScalar(kind.SetValue)
		if err != nil {
			return err
		}
		_, err = doc.SetScalar(table, key, rawValue, "")
		return err
	case plan.KindTomlRemove:
		table, key, err := splitTableKey(kind.RemovePath)
		if err != nil {
			return err
		}
		_, err = doc.RemoveScalar(table, key)
		return err
	case plan.KindTomlTransform:
		_, err := tomledit.ApplyRule(doc, kind.RuleID, kind.Args)
		return err
	default:
		return fmt.Errorf("planner: unknown operation kind %q", kind.Tag)
	}
}

// splitTableKey splits a dotted TomlSet/TomlRemove path into its
// containing table (all but the last segment) and leaf key.
func splitTableKey(path []string) (table, key string, err error) {
	if len(path) == 0 {
		return "", "", fmt.Errorf("planner: empty toml path")
	}
	key = path[len(path)-1]
	if len(path) == 1 {
		return "", key, nil
	}
	table = joinSegments(path[:len(path)-1])
	return table, key, nil
}

func joinSegments(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}

// encodeScalar renders a TomlSet value as raw TOML text: strings are
// quoted, booleans and numbers pass through via their default
// formatting.
func encodeScalar(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return `"` + escapeTomlString(v) + `"`, nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case int:
		return fmt.Sprintf("%d", v), nil
	case float64:
		return fmt.Sprintf("%g", v), nil
	default:
		return "", fmt.Errorf("planner: unsupported TomlSet value type %T", value)
	}
}

func escapeTomlString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
