// Package applier implements the five ordered phases of spec.md §4.6:
// re-gate, precondition verification, backup, atomic write, and
// ApplyRecord emission.
package applier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/tomledit"
)

// Options carries the apply-time policy re-evaluation inputs and the
// write-path behavior flags of spec.md §4.6's ApplyOptions.
type Options struct {
	Policy       policy.Config
	DryRun       bool
	BackupEnabled bool
	BackupDir    string
	BackupSuffix string
}

// Apply runs the five phases against p, reading through repo and
// writing (unless dry-run) through writer. An error here is a tool
// error; policy blocks and precondition mismatches are recorded on the
// returned Record instead of surfacing as an error.
func Apply(repo repoview.View, writer repoview.Writer, p *plan.Plan, opts Options, tool apply.ToolInfo) (*apply.Record, error) {
	statuses := make([]apply.Status, len(p.Ops))
	reasons := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		if op.Blocked {
			statuses[i] = apply.StatusBlocked
			reasons[i] = op.BlockedReason
		}
	}

	// Phase 1: re-gate.
	for i, op := range p.Ops {
		if statuses[i] == apply.StatusBlocked {
			continue
		}
		result := opts.Policy.Evaluate(op.PolicyKey(), policy.SafetyInput{
			Safety:         string(op.Safety),
			ParamsRequired: op.ParamsRequired,
		})
		if result.Blocked {
			statuses[i] = apply.StatusBlocked
			if result.Reason == policy.ReasonDenied {
				reasons[i] = policy.ReasonDenied
			} else {
				reasons[i] = policy.ReasonSafetyGateDenied
			}
		}
	}

	// Phase 2: precondition verification.
	mismatches, err := verifyPreconditions(repo, p.Ops, statuses)
	if err != nil {
		return nil, err
	}
	verified := len(mismatches) == 0
	if !verified {
		for i := range p.Ops {
			if statuses[i] == "" {
				statuses[i] = apply.StatusBlocked
				reasons[i] = policy.ReasonPreconditionMismatch
			}
		}
	}

	headBefore, _ := repo.GitHead()
	dirtyBefore, haveDirtyBefore := repo.WorkingTreeDirty()

	results := make([]apply.OpResult, len(p.Ops))
	for i, op := range p.Ops {
		results[i] = apply.OpResult{OpID: op.ID, Status: statuses[i], BlockedReason: reasons[i]}
	}

	if verified {
		writeErr := writePhases(repo, writer, p.Ops, statuses, results, opts)
		if writeErr != nil {
			return nil, writeErr
		}
	}

	attempted, applied, blocked, failed, filesModified := 0, 0, 0, 0, 0
	modifiedFiles := make(map[string]bool)
	for i := range results {
		switch results[i].Status {
		case apply.StatusApplied:
			attempted++
			applied++
			for _, f := range results[i].Files {
				modifiedFiles[f.Path] = true
			}
		case apply.StatusBlocked:
			blocked++
		case apply.StatusFailed:
			attempted++
			failed++
		case apply.StatusSkipped:
			if !p.Ops[i].Blocked {
				attempted++
			}
		}
	}
	filesModified = len(modifiedFiles)

	headAfter, _ := repo.GitHead()
	dirtyAfter, haveDirtyAfter := repo.WorkingTreeDirty()

	record := &apply.Record{
		Schema: apply.SchemaVersion,
		Tool:   tool,
		Repo: apply.RepoInfo{
			Root:          repo.Root(),
			HeadSHABefore: headBefore,
			HeadSHAAfter:  headAfter,
		},
		Preconditions: apply.Preconditions{Verified: verified, Mismatches: mismatches},
		Results:       results,
		Summary: apply.Summary{
			Attempted:     attempted,
			Applied:       applied,
			Blocked:       blocked,
			Failed:        failed,
			FilesModified: filesModified,
		},
	}
	if haveDirtyBefore {
		d := dirtyBefore
		record.Repo.DirtyBefore = &d
	}
	if haveDirtyAfter {
		d := dirtyAfter
		record.Repo.DirtyAfter = &d
	}
	return record, nil
}

// verifyPreconditions checks every not-yet-blocked op's attached
// preconditions against current repo state, returning every mismatch
// found across the whole op set (spec.md §4.6 step 2: any mismatch
// aborts the entire apply).
func verifyPreconditions(repo repoview.View, ops []plan.Operation, statuses []apply.Status) ([]apply.Mismatch, error) {
	var mismatches []apply.Mismatch
	checkedFiles := make(map[string]bool)

	for i, op := range ops {
		if statuses[i] == apply.StatusBlocked {
			continue
		}
		for _, pc := range op.Preconditions {
			switch pc.Kind {
			case plan.PreconditionFileExists:
				if !repo.Exists(pc.Path) {
					mismatches = append(mismatches, apply.Mismatch{Kind: pc.Kind, Path: pc.Path, Expected: "exists", Actual: "missing"})
				}
			case plan.PreconditionFileSHA256:
				if checkedFiles[pc.Path] {
					continue
				}
				checkedFiles[pc.Path] = true
				content, err := repo.ReadText(pc.Path)
				if err != nil {
					mismatches = append(mismatches, apply.Mismatch{Kind: pc.Kind, Path: pc.Path, Expected: pc.SHA256, Actual: "unreadable"})
					continue
				}
				sum := sha256.Sum256(content)
				actual := hex.EncodeToString(sum[:])
				if actual != pc.SHA256 {
					mismatches = append(mismatches, apply.Mismatch{Kind: pc.Kind, Path: pc.Path, Expected: pc.SHA256, Actual: actual})
				}
			case plan.PreconditionGitHeadSHA:
				sha, ok := repo.GitHead()
				if !ok || sha != pc.GitHeadSHA {
					mismatches = append(mismatches, apply.Mismatch{Kind: pc.Kind, Expected: pc.GitHeadSHA, Actual: sha})
				}
			case plan.PreconditionWorkingTreeOK:
				dirty, ok := repo.WorkingTreeDirty()
				if ok && dirty {
					mismatches = append(mismatches, apply.Mismatch{Kind: pc.Kind, Expected: "clean", Actual: "dirty"})
				}
			}
		}
	}
	return mismatches, nil
}

// writePhases runs backup and atomic write (phases 3-4) for every op
// still unblocked, in plan order, maintaining a per-file running buffer
// so multiple ops against the same file compose correctly. It mutates
// results and statuses in place.
func writePhases(repo repoview.View, writer repoview.Writer, ops []plan.Operation, statuses []apply.Status, results []apply.OpResult, opts Options) error {
	current := make(map[string][]byte)  // target path -> content as of this run
	backedUp := make(map[string]bool)
	aborted := false

	for i, op := range ops {
		if aborted {
			if statuses[i] == "" {
				statuses[i] = apply.StatusSkipped
				results[i].Status = apply.StatusSkipped
			}
			continue
		}
		if statuses[i] == apply.StatusBlocked {
			continue
		}

		before, ok := current[op.TargetPath]
		if !ok {
			content, err := repo.ReadText(op.TargetPath)
			if err != nil {
				return fmt.Errorf("applier: read %s: %w", op.TargetPath, err)
			}
			before = content
		}
		beforeSum := sha256.Sum256(before)

		if opts.DryRun {
			statuses[i] = apply.StatusSkipped
			results[i].Status = apply.StatusSkipped
			results[i].Files = []apply.FileResult{{Path: op.TargetPath, SHA256Before: hex.EncodeToString(beforeSum[:])}}
			continue
		}

		doc, err := tomledit.Parse(before)
		if err != nil {
			statuses[i] = apply.StatusFailed
			results[i].Status = apply.StatusFailed
			results[i].Message = err.Error()
			aborted = true
			continue
		}
		if err := applyKind(doc, op.Kind); err != nil {
			statuses[i] = apply.StatusFailed
			results[i].Status = apply.StatusFailed
			results[i].Message = err.Error()
			aborted = true
			continue
		}
		after := doc.Bytes()

		var backupPath string
		if opts.BackupEnabled && !backedUp[op.TargetPath] {
			backupPath = opts.BackupDir + "/" + op.TargetPath + opts.BackupSuffix
			if err := writer.WriteFile(backupPath, before); err != nil {
				statuses[i] = apply.StatusFailed
				results[i].Status = apply.StatusFailed
				results[i].Message = fmt.Sprintf("backup failed: %v", err)
				aborted = true
				continue
			}
			backedUp[op.TargetPath] = true
		}

		if err := writer.WriteFile(op.TargetPath, after); err != nil {
			statuses[i] = apply.StatusFailed
			results[i].Status = apply.StatusFailed
			results[i].Message = err.Error()
			aborted = true
			continue
		}

		current[op.TargetPath] = after
		afterSum := sha256.Sum256(after)
		statuses[i] = apply.StatusApplied
		results[i].Status = apply.StatusApplied
		results[i].Files = []apply.FileResult{{
			Path:         op.TargetPath,
			SHA256Before: hex.EncodeToString(beforeSum[:]),
			SHA256After:  hex.EncodeToString(afterSum[:]),
			BackupPath:   backupPath,
		}}
	}
	return nil
}

// applyKind mirrors the planner's edit dispatch (internal/planner
// applies the same operation kinds to compute the preview); duplicated
// here rather than imported to keep the Applier independent of the
// Planner package, matching spec.md §4.1's component isolation.
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
		return fmt.Errorf("applier: unknown operation kind %q", kind.Tag)
	}
}

func splitTableKey(path []string) (table, key string, err error) {
	if len(path) == 0 {
		return "", "", fmt.Errorf("applier: empty toml path")
	}
	key = path[len(path)-1]
	if len(path) == 1 {
		return "", key, nil
	}
	for i, s := range path[:len(path)-1] {
		if i > 0 {
			table += "."
		}
		table += s
	}
	return table, key, nil
}

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
		return "", fmt.Errorf("applier: unsupported TomlSet value type %T", value)
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
