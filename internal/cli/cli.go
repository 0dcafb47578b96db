// Package cli is buildfix's thin command-line front door: it parses
// argv, wires a read/write repository view to the planner and applier,
// and prints results — mirroring cmd/lopper/main.go's run(args, in,
// out, errOut) int shape so the core stays testable without touching
// os.Exit (SPEC_FULL.md §2 item 8).
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/EffortlessMetrics/buildfix/internal/apply"
	"github.com/EffortlessMetrics/buildfix/internal/applier"
	"github.com/EffortlessMetrics/buildfix/internal/cockpit"
	"github.com/EffortlessMetrics/buildfix/internal/plan"
	"github.com/EffortlessMetrics/buildfix/internal/planner"
	"github.com/EffortlessMetrics/buildfix/internal/policy"
	"github.com/EffortlessMetrics/buildfix/internal/repoview"
	"github.com/EffortlessMetrics/buildfix/internal/result"
)

// ToolName and Version identify this build in every emitted artifact.
const (
	ToolName = "buildfix"
	Version  = "0.1.0"
)

// CommandLine is the testable entry point: construct one against real
// or fake I/O and call Run.
type CommandLine struct {
	Out io.Writer
	Err io.Writer
}

// New builds a CommandLine writing to out/errOut.
func New(out, errOut io.Writer) *CommandLine {
	return &CommandLine{Out: out, Err: errOut}
}

// Run parses args and executes the requested command, returning the
// process exit code (spec.md §6.5): 0 ok, 2 policy block, 1 tool error.
func (c *CommandLine) Run(ctx context.Context, args []string) int {
	req, err := ParseArgs(args)
	if err != nil {
		if errors.Is(err, ErrHelpRequested) {
			fmt.Fprint(c.Out, Usage())
			return 0
		}
		fmt.Fprintf(c.Err, "error: %v\n\n", err)
		fmt.Fprint(c.Err, Usage())
		return 1
	}

	var res result.Result
	switch req.Command {
	case "plan":
		res = c.runPlan(req)
	case "apply":
		res = c.runApply(req)
	default:
		res = result.ToolError(fmt.Errorf("cli: unknown command %q", req.Command))
	}

	if res.Err != nil {
		fmt.Fprintf(c.Err, "error: %v\n", res.Err)
	}
	return res.ExitCode()
}

func tool() plan.ToolInfo {
	return plan.ToolInfo{Name: ToolName, Version: Version}
}

func buildPolicy(req Request) (policy.Config, error) {
	cfg := policy.DefaultConfig()
	if req.PolicyPath != "" {
		data, err := os.ReadFile(req.PolicyPath)
		if err != nil {
			return policy.Config{}, fmt.Errorf("cli: read policy file: %w", err)
		}
		cfg, err = policy.Decode(data)
		if err != nil {
			return policy.Config{}, err
		}
	}
	if len(req.Allow) > 0 {
		cfg.Allow = req.Allow
	}
	if len(req.Deny) > 0 {
		cfg.Deny = req.Deny
	}
	if req.AllowGuarded {
		cfg.AllowGuarded = true
	}
	if req.AllowUnsafe {
		cfg.AllowUnsafe = true
	}
	if req.AllowDirty {
		cfg.AllowDirty = true
	}
	if req.MaxOps > 0 {
		cfg.MaxOps = req.MaxOps
	}
	if req.MaxFiles > 0 {
		cfg.MaxFiles = req.MaxFiles
	}
	if req.MaxPatchBytes > 0 {
		cfg.MaxPatchBytes = req.MaxPatchBytes
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	for k, v := range req.Params {
		cfg.Params[k] = v
	}
	return cfg, nil
}

func (c *CommandLine) buildPlan(req Request) (*plan.Plan, repoview.View, policy.Config, result.Result) {
	root, err := filepath.Abs(req.Root)
	if err != nil {
		return nil, nil, policy.Config{}, result.ToolError(fmt.Errorf("cli: resolve root: %w", err))
	}
	repo := repoview.NewFS(root)

	cfg, err := buildPolicy(req)
	if err != nil {
		return nil, nil, policy.Config{}, result.ToolError(err)
	}

	receipts, err := DiscoverReceipts(root, req.ArtifactsDir)
	if err != nil {
		return nil, nil, policy.Config{}, result.ToolError(fmt.Errorf("cli: discover receipts: %w", err))
	}

	p, err := planner.Plan(planner.Request{
		Repo:                       repo,
		Receipts:                   receipts,
		Policy:                     cfg,
		Params:                     req.Params,
		Tool:                       tool(),
		RequireGitHeadPrecondition: req.RequireGitHead,
	})
	if err != nil {
		return nil, nil, policy.Config{}, result.ToolError(err)
	}
	return p, repo, cfg, result.OK()
}

func (c *CommandLine) runPlan(req Request) result.Result {
	p, _, _, res := c.buildPlan(req)
	if res.Err != nil {
		return res
	}

	if err := writeJSON(outputPath(req.Root, req.OutPath), p); err != nil {
		return result.ToolError(err)
	}
	if req.ReportPath != "" {
		rep := cockpit.Build(p, nil, nil, "")
		if err := writeJSON(outputPath(req.Root, req.ReportPath), rep); err != nil {
			return result.ToolError(err)
		}
	}

	fmt.Fprintf(c.Out, "plan: %d ops, %d blocked, %d files touched, %d patch bytes\n",
		p.Summary.OpsTotal, p.Summary.OpsBlocked, p.Summary.FilesTouched, p.Summary.PatchBytes)

	if p.Summary.OpsBlocked > 0 {
		return result.Blocked()
	}
	return result.OK()
}

func (c *CommandLine) runApply(req Request) result.Result {
	var p *plan.Plan
	var repo repoview.View
	var cfg policy.Config

	if req.PlanPath != "" {
		data, err := os.ReadFile(req.PlanPath)
		if err != nil {
			return result.ToolError(fmt.Errorf("cli: read plan: %w", err))
		}
		p = &plan.Plan{}
		if err := json.Unmarshal(data, p); err != nil {
			return result.ToolError(fmt.Errorf("cli: unmarshal plan: %w", err))
		}
		root, err := filepath.Abs(req.Root)
		if err != nil {
			return result.ToolError(fmt.Errorf("cli: resolve root: %w", err))
		}
		repo = repoview.NewFS(root)
		cfg, err = buildPolicy(req)
		if err != nil {
			return result.ToolError(err)
		}
	} else {
		var res result.Result
		p, repo, cfg, res = c.buildPlan(req)
		if res.Err != nil {
			return res
		}
	}

	root, err := filepath.Abs(req.Root)
	if err != nil {
		return result.ToolError(fmt.Errorf("cli: resolve root: %w", err))
	}
	writer := repoview.NewFSWriter(root)

	record, err := applier.Apply(repo, writer, p, applier.Options{
		Policy:        cfg,
		DryRun:        req.DryRun,
		BackupEnabled: req.BackupEnabled,
		BackupDir:     req.BackupDir,
		BackupSuffix:  req.BackupSuffix,
	}, apply.ToolInfo{Name: ToolName, Version: Version})
	if err != nil {
		return result.ToolError(err)
	}

	if err := writeJSON(outputPath(req.Root, req.OutPath), record); err != nil {
		return result.ToolError(err)
	}
	if req.ReportPath != "" {
		rep := cockpit.Build(p, record, nil, "")
		if err := writeJSON(outputPath(req.Root, req.ReportPath), rep); err != nil {
			return result.ToolError(err)
		}
	}

	fmt.Fprintf(c.Out, "apply: %d attempted, %d applied, %d blocked, %d failed, %d files modified\n",
		record.Summary.Attempted, record.Summary.Applied, record.Summary.Blocked,
		record.Summary.Failed, record.Summary.FilesModified)

	if !record.Preconditions.Verified || record.Summary.Blocked > 0 {
		return result.Blocked()
	}
	if record.Summary.Failed > 0 {
		return result.ToolError(fmt.Errorf("cli: %d operation(s) failed to apply", record.Summary.Failed))
	}
	return result.OK()
}

func outputPath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("cli: create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
