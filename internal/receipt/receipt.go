// Package receipt normalizes sensor findings from the JSON receipt
// envelope (spec §6.1) into the uniform Finding shape the rest of the
// core operates on. Receipt discovery on disk and JSON-schema validation
// of the envelope are external collaborators; this package only decodes
// one reader's bytes.
package receipt

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"

	"github.com/EffortlessMetrics/buildfix/internal/pathsafe"
)

// Severity is the normalized severity of a Finding.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

var tokenPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Finding is one normalized sensor observation.
type Finding struct {
	Sensor   string   `json:"sensor"`
	CheckID  string   `json:"check_id,omitempty"`
	Code     string   `json:"code"`
	Path     string   `json:"path,omitempty"`
	Line     int      `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Hint     any      `json:"hint,omitempty"`
}

// PolicyKey returns the sensor-routed "sensor/check_id/code" string used
// for glob matching, substituting "-" for any missing segment.
func (f Finding) PolicyKey() string {
	return dashIfEmpty(f.Sensor) + "/" + dashIfEmpty(f.CheckID) + "/" + dashIfEmpty(f.Code)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// InputFailure records a receipt that failed to load or parse.
type InputFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Input records one successfully loaded receipt for the plan's inputs list.
type Input struct {
	Path        string `json:"path"`
	Schema      string `json:"schema"`
	ToolName    string `json:"tool_name"`
	ToolVersion string `json:"tool_version"`
}

// Set bundles all findings loaded for a plan, plus bookkeeping about
// which source receipts failed to load. Findings are sorted by
// (path, sensor, check_id, code, line) as spec.md §3 requires; callers
// that need the routing sort of §4.3 step 1 use SortedForRouting.
type Set struct {
	Findings     []Finding
	Inputs       []Input
	InputsFailed []InputFailure
}

// Envelope is the wire shape of one receipt document (spec §6.1).
// Unknown fields are ignored by design: sensors evolve independently of
// the core and a strict decoder would turn sensor upgrades into parse
// failures.
type Envelope struct {
	Schema string `json:"schema"`
	Tool   struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"tool"`
	Run struct {
		StartedAt string `json:"started_at"`
		EndedAt   string `json:"ended_at"`
	} `json:"run"`
	Verdict struct {
		Status string `json:"status"`
		Counts struct {
			Info  int `json:"info"`
			Warn  int `json:"warn"`
			Error int `json:"error"`
		} `json:"counts"`
		Reasons []string `json:"reasons"`
	} `json:"verdict"`
	Findings []struct {
		CheckID  string `json:"check_id"`
		Code     string `json:"code"`
		Severity string `json:"severity"`
		Location *struct {
			Path string `json:"path"`
			Line int    `json:"line"`
		} `json:"location"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	} `json:"findings"`
	Capabilities *struct {
		InputsAvailable []string `json:"inputs_available"`
		InputsFailed    []struct {
			Path   string `json:"path"`
			Reason string `json:"reason"`
		} `json:"inputs_failed"`
	} `json:"capabilities"`
}

// KnownSchemas lists the receipt schema identifiers this decoder
// recognizes. A receipt bearing any other schema string is recorded
// under InputsFailed with reason "schema.unknown" but does not fail the
// plan (spec §8 boundary behavior).
var KnownSchemas = map[string]bool{
	"sensor.report.v1": true,
}

// Load decodes one receipt document read from r. sourcePath identifies
// the receipt for error/input-tracking purposes; sensor is derived from
// the directory containing the receipt (spec §6.1), not from the
// envelope's tool.name, and must be supplied by the caller that knows
// the receipt's location on disk.
//
// A finding with an invalid check_id/code token or an unrecognized
// severity is a warning, not a parse failure (spec §7): it is dropped
// from findings but recorded in droppedFindings rather than vanishing
// silently; the CLI's receipt discovery adds those entries to
// Set.InputsFailed.
func Load(r io.Reader, sourcePath, sensor string) (findings []Finding, input Input, droppedFindings []InputFailure, failure *InputFailure) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, Input{}, nil, &InputFailure{Path: sourcePath, Reason: "io." + err.Error()}
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, Input{}, nil, &InputFailure{Path: sourcePath, Reason: "parse.invalid_json: " + err.Error()}
	}

	if !KnownSchemas[env.Schema] {
		return nil, Input{}, nil, &InputFailure{Path: sourcePath, Reason: "schema.unknown"}
	}

	input = Input{Path: sourcePath, Schema: env.Schema, ToolName: env.Tool.Name, ToolVersion: env.Tool.Version}

	out := make([]Finding, 0, len(env.Findings))
	for i, raw := range env.Findings {
		if !validToken(raw.CheckID) && raw.CheckID != "" {
			droppedFindings = append(droppedFindings, droppedFindingFailure(sourcePath, i, "check_id"))
			continue
		}
		if !validToken(raw.Code) {
			droppedFindings = append(droppedFindings, droppedFindingFailure(sourcePath, i, "code"))
			continue
		}
		sev := Severity(raw.Severity)
		switch sev {
		case SeverityInfo, SeverityWarn, SeverityError:
		default:
			droppedFindings = append(droppedFindings, droppedFindingFailure(sourcePath, i, "severity"))
			continue
		}

		f := Finding{
			Sensor:   sensor,
			CheckID:  raw.CheckID,
			Code:     raw.Code,
			Severity: sev,
		}
		if raw.Location != nil {
			canon, err := pathsafe.Canonicalize(raw.Location.Path)
			if err == nil {
				f.Path = canon
				f.Line = raw.Location.Line
			}
		}
		if raw.Data != nil {
			f.Hint = raw.Data
		}
		out = append(out, f)
	}
	return out, input, droppedFindings, nil
}

func droppedFindingFailure(sourcePath string, index int, field string) InputFailure {
	return InputFailure{
		Path:   sourcePath,
		Reason: fmt.Sprintf("finding.invalid_%s: findings[%d]", field, index),
	}
}

func validToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// NewSet builds a Set from accumulated findings, inputs, and failures,
// sorting findings as spec.md §3 requires.
func NewSet(findings []Finding, inputs []Input, failed []InputFailure) Set {
	sorted := append([]Finding(nil), findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Line < b.Line
	})
	return Set{Findings: sorted, Inputs: inputs, InputsFailed: failed}
}

// SortedForRouting returns findings sorted by the routing order of
// spec.md §4.3 step 1: (sensor, check_id, code, path, line).
func (s Set) SortedForRouting() []Finding {
	sorted := append([]Finding(nil), s.Findings...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		if a.CheckID != b.CheckID {
			return a.CheckID < b.CheckID
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Line < b.Line
	})
	return sorted
}

// Matches reports whether a finding is consumed by a fixer declaring the
// given sensor/check-id filters. An empty sensors list matches nothing;
// an empty checkIDs list matches every check id of the listed sensors.
// buildfix's v1 fixers always filter by check id.
func Matches(f Finding, sensors, checkIDs []string) bool {
	if !contains(sensors, f.Sensor) {
		return false
	}
	if len(checkIDs) == 0 {
		return true
	}
	return contains(checkIDs, f.CheckID)
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// FormatParseError renders a diagnostic for debugging receipt decode
// failures; buildfix never surfaces this to the plan, only to logs a
// host may keep.
func FormatParseError(path string, err error) string {
	return fmt.Sprintf("receipt %s: %v", path, err)
}
