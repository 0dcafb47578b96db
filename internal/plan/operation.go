// Package plan defines the Operation, Plan, and related artifact types
// of spec.md §3/§6.2, plus the deterministic ID and canonical-JSON
// helpers the planner uses to make operation ordering and identity
// reproducible.
package plan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// SafetyClass is the nominal or escalated safety tier of an Operation.
type SafetyClass string

const (
	SafetySafe    SafetyClass = "Safe"
	SafetyGuarded SafetyClass = "Guarded"
	SafetyUnsafe  SafetyClass = "Unsafe"
)

// rank orders safety classes from least to most restrictive, so a
// fixer's escalation rule can only tighten, never loosen, nominal
// safety.
func (s SafetyClass) rank() int {
	switch s {
	case SafetySafe:
		return 0
	case SafetyGuarded:
		return 1
	case SafetyUnsafe:
		return 2
	default:
		return 0
	}
}

// Tighten returns the more restrictive of s and other.
func (s SafetyClass) Tighten(other SafetyClass) SafetyClass {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// OperationKind is the tagged variant of a manifest edit
// (spec.md §3, §4.4). Exactly one of the fields is populated, selected
// by Tag.
type OperationKind struct {
	Tag string `json:"tag"`

	// TomlSet
	SetPath  []string `json:"set_path,omitempty"`
	SetValue any      `json:"set_value,omitempty"`

	// TomlRemove
	RemovePath []string `json:"remove_path,omitempty"`

	// TomlTransform
	RuleID string         `json:"rule_id,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
}

const (
	KindTomlSet       = "TomlSet"
	KindTomlRemove    = "TomlRemove"
	KindTomlTransform = "TomlTransform"
)

// TomlSet builds a TomlSet operation kind.
func TomlSet(path []string, value any) OperationKind {
	return OperationKind{Tag: KindTomlSet, SetPath: path, SetValue: value}
}

// TomlRemove builds a TomlRemove operation kind.
func TomlRemove(path []string) OperationKind {
	return OperationKind{Tag: KindTomlRemove, RemovePath: path}
}

// TomlTransform builds a TomlTransform operation kind.
func TomlTransform(ruleID string, args map[string]any) OperationKind {
	return OperationKind{Tag: KindTomlTransform, RuleID: ruleID, Args: args}
}

// RuleOrPath returns the rule id for a transform, or the dotted key
// path for a set/remove — the third component of the ordering/dedup key
// of spec.md §4.3 step 5.
func (k OperationKind) RuleOrPath() string {
	switch k.Tag {
	case KindTomlTransform:
		return k.RuleID
	case KindTomlSet:
		return joinPath(k.SetPath)
	case KindTomlRemove:
		return joinPath(k.RemovePath)
	default:
		return ""
	}
}

func joinPath(segments []string) string {
	var buf bytes.Buffer
	for i, s := range segments {
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(s)
	}
	return buf.String()
}

// CanonicalArgsHash returns the sha256 hex digest of the operation's
// canonical JSON argument payload (key-sorted, minimally whitespaced),
// the fourth component of the ordering/dedup key and an input to the
// UUIDv5 id.
func (k OperationKind) CanonicalArgsHash() (string, error) {
	var payload any
	switch k.Tag {
	case KindTomlSet:
		payload = map[string]any{"path": k.SetPath, "value": k.SetValue}
	case KindTomlRemove:
		payload = map[string]any{"path": k.RemovePath}
	case KindTomlTransform:
		payload = map[string]any{"rule_id": k.RuleID, "args": k.Args}
	}
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalJSON renders v as key-sorted, minimally-whitespaced JSON.
// encoding/json already sorts map keys lexically when marshaling a
// map[string]any, and emits no insignificant whitespace — the only
// remaining concern is recursively normalizing nested maps, which the
// same property handles at every level.
func CanonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Precondition is a check that must hold at apply time.
type Precondition struct {
	Kind        string `json:"kind"`
	Path        string `json:"path,omitempty"`
	SHA256      string `json:"sha256,omitempty"`
	GitHeadSHA  string `json:"git_head_sha,omitempty"`
	MustBeClean bool   `json:"must_be_clean,omitempty"`
}

const (
	PreconditionFileExists     = "FileExists"
	PreconditionFileSHA256     = "FileSha256"
	PreconditionGitHeadSHA     = "GitHeadSha"
	PreconditionWorkingTreeOK  = "WorkingTreeClean"
)

// Rationale documents why an Operation exists.
type Rationale struct {
	FixKey      string            `json:"fix_key"`
	Description string            `json:"description"`
	Findings    []RationaleFinding `json:"findings"`
}

// RationaleFinding is a copy (never a reference) of the finding data an
// Operation's rationale carries, per spec.md §3's ownership rule.
type RationaleFinding struct {
	Sensor   string `json:"sensor"`
	CheckID  string `json:"check_id,omitempty"`
	Code     string `json:"code"`
	Path     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
	Severity string `json:"severity"`
}

// Operation is a single minimal, reversible manifest edit.
type Operation struct {
	ID             string         `json:"id"`
	TargetPath     string         `json:"target_path"`
	Kind           OperationKind  `json:"kind"`
	Safety         SafetyClass    `json:"safety"`
	Blocked        bool           `json:"blocked"`
	BlockedReason  string         `json:"blocked_reason,omitempty"`
	Rationale      Rationale      `json:"rationale"`
	ParamsRequired []string       `json:"params_required,omitempty"`
	Preview        string         `json:"preview,omitempty"`
	Preconditions  []Precondition `json:"preconditions,omitempty"`
}

// PolicyKey returns the routing string used to gate this operation: the
// first associated finding's policy key, or the fixer's nominal key
// (fix_key) if the operation has no findings (spec.md §4.3 step 4).
func (op Operation) PolicyKey() string {
	if len(op.Rationale.Findings) > 0 {
		f := op.Rationale.Findings[0]
		return dashIfEmpty(f.Sensor) + "/" + dashIfEmpty(f.CheckID) + "/" + dashIfEmpty(f.Code)
	}
	return op.Rationale.FixKey
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// SortKey returns the stable ordering/dedup key of spec.md §4.3 step 5:
// (target_path, kind_tag, rule_id_or_toml_path, sha256(canonical_json(args))).
func (op Operation) SortKey() (string, error) {
	hash, err := op.Kind.CanonicalArgsHash()
	if err != nil {
		return "", err
	}
	return op.TargetPath + "\x00" + op.Kind.Tag + "\x00" + op.Kind.RuleOrPath() + "\x00" + hash, nil
}

// AssignID computes the deterministic UUIDv5 operation id of
// spec.md §4.3 step 7.
func (op *Operation) AssignID() error {
	hash, err := op.Kind.CanonicalArgsHash()
	if err != nil {
		return err
	}
	name := op.Rationale.FixKey + "|" + op.TargetPath + "|" + op.Kind.Tag + "|" + op.Kind.RuleOrPath() + "|" + hash
	op.ID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
	return nil
}

// SortOperations sorts ops in place by SortKey, the stable order that
// makes plan emission deterministic regardless of fixer iteration
// order (spec.md §4.3 step 5, §8 invariant 1).
func SortOperations(ops []Operation) error {
	type keyed struct {
		op  Operation
		key string
	}
	entries := make([]keyed, len(ops))
	for i := range ops {
		key, err := ops[i].SortKey()
		if err != nil {
			return err
		}
		entries[i] = keyed{op: ops[i], key: key}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	for i := range entries {
		ops[i] = entries[i].op
	}
	return nil
}
