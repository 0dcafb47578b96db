package policy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultConfig is the policy applied when no configuration is supplied:
// nothing guarded or unsafe auto-applies, no caps, a clean working tree
// is not required (the precondition, not this gate, enforces that).
func DefaultConfig() Config {
	return Config{}
}

// Decode parses a policy configuration document (YAML), the one piece
// of "configuration file loading" this package owns directly: the
// shape of a policy document is part of the Policy Engine's contract,
// even though locating that document on disk is an external CLI
// concern (spec.md §1 Non-goals; §4.5).
func Decode(data []byte) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("policy: invalid configuration: %w", err)
	}
	return cfg, nil
}
