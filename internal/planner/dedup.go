package planner

import "github.com/EffortlessMetrics/buildfix/internal/plan"

// dedup collapses operations sharing the same stable sort key into one,
// unioning their rationale findings (spec.md §4.3 step 5, §8 boundary
// behavior "a fixer producing two identical operations collapses them
// to one with unioned findings"). ops must already be sorted by
// plan.SortOperations.
func dedup(ops []plan.Operation) ([]plan.Operation, error) {
	if len(ops) == 0 {
		return ops, nil
	}
	out := make([]plan.Operation, 0, len(ops))
	out = append(out, ops[0])
	prevKey, err := ops[0].SortKey()
	if err != nil {
		return nil, err
	}

	for _, op := range ops[1:] {
		key, err := op.SortKey()
		if err != nil {
			return nil, err
		}
		if key == prevKey {
			last := &out[len(out)-1]
			last.Rationale.Findings = unionFindings(last.Rationale.Findings, op.Rationale.Findings)
			continue
		}
		out = append(out, op)
		prevKey = key
	}
	return out, nil
}

func unionFindings(a, b []plan.RationaleFinding) []plan.RationaleFinding {
	seen := make(map[plan.RationaleFinding]bool, len(a))
	out := append([]plan.RationaleFinding(nil), a...)
	for _, f := range a {
		seen[f] = true
	}
	for _, f := range b {
		if !seen[f] {
			out = append(out, f)
			seen[f] = true
		}
	}
	return out
}
