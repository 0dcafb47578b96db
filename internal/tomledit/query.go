package tomledit

import "strings"

// ScalarValue returns the raw (still-quoted, if a string) value text of
// table.key, and whether it was found.
func (d *Document) ScalarValue(table, key string) (string, bool) {
	start, end, exists := d.findTable(table)
	if !exists {
		return "", false
	}
	for i := start; i < end; i++ {
		if d.lines[i].kind == kindKeyValue && d.lines[i].key == key {
			return d.lines[i].value, true
		}
	}
	return "", false
}

// InlineTableKeys returns, in source order, the keys of table whose
// value is a single-line inline table ("{ ... }").
func (d *Document) InlineTableKeys(table string) ([]string, error) {
	start, end, exists := d.findTable(table)
	if !exists {
		return nil, nil
	}
	var keys []string
	for i := start; i < end; i++ {
		l := d.lines[i]
		if l.kind == kindKeyValue && strings.HasPrefix(strings.TrimSpace(l.value), "{") {
			keys = append(keys, l.key)
		}
	}
	return keys, nil
}

// ScalarKeys returns, in source order, the keys of table whose value is
// NOT an inline table (covers bare strings, numbers, booleans, and
// arrays).
func (d *Document) ScalarKeys(table string) ([]string, error) {
	start, end, exists := d.findTable(table)
	if !exists {
		return nil, nil
	}
	var keys []string
	for i := start; i < end; i++ {
		l := d.lines[i]
		if l.kind == kindKeyValue && !strings.HasPrefix(strings.TrimSpace(l.value), "{") {
			keys = append(keys, l.key)
		}
	}
	return keys, nil
}
