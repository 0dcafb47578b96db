package tomledit

import (
	"fmt"
	"strings"
)

// SetScalar sets the scalar value of table.key, creating the table (and
// the key, appended at the end of the table) if absent. anchorAfterKey,
// if non-empty and the key does not already exist, places the new line
// immediately after the named key within the same table instead of at
// the table's end — used by ensure_workspace_resolver_v2 to place
// resolver right after members. Returns whether the document changed;
// a value equal to the existing one is a no-op, preserving idempotence.
func (d *Document) SetScalar(table, key, rawValue, anchorAfterKey string) (changed bool, err error) {
	tableStart, tableEnd, tableExists := d.findTable(table)

	if tableExists {
		for i := tableStart; i < tableEnd; i++ {
			if d.lines[i].kind == kindKeyValue && d.lines[i].key == key {
				if d.lines[i].value == rawValue {
					return false, nil
				}
				d.lines[i].value = rawValue
				d.lines[i].dirty = true
				return true, nil
			}
		}
	}

	newLine := docLine{
		kind:    kindKeyValue,
		inTable: table,
		key:     key,
		value:   rawValue,
		dirty:   true,
	}

	if !tableExists {
		d.appendTable(table, []docLine{newLine})
		return true, nil
	}

	insertAt := tableEnd
	if anchorAfterKey != "" {
		for i := tableStart; i < tableEnd; i++ {
			if d.lines[i].kind == kindKeyValue && d.lines[i].key == anchorAfterKey {
				insertAt = i + 1
				break
			}
		}
	}
	d.insertLines(insertAt, []docLine{newLine})
	return true, nil
}

// RemoveScalar removes table.key if present, and removes the table
// itself (and recursively any now-empty ancestor tables) if doing so
// leaves it with no remaining keys or sub-tables. Returns whether
// anything changed.
func (d *Document) RemoveScalar(table, key string) (changed bool, err error) {
	tableStart, tableEnd, tableExists := d.findTable(table)
	if !tableExists {
		return false, nil
	}
	removedAt := -1
	for i := tableStart; i < tableEnd; i++ {
		if d.lines[i].kind == kindKeyValue && d.lines[i].key == key {
			removedAt = i
			break
		}
	}
	if removedAt < 0 {
		return false, nil
	}
	d.lines = append(d.lines[:removedAt], d.lines[removedAt+1:]...)
	d.pruneTableIfEmpty(table)
	return true, nil
}

// findTable locates the line range [start, end) of a table's body (the
// lines strictly between its header and the next table header of any
// depth, sub-tables included), and whether the table exists at all.
func (d *Document) findTable(table string) (start, end int, exists bool) {
	if table == "" {
		// the implicit root table: body runs from the top of the file
		// to the first header line.
		for i, l := range d.lines {
			if l.kind == kindTableHeader || l.kind == kindArrayTableHeader {
				return 0, i, true
			}
		}
		return 0, len(d.lines), true
	}
	for i, l := range d.lines {
		if (l.kind == kindTableHeader) && tableMatches(l.table, table) {
			end := len(d.lines)
			for j := i + 1; j < len(d.lines); j++ {
				if d.lines[j].kind == kindTableHeader || d.lines[j].kind == kindArrayTableHeader {
					end = j
					break
				}
			}
			return i + 1, end, true
		}
	}
	return 0, 0, false
}

// appendTable appends a new "[table]" header and body lines at the end
// of the document, preceded by a single blank line if the document is
// non-empty, preserving the look of a hand-authored manifest.
func (d *Document) appendTable(table string, body []docLine) {
	if len(d.lines) > 0 {
		d.lines = append(d.lines, docLine{kind: kindBlank})
	}
	d.lines = append(d.lines, docLine{
		raw:  "[" + table + "]",
		kind: kindTableHeader,
		table: table,
	})
	d.lines = append(d.lines, body...)
}

func (d *Document) insertLines(at int, body []docLine) {
	tail := append([]docLine{}, d.lines[at:]...)
	d.lines = append(d.lines[:at], append(body, tail...)...)
}

// pruneTableIfEmpty removes the table header for table if its body now
// contains no key-value or comment lines (blank lines don't count) and
// no sub-table header of it remains anywhere in the document, then
// recurses on its parent table.
func (d *Document) pruneTableIfEmpty(table string) {
	start, end, exists := d.findTable(table)
	if !exists {
		return
	}
	for i := start; i < end; i++ {
		if d.lines[i].kind != kindBlank {
			return
		}
	}
	depth := len(dottedSegments(table))
	for _, l := range d.lines {
		if l.kind != kindTableHeader && l.kind != kindArrayTableHeader {
			continue
		}
		if segs := dottedSegments(l.table); len(segs) > depth && tableMatches(joinDotted(segs[:depth]), table) {
			return // a sub-table still lives under this table
		}
	}
	atEnd := end == len(d.lines)
	headerIdx := start - 1
	d.lines = append(d.lines[:headerIdx], d.lines[end:]...)
	// drop one leading blank line directly before the removed header,
	// if appendTable put one there.
	if headerIdx > 0 && d.lines[headerIdx-1].kind == kindBlank {
		before := headerIdx - 1
		isOnlyBlank := atEnd || before == 0 || d.lines[before-1].kind == kindTableHeader || d.lines[before-1].kind == kindArrayTableHeader
		if isOnlyBlank {
			d.lines = append(d.lines[:before], d.lines[before+1:]...)
		}
	}

	segs := dottedSegments(table)
	if len(segs) > 1 {
		d.pruneTableIfEmpty(joinDotted(segs[:len(segs)-1]))
	}
}

// InlineField is one "key = value" member of a single-line inline
// table, e.g. the "path" and "version" fields of
// `b = { path = "../b", version = "0.3.1" }`.
type InlineField struct {
	Key   string
	Value string // raw, unparsed value text
}

// GetInlineTable parses table.key's value as a single-line inline
// table ("{ ... }") and returns its fields in source order.
func (d *Document) GetInlineTable(table, key string) (fields []InlineField, found bool, err error) {
	_, line, ok := d.findKeyLine(table, key)
	if !ok {
		return nil, false, nil
	}
	fields, err = parseInlineTable(d.lines[line].value)
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

// SetInlineTable replaces table.key's value with the rendered form of
// fields, in the order given, as a single-line inline table. Creates
// the key (and table) if absent.
func (d *Document) SetInlineTable(table, key string, fields []InlineField) (changed bool, err error) {
	rendered := renderInlineTable(fields)
	return d.SetScalar(table, key, rendered, "")
}

func (d *Document) findKeyLine(table, key string) (tableRange [2]int, lineIdx int, found bool) {
	start, end, exists := d.findTable(table)
	if !exists {
		return [2]int{}, 0, false
	}
	for i := start; i < end; i++ {
		if d.lines[i].kind == kindKeyValue && d.lines[i].key == key {
			return [2]int{start, end}, i, true
		}
	}
	return [2]int{start, end}, 0, false
}

func parseInlineTable(value string) ([]InlineField, error) {
	v := strings.TrimSpace(value)
	if len(v) < 2 || v[0] != '{' || v[len(v)-1] != '}' {
		return nil, fmt.Errorf("tomledit: value %q is not an inline table", value)
	}
	inner := v[1 : len(v)-1]
	parts := splitTopLevel(inner, ',')
	var fields []InlineField
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := findTopLevelEquals(part)
		if eq < 0 {
			return nil, fmt.Errorf("tomledit: malformed inline table field %q", part)
		}
		fields = append(fields, InlineField{
			Key:   strings.TrimSpace(part[:eq]),
			Value: strings.TrimSpace(part[eq+1:]),
		})
	}
	return fields, nil
}

func renderInlineTable(fields []InlineField) string {
	if len(fields) == 0 {
		return "{ }"
	}
	out := "{ "
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f.Key + " = " + f.Value
	}
	out += " }"
	return out
}

// splitTopLevel splits s on sep, ignoring occurrences inside quotes or
// nested brackets.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := byte(0)
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	parts = append(parts, s[last:])
	return parts
}
