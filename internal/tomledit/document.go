// Package tomledit is buildfix's format-preserving structural TOML
// editor (spec.md §4.4). No Go TOML library round-trips through a value
// model while preserving comments, blank lines, and key order —
// pelletier/go-toml/v2 and BurntSushi/toml both re-serialize
// canonically — so this package works line-by-line instead, in the
// spirit of the teacher's own regex-driven scanning of Cargo manifests
// (internal/lang/rust/adapter.go's tablePattern/stringFieldPattern),
// extended from read-only scanning to trivia-preserving writes.
//
// The editor only understands the subset of TOML Cargo manifests
// actually use: tables declared with "[a.b.c]", scalar key/value pairs,
// single-line inline tables ("{ k = v, ... }"), and single-line arrays.
// Multi-line arrays and array-of-tables ("[[x]]") are preserved
// byte-for-byte when read but are not editable targets for the v1
// fixers, which is the entire set this spec requires.
package tomledit

import (
	"strings"
)

type lineKind int

const (
	kindBlank lineKind = iota
	kindComment
	kindTableHeader
	kindArrayTableHeader
	kindKeyValue
	kindOther
)

type docLine struct {
	raw   string // full original line text, no trailing newline
	kind  lineKind
	table string // dotted table this line declares (tableHeader kinds only)

	// keyValue fields
	inTable string // dotted table context this line lives under
	indent  string
	key     string
	value   string // raw value text, trimmed, comment stripped
	comment string // trailing comment including "#", "" if none

	dirty bool // true once value/key were set programmatically, forcing re-render
}

// Document is a parsed TOML file that can regenerate its exact original
// bytes when unmodified, and regenerate a minimally-changed byte stream
// when edited.
type Document struct {
	lines           []docLine
	trailingNewline bool
}

// Parse reads content into a Document.
func Parse(content []byte) (*Document, error) {
	text := string(content)
	trailingNewline := strings.HasSuffix(text, "\n")
	raw := text
	if trailingNewline {
		raw = raw[:len(raw)-1]
	}
	var rawLines []string
	if raw == "" {
		rawLines = nil
	} else {
		rawLines = strings.Split(raw, "\n")
	}

	doc := &Document{trailingNewline: trailingNewline}
	currentTable := ""
	for _, l := range rawLines {
		line, err := classify(l, currentTable)
		if err != nil {
			return nil, err
		}
		if line.kind == kindTableHeader || line.kind == kindArrayTableHeader {
			currentTable = line.table
		}
		doc.lines = append(doc.lines, line)
	}
	return doc, nil
}

func classify(raw, currentTable string) (docLine, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return docLine{raw: raw, kind: kindBlank}, nil
	case strings.HasPrefix(trimmed, "#"):
		return docLine{raw: raw, kind: kindComment}, nil
	case strings.HasPrefix(trimmed, "[[") && strings.HasSuffix(trimmed, "]]"):
		name := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		return docLine{raw: raw, kind: kindArrayTableHeader, table: name}, nil
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		return docLine{raw: raw, kind: kindTableHeader, table: name}, nil
	}

	indent := raw[:len(raw)-len(strings.TrimLeft(raw, " \t"))]
	eq := findTopLevelEquals(trimmed)
	if eq < 0 {
		return docLine{raw: raw, kind: kindOther, inTable: currentTable}, nil
	}
	key := strings.TrimSpace(trimmed[:eq])
	rest := trimmed[eq+1:]
	value, comment := splitValueAndComment(rest)
	return docLine{
		raw:     raw,
		kind:    kindKeyValue,
		inTable: currentTable,
		indent:  indent,
		key:     key,
		value:   strings.TrimSpace(value),
		comment: comment,
	}, nil
}

// findTopLevelEquals finds the index of the "=" that separates a bare
// key from its value, ignoring any "=" inside a quoted key.
func findTopLevelEquals(s string) int {
	inQuote := byte(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == '=':
			return i
		}
	}
	return -1
}

// splitValueAndComment separates a value from a trailing "#" comment,
// respecting quotes and bracket nesting so neither a "#" inside a
// string nor one inside an unterminated inline table/array ends the
// value early.
func splitValueAndComment(s string) (value, comment string) {
	inQuote := byte(0)
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote != 0:
			if c == inQuote && (i == 0 || s[i-1] != '\\' || inQuote == '\'') {
				inQuote = 0
			}
		case c == '"' || c == '\'':
			inQuote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			if depth > 0 {
				depth--
			}
		case c == '#' && depth == 0:
			return strings.TrimRight(s[:i], " \t"), strings.TrimRight(s[i:], " \t")
		}
	}
	return strings.TrimRight(s, " \t"), ""
}

// Bytes renders the document's current state back to bytes.
func (d *Document) Bytes() []byte {
	var b strings.Builder
	for i, line := range d.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.renderLine(line))
	}
	if d.trailingNewline && len(d.lines) > 0 {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (d *Document) renderLine(line docLine) string {
	if !line.dirty {
		return line.raw
	}
	out := line.indent + line.key + " = " + line.value
	if line.comment != "" {
		out += " " + line.comment
	}
	return out
}

// dottedSegments splits a dotted table or key path, tolerating quoted
// segments the way Cargo manifests sometimes need
// (e.g. target.'cfg(unix)'.dependencies); a quoted segment is matched
// verbatim, never split on its internal dots.
func dottedSegments(path string) []string {
	var segments []string
	var current strings.Builder
	inQuote := byte(0)
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case inQuote != 0:
			current.WriteByte(c)
			if c == inQuote {
				inQuote = 0
			}
		case c == '\'' || c == '"':
			inQuote = c
			current.WriteByte(c)
		case c == '.':
			segments = append(segments, current.String())
			current.Reset()
		default:
			current.WriteByte(c)
		}
	}
	segments = append(segments, current.String())
	return segments
}

func joinDotted(segments []string) string {
	return strings.Join(segments, ".")
}

// tableMatches reports whether a line's declared table dotted-name
// equals target, comparing segment-by-segment so quoting differences
// don't matter.
func tableMatches(declared, target string) bool {
	if declared == target {
		return true
	}
	a, b := dottedSegments(declared), dottedSegments(target)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if strings.Trim(a[i], "'\"") != strings.Trim(b[i], "'\"") {
			return false
		}
	}
	return true
}
