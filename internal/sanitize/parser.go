// Package sanitize turns free-text model output into a JSON object.
//
// The contract is that Parse always returns a usable, non-nil map. The repair
// passes below are heuristics; anything they cannot fix ends as an empty map
// rather than an error, so a badly behaved model degrades a spec instead of
// failing the pipeline.
package sanitize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencePattern matches an opening or closing code fence with an optional
// language tag, e.g. "```json" or "```".
var fencePattern = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_+-]*[ \t]*$")

// Parse repairs raw model output and decodes it into a map. It never fails.
func Parse(raw string) map[string]any {
	text := stripFences(raw)
	text = stripComments(text)
	text = extractObject(text)
	text = strings.TrimSpace(text)
	text = normalizeQuotes(text)
	text = removeTrailingCommas(text)

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func stripFences(s string) string {
	s = fencePattern.ReplaceAllString(s, "")
	// Fences that share a line with content, e.g. "```json {...}```".
	s = strings.ReplaceAll(s, "```json", "")
	return strings.ReplaceAll(s, "```", "")
}

// extractObject keeps the outermost {...} region when the text carries prose
// around it.
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// scanner walks text while tracking whether the cursor is inside a quoted
// string. Both quote styles are tracked because single quotes are rewritten
// only after comments are removed.
type scanner struct {
	quote   byte
	escaped bool
}

// step consumes c and reports whether it was part of string content.
func (sc *scanner) step(c byte) bool {
	if sc.quote == 0 {
		if c == '"' || c == '\'' {
			sc.quote = c
			return true
		}
		return false
	}
	switch {
	case sc.escaped:
		sc.escaped = false
	case c == '\\':
		sc.escaped = true
	case c == sc.quote:
		sc.quote = 0
	}
	return true
}

// stripComments truncates every line at the first "//" or "#" found outside
// string content.
func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		var sc scanner
		for j := 0; j < len(line); j++ {
			c := line[j]
			if sc.step(c) {
				continue
			}
			if c == '#' || (c == '/' && j+1 < len(line) && line[j+1] == '/') {
				lines[i] = line[:j]
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

// normalizeQuotes rewrites single-quoted strings as double-quoted JSON strings.
// Apostrophes inside double-quoted strings are left alone. An unterminated
// single-quoted run is copied through unchanged.
func normalizeQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inDouble, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inDouble {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
			continue
		}
		switch c {
		case '"':
			inDouble = true
			b.WriteByte(c)
		case '\'':
			end := closingSingleQuote(s, i+1)
			if end < 0 {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteByte('"')
			b.WriteString(reescape(s[i+1 : end]))
			b.WriteByte('"')
			i = end
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func closingSingleQuote(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '\'':
			return i
		case '\n':
			return -1
		}
	}
	return -1
}

// reescape converts the body of a single-quoted string into a valid body for
// a double-quoted one.
func reescape(body string) string {
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			b.WriteByte(c)
			b.WriteByte(body[i+1])
			i++
		case c == '"':
			b.WriteString(`\"`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// removeTrailingCommas drops commas that are followed, after optional
// whitespace, by a closing brace or bracket.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		if sc.step(c) {
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
