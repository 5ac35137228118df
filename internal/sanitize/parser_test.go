package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "fenced single quotes with trailing comma",
			raw:  "```json\n{'a': 1,}\n```",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "prose around empty object",
			raw:  "sure, here you go: {}",
			want: map[string]any{},
		},
		{
			name: "plain object",
			raw:  `{"invoice": "INV-7", "total": 12.5}`,
			want: map[string]any{"invoice": "INV-7", "total": 12.5},
		},
		{
			name: "untagged fence",
			raw:  "```\n{\"a\": true}\n```",
			want: map[string]any{"a": true},
		},
		{
			name: "trailing commentary after object",
			raw:  "{\"a\": 1}\nLet me know if you need anything else!",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "line comments outside strings",
			raw:  "{\n  \"a\": 1, // first\n  \"b\": \"x#y\" # second\n}",
			want: map[string]any{"a": float64(1), "b": "x#y"},
		},
		{
			name: "braces inside a leading line comment",
			raw:  "// Output format {key: value}\n{\"a\": 1}",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "braces inside a leading hash comment",
			raw:  "# {draft}\n{\"a\": 1}",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "braces inside a trailing comment",
			raw:  "{\"a\": 1} // or {\"a\": 2}",
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "url inside string is not a comment",
			raw:  `{"link": "https://example.com/a"}`,
			want: map[string]any{"link": "https://example.com/a"},
		},
		{
			name: "apostrophe inside double quoted string",
			raw:  `{"note": "it's fine",}`,
			want: map[string]any{"note": "it's fine"},
		},
		{
			name: "single quoted value containing double quote",
			raw:  `{'title': 'the "best" part'}`,
			want: map[string]any{"title": `the "best" part`},
		},
		{
			name: "nested trailing commas",
			raw:  "{'items': [1, 2, 3,], 'meta': {'k': 'v',},}",
			want: map[string]any{
				"items": []any{float64(1), float64(2), float64(3)},
				"meta":  map[string]any{"k": "v"},
			},
		},
		{
			name: "garbage",
			raw:  "I cannot help with that.",
			want: map[string]any{},
		},
		{
			name: "unbalanced braces",
			raw:  `{"a": {"b": 1}`,
			want: map[string]any{},
		},
		{
			name: "json null",
			raw:  "null",
			want: map[string]any{},
		},
		{
			name: "top level array",
			raw:  `[1, 2]`,
			want: map[string]any{},
		},
		{
			name: "empty input",
			raw:  "",
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.raw)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNeverPanics(t *testing.T) {
	inputs := []string{
		"'", "\"", "{'", "{\"a\": '", "```", "```json", "{,}", "{'a\\", "}{", "#{}",
		"{\"a\": \"\\\"}", "//", "{'a': 'b\\'c'}", "\x00\xff{", "{\n'a':\n1\n}",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			assert.NotNil(t, Parse(in))
		}, "input %q", in)
	}
}

func TestParseEscapedSingleQuote(t *testing.T) {
	got := Parse(`{'name': 'O\'Brien'}`)
	assert.Equal(t, map[string]any{"name": "O'Brien"}, got)
}
