package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanMarkdownWrapper(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `[{"a":1}]`, want: `[{"a":1}]`},
		{name: "json fence", input: "```json\n[{\"a\":1}]\n```", want: `[{"a":1}]`},
		{name: "bare fence", input: "```\n{\"a\":1}\n```\n", want: `{"a":1}`},
		{name: "whitespace", input: "\n  [1]  \n", want: "[1]"},
		{name: "single line fence", input: "```[1]```", want: "[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMarkdownWrapper(tt.input))
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "surrounded by prose",
			input:  `Here are the transactions: [{"description":"x"}] hope this helps [1]`,
			want:   `[{"description":"x"}]`,
			wantOK: true,
		},
		{
			name:   "brackets inside strings",
			input:  `[{"description":"PAG ] [ BOLETO \"X]\""}]`,
			want:   `[{"description":"PAG ] [ BOLETO \"X]\""}]`,
			wantOK: true,
		},
		{
			name:   "nested",
			input:  `[[1,2],[3]] tail`,
			want:   `[[1,2],[3]]`,
			wantOK: true,
		},
		{
			name:   "truncated",
			input:  `[{"description":"x"`,
			wantOK: false,
		},
		{
			name:   "no array",
			input:  `I could not read the statement.`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONArray(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := ExtractJSONObject(`Sure! {"category": "Mercado {x}", "cost_center": ""} done`)
	assert.True(t, ok)
	assert.Equal(t, `{"category": "Mercado {x}", "cost_center": ""}`, got)

	_, ok = ExtractJSONObject(`{"category": `)
	assert.False(t, ok)
}
