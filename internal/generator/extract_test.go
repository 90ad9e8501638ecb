package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validParser = `package main

import "bankagent/stmt"

func Parse(path string) ([]string, [][]string, error) {
	pages, err := stmt.Pages(path)
	if err != nil {
		return nil, nil, err
	}
	_ = pages
	return []string{"date"}, nil, nil
}`

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name     string
		response string
		wantErr  bool
	}{
		{name: "go fence", response: "Here you go:\n```go\n" + validParser + "\n```\nGood luck."},
		{name: "plain fence", response: "```\n" + validParser + "\n```"},
		{name: "bare source", response: validParser},
		{
			name:     "prefers block with Parse",
			response: "```bash\ngo run .\n```\n\n```go\n" + validParser + "\n```",
		},
		{name: "no code", response: "I cannot help with that.", wantErr: true},
		{name: "syntax error", response: "```go\npackage main\nfunc Parse( {\n```", wantErr: true},
		{name: "wrong package", response: "```go\npackage parser\nfunc Parse(p string) {}\n```", wantErr: true},
		{name: "no Parse", response: "```go\npackage main\nfunc parse() {}\n```", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractCode(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, validParser+"\n", got)
		})
	}
}
