package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchResult_Validate(t *testing.T) {
	snippet := "func [login]()"
	tests := []struct {
		name   string
		result SearchResult
		want   error
	}{
		{"valid", SearchResult{Repo: "web", Path: "a.ts", Filename: "a.ts", Snippet: &snippet, Score: 0.5}, nil},
		{"nil snippet", SearchResult{Repo: "web", Path: "a.ts", Score: 1}, nil},
		{"zero score", SearchResult{Repo: "web", Path: "a.ts"}, nil},
		{"missing repo", SearchResult{Path: "a.ts"}, ErrMissingRepo},
		{"missing path", SearchResult{Repo: "web"}, ErrMissingPath},
		{"negative score", SearchResult{Repo: "web", Path: "a.ts", Score: -0.1}, ErrInvalidScore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
