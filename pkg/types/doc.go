// Package types provides the result types shared by the search engine,
// the CLI and the MCP server.
//
// SearchResult is one ranked file:
//
//	result := types.SearchResult{
//	    Repo:     "api",
//	    Path:     "internal/auth/login.go",
//	    Filename: "login.go",
//	    Snippet:  &snippet, // nil when no text match exists
//	    Score:    0.87,
//	}
//
// Scores are higher-is-better. Single-mode scores lie in (0, 1]; hybrid
// scores are a weighted sum of the two.
package types
