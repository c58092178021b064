package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexRepositoryTool returns the tool definition for index_repository
func indexRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_repository",
		Description: "Index a local repository incrementally so it can be searched by keyword and meaning",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the repository root",
				},
				"repo": map[string]interface{}{
					"type":        "string",
					"description": "Repository name; defaults to the directory name",
				},
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Origin URL to record in the registry",
				},
				"force": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-embed every file ignoring content hashes",
					"default":     false,
				},
				"include": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns of files to index (e.g. 'src/**/*.ts')",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"exclude": map[string]interface{}{
					"type":        "array",
					"description": "Glob patterns of files to skip (e.g. '**/vendor/**')",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Search indexed repositories with keywords or natural language",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (keyword + semantic), semantic (embeddings only), or keyword (full-text only)",
					"enum":        []string{"hybrid", "semantic", "keyword"},
					"default":     "hybrid",
				},
				"repo": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one repository",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"keyword_weight": map[string]interface{}{
					"type":        "number",
					"description": "Hybrid weight of the keyword score",
					"default":     0.4,
					"minimum":     0.0,
				},
				"semantic_weight": map[string]interface{}{
					"type":        "number",
					"description": "Hybrid weight of the semantic score",
					"default":     0.6,
					"minimum":     0.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// listRepositoriesTool returns the tool definition for list_repositories
func listRepositoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_repositories",
		Description: "List indexed repositories with file counts and last indexing outcome",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
