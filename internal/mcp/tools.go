package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/scanner"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/service"
	"github.com/dshills/repoindex/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Repository root missing or unreadable
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // Repository not indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors caps the per-file errors echoed back to the client
const maxReportedErrors = 5

// handleIndexRepository handles the index_repository tool invocation
func (s *Server) handleIndexRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	include, err := getStringSlice(args, "include")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "include must be an array of strings", map[string]interface{}{
			"param": "include",
		})
	}
	exclude, err := getStringSlice(args, "exclude")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "exclude must be an array of strings", map[string]interface{}{
			"param": "exclude",
		})
	}

	opts := service.IndexOptions{
		Source:  getStringDefault(args, "source", ""),
		Force:   getBoolDefault(args, "force", false),
		Include: include,
		Exclude: exclude,
	}
	repo := getStringDefault(args, "repo", "")

	result, err := s.backend.Index(ctx, path, repo, opts)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("index_repository failed")
		data := map[string]interface{}{"error": err.Error()}
		if result != nil && result.Summary != nil {
			data["summary"] = summaryFields(result.Summary)
		}
		switch {
		case errors.Is(err, indexer.ErrIndexingInProgress):
			return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", data)
		case errors.Is(err, scanner.ErrUnreadable):
			return nil, newMCPError(ErrorCodePathNotFound, "repository root is unreadable", data)
		default:
			return nil, newMCPError(ErrorCodeInternalError, "indexing failed", data)
		}
	}

	response := summaryFields(result.Summary)
	response["indexed"] = true
	if result.Reconcile != nil {
		response["reconcile"] = map[string]interface{}{
			"checked":         result.Reconcile.Checked,
			"repaired":        result.Reconcile.Repaired,
			"orphans_deleted": result.Reconcile.OrphansDeleted,
			"stale":           result.Reconcile.Stale,
			"failed":          result.Reconcile.Failed,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "mode", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   args["mode"],
			"allowed": []string{string(searcher.ModeHybrid), string(searcher.ModeSemantic), string(searcher.ModeKeyword)},
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	keywordWeight := getFloatDefault(args, "keyword_weight", 0)
	semanticWeight := getFloatDefault(args, "semantic_weight", 0)
	if keywordWeight < 0 || semanticWeight < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "weights must not be negative", map[string]interface{}{
			"keyword_weight":  keywordWeight,
			"semantic_weight": semanticWeight,
		})
	}

	repo := getStringDefault(args, "repo", "")
	if repo != "" {
		known, err := s.repositoryExists(ctx, repo)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read repository registry", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if !known {
			return nil, newMCPError(ErrorCodeNotIndexed, "repository not indexed", map[string]interface{}{
				"repo":    repo,
				"message": "Use index_repository to index it first.",
			})
		}
	}

	resp, err := s.backend.Search(ctx, query, mode, service.SearchOptions{
		Repo:           repo,
		Limit:          limit,
		KeywordWeight:  keywordWeight,
		SemanticWeight: semanticWeight,
		UseCache:       true,
	})
	if err != nil {
		if errors.Is(err, searcher.ErrInvalidQuery) {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query":       query,
		"mode":        string(resp.Mode),
		"count":       len(resp.Results),
		"results":     resp.Results,
		"duration_ms": resp.Duration.Milliseconds(),
		"cache_hit":   resp.CacheHit,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListRepositories handles the list_repositories tool invocation
func (s *Server) handleListRepositories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repos, err := s.backend.ListRepositories(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list repositories", map[string]interface{}{
			"error": err.Error(),
		})
	}

	entries := make([]map[string]interface{}, 0, len(repos))
	for _, r := range repos {
		entries = append(entries, repositoryFields(r))
	}

	response := map[string]interface{}{
		"count":        len(entries),
		"repositories": entries,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// repositoryExists reports whether repo is in the registry
func (s *Server) repositoryExists(ctx context.Context, repo string) (bool, error) {
	repos, err := s.backend.ListRepositories(ctx)
	if err != nil {
		return false, err
	}
	for _, r := range repos {
		if r.Name == repo {
			return true, nil
		}
	}
	return false, nil
}

// Helper functions

// summaryFields renders an indexing summary for a tool response
func summaryFields(summary *indexer.Summary) map[string]interface{} {
	fields := map[string]interface{}{
		"repo":            summary.Repo,
		"files_scanned":   summary.Scanned,
		"files_indexed":   summary.Indexed,
		"files_deleted":   summary.Deleted,
		"files_unchanged": summary.SkippedUnchanged,
		"files_binary":    summary.SkippedBinary,
		"files_failed":    summary.Failed,
		"vector_errors":   summary.VectorErrors,
		"duration_ms":     summary.Duration.Milliseconds(),
	}

	if errorCount := len(summary.Errors); errorCount > 0 {
		if errorCount > maxReportedErrors {
			fields["errors"] = summary.Errors[:maxReportedErrors]
			fields["error_count"] = errorCount
		} else {
			fields["errors"] = summary.Errors
		}
	}
	return fields
}

// repositoryFields renders a registry entry, keeping nullable fields null
func repositoryFields(r *storage.Repository) map[string]interface{} {
	fields := map[string]interface{}{
		"name":            r.Name,
		"source":          nil,
		"last_indexed_at": nil,
		"last_error":      nil,
		"file_count":      r.FileCount,
	}
	if r.Source != nil {
		fields["source"] = *r.Source
	}
	if r.LastIndexedAt != nil {
		fields["last_indexed_at"] = r.LastIndexedAt.Format(time.RFC3339)
	}
	if r.LastError != nil {
		fields["last_error"] = *r.LastError
	}
	return fields
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path exists and is a readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a numeric parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := args[key].(float64); ok {
		return val
	}
	if val, ok := args[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: element %v is not a string", key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: expected array, got %T", key, raw)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
