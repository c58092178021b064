package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// Snippet markers used by FTS5 snippet()
const (
	SnippetOpen     = "["
	SnippetClose    = "]"
	SnippetEllipsis = "…"
	snippetTokens   = 16
)

// ftsTokenPattern matches the terms that survive the unicode61 tokenizer
var ftsTokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTSQuery turns free text into an FTS5 expression: each term quoted, OR-joined.
// Returns "" when the input has no searchable terms.
func sanitizeFTSQuery(query string) string {
	tokens := ftsTokenPattern.FindAllString(query, -1)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}

// searchText performs BM25 full-text search using FTS5
func searchText(ctx context.Context, q querier, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	if limit <= 0 {
		return []TextResult{}, nil
	}

	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return []TextResult{}, nil
	}

	sqlQuery := fmt.Sprintf(`
		SELECT
			rowid,
			repo,
			path,
			filename,
			bm25(files_fts) AS rank,
			snippet(files_fts, 3, '%s', '%s', '%s', %d)
		FROM files_fts
		WHERE files_fts MATCH ?
	`, SnippetOpen, SnippetClose, SnippetEllipsis, snippetTokens)
	args := []interface{}{sanitized}

	sqlQuery, args = applyTextFilters(sqlQuery, args, filters)

	// bm25 is lower-is-better; rowid breaks ties deterministically
	sqlQuery += " ORDER BY rank, rowid LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

// applyTextFilters adds WHERE clause filters for text search
func applyTextFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if filters.Repo != "" {
		query += " AND repo = ?"
		args = append(args, filters.Repo)
	}

	if filters.Path != "" {
		query += " AND path = ?"
		args = append(args, filters.Path)
	}

	return query, args
}

// collectTextResults scans FTS rows into results, keeping the native rank
func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		var snippet sql.NullString
		if err := rows.Scan(&result.FileID, &result.Repo, &result.Path, &result.Filename, &result.Rank, &snippet); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.Snippet = snippet.String
		results = append(results, result)
	}

	return results, rows.Err()
}
