package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexText(t *testing.T, s *SQLiteStorage, repo, path, contents string) *File {
	t.Helper()
	ctx := context.Background()
	file := newTestFile(repo, path, contents)
	require.NoError(t, s.UpsertFile(ctx, file))
	require.NoError(t, s.ReplaceText(ctx, &TextEntry{
		FileID:   file.ID,
		Repo:     repo,
		Path:     path,
		Filename: file.Filename,
		Contents: contents,
	}))
	return file
}

func TestSanitizeFTSQuery(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"single term", "hello", `"hello"`},
		{"multiple terms", "hello world", `"hello" OR "world"`},
		{"operators are plain terms", "a AND b", `"a" OR "AND" OR "b"`},
		{"punctuation dropped", `foo("bar")*`, `"foo" OR "bar"`},
		{"underscore kept", "snake_case", `"snake_case"`},
		{"unicode letters", "café", `"café"`},
		{"no terms", `*()"`, ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeFTSQuery(tt.input))
		})
	}
}

func TestSearchText(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	a := indexText(t, storage, "app", "src/a.ts", "export function hello() { return 'world' }")
	indexText(t, storage, "app", "src/b.ts", "export const unrelated = 42")

	results, err := storage.SearchText(ctx, "hello", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, a.ID, results[0].FileID)
	assert.Equal(t, "app", results[0].Repo)
	assert.Equal(t, "src/a.ts", results[0].Path)
	assert.Equal(t, "a.ts", results[0].Filename)
	assert.LessOrEqual(t, results[0].Rank, 0.0)
	assert.Contains(t, results[0].Snippet, "[hello]")
}

func TestSearchText_MatchesPathAndFilename(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	indexText(t, storage, "app", "docs/readme.md", "nothing to see")

	results, err := storage.SearchText(ctx, "readme", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchText_Filters(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	indexText(t, storage, "one", "a.go", "shared token")
	indexText(t, storage, "two", "a.go", "shared token")
	indexText(t, storage, "two", "b.go", "shared token")

	results, err := storage.SearchText(ctx, "shared", 10, &SearchFilters{Repo: "two"})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "two", r.Repo)
	}

	results, err = storage.SearchText(ctx, "shared", 10, &SearchFilters{Repo: "two", Path: "b.go"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.go", results[0].Path)
}

func TestSearchText_Limit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, p := range []string{"a.go", "b.go", "c.go", "d.go"} {
		indexText(t, storage, "app", p, "common")
	}

	results, err := storage.SearchText(ctx, "common", 2, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = storage.SearchText(ctx, "common", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchText_NoTerms(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	indexText(t, storage, "app", "a.go", "content")

	results, err := storage.SearchText(context.Background(), "!!!", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestReplaceText(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	file := indexText(t, storage, "app", "a.go", "original words")

	require.NoError(t, storage.ReplaceText(ctx, &TextEntry{
		FileID: file.ID, Repo: "app", Path: "a.go", Filename: "a.go", Contents: "replacement text",
	}))

	results, err := storage.SearchText(ctx, "original", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = storage.SearchText(ctx, "replacement", 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, storage.DeleteText(ctx, file.ID))
	results, err = storage.SearchText(ctx, "replacement", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
