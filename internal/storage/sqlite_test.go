package storage

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func newTestFile(repo, path string, content string) *File {
	return &File{
		Repo:        repo,
		Path:        path,
		Filename:    path[lastSlash(path)+1:],
		ModTime:     time.UnixMilli(1700000000000),
		SizeBytes:   int64(len(content)),
		ContentHash: sha256.Sum256([]byte(content)),
	}
}

func lastSlash(p string) int {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return i
		}
	}
	return -1
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestUpsertFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	file := newTestFile("app", "src/a.ts", "export const a = 1")

	// Create file
	err := storage.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.Greater(t, file.ID, int64(0))

	originalID := file.ID

	// Update same file
	file.SizeBytes = 5678
	file.ContentHash = sha256.Sum256([]byte("changed"))
	err = storage.UpsertFile(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, originalID, file.ID) // ID should remain the same

	retrieved, err := storage.GetFile(ctx, "app", "src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, int64(5678), retrieved.SizeBytes)
	assert.Equal(t, file.ContentHash, retrieved.ContentHash)
	assert.Equal(t, "a.ts", retrieved.Filename)
	assert.Equal(t, file.ModTime.UnixMilli(), retrieved.ModTime.UnixMilli())
}

func TestUpsertFile_SamePathDifferentRepos(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	a := newTestFile("one", "main.go", "package main")
	b := newTestFile("two", "main.go", "package main")

	require.NoError(t, storage.UpsertFile(ctx, a))
	require.NoError(t, storage.UpsertFile(ctx, b))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGetFile_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	_, err := storage.GetFile(ctx, "app", "nonexistent.go")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.GetFileByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFilesAndHashes(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	for _, p := range []string{"c.go", "a.go", "b/b.go"} {
		require.NoError(t, storage.UpsertFile(ctx, newTestFile("app", p, p)))
	}
	require.NoError(t, storage.UpsertFile(ctx, newTestFile("other", "z.go", "z")))

	files, err := storage.ListFiles(ctx, "app")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a.go", files[0].Path)
	assert.Equal(t, "b/b.go", files[1].Path)
	assert.Equal(t, "c.go", files[2].Path)

	hashes, err := storage.ListFileHashes(ctx, "app")
	require.NoError(t, err)
	assert.Len(t, hashes, 3)
	assert.Equal(t, sha256.Sum256([]byte("a.go")), hashes["a.go"].ContentHash)
	assert.Equal(t, files[0].ID, hashes["a.go"].ID)

	count, err := storage.CountFiles(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDeleteFile(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	file := newTestFile("app", "gone.go", "x")
	require.NoError(t, storage.UpsertFile(ctx, file))

	require.NoError(t, storage.DeleteFile(ctx, file.ID))

	_, err := storage.GetFile(ctx, "app", "gone.go")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing row is not an error
	assert.NoError(t, storage.DeleteFile(ctx, file.ID))
}

func TestHashHex(t *testing.T) {
	file := newTestFile("app", "a.go", "")
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", file.HashHex())
}

func TestTransaction_Commit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	file := newTestFile("app", "tx.go", "package tx")
	require.NoError(t, tx.UpsertFile(ctx, file))
	require.NoError(t, tx.ReplaceText(ctx, &TextEntry{
		FileID: file.ID, Repo: "app", Path: "tx.go", Filename: "tx.go", Contents: "package tx",
	}))
	require.NoError(t, tx.Commit())

	retrieved, err := storage.GetFile(ctx, "app", "tx.go")
	require.NoError(t, err)
	assert.Equal(t, file.ID, retrieved.ID)

	results, err := storage.SearchText(ctx, "tx", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, file.ID, results[0].FileID)
}

func TestTransaction_Rollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)

	file := newTestFile("app", "rollback.go", "package rollback")
	require.NoError(t, tx.UpsertFile(ctx, file))
	require.NoError(t, tx.Rollback())

	_, err = storage.GetFile(ctx, "app", "rollback.go")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransaction_NestedNotSupported(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.BeginTx(ctx)
	assert.Error(t, err)
}

func TestMigrations_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	version, err := currentSchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, RollbackMigration(ctx, storage.db))

	version, err := currentSchemaVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0", version.String())

	// Re-applying restores the schema
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	require.NoError(t, storage.UpsertFile(ctx, newTestFile("app", "a.go", "a")))
}
