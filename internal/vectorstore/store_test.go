package vectorstore

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/repoindex/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1
	return v
}

func newEntry(repo, path string, axis int) *Entry {
	return &Entry{
		Repo:      repo,
		Path:      path,
		Filename:  filepath.Base(path),
		ModTime:   time.UnixMilli(1700000000000),
		SizeBytes: 10,
		Hash:      "abc123",
		Vector:    unitVector(DefaultDimension, axis),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "app:src/a.ts", Key("app", "src/a.ts"))
}

func TestInsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := newEntry("app", "src/a.ts", 3)
	require.NoError(t, store.Insert(ctx, entry))
	assert.Equal(t, "app:src/a.ts", entry.ID)

	got, err := store.Get(ctx, "app:src/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "app", got.Repo)
	assert.Equal(t, "src/a.ts", got.Path)
	assert.Equal(t, "a.ts", got.Filename)
	assert.Equal(t, "abc123", got.Hash)
	assert.Equal(t, entry.ModTime.UnixMilli(), got.ModTime.UnixMilli())
	assert.Equal(t, entry.Vector, got.Vector)
}

func TestInsert_DimensionMismatch(t *testing.T) {
	store := setupTestStore(t)

	entry := newEntry("app", "a.go", 0)
	entry.Vector = []float32{1, 0}
	err := store.Insert(context.Background(), entry)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsert_DuplicateKeyFails(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))
	err := store.Insert(ctx, newEntry("app", "a.go", 1))
	assert.Error(t, err)
	assert.False(t, IsConflict(err))
}

func TestDeleteThenInsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))
	require.NoError(t, store.Delete(ctx, Key("app", "a.go")))
	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 1)))

	n, err := store.Count(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Get(ctx, Key("app", "a.go"))
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Vector[1])

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, Key("app", "missing.go")))
}

func TestGet_NotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.Get(context.Background(), "nope:nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVersionAdvancesPerMutation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	v0, err := store.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))
	require.NoError(t, store.Delete(ctx, Key("app", "a.go")))

	v2, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v0+2, v2)
}

func TestCommitAt_StaleViewConflicts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	view, err := store.Version(ctx)
	require.NoError(t, err)

	// Another writer commits first
	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))

	called := false
	err = store.commitAt(ctx, view, func(tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCommitConflict)
	assert.True(t, IsConflict(err))
	assert.False(t, called)

	// A fresh view succeeds
	assert.NoError(t, store.Delete(ctx, Key("app", "a.go")))
}

func TestListHashesAndCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := newEntry("app", "a.go", 0)
	a.Hash = "h1"
	b := newEntry("app", "b.go", 1)
	b.Hash = "h2"
	require.NoError(t, store.Insert(ctx, a))
	require.NoError(t, store.Insert(ctx, b))
	require.NoError(t, store.Insert(ctx, newEntry("other", "c.go", 2)))

	hashes, err := store.ListHashes(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.go": "h1", "b.go": "h2"}, hashes)

	n, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newEntry("app", "near.go", 0)))
	require.NoError(t, store.Insert(ctx, newEntry("app", "far.go", 1)))
	require.NoError(t, store.Insert(ctx, newEntry("other", "near.go", 0)))

	hits, err := store.Search(ctx, unitVector(DefaultDimension, 0), 10, "app")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near.go", hits[0].Path)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "far.go", hits[1].Path)
	assert.InDelta(t, math.Sqrt2, hits[1].Distance, 1e-6)

	hits, err = store.Search(ctx, unitVector(DefaultDimension, 0), 10, "")
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = store.Search(ctx, unitVector(DefaultDimension, 0), 1, "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestSearch_InvalidInput(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	hits, err := store.Search(ctx, unitVector(DefaultDimension, 0), 0, "")
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = store.Search(ctx, []float32{1}, 5, "")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpen_SchemaDriftRecreatesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")

	// Simulate a table written by an older layout without a vector column
	db, err := storage.OpenDatabase(path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE files (id TEXT PRIMARY KEY, repo TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO files (id, repo) VALUES ('app:a.go', 'app')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	n, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, newEntry("app", "a.go", 0)))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, Key("app", "a.go"))
	assert.NoError(t, err)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.True(t, IsConflict(classify(errString("database is locked (5) (SQLITE_BUSY)"))))
	assert.False(t, IsConflict(classify(errString("UNIQUE constraint failed"))))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestSerializeVectorRoundTrip(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, deserializeVector(serializeVector(v)))
	assert.Len(t, serializeVector(v), 12)
}
