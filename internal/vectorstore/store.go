package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/repoindex/internal/storage"
)

// DefaultDimension is the embedding width stored per entry
const DefaultDimension = 384

// versionedTable names the row in table_versions guarding the files table
const versionedTable = "files"

var (
	// ErrCommitConflict is returned when the store's versioned state moved
	// between reading a view and committing a mutation
	ErrCommitConflict = errors.New("vector store commit conflict")

	// ErrDimensionMismatch is returned for vectors of the wrong width
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNotFound is returned when no entry has the requested key
	ErrNotFound = errors.New("vector entry not found")
)

// IsConflict reports whether err is a retryable commit conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrCommitConflict)
}

// Key builds the composite identity of a file in the vector store
func Key(repo, path string) string {
	return repo + ":" + path
}

// Entry is one file's embedding with its descriptive fields
type Entry struct {
	ID        string
	Repo      string
	Path      string
	Filename  string
	ModTime   time.Time
	SizeBytes int64
	Hash      string // Hex SHA-256 of the file's raw bytes
	Vector    []float32
}

// Hit is a nearest-neighbor result; Vector is not populated
type Hit struct {
	Entry
	Distance float64 // L2 distance, lower is better
}

// Store is a SQLite-backed vector table with optimistic concurrency.
// Every mutation commits only if the version it read is still current.
type Store struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDimension sets the vector width (default 384)
func WithDimension(dim int) Option {
	return func(s *Store) {
		s.dimension = dim
	}
}

// Open opens or creates the vector database at path
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := storage.OpenDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}

	s := &Store{
		db:        db,
		dimension: DefaultDimension,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Dimension returns the vector width this store accepts
func (s *Store) Dimension() int {
	return s.dimension
}

// Version returns the current version of the store's versioned state
func (s *Store) Version(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version FROM table_versions WHERE name = ?`, versionedTable).Scan(&version)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to read table version: %w", err))
	}
	return version, nil
}

// Insert adds an entry. The ID must not exist; callers delete first.
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	if len(entry.Vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(entry.Vector), s.dimension)
	}
	if entry.ID == "" {
		entry.ID = Key(entry.Repo, entry.Path)
	}

	return s.mutate(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO files (id, repo, path, filename, mtime_ms, size_bytes, hash, vector)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Repo, entry.Path, entry.Filename, entry.ModTime.UnixMilli(),
			entry.SizeBytes, entry.Hash, serializeVector(entry.Vector))
		if err != nil {
			return fmt.Errorf("failed to insert vector %s: %w", entry.ID, err)
		}
		return nil
	})
}

// Delete removes the entry with the given composite key; a missing key is not an error
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete vector %s: %w", id, err)
		}
		return nil
	})
}

// Get returns the entry for a composite key, including its vector
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo, path, filename, mtime_ms, size_bytes, hash, vector
		FROM files WHERE id = ?`, id)

	var e Entry
	var mtimeMs int64
	var blob []byte
	err := row.Scan(&e.ID, &e.Repo, &e.Path, &e.Filename, &mtimeMs, &e.SizeBytes, &e.Hash, &blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	e.ModTime = time.UnixMilli(mtimeMs)
	e.Vector = deserializeVector(blob)
	return &e, nil
}

// ListHashes returns path → hash for every entry of a repository
func (s *Store) ListHashes(ctx context.Context, repo string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, hash FROM files WHERE repo = ?`, repo)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list vectors: %w", err))
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

// Count returns the number of entries, optionally restricted to one repository
func (s *Store) Count(ctx context.Context, repo string) (int, error) {
	query := `SELECT COUNT(*) FROM files`
	args := []interface{}{}
	if repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, repo)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// mutate runs fn against the latest view of the store
func (s *Store) mutate(ctx context.Context, fn func(tx *sql.Tx) error) error {
	view, err := s.Version(ctx)
	if err != nil {
		return err
	}
	return s.commitAt(ctx, view, fn)
}

// commitAt applies fn in a transaction that first advances the table
// version from view. A version that moved yields ErrCommitConflict.
func (s *Store) commitAt(ctx context.Context, view int64, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE table_versions SET version = version + 1 WHERE name = ? AND version = ?`,
		versionedTable, view)
	if err != nil {
		return classify(fmt.Errorf("failed to advance table version: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: version %d is stale", ErrCommitConflict, view)
	}

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// classify maps SQLite lock contention onto ErrCommitConflict
func classify(err error) error {
	if err == nil || IsConflict(err) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", ErrCommitConflict, err)
	}
	return err
}
