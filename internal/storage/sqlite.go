package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite with FTS5
type SQLiteStorage struct {
	db *sql.DB
}

// OpenDatabase opens a SQLite database with appropriate settings
func OpenDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// File operations

const fileColumns = `id, repo, path, filename, mtime_ms, size_bytes, hash`

// scanner abstracts *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(row rowScanner) (*File, error) {
	var file File
	var mtimeMs int64
	var hash []byte
	if err := row.Scan(&file.ID, &file.Repo, &file.Path, &file.Filename, &mtimeMs, &file.SizeBytes, &hash); err != nil {
		return nil, err
	}
	file.ModTime = time.UnixMilli(mtimeMs)
	copy(file.ContentHash[:], hash)
	return &file, nil
}

// upsertFileWithQuerier inserts or updates by (repo, path), keeping the row id stable
func (s *SQLiteStorage) upsertFileWithQuerier(ctx context.Context, q querier, file *File) error {
	query := `
		INSERT INTO files (repo, path, filename, mtime_ms, size_bytes, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo, path) DO UPDATE SET
			filename = excluded.filename,
			mtime_ms = excluded.mtime_ms,
			size_bytes = excluded.size_bytes,
			hash = excluded.hash
		RETURNING id
	`
	err := q.QueryRowContext(ctx, query,
		file.Repo, file.Path, file.Filename, file.ModTime.UnixMilli(),
		file.SizeBytes, file.ContentHash[:]).Scan(&file.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertFile(ctx context.Context, file *File) error {
	return s.upsertFileWithQuerier(ctx, s.querier(), file)
}

func (s *SQLiteStorage) getFileWithQuerier(ctx context.Context, q querier, repo, path string) (*File, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE repo = ? AND path = ?`, repo, path)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *SQLiteStorage) GetFile(ctx context.Context, repo, path string) (*File, error) {
	return s.getFileWithQuerier(ctx, s.querier(), repo, path)
}

func (s *SQLiteStorage) getFileByIDWithQuerier(ctx context.Context, q querier, fileID int64) (*File, error) {
	row := q.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, fileID)
	file, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *SQLiteStorage) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return s.getFileByIDWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) deleteFileWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file %d: %w", fileID, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteFile(ctx context.Context, fileID int64) error {
	return s.deleteFileWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) listFilesWithQuerier(ctx context.Context, q querier, repo string) ([]*File, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE repo = ? ORDER BY path`, repo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	files := make([]*File, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) ListFiles(ctx context.Context, repo string) ([]*File, error) {
	return s.listFilesWithQuerier(ctx, s.querier(), repo)
}

func (s *SQLiteStorage) listFileHashesWithQuerier(ctx context.Context, q querier, repo string) (map[string]FileHash, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, path, hash FROM files WHERE repo = ?`, repo)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]FileHash)
	for rows.Next() {
		var path string
		var hash []byte
		var fh FileHash
		if err := rows.Scan(&fh.ID, &path, &hash); err != nil {
			return nil, err
		}
		copy(fh.ContentHash[:], hash)
		hashes[path] = fh
	}
	return hashes, rows.Err()
}

func (s *SQLiteStorage) ListFileHashes(ctx context.Context, repo string) (map[string]FileHash, error) {
	return s.listFileHashesWithQuerier(ctx, s.querier(), repo)
}

func (s *SQLiteStorage) countFilesWithQuerier(ctx context.Context, q querier, repo string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE repo = ?`, repo).Scan(&count)
	return count, err
}

func (s *SQLiteStorage) CountFiles(ctx context.Context, repo string) (int, error) {
	return s.countFilesWithQuerier(ctx, s.querier(), repo)
}

// Full-text operations

// replaceTextWithQuerier deletes then inserts the FTS row keyed by file ID
func (s *SQLiteStorage) replaceTextWithQuerier(ctx context.Context, q querier, entry *TextEntry) error {
	if err := s.deleteTextWithQuerier(ctx, q, entry.FileID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO files_fts (rowid, repo, path, filename, contents) VALUES (?, ?, ?, ?, ?)`,
		entry.FileID, entry.Repo, entry.Path, entry.Filename, entry.Contents)
	if err != nil {
		return fmt.Errorf("failed to insert text entry %d: %w", entry.FileID, err)
	}
	return nil
}

func (s *SQLiteStorage) ReplaceText(ctx context.Context, entry *TextEntry) error {
	return s.replaceTextWithQuerier(ctx, s.querier(), entry)
}

func (s *SQLiteStorage) deleteTextWithQuerier(ctx context.Context, q querier, fileID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM files_fts WHERE rowid = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to delete text entry %d: %w", fileID, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteText(ctx context.Context, fileID int64) error {
	return s.deleteTextWithQuerier(ctx, s.querier(), fileID)
}

func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.querier(), query, limit, filters)
}

// Transaction implementations

func (t *sqliteTx) UpsertFile(ctx context.Context, file *File) error {
	return t.storage.upsertFileWithQuerier(ctx, t.querier(), file)
}

func (t *sqliteTx) GetFile(ctx context.Context, repo, path string) (*File, error) {
	return t.storage.getFileWithQuerier(ctx, t.querier(), repo, path)
}

func (t *sqliteTx) GetFileByID(ctx context.Context, fileID int64) (*File, error) {
	return t.storage.getFileByIDWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) DeleteFile(ctx context.Context, fileID int64) error {
	return t.storage.deleteFileWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) ListFiles(ctx context.Context, repo string) ([]*File, error) {
	return t.storage.listFilesWithQuerier(ctx, t.querier(), repo)
}

func (t *sqliteTx) ListFileHashes(ctx context.Context, repo string) (map[string]FileHash, error) {
	return t.storage.listFileHashesWithQuerier(ctx, t.querier(), repo)
}

func (t *sqliteTx) CountFiles(ctx context.Context, repo string) (int, error) {
	return t.storage.countFilesWithQuerier(ctx, t.querier(), repo)
}

func (t *sqliteTx) ReplaceText(ctx context.Context, entry *TextEntry) error {
	return t.storage.replaceTextWithQuerier(ctx, t.querier(), entry)
}

func (t *sqliteTx) DeleteText(ctx context.Context, fileID int64) error {
	return t.storage.deleteTextWithQuerier(ctx, t.querier(), fileID)
}

func (t *sqliteTx) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, t.querier(), query, limit, filters)
}

func (t *sqliteTx) UpsertRepository(ctx context.Context, repo *Repository) error {
	return t.storage.upsertRepositoryWithQuerier(ctx, t.querier(), repo)
}

func (t *sqliteTx) GetRepository(ctx context.Context, name string) (*Repository, error) {
	return t.storage.getRepositoryWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListRepositories(ctx context.Context) ([]*Repository, error) {
	return t.storage.listRepositoriesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
