package storage

import (
	"context"
	"encoding/hex"
	"time"
)

// Storage defines the interface for the relational metadata and full-text store
type Storage interface {
	// File operations
	UpsertFile(ctx context.Context, file *File) error
	GetFile(ctx context.Context, repo, path string) (*File, error)
	GetFileByID(ctx context.Context, fileID int64) (*File, error)
	DeleteFile(ctx context.Context, fileID int64) error
	ListFiles(ctx context.Context, repo string) ([]*File, error)
	ListFileHashes(ctx context.Context, repo string) (map[string]FileHash, error)
	CountFiles(ctx context.Context, repo string) (int, error)

	// Full-text operations
	ReplaceText(ctx context.Context, entry *TextEntry) error
	DeleteText(ctx context.Context, fileID int64) error
	SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error)

	// Repository registry operations
	UpsertRepository(ctx context.Context, repo *Repository) error
	GetRepository(ctx context.Context, name string) (*Repository, error)
	ListRepositories(ctx context.Context) ([]*Repository, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// File is the metadata row for one indexed file of a repository
type File struct {
	ID          int64
	Repo        string
	Path        string // Relative to repository root, slash separated
	Filename    string
	ModTime     time.Time
	SizeBytes   int64
	ContentHash [32]byte
}

// HashHex returns the content hash as lowercase hex
func (f *File) HashHex() string {
	return hex.EncodeToString(f.ContentHash[:])
}

// FileHash is the slice of a file record the indexer needs for change detection
type FileHash struct {
	ID          int64
	ContentHash [32]byte
}

// TextEntry mirrors a File's searchable content; its row identity is the file ID
type TextEntry struct {
	FileID   int64
	Repo     string
	Path     string
	Filename string
	Contents string
}

// Repository is one row of the repository registry
type Repository struct {
	Name          string
	Source        *string    // Nullable: nil for local paths
	LastIndexedAt *time.Time // Nullable: nil until a run succeeds
	LastError     *string    // Nullable: nil on success
	FileCount     int        // Derived at read time, never stored
}

// SearchFilters narrows full-text search results
type SearchFilters struct {
	Repo string // Exact repository name
	Path string // Exact relative path
}

// TextResult represents a result from full-text search
type TextResult struct {
	FileID   int64
	Repo     string
	Path     string
	Filename string
	Rank     float64 // Native FTS5 bm25 rank (lower is better)
	Snippet  string
}
