package indexer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/retry"
	"github.com/dshills/repoindex/internal/scanner"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/internal/vectorstore"
)

var (
	// ErrIndexingInProgress is returned when a run is already active on this indexer
	ErrIndexingInProgress = errors.New("indexing already in progress")

	// ErrVectorWrites is returned when vector store mutations still failed after retries
	ErrVectorWrites = errors.New("vector store writes failed")
)

// VectorStore is the part of the vector store the indexer drives
type VectorStore interface {
	Insert(ctx context.Context, entry *vectorstore.Entry) error
	Delete(ctx context.Context, id string) error
	ListHashes(ctx context.Context, repo string) (map[string]string, error)
}

// Indexer coordinates the indexing pipeline: scan -> detect changes -> embed -> store
type Indexer struct {
	storage  storage.Storage
	vectors  VectorStore
	embedder embedder.Embedder
	logger   zerolog.Logger

	// vectorPolicy wraps every vector store mutation
	vectorPolicy retry.Policy

	lock IndexLock
	now  func() time.Time
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(idx *Indexer) {
		idx.logger = logger
	}
}

// Options describes one indexing run
type Options struct {
	Repo    string   // Repository name; defaults to the root's base name
	Root    string   // Local directory to index
	Source  string   // Origin URL recorded in the registry; empty for local paths
	Force   bool     // Re-embed files even when their hash is unchanged
	Include []string // Globs; empty means scanner.DefaultInclude
	Exclude []string // Globs; empty means scanner.DefaultExclude
}

// Summary contains statistics about an indexing run
type Summary struct {
	Repo             string
	Scanned          int
	Indexed          int
	Deleted          int
	SkippedBinary    int
	SkippedUnchanged int
	Failed           int
	VectorErrors     int
	Duration         time.Duration
	Errors           []string
}

// stagedUpdate is a changed file waiting for the metadata transaction
type stagedUpdate struct {
	file   *scanner.File
	vector []float32
	id     int64 // Filled by the transaction
}

// stagedDeletion is a previously indexed path that was not seen
type stagedDeletion struct {
	path string
	id   int64
}

// DefaultVectorPolicy retries commit conflicts 3 times in total, waiting
// 10ms then 20ms between attempts
func DefaultVectorPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  3,
		Backoff:   retry.Schedule(10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond),
		Retryable: vectorstore.IsConflict,
	}
}

// New creates a new Indexer instance
func New(store storage.Storage, vectors VectorStore, emb embedder.Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		storage:      store,
		vectors:      vectors,
		embedder:     emb,
		logger:       zerolog.Nop(),
		vectorPolicy: DefaultVectorPolicy(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.vectorPolicy.OnRetry = func(attempt int, err error) {
		idx.logger.Debug().Int("attempt", attempt).Err(err).Msg("retrying vector store mutation")
	}
	return idx
}

// IndexRepository indexes the tree at opts.Root incrementally. The summary is
// returned even when the run fails; the registry records the outcome either way.
func (idx *Indexer) IndexRepository(ctx context.Context, opts Options) (*Summary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	root, repo, err := resolveTarget(opts.Root, opts.Repo)
	if err != nil {
		return nil, err
	}

	start := idx.now()
	summary := &Summary{Repo: repo, Errors: make([]string, 0)}

	log := idx.logger.With().Str("repo", repo).Str("root", root).Logger()
	log.Info().Bool("force", opts.Force).Msg("indexing started")

	runErr := idx.run(ctx, root, repo, opts, summary, log)
	summary.Duration = time.Since(start)

	if err := idx.recordRun(ctx, repo, opts.Source, runErr); err != nil {
		if runErr == nil {
			runErr = err
		} else {
			log.Error().Err(err).Msg("failed to record failed run in registry")
		}
	}

	event := log.Info()
	if runErr != nil {
		event = log.Error().Err(runErr)
	}
	event.
		Int("scanned", summary.Scanned).
		Int("indexed", summary.Indexed).
		Int("deleted", summary.Deleted).
		Int("skipped_binary", summary.SkippedBinary).
		Int("skipped_unchanged", summary.SkippedUnchanged).
		Int("failed", summary.Failed).
		Int("vector_errors", summary.VectorErrors).
		Dur("duration", summary.Duration).
		Msg("indexing finished")

	return summary, runErr
}

func (idx *Indexer) run(ctx context.Context, root, repo string, opts Options, summary *Summary, log zerolog.Logger) error {
	existing, err := idx.storage.ListFileHashes(ctx, repo)
	if err != nil {
		return fmt.Errorf("failed to load recorded hashes: %w", err)
	}

	paths, err := scanner.Scan(ctx, root, scanner.Options{Include: opts.Include, Exclude: opts.Exclude})
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", root, err)
	}
	summary.Scanned = len(paths)

	seen := make(map[string]bool, len(paths))
	updates := make([]*stagedUpdate, 0)

	// Files are processed one at a time in scan order
	for _, rel := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}

		file, err := scanner.Read(root, rel)
		if err != nil {
			// Keep the previous record; the file may be readable next run
			seen[rel] = true
			summary.Failed++
			summary.Errors = append(summary.Errors, err.Error())
			log.Warn().Str("path", rel).Err(err).Msg("skipping unreadable file")
			continue
		}

		if file.Binary {
			summary.SkippedBinary++
			continue
		}
		seen[rel] = true

		if prev, ok := existing[rel]; ok && prev.ContentHash == file.Hash && !opts.Force {
			summary.SkippedUnchanged++
			continue
		}

		emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: file.Content})
		if err != nil {
			return fmt.Errorf("failed to embed %s: %w", rel, err)
		}
		updates = append(updates, &stagedUpdate{file: file, vector: emb.Vector})
	}

	deletions := make([]stagedDeletion, 0)
	for path, fh := range existing {
		if !seen[path] {
			deletions = append(deletions, stagedDeletion{path: path, id: fh.ID})
		}
	}
	sort.Slice(deletions, func(i, j int) bool { return deletions[i].path < deletions[j].path })

	if len(updates) > 0 || len(deletions) > 0 {
		if err := idx.commitMetadata(ctx, repo, updates, deletions); err != nil {
			return err
		}
	}
	summary.Indexed = len(updates)
	summary.Deleted = len(deletions)

	// Vector writes happen after the metadata commit and outside its transaction
	var firstErr error
	record := func(op, path string, err error) {
		summary.VectorErrors++
		summary.Errors = append(summary.Errors, fmt.Sprintf("vector %s %s: %v", op, path, err))
		log.Error().Str("path", path).Str("op", op).Err(err).Msg("vector store mutation failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, del := range deletions {
		if err := idx.deleteVector(ctx, repo, del.path); err != nil {
			record("delete", del.path, err)
		}
	}
	for _, upd := range updates {
		if err := idx.writeVector(ctx, repo, upd.file, upd.vector); err != nil {
			record("write", upd.file.RelPath, err)
		}
	}

	if summary.VectorErrors > 0 {
		return fmt.Errorf("%w: %d mutations, first: %w", ErrVectorWrites, summary.VectorErrors, firstErr)
	}
	return nil
}

// commitMetadata applies all staged updates and deletions in one transaction
func (idx *Indexer) commitMetadata(ctx context.Context, repo string, updates []*stagedUpdate, deletions []stagedDeletion) (err error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, upd := range updates {
		f := upd.file
		record := &storage.File{
			Repo:        repo,
			Path:        f.RelPath,
			Filename:    f.Filename,
			ModTime:     f.ModTime,
			SizeBytes:   f.Size,
			ContentHash: f.Hash,
		}
		if err = tx.UpsertFile(ctx, record); err != nil {
			return err
		}
		upd.id = record.ID

		if err = tx.ReplaceText(ctx, &storage.TextEntry{
			FileID:   record.ID,
			Repo:     repo,
			Path:     f.RelPath,
			Filename: f.Filename,
			Contents: f.Content,
		}); err != nil {
			return err
		}
	}

	for _, del := range deletions {
		if err = tx.DeleteText(ctx, del.id); err != nil {
			return err
		}
		if err = tx.DeleteFile(ctx, del.id); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// deleteVector removes the entry for path, retrying conflicts
func (idx *Indexer) deleteVector(ctx context.Context, repo, path string) error {
	id := vectorstore.Key(repo, path)
	return retry.DoErr(ctx, idx.vectorPolicy, func(ctx context.Context) error {
		return idx.vectors.Delete(ctx, id)
	})
}

// writeVector replaces the entry for a file: delete by key, then insert
func (idx *Indexer) writeVector(ctx context.Context, repo string, f *scanner.File, vector []float32) error {
	if err := idx.deleteVector(ctx, repo, f.RelPath); err != nil {
		return err
	}

	entry := &vectorstore.Entry{
		ID:        vectorstore.Key(repo, f.RelPath),
		Repo:      repo,
		Path:      f.RelPath,
		Filename:  f.Filename,
		ModTime:   f.ModTime,
		SizeBytes: f.Size,
		Hash:      hashHex(f.Hash),
		Vector:    vector,
	}
	return retry.DoErr(ctx, idx.vectorPolicy, func(ctx context.Context) error {
		return idx.vectors.Insert(ctx, entry)
	})
}

// recordRun upserts the registry entry; a failed run keeps the previous timestamp
func (idx *Indexer) recordRun(ctx context.Context, repo, source string, runErr error) error {
	entry := &storage.Repository{Name: repo}
	if source != "" {
		entry.Source = &source
	}
	if runErr == nil {
		now := idx.now()
		entry.LastIndexedAt = &now
	} else {
		msg := runErr.Error()
		entry.LastError = &msg
	}

	// Record the outcome even when the run was cancelled
	if err := idx.storage.UpsertRepository(context.WithoutCancel(ctx), entry); err != nil {
		return fmt.Errorf("failed to update registry: %w", err)
	}
	return nil
}

// resolveTarget makes root absolute and derives the repository name
func resolveTarget(root, repo string) (string, string, error) {
	if root == "" {
		return "", "", fmt.Errorf("%w: root is required", scanner.ErrNotDirectory)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if repo == "" {
		repo = filepath.Base(abs)
	}
	return abs, repo, nil
}
