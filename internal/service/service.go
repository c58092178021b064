// Package service owns the store handles and exposes the indexing and
// search entry points used by the CLI and the MCP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/indexer"
	"github.com/dshills/repoindex/internal/searcher"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/internal/vectorstore"
)

const (
	// MetadataFile holds file records, the FTS index and the registry
	MetadataFile = "index.db"
	// VectorFile holds the embeddings
	VectorFile = "vectors.db"
)

// ErrClosed is returned by every call after Close
var ErrClosed = errors.New("service closed")

// IndexOptions configures one Index call
type IndexOptions struct {
	Source    string
	Force     bool
	Include   []string // Empty means the service default
	Exclude   []string // Empty means the service default
	Reconcile bool     // Run a reconciliation pass after a successful run
}

// IndexResult reports an indexing run and the optional reconciliation
type IndexResult struct {
	Summary   *indexer.Summary
	Reconcile *indexer.ReconcileSummary
}

// SearchOptions configures one Search call; zero values take the service defaults
type SearchOptions struct {
	Repo           string
	Limit          int
	KeywordWeight  float64
	SemanticWeight float64
	UseCache       bool
}

// Service wires the stores, embedder, indexer and searcher. The two
// store handles open on first use and are released by Close.
type Service struct {
	dataDir  string
	embedder embedder.Embedder
	logger   zerolog.Logger

	defaultSearch  SearchOptions
	defaultInclude []string
	defaultExclude []string

	storeOnce sync.Once
	store     *storage.SQLiteStorage
	storeErr  error

	vectorOnce sync.Once
	vectors    *vectorstore.Store
	vectorErr  error

	wireOnce sync.Once
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	wireErr  error

	closeMu sync.Mutex
	closed  atomic.Bool
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger passed to every component
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSearchDefaults sets the values used when a search leaves them zero
func WithSearchDefaults(limit int, keywordWeight, semanticWeight float64) Option {
	return func(s *Service) {
		s.defaultSearch.Limit = limit
		s.defaultSearch.KeywordWeight = keywordWeight
		s.defaultSearch.SemanticWeight = semanticWeight
	}
}

// WithIndexDefaults sets the globs used when an index call passes none
func WithIndexDefaults(include, exclude []string) Option {
	return func(s *Service) {
		s.defaultInclude = include
		s.defaultExclude = exclude
	}
}

// New creates a service storing its databases under dataDir. Nothing is
// opened until the first call that needs it. The service takes ownership
// of emb and closes it in Close.
func New(dataDir string, emb embedder.Embedder, opts ...Option) *Service {
	s := &Service{
		dataDir:  dataDir,
		embedder: emb,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DataDir returns the directory holding the databases
func (s *Service) DataDir() string {
	return s.dataDir
}

// metadata returns the metadata store, opening it on first use
func (s *Service) metadata() (*storage.SQLiteStorage, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.storeOnce.Do(func() {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			s.storeErr = fmt.Errorf("failed to create data directory: %w", err)
			return
		}
		path := filepath.Join(s.dataDir, MetadataFile)
		s.store, s.storeErr = storage.NewSQLiteStorage(path)
		if s.storeErr == nil {
			s.logger.Debug().Str("path", path).Msg("metadata store opened")
		}
	})
	return s.store, s.storeErr
}

// vectorStore returns the vector store, opening it on first use
func (s *Service) vectorStore(ctx context.Context) (*vectorstore.Store, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.vectorOnce.Do(func() {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			s.vectorErr = fmt.Errorf("failed to create data directory: %w", err)
			return
		}
		path := filepath.Join(s.dataDir, VectorFile)
		s.vectors, s.vectorErr = vectorstore.Open(context.WithoutCancel(ctx), path,
			vectorstore.WithLogger(s.logger),
			vectorstore.WithDimension(s.embedder.Dimension()))
		if s.vectorErr == nil {
			s.logger.Debug().Str("path", path).Msg("vector store opened")
		}
	})
	return s.vectors, s.vectorErr
}

// components opens both stores and builds the indexer and searcher once
func (s *Service) components(ctx context.Context) (*indexer.Indexer, *searcher.Searcher, error) {
	store, err := s.metadata()
	if err != nil {
		return nil, nil, err
	}
	vectors, err := s.vectorStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.wireOnce.Do(func() {
		s.indexer = indexer.New(store, vectors, s.embedder, indexer.WithLogger(s.logger))
		s.searcher, s.wireErr = searcher.New(store, vectors, s.embedder, searcher.WithLogger(s.logger))
	})
	return s.indexer, s.searcher, s.wireErr
}

// Index indexes the tree at root under the repository name repo (the
// root's base name when empty). The search cache is purged afterwards
// whatever the outcome.
func (s *Service) Index(ctx context.Context, root, repo string, opts IndexOptions) (*IndexResult, error) {
	idx, srch, err := s.components(ctx)
	if err != nil {
		return nil, err
	}
	defer srch.PurgeCache()

	include, exclude := opts.Include, opts.Exclude
	if len(include) == 0 {
		include = s.defaultInclude
	}
	if len(exclude) == 0 {
		exclude = s.defaultExclude
	}

	summary, err := idx.IndexRepository(ctx, indexer.Options{
		Repo:    repo,
		Root:    root,
		Source:  opts.Source,
		Force:   opts.Force,
		Include: include,
		Exclude: exclude,
	})
	result := &IndexResult{Summary: summary}
	if err != nil {
		return result, err
	}

	if opts.Reconcile {
		rec, err := idx.Reconcile(ctx, summary.Repo, root)
		result.Reconcile = rec
		if err != nil {
			return result, fmt.Errorf("reconciliation failed: %w", err)
		}
	}
	return result, nil
}

// Reconcile repairs the vector store for one repository against its metadata
func (s *Service) Reconcile(ctx context.Context, root, repo string) (*indexer.ReconcileSummary, error) {
	idx, srch, err := s.components(ctx)
	if err != nil {
		return nil, err
	}
	defer srch.PurgeCache()
	return idx.Reconcile(ctx, repo, root)
}

// Search runs a query. An empty query or unknown mode is rejected before
// any store is opened.
func (s *Service) Search(ctx context.Context, query string, mode searcher.Mode, opts SearchOptions) (*searcher.Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", searcher.ErrInvalidQuery)
	}
	if mode == "" {
		mode = searcher.ModeHybrid
	}
	if _, err := searcher.ParseMode(string(mode)); err != nil {
		return nil, err
	}

	_, srch, err := s.components(ctx)
	if err != nil {
		return nil, err
	}

	req := searcher.Request{
		Query:          query,
		Mode:           mode,
		Repo:           opts.Repo,
		Limit:          opts.Limit,
		KeywordWeight:  opts.KeywordWeight,
		SemanticWeight: opts.SemanticWeight,
		UseCache:       opts.UseCache,
	}
	if req.Limit == 0 {
		req.Limit = s.defaultSearch.Limit
	}
	if req.KeywordWeight == 0 {
		req.KeywordWeight = s.defaultSearch.KeywordWeight
	}
	if req.SemanticWeight == 0 {
		req.SemanticWeight = s.defaultSearch.SemanticWeight
	}

	return srch.Search(ctx, req)
}

// ListRepositories returns the registry ordered by name; only the
// metadata store is opened
func (s *Service) ListRepositories(ctx context.Context) ([]*storage.Repository, error) {
	store, err := s.metadata()
	if err != nil {
		return nil, err
	}
	return store.ListRepositories(ctx)
}

// Close releases whatever handles were opened and the embedder. It is
// safe to call more than once.
func (s *Service) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	// Stop any pending lazy open from completing after this point
	s.storeOnce.Do(func() { s.storeErr = ErrClosed })
	s.vectorOnce.Do(func() { s.vectorErr = ErrClosed })

	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata store: %w", err))
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector store: %w", err))
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}

	s.logger.Debug().Msg("service closed")
	return errors.Join(errs...)
}
