package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/storage"
	"github.com/dshills/repoindex/internal/vectorstore"
	"github.com/dshills/repoindex/pkg/types"
)

// Mode defines how search is performed
type Mode string

const (
	ModeKeyword  Mode = "keyword"  // Full-text search only
	ModeSemantic Mode = "semantic" // Vector similarity only
	ModeHybrid   Mode = "hybrid"   // Weighted union of both
)

const (
	DefaultLimit          = 20
	MaxLimit              = 100
	DefaultKeywordWeight  = 0.4
	DefaultSemanticWeight = 0.6
	DefaultCacheSize      = 1000
	DefaultCacheTTL       = time.Hour
)

var (
	// ErrInvalidQuery is returned for empty queries and malformed options
	ErrInvalidQuery = errors.New("invalid search query")

	// ErrUnsupportedMode is returned for a mode other than keyword, semantic or hybrid
	ErrUnsupportedMode = errors.New("unsupported search mode")
)

// ParseMode converts user input to a Mode; empty means hybrid
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return ModeHybrid, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// TextIndex is the full-text side of the search
type TextIndex interface {
	SearchText(ctx context.Context, query string, limit int, filters *storage.SearchFilters) ([]storage.TextResult, error)
}

// VectorIndex is the nearest-neighbor side of the search
type VectorIndex interface {
	Search(ctx context.Context, query []float32, limit int, repo string) ([]vectorstore.Hit, error)
}

// Request contains parameters for a search operation
type Request struct {
	Query          string
	Mode           Mode    // Empty means hybrid
	Repo           string  // Empty searches every repository
	Limit          int     // Zero means DefaultLimit
	KeywordWeight  float64 // Zero means DefaultKeywordWeight
	SemanticWeight float64 // Zero means DefaultSemanticWeight
	UseCache       bool
}

// Response contains search results and metadata
type Response struct {
	Results      []types.SearchResult
	Mode         Mode
	Duration     time.Duration
	CacheHit     bool
	KeywordHits  int
	SemanticHits int
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// Searcher coordinates keyword, semantic and hybrid search
type Searcher struct {
	text     TextIndex
	vectors  VectorIndex
	embedder embedder.Embedder
	logger   zerolog.Logger

	cacheSize int
	cacheTTL  time.Duration
	cache     *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// WithCache sets the response cache capacity and entry lifetime
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Searcher) {
		if size > 0 {
			s.cacheSize = size
		}
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// New creates a new Searcher instance
func New(text TextIndex, vectors VectorIndex, emb embedder.Embedder, opts ...Option) (*Searcher, error) {
	s := &Searcher{
		text:      text,
		vectors:   vectors,
		embedder:  emb,
		logger:    zerolog.Nop(),
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.New[[32]byte, *cacheEntry](s.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := s.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	var response *Response
	var err error

	switch req.Mode {
	case ModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	case ModeSemantic:
		response, err = s.semanticSearch(ctx, req)
	case ModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Mode = req.Mode
	response.Duration = time.Since(startTime)

	if req.UseCache {
		s.storeInCache(req, response)
	}

	s.logger.Debug().
		Str("mode", string(req.Mode)).
		Str("repo", req.Repo).
		Int("results", len(response.Results)).
		Dur("duration", response.Duration).
		Msg("search completed")

	return response, nil
}

// scored is one hit with its normalized score
type scored struct {
	repo     string
	path     string
	filename string
	snippet  *string
	score    float64
}

// runKeyword queries the text index and normalizes its bm25 ranks
func (s *Searcher) runKeyword(ctx context.Context, req Request, limit int) ([]scored, error) {
	var filters *storage.SearchFilters
	if req.Repo != "" {
		filters = &storage.SearchFilters{Repo: req.Repo}
	}

	textResults, err := s.text.SearchText(ctx, req.Query, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	hits := make([]scored, len(textResults))
	for i, tr := range textResults {
		hits[i] = scored{
			repo:     tr.Repo,
			path:     tr.Path,
			filename: tr.Filename,
			snippet:  optionalSnippet(tr.Snippet),
			score:    Normalize(tr.Rank),
		}
	}
	return hits, nil
}

// runSemantic embeds the query, searches the vector store and attaches
// a best-effort snippet from the text index
func (s *Searcher) runSemantic(ctx context.Context, req Request, limit int) ([]scored, error) {
	emb, err := s.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: req.Query})
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	vectorHits, err := s.vectors.Search(ctx, emb.Vector, limit, req.Repo)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}

	hits := make([]scored, len(vectorHits))
	for i, vh := range vectorHits {
		hits[i] = scored{
			repo:     vh.Repo,
			path:     vh.Path,
			filename: vh.Filename,
			snippet:  s.lookupSnippet(ctx, req.Query, vh.Repo, vh.Path),
			score:    Normalize(vh.Distance),
		}
	}
	return hits, nil
}

// lookupSnippet re-queries the text index for one file; nil when nothing matches
func (s *Searcher) lookupSnippet(ctx context.Context, query, repo, path string) *string {
	results, err := s.text.SearchText(ctx, query, 1, &storage.SearchFilters{Repo: repo, Path: path})
	if err != nil {
		s.logger.Debug().Err(err).Str("repo", repo).Str("path", path).Msg("snippet lookup failed")
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	return optionalSnippet(results[0].Snippet)
}

// keywordSearch performs only full-text search
func (s *Searcher) keywordSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.runKeyword(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:     s.toResults(rankHits(hits), req.Limit),
		KeywordHits: len(hits),
	}, nil
}

// semanticSearch performs only vector similarity search
func (s *Searcher) semanticSearch(ctx context.Context, req Request) (*Response, error) {
	hits, err := s.runSemantic(ctx, req, req.Limit)
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:      s.toResults(rankHits(hits), req.Limit),
		SemanticHits: len(hits),
	}, nil
}

// hybridSearch runs both searches concurrently and fuses the weighted scores
func (s *Searcher) hybridSearch(ctx context.Context, req Request) (*Response, error) {
	var keywordHits, semanticHits []scored

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		keywordHits, err = s.runKeyword(gctx, req, req.Limit*2)
		return err
	})
	g.Go(func() error {
		var err error
		semanticHits, err = s.runSemantic(gctx, req, req.Limit*2)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := fuse(keywordHits, semanticHits, req.KeywordWeight, req.SemanticWeight)
	return &Response{
		Results:      s.toResults(rankHits(fused), req.Limit),
		KeywordHits:  len(keywordHits),
		SemanticHits: len(semanticHits),
	}, nil
}

// fuse unions both sides by (repo, path). A hit found on one side keeps
// that side's weighted score; a hit found on both sums them.
func fuse(keyword, semantic []scored, keywordWeight, semanticWeight float64) []scored {
	type key struct{ repo, path string }

	merged := make(map[key]*scored, len(keyword)+len(semantic))
	order := make([]key, 0, len(keyword)+len(semantic))

	add := func(hits []scored, weight float64) {
		for _, h := range hits {
			k := key{h.repo, h.path}
			if existing, ok := merged[k]; ok {
				existing.score += h.score * weight
				if existing.snippet == nil {
					existing.snippet = h.snippet
				}
				continue
			}
			entry := h
			entry.score = h.score * weight
			merged[k] = &entry
			order = append(order, k)
		}
	}
	add(keyword, keywordWeight)
	add(semantic, semanticWeight)

	out := make([]scored, len(order))
	for i, k := range order {
		out[i] = *merged[k]
	}
	return out
}

// rankHits sorts by score descending, keeping input order among equal scores
func rankHits(hits []scored) []scored {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
	return hits
}

// toResults converts the first limit hits, dropping any malformed record
func (s *Searcher) toResults(hits []scored, limit int) []types.SearchResult {
	results := make([]types.SearchResult, 0, min(limit, len(hits)))
	for _, h := range hits {
		if len(results) == limit {
			break
		}
		r := types.SearchResult{
			Repo:     h.repo,
			Path:     h.path,
			Filename: h.filename,
			Snippet:  h.snippet,
			Score:    h.score,
		}
		if err := r.Validate(); err != nil {
			s.logger.Warn().Err(err).Str("repo", h.repo).Str("path", h.path).Msg("dropping malformed search hit")
			continue
		}
		results = append(results, r)
	}
	return results
}

// Normalize maps a lower-is-better value onto (0, 1], higher is better.
// Non-finite input scores 0.
func Normalize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x < 0 {
		x = 0
	}
	return 1 / (1 + x)
}

func optionalSnippet(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// validateRequest rejects bad input and fills defaults
func validateRequest(req *Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}

	if req.Mode == "" {
		req.Mode = ModeHybrid
	}
	switch req.Mode {
	case ModeKeyword, ModeSemantic, ModeHybrid:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}

	if req.Limit < 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}

	if req.KeywordWeight < 0 || req.SemanticWeight < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidQuery)
	}
	if req.KeywordWeight == 0 {
		req.KeywordWeight = DefaultKeywordWeight
	}
	if req.SemanticWeight == 0 {
		req.SemanticWeight = DefaultSemanticWeight
	}

	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (s *Searcher) checkCache(req Request) *Response {
	hash := computeQueryHash(req)
	now := time.Now()

	s.cacheMu.RLock()
	entry, found := s.cache.Get(hash)
	if !found {
		s.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		s.cacheMu.RUnlock()

		s.cacheMu.Lock()
		s.cache.Remove(hash)
		s.cacheMu.Unlock()
		return nil
	}

	response := copyResponse(entry.response)
	s.cacheMu.RUnlock()

	return response
}

// storeInCache saves a copy of the response
func (s *Searcher) storeInCache(req Request, response *Response) {
	entry := &cacheEntry{
		response:  copyResponse(response),
		expiresAt: time.Now().Add(s.cacheTTL),
	}

	s.cacheMu.Lock()
	s.cache.Add(computeQueryHash(req), entry)
	s.cacheMu.Unlock()
}

// PurgeCache drops every cached response; called after the index changes
func (s *Searcher) PurgeCache() {
	s.cacheMu.Lock()
	s.cache.Purge()
	s.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache.Len()
}

// copyResponse creates a deep copy of a Response
func copyResponse(src *Response) *Response {
	if src == nil {
		return nil
	}

	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, result := range src.Results {
		dst.Results[i] = result
		if result.Snippet != nil {
			snippet := *result.Snippet
			dst.Results[i].Snippet = &snippet
		}
	}
	return &dst
}

// computeQueryHash computes a unique hash for a normalized request
func computeQueryHash(req Request) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(string(req.Mode))
	data.WriteString("|")
	data.WriteString(req.Repo)
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d|%g|%g", req.Limit, req.KeywordWeight, req.SemanticWeight))

	return sha256.Sum256([]byte(data.String()))
}
