package vectorstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dshills/repoindex/internal/storage"
)

// Search returns the limit nearest entries to query by L2 distance,
// optionally restricted to one repository. Ties break on ID.
func (s *Store) Search(ctx context.Context, query []float32, limit int, repo string) ([]Hit, error) {
	if limit <= 0 {
		return []Hit{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), s.dimension)
	}

	// Use SQL-side distance when sqlite-vec is available
	if storage.VectorExtensionAvailable {
		return s.searchOptimized(ctx, query, limit, repo)
	}
	// Fall back to Go-based computation for purego builds
	return s.searchFallback(ctx, query, limit, repo)
}

// searchOptimized computes distances with sqlite-vec's vec_distance_l2
func (s *Store) searchOptimized(ctx context.Context, query []float32, limit int, repo string) ([]Hit, error) {
	sqlQuery := `
		SELECT id, repo, path, filename, mtime_ms, size_bytes, hash,
			vec_distance_l2(vector, ?) AS distance
		FROM files
	`
	args := []interface{}{serializeVector(query)}
	if repo != "" {
		sqlQuery += " WHERE repo = ?"
		args = append(args, repo)
	}
	sqlQuery += " ORDER BY distance, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to execute vector search: %w", err))
	}
	defer func() { _ = rows.Close() }()

	hits := make([]Hit, 0, limit)
	for rows.Next() {
		var hit Hit
		var mtimeMs int64
		if err := rows.Scan(&hit.ID, &hit.Repo, &hit.Path, &hit.Filename, &mtimeMs,
			&hit.SizeBytes, &hit.Hash, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hit.ModTime = time.UnixMilli(mtimeMs)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchFallback loads candidate vectors and ranks them in Go
func (s *Store) searchFallback(ctx context.Context, query []float32, limit int, repo string) ([]Hit, error) {
	sqlQuery := `SELECT id, repo, path, filename, mtime_ms, size_bytes, hash, vector FROM files`
	args := []interface{}{}
	if repo != "" {
		sqlQuery += " WHERE repo = ?"
		args = append(args, repo)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query vectors: %w", err))
	}
	defer func() { _ = rows.Close() }()

	hits, err := computeDistances(rows, query)
	if err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// computeDistances scans rows and computes the L2 distance to query
func computeDistances(rows *sql.Rows, query []float32) ([]Hit, error) {
	hits := make([]Hit, 0)

	for rows.Next() {
		var hit Hit
		var mtimeMs int64
		var blob []byte
		if err := rows.Scan(&hit.ID, &hit.Repo, &hit.Path, &hit.Filename, &mtimeMs,
			&hit.SizeBytes, &hit.Hash, &blob); err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(query) {
			continue // Dimension mismatch, skip
		}

		hit.ModTime = time.UnixMilli(mtimeMs)
		hit.Distance = l2Distance(query, vector)
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// sortHits orders by distance ascending, then ID
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
}

// l2Distance computes the Euclidean distance between two vectors
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}
