package indexer

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/scanner"
)

// ReconcileSummary contains statistics about a reconciliation pass
type ReconcileSummary struct {
	Repo           string
	Checked        int // Metadata records compared
	Repaired       int // Vectors rewritten because missing or outdated
	OrphansDeleted int // Vectors without a metadata record
	Stale          int // Records whose file changed on disk since indexing
	Failed         int
	Duration       time.Duration
	Errors         []string
}

// Reconcile brings the vector store in line with the metadata store for one
// repository. Records whose vector is missing or carries another hash are
// re-embedded from disk; vectors with no record are deleted. Files that
// changed since they were indexed are left for the next indexing run.
func (idx *Indexer) Reconcile(ctx context.Context, repo, root string) (*ReconcileSummary, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer idx.lock.Release()

	root, repo, err := resolveTarget(root, repo)
	if err != nil {
		return nil, err
	}

	start := idx.now()
	summary := &ReconcileSummary{Repo: repo, Errors: make([]string, 0)}
	log := idx.logger.With().Str("repo", repo).Logger()

	records, err := idx.storage.ListFiles(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	vectorHashes, err := idx.vectors.ListHashes(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}

	known := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		known[rec.Path] = true
		summary.Checked++

		if vectorHashes[rec.Path] == rec.HashHex() {
			continue
		}

		file, err := scanner.Read(root, rec.Path)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		if file.Hash != rec.ContentHash || file.Binary {
			summary.Stale++
			continue
		}

		emb, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: file.Content})
		if err != nil {
			return summary, fmt.Errorf("failed to embed %s: %w", rec.Path, err)
		}
		if err := idx.writeVector(ctx, repo, file, emb.Vector); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("vector write %s: %v", rec.Path, err))
			continue
		}
		summary.Repaired++
	}

	orphans := make([]string, 0)
	for path := range vectorHashes {
		if !known[path] {
			orphans = append(orphans, path)
		}
	}
	sort.Strings(orphans)

	for _, path := range orphans {
		if err := idx.deleteVector(ctx, repo, path); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("vector delete %s: %v", path, err))
			continue
		}
		summary.OrphansDeleted++
	}

	summary.Duration = time.Since(start)
	log.Info().
		Int("checked", summary.Checked).
		Int("repaired", summary.Repaired).
		Int("orphans_deleted", summary.OrphansDeleted).
		Int("stale", summary.Stale).
		Int("failed", summary.Failed).
		Msg("reconciliation finished")

	return summary, nil
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
