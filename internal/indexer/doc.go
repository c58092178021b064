// Package indexer keeps a repository's metadata, full-text and vector
// stores in step with the files on disk.
//
// # Basic Usage
//
//	idx := indexer.New(store, vectors, emb, indexer.WithLogger(logger))
//
//	summary, err := idx.IndexRepository(ctx, indexer.Options{
//	    Root: "/path/to/repo",
//	    Repo: "repo",
//	})
//
//	fmt.Printf("indexed %d, unchanged %d\n", summary.Indexed, summary.SkippedUnchanged)
//
// # Indexing Pipeline
//
//  1. Load the recorded path → (id, hash) map for the repository
//  2. Scan the tree; read each candidate one at a time in path order
//  3. Skip binary files, skip files whose SHA-256 is unchanged (unless
//     Force), embed the rest
//  4. Paths recorded earlier but not seen now are staged for deletion
//  5. Commit file records and FTS rows for every update and deletion in
//     one transaction
//  6. Apply vector deletions, then delete-then-insert each update, every
//     mutation retried on commit conflicts
//  7. Upsert the registry entry with the outcome
//
// # Failure Handling
//
// Unreadable files are counted in Summary.Failed and the run continues.
// Embedding errors abort the run before anything is written. Vector
// mutations that still fail after retries are counted in
// Summary.VectorErrors, the remaining mutations proceed, and the run ends
// with ErrVectorWrites. A failed run records its error in the registry
// but keeps the previous successful timestamp.
//
// Vector writes are not covered by the metadata transaction, so an
// interrupted run can leave vectors behind the metadata. Hash comparison
// alone cannot see that gap; Reconcile closes it.
//
// # Concurrency
//
// An Indexer runs one IndexRepository or Reconcile at a time. A second
// caller gets ErrIndexingInProgress instead of waiting.
package indexer
