// Package vectorstore persists one embedding per file in its own SQLite
// database, addressed by the composite key "repo:path".
//
// The store is not transactional with the metadata store. It is a
// converging cache: the indexer writes it delete-then-insert after the
// metadata transaction commits, and Reconcile repairs any drift.
//
// # Optimistic Concurrency
//
// The table_versions row for "files" is the store's versioned state. A
// mutation reads the current version, then commits only if
// UPDATE ... WHERE version = <view> affects a row. A stale view or
// SQLite lock contention surfaces as ErrCommitConflict, which callers
// retry with a fresh view:
//
//	err := retry.DoErr(ctx, policy, func(ctx context.Context) error {
//	    return store.Delete(ctx, vectorstore.Key(repo, path))
//	})
//
// # Schema Drift
//
// Open inspects the files table. If it exists without a vector column it
// is dropped and recreated, losing its rows; the next indexing run or
// reconciliation repopulates it.
//
// # Search
//
// Search ranks by L2 distance. Builds with the sqlite_vec tag evaluate
// vec_distance_l2 in SQLite; other builds compute distances in Go.
package vectorstore
