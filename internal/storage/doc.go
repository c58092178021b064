// Package storage provides the SQLite-backed metadata and full-text store.
//
// The storage layer manages:
//   - File metadata keyed by (repo, path) with SHA-256 content hashes
//   - An FTS5 index mirroring each file's searchable contents
//   - The repository registry (source, last run time, last error)
//
// # Database Schema
//
// Tables:
//   - files: one row per indexed file; id is stable across updates
//   - files_fts: FTS5 table whose rowid equals files.id
//   - repositories: one row per repository name
//   - schema_version: applied migrations
//
// File counts in the registry are never stored; ListRepositories derives
// them from files at read time.
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.repoindex/index.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	file := &storage.File{Repo: "app", Path: "src/a.ts", Filename: "a.ts", ContentHash: hash}
//	if err := db.UpsertFile(ctx, file); err != nil {
//	    return err
//	}
//
// # Transactions
//
// A file's metadata row and its FTS entry change together:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.UpsertFile(ctx, file)
//	_ = tx.ReplaceText(ctx, &storage.TextEntry{FileID: file.ID, Contents: text})
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Full-Text Search
//
// SearchText accepts free text. Terms are extracted with a Unicode word
// pattern, quoted, and OR-joined, so user input never reaches FTS5 as
// query syntax. Results carry the native bm25 rank (lower is better)
// and a snippet with matches wrapped in [ and ].
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with
// -tags "sqlite_vec,sqlite_fts5" switches to github.com/mattn/go-sqlite3
// and registers the sqlite-vec extension.
package storage
