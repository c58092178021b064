package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    repo TEXT NOT NULL,
    path TEXT NOT NULL,
    filename TEXT NOT NULL,
    mtime_ms INTEGER NOT NULL DEFAULT 0,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    hash TEXT NOT NULL,
    vector BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vector_files_repo ON files(repo);

CREATE TABLE IF NOT EXISTS table_versions (
    name TEXT PRIMARY KEY,
    version INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO table_versions (name, version) VALUES ('files', 0);
`

// ensureSchema creates the vector tables, first dropping a files table
// that lacks the vector column
func (s *Store) ensureSchema(ctx context.Context) error {
	columns, err := tableColumns(ctx, s.db, "files")
	if err != nil {
		return err
	}

	if len(columns) > 0 && !columns["vector"] {
		s.logger.Warn().
			Str("table", "files").
			Msg("vector table has no vector column, dropping and recreating")
		if _, err := s.db.ExecContext(ctx, `DROP TABLE files`); err != nil {
			return fmt.Errorf("failed to drop drifted vector table: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create vector schema: %w", err)
	}
	return nil
}

// tableColumns returns the column names of table, empty if it doesn't exist
func tableColumns(ctx context.Context, db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		columns[name] = true
	}
	return columns, rows.Err()
}
