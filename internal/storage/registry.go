package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// upsertRepositoryWithQuerier records the outcome of an indexing run.
// A nil LastIndexedAt keeps the previously stored timestamp.
func (s *SQLiteStorage) upsertRepositoryWithQuerier(ctx context.Context, q querier, repo *Repository) error {
	var lastIndexed sql.NullInt64
	if repo.LastIndexedAt != nil {
		lastIndexed = sql.NullInt64{Int64: repo.LastIndexedAt.UnixMilli(), Valid: true}
	}

	query := `
		INSERT INTO repositories (repo, source, last_indexed_ms, last_error)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(repo) DO UPDATE SET
			source = excluded.source,
			last_indexed_ms = COALESCE(excluded.last_indexed_ms, repositories.last_indexed_ms),
			last_error = excluded.last_error
	`
	_, err := q.ExecContext(ctx, query, repo.Name, nullString(repo.Source), lastIndexed, nullString(repo.LastError))
	if err != nil {
		return fmt.Errorf("failed to upsert repository %s: %w", repo.Name, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertRepository(ctx context.Context, repo *Repository) error {
	return s.upsertRepositoryWithQuerier(ctx, s.querier(), repo)
}

const repositoryQuery = `
	SELECT
		r.repo,
		r.source,
		r.last_indexed_ms,
		r.last_error,
		(SELECT COUNT(*) FROM files f WHERE f.repo = r.repo) AS file_count
	FROM repositories r
`

func scanRepository(row rowScanner) (*Repository, error) {
	var repo Repository
	var source, lastError sql.NullString
	var lastIndexed sql.NullInt64
	if err := row.Scan(&repo.Name, &source, &lastIndexed, &lastError, &repo.FileCount); err != nil {
		return nil, err
	}
	if source.Valid {
		repo.Source = &source.String
	}
	if lastError.Valid {
		repo.LastError = &lastError.String
	}
	if lastIndexed.Valid {
		ts := time.UnixMilli(lastIndexed.Int64)
		repo.LastIndexedAt = &ts
	}
	return &repo, nil
}

func (s *SQLiteStorage) getRepositoryWithQuerier(ctx context.Context, q querier, name string) (*Repository, error) {
	repo, err := scanRepository(q.QueryRowContext(ctx, repositoryQuery+` WHERE r.repo = ?`, name))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *SQLiteStorage) GetRepository(ctx context.Context, name string) (*Repository, error) {
	return s.getRepositoryWithQuerier(ctx, s.querier(), name)
}

// listRepositoriesWithQuerier returns every registered repository ordered by name,
// with file counts computed from the metadata table
func (s *SQLiteStorage) listRepositoriesWithQuerier(ctx context.Context, q querier) ([]*Repository, error) {
	rows, err := q.QueryContext(ctx, repositoryQuery+` ORDER BY r.repo ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	repos := make([]*Repository, 0)
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

func (s *SQLiteStorage) ListRepositories(ctx context.Context) ([]*Repository, error) {
	return s.listRepositoriesWithQuerier(ctx, s.querier())
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
