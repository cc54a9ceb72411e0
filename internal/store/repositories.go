package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmaloney/foreman/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// CreateRepository inserts a repository and returns it with generated fields.
func (s *Store) CreateRepository(ctx context.Context, repo *model.Repository) error {
	if repo.ID == uuid.Nil {
		repo.ID = uuid.New()
	}

	const q = `
		INSERT INTO repositories (id, name, owner, remote_url, local_path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		repo.ID, repo.Name, repo.Owner, repo.RemoteURL, repo.LocalPath,
	).Scan(&repo.CreatedAt, &repo.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert repository: %w", err)
	}
	return nil
}

// GetRepository fetches a repository by ID.
func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (*model.Repository, error) {
	const q = `
		SELECT id, name, owner, remote_url, local_path, created_at, updated_at
		FROM repositories
		WHERE id = $1`

	var repo model.Repository
	err := s.db.QueryRow(ctx, q, id).Scan(
		&repo.ID, &repo.Name, &repo.Owner, &repo.RemoteURL, &repo.LocalPath,
		&repo.CreatedAt, &repo.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select repository: %w", err)
	}
	return &repo, nil
}

// ListRepositories returns all repositories ordered by name.
func (s *Store) ListRepositories(ctx context.Context) ([]model.Repository, error) {
	const q = `
		SELECT id, name, owner, remote_url, local_path, created_at, updated_at
		FROM repositories
		ORDER BY name`

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select repositories: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		var repo model.Repository
		if err := rows.Scan(
			&repo.ID, &repo.Name, &repo.Owner, &repo.RemoteURL, &repo.LocalPath,
			&repo.CreatedAt, &repo.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, repo)
	}
	return repos, rows.Err()
}

// DeleteRepository removes a repository. Worktrees and instances
// cascade at the schema level.
func (s *Store) DeleteRepository(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
