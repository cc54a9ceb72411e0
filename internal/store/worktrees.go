package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmaloney/foreman/internal/model"
)

// CreateWorktree inserts a worktree and returns it with generated fields.
func (s *Store) CreateWorktree(ctx context.Context, wt *model.Worktree) error {
	if wt.ID == uuid.Nil {
		wt.ID = uuid.New()
	}

	const q = `
		INSERT INTO worktrees (id, repository_id, branch, base_branch, path)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		wt.ID, wt.RepositoryID, wt.Branch, wt.BaseBranch, wt.Path,
	).Scan(&wt.CreatedAt, &wt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert worktree: %w", err)
	}
	return nil
}

// GetWorktree fetches a worktree by ID.
func (s *Store) GetWorktree(ctx context.Context, id uuid.UUID) (*model.Worktree, error) {
	const q = `
		SELECT id, repository_id, branch, base_branch, path, created_at, updated_at
		FROM worktrees
		WHERE id = $1`

	var wt model.Worktree
	err := s.db.QueryRow(ctx, q, id).Scan(
		&wt.ID, &wt.RepositoryID, &wt.Branch, &wt.BaseBranch, &wt.Path,
		&wt.CreatedAt, &wt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select worktree: %w", err)
	}
	return &wt, nil
}

// ListWorktrees returns worktrees, optionally filtered by repository.
func (s *Store) ListWorktrees(ctx context.Context, repositoryID uuid.UUID) ([]model.Worktree, error) {
	q := `
		SELECT id, repository_id, branch, base_branch, path, created_at, updated_at
		FROM worktrees`
	var args []any
	if repositoryID != uuid.Nil {
		q += ` WHERE repository_id = $1`
		args = append(args, repositoryID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select worktrees: %w", err)
	}
	defer rows.Close()

	var wts []model.Worktree
	for rows.Next() {
		var wt model.Worktree
		if err := rows.Scan(
			&wt.ID, &wt.RepositoryID, &wt.Branch, &wt.BaseBranch, &wt.Path,
			&wt.CreatedAt, &wt.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan worktree: %w", err)
		}
		wts = append(wts, wt)
	}
	return wts, rows.Err()
}

// DeleteWorktree removes a worktree and its instances.
func (s *Store) DeleteWorktree(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM worktrees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete worktree: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
