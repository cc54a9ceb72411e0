package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmaloney/foreman/internal/model"
)

const instanceColumns = `id, worktree_id, session_id, agent_kind, title, prompt, status, created_at, updated_at`

func scanInstance(row pgx.Row) (*model.Instance, error) {
	var inst model.Instance
	err := row.Scan(
		&inst.ID, &inst.WorktreeID, &inst.SessionID, &inst.AgentKind,
		&inst.Title, &inst.Prompt, &inst.Status,
		&inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	return &inst, nil
}

// CreateInstance inserts an instance and returns it with generated fields.
func (s *Store) CreateInstance(ctx context.Context, inst *model.Instance) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.SessionID == "" {
		inst.SessionID = inst.ID.String()
	}
	if inst.Status == "" {
		inst.Status = model.InstancePending
	}

	const q = `
		INSERT INTO instances (id, worktree_id, session_id, agent_kind, title, prompt, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, q,
		inst.ID, inst.WorktreeID, inst.SessionID, inst.AgentKind,
		inst.Title, inst.Prompt, inst.Status,
	).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	return nil
}

// GetInstance fetches an instance by ID.
func (s *Store) GetInstance(ctx context.Context, id uuid.UUID) (*model.Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return scanInstance(s.db.QueryRow(ctx, q, id))
}

// GetInstanceBySession fetches an instance by its stream session key.
func (s *Store) GetInstanceBySession(ctx context.Context, sessionID string) (*model.Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM instances WHERE session_id = $1`
	return scanInstance(s.db.QueryRow(ctx, q, sessionID))
}

// ListInstances returns instances, optionally filtered by worktree.
func (s *Store) ListInstances(ctx context.Context, worktreeID uuid.UUID) ([]model.Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM instances`
	var args []any
	if worktreeID != uuid.Nil {
		q += ` WHERE worktree_id = $1`
		args = append(args, worktreeID)
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select instances: %w", err)
	}
	defer rows.Close()

	return collectInstances(rows)
}

// ListActiveInstances returns instances whose agent process is still live.
func (s *Store) ListActiveInstances(ctx context.Context) ([]model.Instance, error) {
	q := `SELECT ` + instanceColumns + ` FROM instances WHERE status IN ($1, $2) ORDER BY created_at`

	rows, err := s.db.Query(ctx, q, model.InstanceRunning, model.InstanceWaiting)
	if err != nil {
		return nil, fmt.Errorf("select active instances: %w", err)
	}
	defer rows.Close()

	return collectInstances(rows)
}

func collectInstances(rows pgx.Rows) ([]model.Instance, error) {
	var insts []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		insts = append(insts, *inst)
	}
	return insts, rows.Err()
}

// UpdateInstanceStatus transitions an instance to the given status.
func (s *Store) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error {
	const q = `UPDATE instances SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := s.db.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInstance removes an instance record.
func (s *Store) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
