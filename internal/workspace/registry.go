package workspace

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmaloney/foreman/internal/model"
)

// ChangeBufferSize is the capacity of the InstanceChange channel.
const ChangeBufferSize = 1000

// Registry tracks agent instances and their lifecycle.
type Registry interface {
	// Start loads current instances from the store and begins background
	// reconciliation. Emits InstanceChange events as instances appear,
	// change status, or end.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// GetActiveInstances returns all instances with a live agent process.
	GetActiveInstances() []model.Instance

	// GetInstance returns an instance by its stream session key.
	GetInstance(sessionID string) (model.Instance, bool)

	// SubscribeChanges returns a channel of instance state changes.
	// The stream manager's owner uses this to tear down connections
	// for ended sessions.
	SubscribeChanges() <-chan InstanceChange

	// UpdateStatus transitions an instance, writing through to the store.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error
}

// InstanceChange represents an instance state transition.
type InstanceChange struct {
	SessionID string          // Stream session key
	EventType string          // "created", "status_change", "ended"
	OldStatus model.InstanceStatus
	NewStatus model.InstanceStatus
	Instance  *model.Instance // Full instance data (nil for "ended")
}

// Store is the persistence surface the registry needs.
type Store interface {
	ListInstances(ctx context.Context, worktreeID uuid.UUID) ([]model.Instance, error)
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error
}
