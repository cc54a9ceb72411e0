package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmaloney/foreman/internal/model"
)

// Config holds workspace registry configuration.
type Config struct {
	ReconcileInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval: time.Minute,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg    Config
	store  Store
	logger *slog.Logger

	state *registryState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new workspace registry.
func NewRegistry(cfg Config, st Store, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultConfig().ReconcileInterval
	}

	return &registryImpl{
		cfg:    cfg,
		store:  st,
		logger: logger,
		state:  newState(),
	}
}

// Start loads instances from the store and begins reconciliation.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	// Initial sync (blocking).
	if err := r.initialSync(r.ctx); err != nil {
		r.cancel()
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reconciliationLoop(r.ctx)
	}()

	r.logger.Info("workspace registry started",
		"active_instances", len(r.state.activeSet),
		"total_instances", len(r.state.instances),
	)

	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("workspace registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetActiveInstances returns all instances with a live agent process.
func (r *registryImpl) GetActiveInstances() []model.Instance {
	return r.state.getActiveInstances()
}

// GetInstance returns an instance by its stream session key.
func (r *registryImpl) GetInstance(sessionID string) (model.Instance, bool) {
	return r.state.getInstance(sessionID)
}

// SubscribeChanges returns a channel of instance state changes.
func (r *registryImpl) SubscribeChanges() <-chan InstanceChange {
	return r.state.changes
}

// UpdateStatus transitions an instance, writing through to the store.
func (r *registryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error {
	if err := r.store.UpdateInstanceStatus(ctx, id, status); err != nil {
		return fmt.Errorf("update instance status: %w", err)
	}

	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	for _, inst := range r.state.instances {
		if inst.ID != id {
			continue
		}
		oldStatus := inst.Status
		updated := *inst
		updated.Status = status
		updated.UpdatedAt = time.Now()
		r.state.upsertLocked(updated)

		r.state.notifyChange(InstanceChange{
			SessionID: updated.SessionID,
			EventType: "status_change",
			OldStatus: oldStatus,
			NewStatus: status,
			Instance:  &updated,
		})
		return nil
	}

	// Not cached yet; reconciliation will pick it up.
	return nil
}
