package workspace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// initialSync loads all instances from the store on startup.
func (r *registryImpl) initialSync(ctx context.Context) error {
	start := time.Now()

	instances, err := r.store.ListInstances(ctx, uuid.Nil)
	if err != nil {
		return err
	}

	r.state.mu.Lock()
	for _, inst := range instances {
		r.state.upsertLocked(inst)

		if inst.Status.Active() {
			cp := inst
			r.state.notifyChange(InstanceChange{
				SessionID: inst.SessionID,
				EventType: "created",
				NewStatus: inst.Status,
				Instance:  &cp,
			})
		}
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	r.logger.Info("initial instance sync complete",
		"total_instances", len(instances),
		"duration", time.Since(start),
	)

	return nil
}

// reconciliationLoop periodically syncs with the store.
func (r *registryImpl) reconciliationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile diffs the store against the cache and emits changes.
func (r *registryImpl) reconcile(ctx context.Context) {
	start := time.Now()

	instances, err := r.store.ListInstances(ctx, uuid.Nil)
	if err != nil {
		r.logger.Error("reconciliation failed listing instances", "err", err)
		return
	}

	var created, changed, ended int

	r.state.mu.Lock()
	seen := make(map[string]struct{}, len(instances))
	for _, inst := range instances {
		seen[inst.SessionID] = struct{}{}
		existing, ok := r.state.instances[inst.SessionID]

		if !ok {
			// New instance created outside this process.
			r.state.upsertLocked(inst)
			if inst.Status.Active() {
				cp := inst
				r.state.notifyChange(InstanceChange{
					SessionID: inst.SessionID,
					EventType: "created",
					NewStatus: inst.Status,
					Instance:  &cp,
				})
				created++
			}
			continue
		}

		if existing.Status != inst.Status {
			oldStatus := existing.Status
			r.state.upsertLocked(inst)

			cp := inst
			r.state.notifyChange(InstanceChange{
				SessionID: inst.SessionID,
				EventType: "status_change",
				OldStatus: oldStatus,
				NewStatus: inst.Status,
				Instance:  &cp,
			})
			changed++
		}
	}

	// Instances deleted from the store have ended.
	for sessionID, inst := range r.state.instances {
		if _, ok := seen[sessionID]; ok {
			continue
		}
		oldStatus := inst.Status
		r.state.removeLocked(sessionID)
		r.state.notifyChange(InstanceChange{
			SessionID: sessionID,
			EventType: "ended",
			OldStatus: oldStatus,
		})
		ended++
	}
	r.state.lastSyncAt = time.Now()
	r.state.mu.Unlock()

	if created > 0 || changed > 0 || ended > 0 {
		r.logger.Info("reconciliation found changes",
			"created", created,
			"changed", changed,
			"ended", ended,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("reconciliation complete",
			"total_instances", len(instances),
			"duration", time.Since(start),
		)
	}
}
