package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dmaloney/foreman/internal/model"
)

// fakeStore is an in-memory Store for registry tests.
type fakeStore struct {
	mu        sync.Mutex
	instances []model.Instance
	listErr   error
}

func (f *fakeStore) ListInstances(ctx context.Context, worktreeID uuid.UUID) ([]model.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Instance, len(f.instances))
	copy(out, f.instances)
	return out, nil
}

func (f *fakeStore) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status model.InstanceStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.instances {
		if f.instances[i].ID == id {
			f.instances[i].Status = status
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeStore) set(instances ...model.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances = instances
}

func makeInstance(session string, status model.InstanceStatus) model.Instance {
	return model.Instance{
		ID:         uuid.New(),
		WorktreeID: uuid.New(),
		SessionID:  session,
		AgentKind:  "claude",
		Status:     status,
	}
}

func drainChanges(ch <-chan InstanceChange) []InstanceChange {
	var out []InstanceChange
	for {
		select {
		case c := <-ch:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestRegistry_InitialSync(t *testing.T) {
	st := &fakeStore{}
	st.set(
		makeInstance("sess-1", model.InstanceRunning),
		makeInstance("sess-2", model.InstanceFinished),
	)

	r := NewRegistry(Config{ReconcileInterval: time.Hour}, st, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())

	active := r.GetActiveInstances()
	if len(active) != 1 {
		t.Fatalf("got %d active instances, want 1", len(active))
	}
	if active[0].SessionID != "sess-1" {
		t.Errorf("active session = %q, want %q", active[0].SessionID, "sess-1")
	}

	if _, ok := r.GetInstance("sess-2"); !ok {
		t.Error("finished instance should still be cached")
	}
	if _, ok := r.GetInstance("nope"); ok {
		t.Error("unknown session should not resolve")
	}

	changes := drainChanges(r.SubscribeChanges())
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1 (only the active instance)", len(changes))
	}
	if changes[0].EventType != "created" || changes[0].SessionID != "sess-1" {
		t.Errorf("unexpected change: %+v", changes[0])
	}
}

func TestRegistry_InitialSyncFailure(t *testing.T) {
	st := &fakeStore{listErr: errors.New("db down")}

	r := NewRegistry(Config{ReconcileInterval: time.Hour}, st, nil)
	if err := r.Start(context.Background()); err == nil {
		r.Stop(context.Background())
		t.Fatal("Start should fail when the store is unreachable")
	}
}

func TestRegistry_ReconcileDetectsChanges(t *testing.T) {
	st := &fakeStore{}
	first := makeInstance("sess-1", model.InstanceRunning)
	st.set(first)

	r := NewRegistry(Config{ReconcileInterval: time.Hour}, st, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())
	drainChanges(r.SubscribeChanges())

	// A new instance appears, the first one finishes.
	second := makeInstance("sess-2", model.InstanceWaiting)
	first.Status = model.InstanceFinished
	st.set(first, second)

	r.(*registryImpl).reconcile(context.Background())

	changes := drainChanges(r.SubscribeChanges())
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(changes), changes)
	}

	byType := map[string]InstanceChange{}
	for _, c := range changes {
		byType[c.EventType] = c
	}
	if c, ok := byType["created"]; !ok || c.SessionID != "sess-2" {
		t.Errorf("missing created change for sess-2: %+v", changes)
	}
	if c, ok := byType["status_change"]; !ok || c.NewStatus != model.InstanceFinished {
		t.Errorf("missing status_change to finished: %+v", changes)
	}

	if len(r.GetActiveInstances()) != 1 {
		t.Errorf("active count = %d, want 1", len(r.GetActiveInstances()))
	}
}

func TestRegistry_ReconcileDetectsEnded(t *testing.T) {
	st := &fakeStore{}
	inst := makeInstance("sess-1", model.InstanceRunning)
	st.set(inst)

	r := NewRegistry(Config{ReconcileInterval: time.Hour}, st, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())
	drainChanges(r.SubscribeChanges())

	// Instance deleted from the store.
	st.set()
	r.(*registryImpl).reconcile(context.Background())

	changes := drainChanges(r.SubscribeChanges())
	if len(changes) != 1 || changes[0].EventType != "ended" {
		t.Fatalf("expected one ended change, got %+v", changes)
	}
	if changes[0].OldStatus != model.InstanceRunning {
		t.Errorf("OldStatus = %q, want running", changes[0].OldStatus)
	}
	if _, ok := r.GetInstance("sess-1"); ok {
		t.Error("ended instance should be evicted from the cache")
	}
}

func TestRegistry_UpdateStatusWritesThrough(t *testing.T) {
	st := &fakeStore{}
	inst := makeInstance("sess-1", model.InstanceRunning)
	st.set(inst)

	r := NewRegistry(Config{ReconcileInterval: time.Hour}, st, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop(context.Background())
	drainChanges(r.SubscribeChanges())

	if err := r.UpdateStatus(context.Background(), inst.ID, model.InstanceStopped); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	got, ok := r.GetInstance("sess-1")
	if !ok || got.Status != model.InstanceStopped {
		t.Errorf("cached status = %v, want stopped", got.Status)
	}
	if len(r.GetActiveInstances()) != 0 {
		t.Error("stopped instance should leave the active set")
	}

	st.mu.Lock()
	persisted := st.instances[0].Status
	st.mu.Unlock()
	if persisted != model.InstanceStopped {
		t.Errorf("store status = %v, want stopped", persisted)
	}

	changes := drainChanges(r.SubscribeChanges())
	if len(changes) != 1 || changes[0].EventType != "status_change" {
		t.Fatalf("expected one status_change, got %+v", changes)
	}
}

func TestRegistry_StopWaitsForLoops(t *testing.T) {
	st := &fakeStore{}
	r := NewRegistry(Config{ReconcileInterval: 5 * time.Millisecond}, st, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}
