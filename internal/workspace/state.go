package workspace

import (
	"sync"
	"time"

	"github.com/dmaloney/foreman/internal/model"
)

// registryState holds the thread-safe instance cache.
type registryState struct {
	mu sync.RWMutex

	// All known instances indexed by session ID.
	instances map[string]*model.Instance

	// Instances with a live agent process.
	activeSet map[string]struct{}

	// Last successful store sync timestamp.
	lastSyncAt time.Time

	// Output channel for lifecycle consumers.
	changes chan InstanceChange
}

func newState() *registryState {
	return &registryState{
		instances: make(map[string]*model.Instance),
		activeSet: make(map[string]struct{}),
		changes:   make(chan InstanceChange, ChangeBufferSize),
	}
}

// getInstance returns an instance by session ID (read-locked).
func (s *registryState) getInstance(sessionID string) (model.Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.instances[sessionID]
	if !ok {
		return model.Instance{}, false
	}
	return *inst, true
}

// getActiveInstances returns a copy of all active instances (read-locked).
func (s *registryState) getActiveInstances() []model.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Instance, 0, len(s.activeSet))
	for sessionID := range s.activeSet {
		if inst, ok := s.instances[sessionID]; ok {
			result = append(result, *inst)
		}
	}
	return result
}

// upsertLocked adds or updates an instance (caller must hold write lock).
func (s *registryState) upsertLocked(inst model.Instance) {
	cp := inst
	s.instances[inst.SessionID] = &cp

	if inst.Status.Active() {
		s.activeSet[inst.SessionID] = struct{}{}
	} else {
		delete(s.activeSet, inst.SessionID)
	}
}

// removeLocked drops an instance (caller must hold write lock).
func (s *registryState) removeLocked(sessionID string) {
	delete(s.instances, sessionID)
	delete(s.activeSet, sessionID)
}

// notifyChange sends a change to the changes channel (non-blocking).
func (s *registryState) notifyChange(change InstanceChange) {
	select {
	case s.changes <- change:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-s.changes:
			s.changes <- change
		default:
		}
	}
}
