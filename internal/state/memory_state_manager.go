package state

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryManager implements the Manager interface using in-memory storage
// This is useful for testing and single-process use
type MemoryManager struct {
	states map[string]*State
	locks  map[string]time.Time
	mu     sync.RWMutex
}

// NewMemoryManager creates a new in-memory state manager
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		states: make(map[string]*State),
		locks:  make(map[string]time.Time),
	}
}

func (m *MemoryManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, exists := m.states[jobID]; exists {
		copied := *state
		return &copied, nil
	}
	return nil, nil
}

func (m *MemoryManager) UpdateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *state
	copied.LastUpdated = time.Now()
	m.states[state.JobID] = &copied
	return nil
}

func (m *MemoryManager) CreateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.states[state.JobID]; exists {
		return fmt.Errorf("state already exists for job %s", state.JobID)
	}
	copied := *state
	m.states[state.JobID] = &copied
	return nil
}

func (m *MemoryManager) DeleteState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, jobID)
	return nil
}

func (m *MemoryManager) ListStates(ctx context.Context, table string) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var states []*State
	for _, state := range m.states {
		if matchesTable(state, table) {
			copied := *state
			states = append(states, &copied)
		}
	}
	return states, nil
}

func (m *MemoryManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if the key is already locked
	if lockTime, exists := m.locks[key]; exists && time.Now().Before(lockTime) {
		return false, nil
	}

	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MemoryManager) UnlockState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, key)
	return nil
}
