package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStateManager implements the Manager interface using one JSON file per
// job and per lock in a directory.
type FileStateManager struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStateManager creates a new file-based state manager, creating
// baseDir if needed
func NewFileStateManager(baseDir string) (*FileStateManager, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %v", err)
	}
	return &FileStateManager{
		baseDir: baseDir,
	}, nil
}

func (m *FileStateManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.readState(jobID)
}

func (m *FileStateManager) UpdateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *state
	copied.LastUpdated = time.Now()
	return m.saveState(&copied)
}

func (m *FileStateManager) CreateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.readState(state.JobID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("state already exists for job %s", state.JobID)
	}

	return m.saveState(state)
}

func (m *FileStateManager) DeleteState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.statePath(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %v", err)
	}
	return nil
}

func (m *FileStateManager) ListStates(ctx context.Context, table string) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read state directory: %v", err)
	}

	var states []*State
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".state" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.baseDir, entry.Name()))
		if err != nil {
			continue
		}

		var state State
		if err := json.Unmarshal(data, &state); err != nil {
			continue
		}
		if matchesTable(&state, table) {
			states = append(states, &state)
		}
	}

	return states, nil
}

func (m *FileStateManager) LockState(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lockFile := m.lockPath(key)
	if data, err := os.ReadFile(lockFile); err == nil {
		var lockTime time.Time
		if err := json.Unmarshal(data, &lockTime); err != nil {
			return false, fmt.Errorf("failed to unmarshal lock time: %v", err)
		}
		if lockTime.After(time.Now()) {
			return false, nil
		}
		// expired
		if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("failed to remove expired lock: %v", err)
		}
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read lock file: %v", err)
	}

	data, err := json.Marshal(time.Now().Add(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to marshal lock time: %v", err)
	}

	// fails if another process created the lock in the meantime
	f, err := os.OpenFile(lockFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create lock file: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return false, fmt.Errorf("failed to write lock file: %v", err)
	}
	return true, nil
}

func (m *FileStateManager) UnlockState(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.lockPath(key)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no lock found for key %s", key)
		}
		return fmt.Errorf("failed to remove lock file: %v", err)
	}
	return nil
}

func (m *FileStateManager) readState(jobID string) (*State, error) {
	data, err := os.ReadFile(m.statePath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read state file: %v", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %v", err)
	}
	return &state, nil
}

func (m *FileStateManager) saveState(state *State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %v", err)
	}

	if err := os.WriteFile(m.statePath(state.JobID), data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %v", err)
	}
	return nil
}

func (m *FileStateManager) statePath(jobID string) string {
	return filepath.Join(m.baseDir, unsafeKeyChars.ReplaceAllString(jobID, "_")+".state")
}

func (m *FileStateManager) lockPath(key string) string {
	return filepath.Join(m.baseDir, unsafeKeyChars.ReplaceAllString(key, "_")+".lock")
}
