// Package state keeps the load journal and the locks that keep two
// reconciliations off the same staging table.
package state

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Status values of a journal entry
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// State is the journal entry of the last load into a table
type State struct {
	JobID        string    `json:"job_id"`
	Table        string    `json:"table"`
	Database     string    `json:"database"`
	Schema       string    `json:"schema"`
	Status       string    `json:"status"` // "running", "completed", "failed"
	RowsLoaded   int64     `json:"rows_loaded"`
	Chunks       int       `json:"chunks"`
	ColumnsAdded []string  `json:"columns_added,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	LastUpdated  time.Time `json:"last_updated"`
	Error        string    `json:"error,omitempty"`
}

// Manager defines the interface for state management
type Manager interface {
	// GetState retrieves the current state for a job, or nil if there is none
	GetState(ctx context.Context, jobID string) (*State, error)

	// UpdateState creates or replaces the state for a job
	UpdateState(ctx context.Context, state *State) error

	// CreateState creates a new state for a job
	CreateState(ctx context.Context, state *State) error

	// DeleteState removes the state for a job
	DeleteState(ctx context.Context, jobID string) error

	// ListStates retrieves all states for a given table, or every state when
	// table is empty
	ListStates(ctx context.Context, table string) ([]*State, error)

	// LockState acquires a lock on a key until it is released or ttl passes
	LockState(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// UnlockState releases a lock
	UnlockState(ctx context.Context, key string) error
}

// Config selects and configures a Manager
type Config struct {
	Type       string // "memory", "file" or "kubernetes"
	Dir        string
	Namespace  string
	Kubeconfig string
}

// NewManager creates the manager described by cfg
func NewManager(cfg Config) (Manager, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryManager(), nil
	case "file":
		return NewFileStateManager(cfg.Dir)
	case "kubernetes":
		return NewKubernetesManager(cfg.Namespace, cfg.Kubeconfig)
	default:
		return nil, fmt.Errorf("unsupported state type: %s", cfg.Type)
	}
}

func matchesTable(s *State, table string) bool {
	return table == "" || s.Table == table
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
