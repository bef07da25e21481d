package state

import (
	"context"
	"testing"
	"time"

	"k8s.io/client-go/kubernetes/fake"
)

func TestManagers(t *testing.T) {
	managers := map[string]func(t *testing.T) Manager{
		"memory": func(t *testing.T) Manager {
			return NewMemoryManager()
		},
		"file": func(t *testing.T) Manager {
			m, err := NewFileStateManager(t.TempDir())
			if err != nil {
				t.Fatalf("Failed to create file manager: %v", err)
			}
			return m
		},
		"kubernetes": func(t *testing.T) Manager {
			return NewKubernetesManagerWithClient(fake.NewSimpleClientset(), "jobs")
		},
	}

	for name, newManager := range managers {
		t.Run(name, func(t *testing.T) {
			testManager(t, newManager(t))
		})
	}
}

func testManager(t *testing.T, manager Manager) {
	ctx := context.Background()

	t.Run("Basic Operations", func(t *testing.T) {
		state := &State{
			JobID:     "ANALYTICS.PUBLIC.EVENTS",
			Table:     "ANALYTICS.PUBLIC.EVENTS",
			Database:  "ANALYTICS",
			Schema:    "PUBLIC",
			Status:    StatusRunning,
			StartedAt: time.Now(),
		}
		if err := manager.CreateState(ctx, state); err != nil {
			t.Fatalf("Failed to create state: %v", err)
		}
		if err := manager.CreateState(ctx, state); err == nil {
			t.Error("Expected error when creating an existing state")
		}

		got, err := manager.GetState(ctx, state.JobID)
		if err != nil {
			t.Fatalf("Failed to get state: %v", err)
		}
		if got == nil || got.Table != state.Table {
			t.Fatalf("Expected table %s, got %+v", state.Table, got)
		}

		state.Status = StatusCompleted
		state.RowsLoaded = 100
		state.Chunks = 2
		state.ColumnsAdded = []string{"COL3"}
		if err := manager.UpdateState(ctx, state); err != nil {
			t.Fatalf("Failed to update state: %v", err)
		}
		got, err = manager.GetState(ctx, state.JobID)
		if err != nil {
			t.Fatalf("Failed to get updated state: %v", err)
		}
		if got.RowsLoaded != 100 || got.Status != StatusCompleted || got.Chunks != 2 {
			t.Errorf("Unexpected updated state: %+v", got)
		}
		if len(got.ColumnsAdded) != 1 || got.ColumnsAdded[0] != "COL3" {
			t.Errorf("Expected added column COL3, got %v", got.ColumnsAdded)
		}
		if got.LastUpdated.IsZero() {
			t.Error("Expected LastUpdated to be set")
		}

		states, err := manager.ListStates(ctx, state.Table)
		if err != nil {
			t.Fatalf("Failed to list states: %v", err)
		}
		if len(states) != 1 {
			t.Errorf("Expected 1 state, got %d", len(states))
		}
		states, err = manager.ListStates(ctx, "OTHER.PUBLIC.T")
		if err != nil {
			t.Fatalf("Failed to list states: %v", err)
		}
		if len(states) != 0 {
			t.Errorf("Expected no states for another table, got %d", len(states))
		}

		if err := manager.DeleteState(ctx, state.JobID); err != nil {
			t.Fatalf("Failed to delete state: %v", err)
		}
		got, err = manager.GetState(ctx, state.JobID)
		if err != nil {
			t.Fatalf("Failed to get deleted state: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil state after delete, got %+v", got)
		}
	})

	t.Run("Upsert", func(t *testing.T) {
		state := &State{JobID: "DB.S.NEW", Table: "DB.S.NEW", Status: StatusRunning}
		if err := manager.UpdateState(ctx, state); err != nil {
			t.Fatalf("Failed to upsert state: %v", err)
		}
		got, err := manager.GetState(ctx, state.JobID)
		if err != nil || got == nil {
			t.Fatalf("Expected upserted state, got %v, %v", got, err)
		}
		states, err := manager.ListStates(ctx, "")
		if err != nil {
			t.Fatalf("Failed to list states: %v", err)
		}
		if len(states) == 0 {
			t.Error("Expected at least one state when listing all tables")
		}
	})

	t.Run("Locking Mechanism", func(t *testing.T) {
		key := "reconcile:python_dev.ingest.EVENTS"

		locked, err := manager.LockState(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Failed to lock: %v", err)
		}
		if !locked {
			t.Fatal("Expected to acquire the lock")
		}

		locked, err = manager.LockState(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Failed to lock: %v", err)
		}
		if locked {
			t.Error("Expected second lock attempt to fail")
		}

		if err := manager.UnlockState(ctx, key); err != nil {
			t.Fatalf("Failed to unlock: %v", err)
		}

		locked, err = manager.LockState(ctx, key, time.Minute)
		if err != nil || !locked {
			t.Errorf("Expected to lock again after unlock, got %v, %v", locked, err)
		}
		manager.UnlockState(ctx, key)
	})

	t.Run("Expired Lock", func(t *testing.T) {
		key := "reconcile:python_dev.ingest.EXPIRED"

		locked, err := manager.LockState(ctx, key, -time.Minute)
		if err != nil || !locked {
			t.Fatalf("Expected to acquire the lock, got %v, %v", locked, err)
		}

		locked, err = manager.LockState(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Failed to lock: %v", err)
		}
		if !locked {
			t.Error("Expected to take over an expired lock")
		}
	})
}

func TestNewManager(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("Failed to create default manager: %v", err)
	}
	if _, ok := m.(*MemoryManager); !ok {
		t.Errorf("Expected memory manager by default, got %T", m)
	}

	m, err = NewManager(Config{Type: "file", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to create file manager: %v", err)
	}
	if _, ok := m.(*FileStateManager); !ok {
		t.Errorf("Expected file manager, got %T", m)
	}

	if _, err := NewManager(Config{Type: "file"}); err == nil {
		t.Error("Expected error for file manager without directory")
	}
	if _, err := NewManager(Config{Type: "redis"}); err == nil {
		t.Error("Expected error for unsupported type")
	}
}

func TestConfigMapName(t *testing.T) {
	a := configMapName("snowclient-lock", "reconcile:python_dev.ingest.Events")
	b := configMapName("snowclient-lock", "reconcile:python_dev.ingest.EVENTS")
	if a == b {
		t.Errorf("Expected distinct names for ids that differ in case, got %s", a)
	}
	if want := "snowclient-lock-reconcile-python-dev-ingest-events-"; a[:len(want)] != want {
		t.Errorf("Unexpected name %s", a)
	}
}
