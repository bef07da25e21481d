package state

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryManagerConcurrency(t *testing.T) {
	manager := NewMemoryManager()
	ctx := context.Background()

	t.Run("Concurrent Updates", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 10
		numOperations := 100

		for i := 0; i < numGoroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					err := manager.UpdateState(ctx, &State{
						JobID:      "DB.S.T",
						Table:      "DB.S.T",
						Status:     StatusRunning,
						RowsLoaded: int64(j + 1),
					})
					if err != nil {
						t.Errorf("Failed to update state: %v", err)
					}
				}
			}()
		}
		wg.Wait()

		got, err := manager.GetState(ctx, "DB.S.T")
		if err != nil {
			t.Fatalf("Failed to get final state: %v", err)
		}
		if got.RowsLoaded != int64(numOperations) {
			t.Errorf("Expected %d rows loaded, got %d", numOperations, got.RowsLoaded)
		}
	})

	t.Run("Concurrent Locking", func(t *testing.T) {
		var wg sync.WaitGroup
		var mu sync.Mutex
		acquired := 0

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := manager.LockState(ctx, "staging", time.Minute)
				if err != nil {
					t.Errorf("Failed to lock: %v", err)
				}
				if ok {
					mu.Lock()
					acquired++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if acquired != 1 {
			t.Errorf("Expected exactly one goroutine to acquire the lock, got %d", acquired)
		}
	})

	t.Run("Returned States Are Copies", func(t *testing.T) {
		state := &State{JobID: "DB.S.COPY", Table: "DB.S.COPY", Status: StatusRunning}
		if err := manager.CreateState(ctx, state); err != nil {
			t.Fatalf("Failed to create state: %v", err)
		}
		state.Status = StatusFailed

		got, _ := manager.GetState(ctx, "DB.S.COPY")
		if got.Status != StatusRunning {
			t.Errorf("Expected stored state to be unaffected, got %s", got.Status)
		}
	})
}
