package testsupport

import (
	"context"
	"testing"

	"milltrack/internal/config"
	"milltrack/internal/processing"
)

// MustOpenStore opens a processing.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *processing.Store {
	t.Helper()

	store, err := processing.Open(cfg)
	if err != nil {
		t.Fatalf("processing.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedMethod creates a method with the given stage names for tests.
func SeedMethod(t testing.TB, store *processing.Store, name string, stageNames ...string) *processing.Method {
	t.Helper()

	seeds := make([]processing.StageSeed, 0, len(stageNames))
	for _, stageName := range stageNames {
		seeds = append(seeds, processing.StageSeed{Name: stageName})
	}
	method, err := store.CreateMethod(context.Background(), name, seeds)
	if err != nil {
		t.Fatalf("store.CreateMethod: %v", err)
	}
	return method
}

// SeedBatch creates a batch for tests.
func SeedBatch(t testing.TB, store *processing.Store, methodID int64, inputLot, producerID string) *processing.Batch {
	t.Helper()

	batch, err := store.CreateBatch(context.Background(), methodID, inputLot, producerID)
	if err != nil {
		t.Fatalf("store.CreateBatch: %v", err)
	}
	return batch
}
