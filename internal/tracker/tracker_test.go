package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"milltrack/internal/notifications"
	"milltrack/internal/processing"
	"milltrack/internal/services"
	"milltrack/internal/testsupport"
	"milltrack/internal/tracker"
)

func newService(t *testing.T) (*tracker.Service, *processing.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	service := tracker.NewService(store, notifications.NewService(cfg), cfg.Processing.RequireSplitBalance, nil)
	return service, store
}

func seedSplitMethod(t *testing.T, store *processing.Store) *processing.Method {
	t.Helper()
	method, err := store.CreateMethod(context.Background(), "Stone Milling", []processing.StageSeed{
		{Name: "Cleaning"},
		{Name: "Milling", AllowsSplit: true},
		{Name: "Sifting"},
	})
	if err != nil {
		t.Fatalf("CreateMethod failed: %v", err)
	}
	return method
}

func request(batch *processing.Batch, input, output float64) tracker.ProgressRequest {
	return tracker.ProgressRequest{
		BatchID:        batch.ID,
		OrderIndex:     batch.CurrentStageOrder,
		InputQuantity:  input,
		OutputQuantity: output,
		RecordedBy:     "operator-1",
	}
}

func TestRecordProgressWalksSequenceInOrder(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Cold Pressing", "Pressing", "Filtering", "Bottling")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-014", "producer-7")

	quantities := [][2]float64{{100, 80}, {80, 76}, {76, 76}}
	for i := range quantities {
		current, err := store.GetBatch(ctx, batch.ID)
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
		entry, err := service.RecordProgress(ctx, request(current, quantities[i][0], quantities[i][1]))
		if err != nil {
			t.Fatalf("RecordProgress stage %d failed: %v", i+1, err)
		}
		if entry.OrderIndex != current.CurrentStageOrder {
			t.Fatalf("entry recorded against order %d, wanted %d", entry.OrderIndex, current.CurrentStageOrder)
		}
	}

	final, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if final.Status != processing.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", final.Status)
	}

	history, err := service.History(ctx, batch.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].OrderIndex <= history[i-1].OrderIndex {
			t.Fatalf("history out of order at %d", i)
		}
	}
}

func TestRecordProgressRejectsSkippedStage(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Cold Pressing", "Pressing", "Filtering", "Bottling")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-015", "producer-7")

	req := request(batch, 100, 90)
	req.OrderIndex = batch.Snapshot[2].OrderIndex
	_, err := service.RecordProgress(ctx, req)
	if !errors.Is(err, services.ErrOutOfOrder) {
		t.Fatalf("expected out-of-order error, got %v", err)
	}

	// The rejection leaves no partial state behind.
	history, err := service.History(ctx, batch.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestRecordProgressByStageID(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Wet", "Pulping", "Fermenting", "Drying")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-023", "producer-7")

	// Targeting the second stage by id while the batch sits at the first.
	req := tracker.ProgressRequest{
		BatchID:        batch.ID,
		StageID:        batch.Snapshot[1].StageID,
		InputQuantity:  100,
		OutputQuantity: 90,
		RecordedBy:     "operator-1",
	}
	_, err := service.RecordProgress(ctx, req)
	if !errors.Is(err, services.ErrOutOfOrder) {
		t.Fatalf("expected out-of-order error, got %v", err)
	}

	req.StageID = batch.Snapshot[0].StageID
	entry, err := service.RecordProgress(ctx, req)
	if err != nil {
		t.Fatalf("RecordProgress failed: %v", err)
	}
	if entry.OrderIndex != batch.Snapshot[0].OrderIndex {
		t.Fatalf("entry recorded against order %d", entry.OrderIndex)
	}
}

func TestRecordProgressUnknownStageOrder(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Drying", "Sun Drying")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-016", "producer-7")

	req := request(batch, 50, 40)
	req.OrderIndex = 99
	_, err := service.RecordProgress(ctx, req)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestRecordProgressQuantityBounds(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Drying", "Sun Drying", "Packing")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-017", "producer-7")

	cases := []struct {
		name   string
		input  float64
		output float64
	}{
		{"zero input", 0, 10},
		{"negative output", 50, -1},
		{"output exceeds input", 50, 51},
	}
	for _, tc := range cases {
		_, err := service.RecordProgress(ctx, request(batch, tc.input, tc.output))
		if !errors.Is(err, services.ErrInvalidQuantity) {
			t.Fatalf("%s: expected invalid-quantity error, got %v", tc.name, err)
		}
	}

	// Lossless stages are allowed: output may equal input exactly.
	if _, err := service.RecordProgress(ctx, request(batch, 50, 50)); err != nil {
		t.Fatalf("equal input and output should pass, got %v", err)
	}
}

func TestRecordProgressOnCancelledBatch(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Drying", "Sun Drying")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-018", "producer-7")

	if err := store.CancelBatch(ctx, batch.ID, "spoiled"); err != nil {
		t.Fatalf("CancelBatch failed: %v", err)
	}

	_, err := service.RecordProgress(ctx, request(batch, 50, 40))
	if !errors.Is(err, services.ErrBatchNotActive) {
		t.Fatalf("expected batch-not-active error, got %v", err)
	}
}

func TestSplitStageRecordsWasteAtomically(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := seedSplitMethod(t, store)
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-019", "producer-7")

	if _, err := service.RecordProgress(ctx, request(batch, 100, 95)); err != nil {
		t.Fatalf("cleaning stage failed: %v", err)
	}

	current, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	req := request(current, 95, 70)
	req.SplitWaste = 25
	entry, err := service.RecordProgress(ctx, req)
	if err != nil {
		t.Fatalf("split stage failed: %v", err)
	}

	records, err := store.ListWaste(ctx)
	if err != nil {
		t.Fatalf("ListWaste failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 waste item, got %d", len(records))
	}
	if records[0].ProgressID != entry.ID || records[0].Quantity != 25 {
		t.Fatalf("unexpected waste record: %+v", records[0])
	}
}

func TestSplitWasteMustBalance(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := seedSplitMethod(t, store)
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-020", "producer-7")

	if _, err := service.RecordProgress(ctx, request(batch, 100, 95)); err != nil {
		t.Fatalf("cleaning stage failed: %v", err)
	}
	current, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}

	req := request(current, 95, 70)
	req.SplitWaste = 10
	_, err = service.RecordProgress(ctx, req)
	if !errors.Is(err, services.ErrInvalidQuantity) {
		t.Fatalf("expected invalid-quantity error for unbalanced split, got %v", err)
	}
}

func TestSplitWasteRejectedOnPlainStage(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := seedSplitMethod(t, store)
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-021", "producer-7")

	// Cleaning is the first stage and does not split.
	req := request(batch, 100, 95)
	req.SplitWaste = 5
	_, err := service.RecordProgress(ctx, req)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentCompletionHasOneWinner(t *testing.T) {
	service, store := newService(t)
	ctx := context.Background()
	method := testsupport.SeedMethod(t, store, "Drying", "Sun Drying", "Packing")
	batch := testsupport.SeedBatch(t, store, method.ID, "LOT-2026-022", "producer-7")

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.RecordProgress(ctx, request(batch, 100, 90))
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, services.ErrOutOfOrder) && !errors.Is(err, services.ErrConflict) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	history, err := service.History(ctx, batch.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(history))
	}
}
