package processing_test

import (
	"context"
	"errors"
	"testing"

	"milltrack/internal/processing"
	"milltrack/internal/services"
	"milltrack/internal/testsupport"
)

func completionFor(t *testing.T, batch *processing.Batch, input, output float64) processing.StageCompletion {
	t.Helper()
	stage, ok := batch.StageAt(batch.CurrentStageOrder)
	if !ok {
		t.Fatalf("no snapshot stage at order %d", batch.CurrentStageOrder)
	}
	next, hasNext := batch.NextOrderAfter(batch.CurrentStageOrder)
	return processing.StageCompletion{
		BatchID:        batch.ID,
		StageID:        stage.StageID,
		OrderIndex:     stage.OrderIndex,
		InputQuantity:  input,
		OutputQuantity: output,
		NextStageOrder: next,
		Final:          !hasNext,
	}
}

func TestCreateMethodAndOrderedStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting", "Drying")

	stages, err := store.OrderedStages(ctx, method.ID)
	if err != nil {
		t.Fatalf("OrderedStages failed: %v", err)
	}
	if len(stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(stages))
	}
	for i, stage := range stages {
		if stage.OrderIndex != i+1 {
			t.Fatalf("expected order %d, got %d", i+1, stage.OrderIndex)
		}
	}
	if stages[0].Name != "Pulping" || stages[2].Name != "Drying" {
		t.Fatalf("unexpected stage order: %+v", stages)
	}
}

func TestOrderedStagesUnknownMethod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.OrderedStages(context.Background(), 404)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCreateMethodRejectsDuplicateName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.SeedMethod(t, store, "Dry processing", "Drying")
	_, err := store.CreateMethod(context.Background(), "Dry processing", []processing.StageSeed{{Name: "Drying"}})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestAppendStageAssignsNextOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")

	stage, err := store.AppendStage(ctx, method.ID, "Drying", false)
	if err != nil {
		t.Fatalf("AppendStage failed: %v", err)
	}
	if stage.OrderIndex != 3 {
		t.Fatalf("expected order 3, got %d", stage.OrderIndex)
	}

	if _, err := store.AppendStage(ctx, 404, "Sorting", false); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCreateBatchSnapshotsStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting", "Drying")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-2026-014", "producer-7")

	if batch.CurrentStageOrder != 1 {
		t.Fatalf("expected current stage order 1, got %d", batch.CurrentStageOrder)
	}
	if batch.Status != processing.BatchInProgress {
		t.Fatalf("expected in-progress batch, got %s", batch.Status)
	}
	if len(batch.Snapshot) != 3 {
		t.Fatalf("expected 3 snapshot stages, got %d", len(batch.Snapshot))
	}

	// Appending to the method after batch creation must not disturb the
	// batch's snapshot.
	if _, err := store.AppendStage(ctx, method.ID, "Sorting", false); err != nil {
		t.Fatalf("AppendStage failed: %v", err)
	}
	reloaded, err := store.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if len(reloaded.Snapshot) != 3 {
		t.Fatalf("snapshot changed after method extension: %d stages", len(reloaded.Snapshot))
	}
}

func TestCreateBatchUnknownMethod(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.CreateBatch(context.Background(), 404, "lot-1", "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestCompleteStageAdvancesThenCompletes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting", "Drying")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")

	quantities := [][2]float64{{100, 90}, {90, 85}, {85, 60}}
	for i, q := range quantities {
		entry, err := store.CompleteStage(ctx, completionFor(t, batch, q[0], q[1]))
		if err != nil {
			t.Fatalf("CompleteStage %d failed: %v", i+1, err)
		}
		if entry.Status != processing.EntryCompleted {
			t.Fatalf("expected completed entry, got %s", entry.Status)
		}
		batch, err = store.GetBatch(ctx, batch.ID)
		if err != nil {
			t.Fatalf("GetBatch failed: %v", err)
		}
	}

	if batch.Status != processing.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", batch.Status)
	}

	history, err := store.History(ctx, batch.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	for i, entry := range history {
		if entry.OrderIndex != i+1 {
			t.Fatalf("history out of order: %+v", history)
		}
	}
}

func TestCompleteStageConflictOnStaleOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")

	completion := completionFor(t, batch, 100, 90)
	if _, err := store.CompleteStage(ctx, completion); err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}

	// Replaying the same completion must observe the moved pointer.
	_, err := store.CompleteStage(ctx, completion)
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestCompleteStageOnCancelledBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")

	if err := store.CancelBatch(ctx, batch.ID, "mould found in lot"); err != nil {
		t.Fatalf("CancelBatch failed: %v", err)
	}

	_, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
	if !errors.Is(err, services.ErrBatchNotActive) {
		t.Fatalf("expected batch-not-active error, got %v", err)
	}

	// Cancellation is terminal.
	err = store.CancelBatch(ctx, batch.ID, "again")
	if !errors.Is(err, services.ErrBatchNotActive) {
		t.Fatalf("expected batch-not-active error, got %v", err)
	}
}

func TestHistoryUnknownBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.History(context.Background(), 404)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestRecordWasteRequiresCompletedEntryOnActiveBatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")

	if _, err := store.RecordWaste(ctx, 404, 5, "user-ana"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}

	entry, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
	if err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}
	waste, err := store.RecordWaste(ctx, entry.ID, 10, "user-ana")
	if err != nil {
		t.Fatalf("RecordWaste failed: %v", err)
	}
	if waste.Quantity != 10 {
		t.Fatalf("unexpected waste: %+v", waste)
	}

	// Terminal batches accept no further waste.
	if err := store.CancelBatch(ctx, batch.ID, "stop"); err != nil {
		t.Fatalf("CancelBatch failed: %v", err)
	}
	if _, err := store.RecordWaste(ctx, entry.ID, 1, "user-ana"); !errors.Is(err, services.ErrBatchNotActive) {
		t.Fatalf("expected batch-not-active error, got %v", err)
	}
}

func TestDisposalGuardAndRemaining(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")
	entry, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
	if err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}
	waste, err := store.RecordWaste(ctx, entry.ID, 10, "user-ana")
	if err != nil {
		t.Fatalf("RecordWaste failed: %v", err)
	}

	if _, err := store.RecordDisposal(ctx, waste.ID, 6, "handler-3"); err != nil {
		t.Fatalf("first disposal failed: %v", err)
	}
	remaining, err := store.Remaining(ctx, waste.ID)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 4 {
		t.Fatalf("expected remaining 4, got %v", remaining)
	}

	if _, err := store.RecordDisposal(ctx, waste.ID, 5, ""); !errors.Is(err, services.ErrOverDisposal) {
		t.Fatalf("expected over-disposal error, got %v", err)
	}

	if _, err := store.RecordDisposal(ctx, waste.ID, 4, ""); err != nil {
		t.Fatalf("final disposal failed: %v", err)
	}
	remaining, err = store.Remaining(ctx, waste.ID)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %v", remaining)
	}

	if _, err := store.RecordDisposal(ctx, 404, 1, ""); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestSoftDeleteDisposalRestoresRemaining(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")
	entry, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
	if err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}
	waste, err := store.RecordWaste(ctx, entry.ID, 10, "user-ana")
	if err != nil {
		t.Fatalf("RecordWaste failed: %v", err)
	}
	disposal, err := store.RecordDisposal(ctx, waste.ID, 10, "handler-3")
	if err != nil {
		t.Fatalf("RecordDisposal failed: %v", err)
	}

	if err := store.SoftDeleteDisposal(ctx, disposal.ID); err != nil {
		t.Fatalf("SoftDeleteDisposal failed: %v", err)
	}
	remaining, err := store.Remaining(ctx, waste.ID)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 10 {
		t.Fatalf("expected remaining 10 after correction, got %v", remaining)
	}
}

func TestListWasteByProducer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")

	mine := testsupport.SeedBatch(t, store, method.ID, "lot-mine", "producer-7")
	other := testsupport.SeedBatch(t, store, method.ID, "lot-other", "producer-9")

	for _, batch := range []*processing.Batch{mine, other} {
		entry, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
		if err != nil {
			t.Fatalf("CompleteStage failed: %v", err)
		}
		if _, err := store.RecordWaste(ctx, entry.ID, 10, "user"); err != nil {
			t.Fatalf("RecordWaste failed: %v", err)
		}
	}

	all, err := store.ListWaste(ctx)
	if err != nil {
		t.Fatalf("ListWaste failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 waste records, got %d", len(all))
	}
	if all[0].StageName != "Pulping" || all[0].MethodName != "Wet processing" {
		t.Fatalf("unexpected joined record: %+v", all[0])
	}

	scoped, err := store.ListWasteByProducer(ctx, "producer-7")
	if err != nil {
		t.Fatalf("ListWasteByProducer failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].InputLot != "lot-mine" {
		t.Fatalf("unexpected scoped records: %+v", scoped)
	}
}

func TestStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	method := testsupport.SeedMethod(t, store, "Wet processing", "Pulping", "Fermenting")
	batch := testsupport.SeedBatch(t, store, method.ID, "lot-1", "")
	entry, err := store.CompleteStage(ctx, completionFor(t, batch, 100, 90))
	if err != nil {
		t.Fatalf("CompleteStage failed: %v", err)
	}
	waste, err := store.RecordWaste(ctx, entry.ID, 10, "user")
	if err != nil {
		t.Fatalf("RecordWaste failed: %v", err)
	}
	if _, err := store.RecordDisposal(ctx, waste.ID, 4, ""); err != nil {
		t.Fatalf("RecordDisposal failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Batches[processing.BatchInProgress] != 1 {
		t.Fatalf("unexpected batch stats: %+v", stats.Batches)
	}
	if stats.WasteQuantity != 10 || stats.DisposedTotal != 4 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
}
