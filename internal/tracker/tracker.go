// Package tracker records stage completions for batches. Completions must
// target the batch's current stage in snapshot order; a batch whose last
// snapshot stage completes becomes completed itself. Writes for one batch
// are serialized so concurrent completions of the same stage resolve to
// exactly one winner.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"milltrack/internal/logging"
	"milltrack/internal/notifications"
	"milltrack/internal/processing"
	"milltrack/internal/services"
)

// quantityEpsilon absorbs float rounding in quantity comparisons.
const quantityEpsilon = 1e-9

// ProgressRequest describes one stage completion to record. The target
// stage is named by StageID when set, otherwise by OrderIndex; both refer
// to the batch's snapshot, not the method's current sequence.
type ProgressRequest struct {
	BatchID        int64
	StageID        int64
	OrderIndex     int
	InputQuantity  float64
	OutputQuantity float64
	// SplitWaste is the byproduct quantity split off by this stage. Zero
	// means no split; only stages flagged as splitting accept a value.
	SplitWaste float64
	RecordedBy string
}

// Service records and reads batch stage progress.
type Service struct {
	store    *processing.Store
	notifier notifications.Service
	logger   *slog.Logger

	// requireSplitBalance enforces input = output + split waste on
	// splitting stages.
	requireSplitBalance bool

	locks sync.Map // batch id -> *sync.Mutex
}

// NewService constructs the progress tracker.
func NewService(store *processing.Store, notifier notifications.Service, requireSplitBalance bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:               store,
		notifier:            notifier,
		logger:              logging.WithComponent(logger, "tracker"),
		requireSplitBalance: requireSplitBalance,
	}
}

// RecordProgress validates and persists one stage completion. Validation
// runs in a fixed order: the batch must be active before stage order is
// checked, and order before quantities, so callers always see the most
// fundamental failure first.
func (s *Service) RecordProgress(ctx context.Context, req ProgressRequest) (*processing.ProgressEntry, error) {
	lock := s.batchLock(req.BatchID)
	lock.Lock()
	defer lock.Unlock()

	batch, err := s.store.GetBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, services.Wrap(services.ErrNotFound, "tracker", "record progress",
			fmt.Sprintf("batch %d does not exist", req.BatchID), nil)
	}
	if !batch.IsActive() {
		return nil, services.Wrap(services.ErrBatchNotActive, "tracker", "record progress",
			fmt.Sprintf("batch %d is %s", batch.ID, batch.Status), nil)
	}

	stage, ok := resolveStage(batch, req)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "tracker", "record progress",
			fmt.Sprintf("requested stage is not in batch %d's sequence", batch.ID), nil)
	}
	if stage.OrderIndex != batch.CurrentStageOrder {
		return nil, services.Wrap(services.ErrOutOfOrder, "tracker", "record progress",
			fmt.Sprintf("batch %d is at stage order %d, not %d", batch.ID, batch.CurrentStageOrder, stage.OrderIndex), nil)
	}

	if err := s.validateQuantities(stage, req); err != nil {
		return nil, err
	}

	nextOrder, hasNext := batch.NextOrderAfter(stage.OrderIndex)
	completion := processing.StageCompletion{
		BatchID:        batch.ID,
		StageID:        stage.StageID,
		OrderIndex:     stage.OrderIndex,
		InputQuantity:  req.InputQuantity,
		OutputQuantity: req.OutputQuantity,
		NextStageOrder: nextOrder,
		Final:          !hasNext,
	}
	if req.SplitWaste > 0 {
		completion.SplitWaste = &processing.SplitWasteSpec{
			Quantity:   req.SplitWaste,
			RecordedBy: req.RecordedBy,
		}
	}

	entry, err := s.store.CompleteStage(ctx, completion)
	if err != nil {
		return nil, err
	}

	s.logger.Info("stage completed",
		logging.Int64("batch_id", batch.ID),
		logging.String("stage", stage.Name),
		logging.Int("order_index", stage.OrderIndex),
		logging.Float64("output_kg", req.OutputQuantity),
		logging.Bool("final", completion.Final))

	if completion.Final && s.notifier != nil {
		if err := s.notifier.NotifyBatchCompleted(ctx, batch.Reference, batch.MethodName); err != nil {
			s.logger.Warn("notification failed",
				logging.String("event", "batch completed"),
				logging.Error(err))
		}
	}
	return entry, nil
}

func (s *Service) validateQuantities(stage processing.SnapshotStage, req ProgressRequest) error {
	for _, quantity := range []float64{req.InputQuantity, req.OutputQuantity, req.SplitWaste} {
		if math.IsNaN(quantity) || math.IsInf(quantity, 0) {
			return services.Wrap(services.ErrInvalidQuantity, "tracker", "record progress",
				"quantities must be finite", nil)
		}
	}
	if req.InputQuantity <= 0 || req.OutputQuantity <= 0 {
		return services.Wrap(services.ErrInvalidQuantity, "tracker", "record progress",
			"input and output quantities must be positive", nil)
	}
	if req.OutputQuantity > req.InputQuantity+quantityEpsilon {
		return services.Wrap(services.ErrInvalidQuantity, "tracker", "record progress",
			fmt.Sprintf("output %.3f exceeds input %.3f", req.OutputQuantity, req.InputQuantity), nil)
	}
	if req.SplitWaste < 0 {
		return services.Wrap(services.ErrInvalidQuantity, "tracker", "record progress",
			"split waste quantity must not be negative", nil)
	}
	if req.SplitWaste > 0 && !stage.AllowsSplit {
		return services.Wrap(services.ErrValidation, "tracker", "record progress",
			fmt.Sprintf("stage %q does not produce split output", stage.Name), nil)
	}
	// Splitting stages must account for every kilogram they drop: the
	// split waste has to close the gap between input and output exactly.
	if stage.AllowsSplit && s.requireSplitBalance {
		if diff := math.Abs(req.InputQuantity - req.OutputQuantity - req.SplitWaste); diff > quantityEpsilon {
			return services.Wrap(services.ErrInvalidQuantity, "tracker", "record progress",
				fmt.Sprintf("split waste %.3f does not balance input %.3f against output %.3f",
					req.SplitWaste, req.InputQuantity, req.OutputQuantity), nil)
		}
	}
	return nil
}

func resolveStage(batch *processing.Batch, req ProgressRequest) (processing.SnapshotStage, bool) {
	if req.StageID != 0 {
		return batch.StageByID(req.StageID)
	}
	return batch.StageAt(req.OrderIndex)
}

// History returns a batch's completed stage entries in stage order.
func (s *Service) History(ctx context.Context, batchID int64) ([]processing.ProgressEntry, error) {
	return s.store.History(ctx, batchID)
}

func (s *Service) batchLock(batchID int64) *sync.Mutex {
	if lock, ok := s.locks.Load(batchID); ok {
		return lock.(*sync.Mutex)
	}
	lock, _ := s.locks.LoadOrStore(batchID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
