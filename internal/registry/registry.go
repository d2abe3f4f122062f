// Package registry manages batch lifecycle: creation against a method,
// cancellation, administrative deletion and read access. A batch carries a
// snapshot of its method's stage order taken at creation time.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"milltrack/internal/logging"
	"milltrack/internal/notifications"
	"milltrack/internal/processing"
	"milltrack/internal/services"
)

// Service exposes batch lifecycle operations on top of the store.
type Service struct {
	store    *processing.Store
	notifier notifications.Service
	logger   *slog.Logger
}

// NewService constructs the batch registry.
func NewService(store *processing.Store, notifier notifications.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logging.WithComponent(logger, "registry"),
	}
}

// CreateBatch starts a production run of one input lot through a method's
// stages. The batch begins at the method's first stage and keeps its own
// copy of the stage order from this moment on.
func (s *Service) CreateBatch(ctx context.Context, methodID int64, inputLot, producerID string) (*processing.Batch, error) {
	batch, err := s.store.CreateBatch(ctx, methodID, inputLot, producerID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("batch created",
		logging.Int64("batch_id", batch.ID),
		logging.String("reference", batch.Reference),
		logging.String("input_lot", batch.InputLot),
		logging.String("method", batch.MethodName))
	s.dispatch("batch created", func() error {
		return s.notifier.NotifyBatchCreated(ctx, batch.Reference, batch.MethodName, batch.InputLot)
	})
	return batch, nil
}

// GetBatch fetches a batch with its stage snapshot. Unknown or deleted
// batches fail with a not-found error.
func (s *Service) GetBatch(ctx context.Context, id int64) (*processing.Batch, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, services.Wrap(services.ErrNotFound, "registry", "get batch",
			fmt.Sprintf("batch %d does not exist", id), nil)
	}
	return batch, nil
}

// ListBatches returns batches filtered by status, or all batches when no
// status is given.
func (s *Service) ListBatches(ctx context.Context, statuses ...processing.BatchStatus) ([]*processing.Batch, error) {
	return s.store.ListBatches(ctx, statuses...)
}

// CancelBatch terminates an in-progress batch. Cancellation is terminal:
// the batch accepts no further progress or waste, and recorded history is
// preserved untouched.
func (s *Service) CancelBatch(ctx context.Context, id int64, reason string) error {
	if err := s.store.CancelBatch(ctx, id, reason); err != nil {
		return err
	}
	s.logger.Info("batch cancelled",
		logging.Int64("batch_id", id),
		logging.String("reason", reason))
	if batch, err := s.store.GetBatch(ctx, id); err == nil && batch != nil {
		s.dispatch("batch cancelled", func() error {
			return s.notifier.NotifyBatchCancelled(ctx, batch.Reference, reason)
		})
	}
	return nil
}

// DeleteBatch hides a batch from every listing while keeping its history
// in place for audit.
func (s *Service) DeleteBatch(ctx context.Context, id int64) error {
	if err := s.store.SoftDeleteBatch(ctx, id); err != nil {
		return err
	}
	s.logger.Info("batch deleted", logging.Int64("batch_id", id))
	return nil
}

// Stats aggregates store contents for diagnostics.
func (s *Service) Stats(ctx context.Context) (processing.Stats, error) {
	return s.store.Stats(ctx)
}

// dispatch fires a notification after the triggering write has committed.
// Failures are logged and swallowed; notifications never fail an operation.
func (s *Service) dispatch(event string, fn func() error) {
	if s.notifier == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.Warn("notification failed",
			logging.String("event", event),
			logging.Error(err))
	}
}
