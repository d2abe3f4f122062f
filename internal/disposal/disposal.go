// Package disposal manages disposal actions against recorded waste. The
// cumulative disposed quantity of a waste item can never exceed what was
// recorded; the check and the insert run in one store transaction.
package disposal

import (
	"context"
	"log/slog"

	"milltrack/internal/identity"
	"milltrack/internal/logging"
	"milltrack/internal/notifications"
	"milltrack/internal/processing"
	"milltrack/internal/services"
)

// Service exposes disposal recording, handler assignment and reads.
type Service struct {
	store     *processing.Store
	directory identity.HandlerDirectory
	notifier  notifications.Service
	logger    *slog.Logger
}

// NewService constructs the disposal workflow.
func NewService(store *processing.Store, directory identity.HandlerDirectory, notifier notifications.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		directory: directory,
		notifier:  notifier,
		logger:    logging.WithComponent(logger, "disposal"),
	}
}

// RecordDisposal disposes part or all of a waste item's remaining balance.
// HandledBy may be empty; unassigned disposals stay valid until a handler
// is resolved later.
func (s *Service) RecordDisposal(ctx context.Context, wasteID int64, quantity float64, handledBy string) (*processing.Disposal, error) {
	if quantity <= 0 {
		return nil, services.Wrap(services.ErrInvalidQuantity, "disposal", "record disposal",
			"disposal quantity must be positive", nil)
	}
	disposal, err := s.store.RecordDisposal(ctx, wasteID, quantity, handledBy)
	if err != nil {
		return nil, err
	}

	remaining, err := s.store.Remaining(ctx, wasteID)
	if err != nil {
		remaining = 0
	}
	s.logger.Info("disposal recorded",
		logging.Int64("disposal_id", disposal.ID),
		logging.Int64("waste_id", wasteID),
		logging.Float64("quantity_kg", quantity),
		logging.Float64("remaining_kg", remaining))

	if s.notifier != nil {
		if err := s.notifier.NotifyDisposalRecorded(ctx, wasteID, quantity, remaining); err != nil {
			s.logger.Warn("notification failed",
				logging.String("event", "disposal recorded"),
				logging.Error(err))
		}
	}
	return disposal, nil
}

// AssignHandler resolves a previously unassigned disposal to a handler
// identity.
func (s *Service) AssignHandler(ctx context.Context, disposalID int64, handlerID string) error {
	if err := s.store.AssignDisposalHandler(ctx, disposalID, handlerID); err != nil {
		return err
	}

	name := identity.DisplayHandler(ctx, s.directory, handlerID)
	s.logger.Info("disposal handler assigned",
		logging.Int64("disposal_id", disposalID),
		logging.String("handler", name))

	if s.notifier != nil {
		if err := s.notifier.NotifyDisposalAssigned(ctx, disposalID, name); err != nil {
			s.logger.Warn("notification failed",
				logging.String("event", "disposal assigned"),
				logging.Error(err))
		}
	}
	return nil
}

// GetDisposal fetches one disposal. Unknown or deleted disposals fail with
// a not-found error.
func (s *Service) GetDisposal(ctx context.Context, id int64) (*processing.Disposal, error) {
	disposal, err := s.store.GetDisposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if disposal == nil {
		return nil, services.Wrap(services.ErrNotFound, "disposal", "get disposal",
			"disposal does not exist", nil)
	}
	return disposal, nil
}

// ListDisposals returns visible disposals, optionally scoped to a set of
// waste items.
func (s *Service) ListDisposals(ctx context.Context, wasteIDs ...int64) ([]processing.Disposal, error) {
	return s.store.ListDisposals(ctx, wasteIDs...)
}

// HandlerDisplayName maps a disposal's handler identity to a display name
// for presentation. The lookup is lazy: records store identities only.
func (s *Service) HandlerDisplayName(ctx context.Context, handlerID string) string {
	return identity.DisplayHandler(ctx, s.directory, handlerID)
}

// DeleteDisposal hides a disposal as an administrative correction. The
// disposed quantity returns to the waste item's remaining balance.
func (s *Service) DeleteDisposal(ctx context.Context, id int64) error {
	if err := s.store.SoftDeleteDisposal(ctx, id); err != nil {
		return err
	}
	s.logger.Info("disposal deleted", logging.Int64("disposal_id", id))
	return nil
}
