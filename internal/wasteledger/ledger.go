// Package wasteledger records waste generated by completed stages and
// answers role-scoped waste listings. Waste items are immutable once
// recorded; corrections happen through soft deletion only.
package wasteledger

import (
	"context"
	"log/slog"

	"milltrack/internal/identity"
	"milltrack/internal/logging"
	"milltrack/internal/processing"
	"milltrack/internal/services"
)

// Service exposes waste recording and scoped reads.
type Service struct {
	store    *processing.Store
	resolver identity.ProducerResolver
	logger   *slog.Logger
}

// NewService constructs the waste ledger.
func NewService(store *processing.Store, resolver identity.ProducerResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logging.WithComponent(logger, "waste-ledger"),
	}
}

// RecordWaste attributes a waste quantity to a completed stage entry of an
// active batch.
func (s *Service) RecordWaste(ctx context.Context, progressID int64, quantity float64, recordedBy string) (*processing.Waste, error) {
	if quantity <= 0 {
		return nil, services.Wrap(services.ErrInvalidQuantity, "waste ledger", "record waste",
			"waste quantity must be positive", nil)
	}
	waste, err := s.store.RecordWaste(ctx, progressID, quantity, recordedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("waste recorded",
		logging.Int64("waste_id", waste.ID),
		logging.Int64("progress_id", progressID),
		logging.Float64("quantity_kg", quantity))
	return waste, nil
}

// Remaining computes the undisposed balance of a waste item.
func (s *Service) Remaining(ctx context.Context, wasteID int64) (float64, error) {
	return s.store.Remaining(ctx, wasteID)
}

// ListAll returns every visible waste item with its producing stage and
// batch context. Reserved for privileged callers.
func (s *Service) ListAll(ctx context.Context) ([]processing.WasteRecord, error) {
	return s.store.ListWaste(ctx)
}

// ListForUser returns the waste a user account may see. Privileged callers
// see everything; everyone else sees waste from their own producer's
// batches. A user with no producer record gets an empty listing, not an
// error.
func (s *Service) ListForUser(ctx context.Context, userID string, privileged bool) ([]processing.WasteRecord, error) {
	if privileged {
		return s.store.ListWaste(ctx)
	}
	if s.resolver == nil {
		return []processing.WasteRecord{}, nil
	}
	producerID, ok, err := s.resolver.ResolveProducer(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []processing.WasteRecord{}, nil
	}
	return s.store.ListWasteByProducer(ctx, producerID)
}

// DeleteWaste hides a waste item as an administrative correction.
func (s *Service) DeleteWaste(ctx context.Context, wasteID int64) error {
	if err := s.store.SoftDeleteWaste(ctx, wasteID); err != nil {
		return err
	}
	s.logger.Info("waste deleted", logging.Int64("waste_id", wasteID))
	return nil
}
