// Package catalog manages the named processing methods and their ordered
// stage sequences. Stage order is append-only: sequences can grow at the
// end but never reorder or shrink, so recorded batch progress stays valid.
package catalog

import (
	"context"
	"log/slog"

	"milltrack/internal/logging"
	"milltrack/internal/processing"
)

// Service exposes method and stage management on top of the store.
type Service struct {
	store  *processing.Store
	logger *slog.Logger
}

// NewService constructs the catalog service.
func NewService(store *processing.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{store: store, logger: logging.WithComponent(logger, "catalog")}
}

// CreateMethod registers a method with its initial stage sequence.
func (s *Service) CreateMethod(ctx context.Context, name string, stages []processing.StageSeed) (*processing.Method, error) {
	method, err := s.store.CreateMethod(ctx, name, stages)
	if err != nil {
		return nil, err
	}
	s.logger.Info("method created",
		logging.Int64("method_id", method.ID),
		logging.String("name", method.Name),
		logging.Int("stages", len(stages)))
	return method, nil
}

// AppendStage extends a method's sequence by one stage at the end.
func (s *Service) AppendStage(ctx context.Context, methodID int64, name string, allowsSplit bool) (*processing.Stage, error) {
	stage, err := s.store.AppendStage(ctx, methodID, name, allowsSplit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("stage appended",
		logging.Int64("method_id", methodID),
		logging.String("name", stage.Name),
		logging.Int("order_index", stage.OrderIndex))
	return stage, nil
}

// OrderedStages returns a method's stages in execution order.
func (s *Service) OrderedStages(ctx context.Context, methodID int64) ([]processing.Stage, error) {
	return s.store.OrderedStages(ctx, methodID)
}

// ListMethods returns every registered method.
func (s *Service) ListMethods(ctx context.Context) ([]processing.Method, error) {
	return s.store.ListMethods(ctx)
}

// MethodByName resolves a method by its unique name. Returns nil when no
// method carries the name.
func (s *Service) MethodByName(ctx context.Context, name string) (*processing.Method, error) {
	return s.store.MethodByName(ctx, name)
}
