package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/allocation"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 20 * time.Millisecond
	defaultLockTimeout  = 2 * time.Second
	defaultStoreTimeout = 3 * time.Second

	MessageInventoryUpdated  = "Inventory updated successfully"
	MessageInventoryReleased = "Inventory released successfully"
)

var inventoryTracer = otel.Tracer("github.com/rl1809/stock-reservation/internal/core/service/inventory")

type InventoryConfig struct {
	// Strategy names the allocation engine; empty selects the registry default.
	Strategy     string
	MaxAttempts  int
	RetryBackoff time.Duration
	// LockTimeout bounds the wait for the product lock.
	LockTimeout time.Duration
	// StoreTimeout bounds every single repository call.
	StoreTimeout time.Duration
}

type ReserveCommand struct {
	ProductID      int64
	Quantity       int
	IdempotencyKey string
}

type ReleaseCommand struct {
	ProductID     int64
	ReservationID string
	BatchIDs      []int64
}

// UpdateResult is the outcome of an inventory update. Business failures are
// reported with Success=false and a wire code.
type UpdateResult struct {
	Success          bool
	Message          string
	Code             string
	ReservationID    string
	ReservedBatchIDs []int64
}

type InventoryService struct {
	batches  port.BatchRepository
	locker   port.Locker
	registry *allocation.Registry
	cfg      InventoryConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewInventoryService(
	batches port.BatchRepository,
	locker port.Locker,
	registry *allocation.Registry,
	cfg InventoryConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *InventoryService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = defaultLockTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	return &InventoryService{
		batches:  batches,
		locker:   locker,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
	}
}

func productLockKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}

// lock takes the product lock, giving up after cfg.LockTimeout. The returned
// unlock does not depend on ctx.
func (s *InventoryService) lock(ctx context.Context, productID int64) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, productLockKey(productID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock product %d: %w", productID, err)
	}
	return unlock, nil
}

// bounded runs one repository call that must finish within d.
func bounded[T any](ctx context.Context, d time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return call(ctx)
}

func boundedDo(ctx context.Context, d time.Duration, call func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return call(ctx)
}

// GetInventory returns every batch of the product ordered by expiry. It never
// mutates state.
func (s *InventoryService) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	ctx, span := inventoryTracer.Start(ctx, "InventoryService.GetInventory")
	defer span.End()
	span.SetAttributes(attribute.Int64("product.id", productID))

	batches, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]*domain.Batch, error) {
		return s.batches.FindByProductID(ctx, productID)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}

	inv := domain.NewInventory(productID, batches)
	if inv == nil {
		return nil, domain.NotFoundError("Product not found with ID: %d", productID)
	}
	return inv, nil
}

// Reserve draws cmd.Quantity from the product's batches with the configured
// allocation engine and records the draw as a reservation.
func (s *InventoryService) Reserve(ctx context.Context, cmd ReserveCommand) (*domain.Reservation, error) {
	ctx, span := inventoryTracer.Start(ctx, "InventoryService.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", cmd.ProductID),
		attribute.Int("quantity", cmd.Quantity),
	)

	res, err := s.reserve(ctx, cmd)
	s.metrics.RecordReservation(reservationResult(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ID))
	return res, nil
}

func (s *InventoryService) reserve(ctx context.Context, cmd ReserveCommand) (*domain.Reservation, error) {
	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if cmd.ProductID <= 0 {
		return nil, fmt.Errorf("product id must be positive: %w", domain.ErrInvalidRequest)
	}

	logger := s.logger.With(zap.Int64("product_id", cmd.ProductID), zap.Int("quantity", cmd.Quantity))

	unlock, err := s.lock(ctx, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	engine := s.registry.Get(s.cfg.Strategy)

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if cmd.IdempotencyKey != "" {
			existing, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (*domain.Reservation, error) {
				return s.batches.FindReservationByKey(ctx, cmd.IdempotencyKey)
			})
			switch {
			case err == nil:
				if existing.ProductID != cmd.ProductID || existing.Quantity != cmd.Quantity {
					return nil, fmt.Errorf("idempotency key %q reused for a different request: %w",
						cmd.IdempotencyKey, domain.ErrInvalidRequest)
				}
				if existing.Status == domain.ReservationStatusReleased {
					return nil, fmt.Errorf("reservation for key %q was already released: %w",
						cmd.IdempotencyKey, domain.ErrInvalidRequest)
				}
				logger.Info("Replaying reservation", zap.String("reservation_id", existing.ID))
				return existing, nil
			case !errors.Is(err, domain.ErrNotFound):
				return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
			}
		}

		batches, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) ([]*domain.Batch, error) {
			return s.batches.FindByProductID(ctx, cmd.ProductID)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load batches: %w", err)
		}
		if len(batches) == 0 {
			return nil, domain.NotFoundError("Product not found with ID: %d", cmd.ProductID)
		}

		allocs, err := engine.Reserve(batches, cmd.Quantity)
		if err != nil {
			var insufficient *domain.InsufficientInventoryError
			if errors.As(err, &insufficient) {
				insufficient.ProductID = cmd.ProductID
			}
			return nil, err
		}

		res := domain.NewReservation(uuid.NewString(), cmd.ProductID, cmd.Quantity, cmd.IdempotencyKey, allocs)
		err = boundedDo(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
			return s.batches.SaveReservation(ctx, res, drawnBatches(batches, allocs))
		})
		if err == nil {
			logger.Info("Reserved inventory",
				zap.String("reservation_id", res.ID),
				zap.String("engine", engine.Type()),
				zap.Int64s("batch_ids", res.BatchIDs()))
			return res, nil
		}
		if !errors.Is(err, domain.ErrReservationConflict) {
			return nil, fmt.Errorf("failed to save reservation: %w", err)
		}

		s.metrics.RecordReservationConflict()
		logger.Warn("Batch version conflict, retrying", zap.Int("attempt", attempt))
		if attempt < s.cfg.MaxAttempts {
			if err := sleep(ctx, time.Duration(attempt)*s.cfg.RetryBackoff); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("product %d still contended after %d attempts: %w",
		cmd.ProductID, s.cfg.MaxAttempts, domain.ErrReservationConflict)
}

// UpdateInventory reserves stock and reports business failures as an
// unsuccessful result. Infrastructure failures are returned as errors.
func (s *InventoryService) UpdateInventory(ctx context.Context, cmd ReserveCommand) (*UpdateResult, error) {
	res, err := s.Reserve(ctx, cmd)
	if err == nil {
		return &UpdateResult{
			Success:          true,
			Message:          MessageInventoryUpdated,
			ReservationID:    res.ID,
			ReservedBatchIDs: res.BatchIDs(),
		}, nil
	}

	if isBusinessFailure(err) {
		s.logger.Info("Inventory update rejected",
			zap.Int64("product_id", cmd.ProductID),
			zap.Int("quantity", cmd.Quantity),
			zap.Error(err))
		return &UpdateResult{
			Success: false,
			Message: err.Error(),
			Code:    domain.ErrorCode(err),
		}, nil
	}

	s.logger.Error("Failed to update inventory", zap.Int64("product_id", cmd.ProductID), zap.Error(err))
	return nil, err
}

// Release gives back everything a reservation drew. Releasing a reservation
// twice is a no-op.
func (s *InventoryService) Release(ctx context.Context, cmd ReleaseCommand) error {
	ctx, span := inventoryTracer.Start(ctx, "InventoryService.Release")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", cmd.ProductID),
		attribute.String("reservation.id", cmd.ReservationID),
	)

	err := s.release(ctx, cmd)
	switch {
	case err == nil:
		s.metrics.RecordRelease("success")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidRequest):
		s.metrics.RecordRelease("rejected")
	default:
		s.metrics.RecordRelease("failure")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *InventoryService) release(ctx context.Context, cmd ReleaseCommand) error {
	if cmd.ReservationID == "" {
		return fmt.Errorf("reservation id is required: %w", domain.ErrInvalidRequest)
	}

	unlock, err := s.lock(ctx, cmd.ProductID)
	if err != nil {
		return err
	}
	defer unlock()

	res, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (*domain.Reservation, error) {
		return s.batches.FindReservation(ctx, cmd.ReservationID)
	})
	if err != nil {
		return err
	}
	if res.ProductID != cmd.ProductID || !res.MatchesBatches(cmd.BatchIDs) {
		return fmt.Errorf("reservation %s does not match product %d and batches %v: %w",
			cmd.ReservationID, cmd.ProductID, cmd.BatchIDs, domain.ErrInvalidRequest)
	}
	if res.Status == domain.ReservationStatusReleased {
		return nil
	}

	err = boundedDo(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.batches.ReleaseReservation(ctx, res.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to release reservation %s: %w", res.ID, err)
	}

	s.logger.Info("Released reservation",
		zap.String("reservation_id", res.ID),
		zap.Int64("product_id", res.ProductID),
		zap.Int("quantity", res.Quantity))
	return nil
}

// Registry exposes the engines this service can allocate with.
func (s *InventoryService) Registry() *allocation.Registry {
	return s.registry
}

func drawnBatches(batches []*domain.Batch, allocs []domain.Allocation) []*domain.Batch {
	byID := make(map[int64]*domain.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	drawn := make([]*domain.Batch, 0, len(allocs))
	for _, a := range allocs {
		drawn = append(drawn, byID[a.BatchID])
	}
	return drawn
}

func isBusinessFailure(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInsufficientInventory) ||
		errors.Is(err, domain.ErrInvalidQuantity) ||
		errors.Is(err, domain.ErrInvalidRequest)
}

func reservationResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrReservationConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
