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
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

const (
	defaultCompensationTimeout = 5 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultOrderStoreTimeout   = 3 * time.Second

	MessageOrderPlaced = "Order placed. Inventory reserved."
)

var orderTracer = otel.Tracer("github.com/rl1809/stock-reservation/internal/core/service/order")

type OrderConfig struct {
	// CompensationTimeout bounds the release call made after a failed save.
	CompensationTimeout time.Duration
	IdempotencyTTL      time.Duration
	// StoreTimeout bounds every single order repository call.
	StoreTimeout time.Duration
}

type PlaceOrderCommand struct {
	ProductID      int64
	Quantity       int
	IdempotencyKey string
}

type OrderService struct {
	orders    port.OrderRepository
	inventory port.InventoryClient
	idem      port.IdempotencyStore
	publisher port.EventPublisher
	cfg       OrderConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewOrderService wires the placement flow. idem and publisher may be nil.
func NewOrderService(
	orders port.OrderRepository,
	inventory port.InventoryClient,
	idem port.IdempotencyStore,
	publisher port.EventPublisher,
	cfg OrderConfig,
	logger *zap.Logger,
	m *metrics.Metrics,
) *OrderService {
	if cfg.CompensationTimeout <= 0 {
		cfg.CompensationTimeout = defaultCompensationTimeout
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultOrderStoreTimeout
	}
	return &OrderService{
		orders:    orders,
		inventory: inventory,
		idem:      idem,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// PlaceOrder checks availability, reserves stock and persists the order. When
// the order cannot be saved the reservation is released again and a
// *domain.PersistenceFailureError is returned.
func (s *OrderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	ctx, span := orderTracer.Start(ctx, "OrderService.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("product.id", cmd.ProductID),
		attribute.Int("quantity", cmd.Quantity),
	)

	order, err := s.placeOrder(ctx, cmd)
	s.metrics.RecordPlacement(placementResult(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("order.id", order.ID))
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	if cmd.Quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if cmd.ProductID <= 0 {
		return nil, fmt.Errorf("product id must be positive: %w", domain.ErrInvalidRequest)
	}

	logger := s.logger.With(zap.Int64("product_id", cmd.ProductID), zap.Int("quantity", cmd.Quantity))

	if cmd.IdempotencyKey != "" {
		existing, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (*domain.Order, error) {
			return s.orders.FindByIdempotencyKey(ctx, cmd.IdempotencyKey)
		})
		switch {
		case err == nil:
			if existing.ProductID != cmd.ProductID || existing.Quantity != cmd.Quantity {
				return nil, fmt.Errorf("idempotency key %q reused for a different order: %w",
					cmd.IdempotencyKey, domain.ErrInvalidRequest)
			}
			logger.Info("Replaying order", zap.Int64("order_id", existing.ID))
			return existing, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}

		release, err := s.claim(ctx, cmd.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		committed := false
		defer func() {
			if !committed {
				release()
			}
		}()

		order, err := s.run(ctx, logger, cmd)
		committed = err == nil
		return order, err
	}

	return s.run(ctx, logger, cmd)
}

func (s *OrderService) claim(ctx context.Context, key string) (func(), error) {
	if s.idem == nil {
		return func() {}, nil
	}

	claimKey := "order:" + key
	ok, err := s.idem.Claim(ctx, claimKey, s.cfg.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, domain.ErrDuplicateRequest
	}

	return func() {
		if err := s.idem.Release(context.WithoutCancel(ctx), claimKey); err != nil {
			s.logger.Warn("Failed to release idempotency claim", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) run(ctx context.Context, logger *zap.Logger, cmd PlaceOrderCommand) (*domain.Order, error) {
	p := domain.NewPlacement(cmd.ProductID, cmd.Quantity, cmd.IdempotencyKey)

	if err := s.check(ctx, p); err != nil {
		p.Fail(err)
		logger.Info("Order rejected", zap.Error(err))
		return nil, err
	}

	if err := s.reserve(ctx, p); err != nil {
		p.Fail(err)
		logger.Warn("Failed to reserve inventory", zap.Error(err))
		return nil, err
	}
	logger = logger.With(zap.String("reservation_id", p.ReservationID))

	order := domain.NewPlacedOrder(p.ProductID, p.ProductName, p.Quantity, p.ReservationID, p.BatchIDs, p.IdempotencyKey)
	if err := s.persist(ctx, order); err != nil {
		return nil, s.compensate(ctx, logger, p, err)
	}
	if err := p.Advance(domain.PlacementCommitted); err != nil {
		return nil, err
	}

	logger.Info("Order created successfully", zap.Int64("order_id", order.ID), zap.Int64s("batch_ids", order.ReservedBatchIDs))
	s.publish(ctx, logger, order)
	return order, nil
}

// check reads availability and rejects the placement locally when the total
// is short, so no reservation is attempted.
func (s *OrderService) check(ctx context.Context, p *domain.Placement) error {
	ctx, span := orderTracer.Start(ctx, "placement.check")
	defer span.End()

	inv, err := s.inventory.CheckInventory(ctx, p.ProductID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	p.ProductName = inv.ProductName
	p.Available = inv.TotalQuantity()
	span.SetAttributes(attribute.Int("inventory.available", p.Available))

	if p.Available < p.Quantity {
		return &domain.InsufficientInventoryError{
			ProductID: p.ProductID,
			Available: p.Available,
			Requested: p.Quantity,
		}
	}
	return p.Advance(domain.PlacementChecked)
}

func (s *OrderService) reserve(ctx context.Context, p *domain.Placement) error {
	ctx, span := orderTracer.Start(ctx, "placement.reserve")
	defer span.End()

	// The reservation key survives placement retries, so a reserve that was
	// applied but reported as failed is replayed instead of drawn again.
	result, err := s.inventory.ReserveInventory(ctx, p.ProductID, p.Quantity, reservationKey(p.IdempotencyKey))
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !result.Success {
		err := domain.ErrorFromCode(result.Code, result.Message)
		span.RecordError(err)
		return err
	}

	p.ReservationID = result.ReservationID
	p.BatchIDs = result.ReservedBatchIDs
	span.SetAttributes(attribute.String("reservation.id", p.ReservationID))
	return p.Advance(domain.PlacementReserved)
}

func (s *OrderService) persist(ctx context.Context, order *domain.Order) error {
	ctx, span := orderTracer.Start(ctx, "placement.persist")
	defer span.End()

	err := boundedDo(ctx, s.cfg.StoreTimeout, func(ctx context.Context) error {
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// compensate releases the placement's reservation after its order could not be
// saved. It runs detached from the caller's cancellation.
func (s *OrderService) compensate(ctx context.Context, logger *zap.Logger, p *domain.Placement, cause error) error {
	p.Fail(cause)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	cctx, span := orderTracer.Start(cctx, "placement.compensate",
		trace.WithAttributes(attribute.String("reservation.id", p.ReservationID)))
	defer span.End()

	failure := &domain.PersistenceFailureError{ReservationID: p.ReservationID, Cause: cause}

	err := s.inventory.ReleaseInventory(cctx, p.ProductID, p.ReservationID, p.BatchIDs)
	if err != nil {
		s.metrics.RecordCompensation("failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Compensation failed, reservation left orphaned",
			zap.Int64s("batch_ids", p.BatchIDs),
			zap.NamedError("cause", cause),
			zap.Error(err))
		failure.CompensationErr = err
		return failure
	}

	s.metrics.RecordCompensation("success")
	_ = p.Advance(domain.PlacementCompensated)
	failure.Compensated = true
	logger.Warn("Order save failed, reservation released", zap.Error(cause))
	return failure
}

func (s *OrderService) publish(ctx context.Context, logger *zap.Logger, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishOrderPlaced(ctx, order)
	s.metrics.RecordEvent("OrderPlaced", err)
	if err != nil {
		logger.Warn("Failed to publish OrderPlaced", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := bounded(ctx, s.cfg.StoreTimeout, func(ctx context.Context) (*domain.Order, error) {
		return s.orders.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// reservationKey derives the inventory-side key from the placement key.
// Keyless placements get a fresh key so the client can still retry the call.
func reservationKey(idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}
	return "order:" + idempotencyKey
}

func placementResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, domain.ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
