package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-reservation/internal/adapter/rpc"
	"github.com/rl1809/stock-reservation/internal/core/service"
)

// GRPCHandler serves the inventory service over gRPC with the JSON codec.
type GRPCHandler struct {
	inventoryService *service.InventoryService
}

func NewGRPCHandler(inventoryService *service.InventoryService) *GRPCHandler {
	return &GRPCHandler{inventoryService: inventoryService}
}

func (h *GRPCHandler) GetInventory(ctx context.Context, req *rpc.GetInventoryRequest) (*rpc.InventoryMessage, error) {
	inv, err := h.inventoryService.GetInventory(ctx, req.ProductID)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return rpc.NewInventoryMessage(inv), nil
}

// UpdateInventory answers business failures with success=false and only
// returns a status error for infrastructure failures.
func (h *GRPCHandler) UpdateInventory(ctx context.Context, req *rpc.UpdateInventoryRequest) (*rpc.UpdateInventoryResponse, error) {
	result, err := h.inventoryService.UpdateInventory(ctx, service.ReserveCommand{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, rpc.ToStatus(err)
	}

	return &rpc.UpdateInventoryResponse{
		Success:              result.Success,
		Code:                 result.Code,
		Message:              result.Message,
		ProductID:            req.ProductID,
		Quantity:             req.Quantity,
		ReservationID:        result.ReservationID,
		ReservedFromBatchIDs: result.ReservedBatchIDs,
	}, nil
}

func (h *GRPCHandler) ReleaseInventory(ctx context.Context, req *rpc.ReleaseInventoryRequest) (*rpc.ReleaseInventoryResponse, error) {
	err := h.inventoryService.Release(ctx, service.ReleaseCommand{
		ProductID:     req.ProductID,
		ReservationID: req.ReservationID,
		BatchIDs:      req.BatchIDs,
	})
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return &rpc.ReleaseInventoryResponse{Success: true, Message: service.MessageInventoryReleased}, nil
}

// UnaryLogging logs every gRPC call with its duration and status.
func UnaryLogging(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("gRPC call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("gRPC call handled", fields...)
		}
		return resp, err
	}
}
