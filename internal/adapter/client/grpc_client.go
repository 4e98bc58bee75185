package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/stock-reservation/internal/adapter/rpc"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// GRPCInventoryClient talks to the inventory service's gRPC API.
type GRPCInventoryClient struct {
	conn   *grpc.ClientConn
	client *rpc.InventoryServiceClient
	caller *caller
}

func DialGRPCInventoryClient(target string, cfg Config, logger *zap.Logger) (*GRPCInventoryClient, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial inventory %s: %w", target, err)
	}
	c := NewGRPCInventoryClient(conn, cfg, logger)
	c.conn = conn
	return c, nil
}

// NewGRPCInventoryClient wraps an existing connection. Close is a no-op for
// connections the client did not dial.
func NewGRPCInventoryClient(cc grpc.ClientConnInterface, cfg Config, logger *zap.Logger) *GRPCInventoryClient {
	return &GRPCInventoryClient{
		client: rpc.NewInventoryServiceClient(cc),
		caller: newCaller("inventory-grpc", cfg, logger),
	}
}

func (c *GRPCInventoryClient) CheckInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	var inv *domain.Inventory
	err := c.caller.do(ctx, "CheckInventory", true, func(ctx context.Context) error {
		msg, err := c.client.GetInventory(ctx, &rpc.GetInventoryRequest{ProductID: productID})
		if err != nil {
			return rpc.FromStatus(err)
		}
		inv, err = msg.ToDomain()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return nil
	})
	return inv, err
}

func (c *GRPCInventoryClient) ReserveInventory(ctx context.Context, productID int64, quantity int, idempotencyKey string) (*port.ReserveResult, error) {
	req := &rpc.UpdateInventoryRequest{ProductID: productID, Quantity: quantity, IdempotencyKey: idempotencyKey}

	var result *port.ReserveResult
	err := c.caller.do(ctx, "ReserveInventory", idempotencyKey != "", func(ctx context.Context) error {
		resp, err := c.client.UpdateInventory(ctx, req)
		if err != nil {
			return rpc.FromStatus(err)
		}
		result = &port.ReserveResult{
			Success:          resp.Success,
			Code:             resp.Code,
			Message:          resp.Message,
			ReservationID:    resp.ReservationID,
			ReservedBatchIDs: resp.ReservedFromBatchIDs,
		}
		return nil
	})
	return result, err
}

func (c *GRPCInventoryClient) ReleaseInventory(ctx context.Context, productID int64, reservationID string, batchIDs []int64) error {
	req := &rpc.ReleaseInventoryRequest{ProductID: productID, ReservationID: reservationID, BatchIDs: batchIDs}

	return c.caller.do(ctx, "ReleaseInventory", true, func(ctx context.Context) error {
		_, err := c.client.ReleaseInventory(ctx, req)
		return rpc.FromStatus(err)
	})
}

func (c *GRPCInventoryClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
