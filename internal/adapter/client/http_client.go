package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/rpc"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/port"
)

// HTTPInventoryClient talks to the inventory service's REST API.
type HTTPInventoryClient struct {
	baseURL string
	http    *http.Client
	caller  *caller
}

func NewHTTPInventoryClient(baseURL string, cfg Config, logger *zap.Logger) *HTTPInventoryClient {
	return &HTTPInventoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		caller:  newCaller("inventory-http", cfg, logger),
	}
}

func (c *HTTPInventoryClient) CheckInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	var inv *domain.Inventory
	err := c.caller.do(ctx, "CheckInventory", true, func(ctx context.Context) error {
		var msg rpc.InventoryMessage
		status, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/inventory/%d", productID), nil, &msg, false)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", domain.ErrUnavailable, status)
		}
		inv, err = msg.ToDomain()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return nil
	})
	return inv, err
}

func (c *HTTPInventoryClient) ReserveInventory(ctx context.Context, productID int64, quantity int, idempotencyKey string) (*port.ReserveResult, error) {
	req := rpc.UpdateInventoryRequest{ProductID: productID, Quantity: quantity, IdempotencyKey: idempotencyKey}

	var result *port.ReserveResult
	err := c.caller.do(ctx, "ReserveInventory", idempotencyKey != "", func(ctx context.Context) error {
		var resp rpc.UpdateInventoryResponse
		status, err := c.call(ctx, http.MethodPost, "/inventory/update", req, &resp, true)
		if err != nil {
			return err
		}
		if status != http.StatusOK && status != http.StatusBadRequest {
			return fmt.Errorf("%w: unexpected status %d", domain.ErrUnavailable, status)
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

func (c *HTTPInventoryClient) ReleaseInventory(ctx context.Context, productID int64, reservationID string, batchIDs []int64) error {
	req := rpc.ReleaseInventoryRequest{ProductID: productID, ReservationID: reservationID, BatchIDs: batchIDs}

	return c.caller.do(ctx, "ReleaseInventory", true, func(ctx context.Context) error {
		var resp rpc.ReleaseInventoryResponse
		status, err := c.call(ctx, http.MethodPost, "/inventory/release", req, &resp, false)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", domain.ErrUnavailable, status)
		}
		return nil
	})
}

// call performs one request. 2xx bodies, and 400 bodies when badRequestIsAnswer
// is set, are decoded into out. Other 4xx answers become domain errors; 5xx
// and transport failures become domain.ErrUnavailable.
func (c *HTTPInventoryClient) call(ctx context.Context, method, path string, body, out any, badRequestIsAnswer bool) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: read body: %v", domain.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return resp.StatusCode, fmt.Errorf("%w: status %d: %s", domain.ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
	case resp.StatusCode == http.StatusBadRequest && badRequestIsAnswer:
	case resp.StatusCode >= http.StatusBadRequest:
		var e rpc.ErrorResponse
		if err := json.Unmarshal(data, &e); err != nil || e.Code == "" {
			return resp.StatusCode, fmt.Errorf("%w: status %d", domain.ErrUnavailable, resp.StatusCode)
		}
		return resp.StatusCode, domain.ErrorFromCode(e.Code, e.Message)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %v", domain.ErrUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
