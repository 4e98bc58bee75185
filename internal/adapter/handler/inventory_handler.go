package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/stock-reservation/internal/adapter/rpc"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
)

type InventoryHandler struct {
	inventoryService *service.InventoryService
}

func NewInventoryHandler(inventoryService *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

func (h *InventoryHandler) Register(r gin.IRouter) {
	g := r.Group("/inventory")
	g.GET("/:productId", h.GetInventory)
	g.POST("/update", h.UpdateInventory)
	g.POST("/release", h.ReleaseInventory)
}

func (h *InventoryHandler) GetInventory(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, rpc.ErrorResponse{
			Code:    domain.CodeInvalidRequest,
			Message: "invalid product id",
		})
		return
	}

	inv, err := h.inventoryService.GetInventory(c.Request.Context(), productID)
	if err != nil {
		c.JSON(inventoryStatus(err), rpc.ErrorResponse{
			Code:    domain.ErrorCode(err),
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, rpc.NewInventoryMessage(inv))
}

func (h *InventoryHandler) UpdateInventory(c *gin.Context) {
	var req rpc.UpdateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, rpc.UpdateInventoryResponse{
			Success: false,
			Code:    domain.CodeInvalidRequest,
			Message: "invalid request body",
		})
		return
	}

	result, err := h.inventoryService.UpdateInventory(c.Request.Context(), service.ReserveCommand{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		c.JSON(inventoryStatus(err), rpc.UpdateInventoryResponse{
			Success: false,
			Code:    domain.ErrorCode(err),
			Message: err.Error(),
		})
		return
	}

	resp := rpc.UpdateInventoryResponse{
		Success:              result.Success,
		Code:                 result.Code,
		Message:              result.Message,
		ProductID:            req.ProductID,
		Quantity:             req.Quantity,
		ReservationID:        result.ReservationID,
		ReservedFromBatchIDs: result.ReservedBatchIDs,
	}
	if !result.Success {
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InventoryHandler) ReleaseInventory(c *gin.Context) {
	var req rpc.ReleaseInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, rpc.ErrorResponse{
			Code:    domain.CodeInvalidRequest,
			Message: "invalid request body",
		})
		return
	}

	err := h.inventoryService.Release(c.Request.Context(), service.ReleaseCommand{
		ProductID:     req.ProductID,
		ReservationID: req.ReservationID,
		BatchIDs:      req.BatchIDs,
	})
	if err != nil {
		c.JSON(inventoryStatus(err), rpc.ErrorResponse{
			Code:    domain.ErrorCode(err),
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, rpc.ReleaseInventoryResponse{
		Success: true,
		Message: service.MessageInventoryReleased,
	})
}
