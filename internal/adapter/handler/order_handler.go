package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

type PlaceOrderRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type OrderResponse struct {
	OrderID              int64   `json:"orderId"`
	ProductID            int64   `json:"productId"`
	ProductName          string  `json:"productName"`
	Quantity             int     `json:"quantity"`
	Status               string  `json:"status"`
	OrderDate            string  `json:"orderDate"`
	ReservationID        string  `json:"reservationId"`
	ReservedFromBatchIDs []int64 `json:"reservedFromBatchIds"`
	Message              string  `json:"message,omitempty"`
}

type OrderErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) Register(r gin.IRouter) {
	r.POST("/order", h.PlaceOrder)
	r.GET("/order/:orderId", h.GetOrder)
}

func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, OrderErrorResponse{
			Code:    domain.CodeInvalidRequest,
			Message: "invalid request body",
		})
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), service.PlaceOrderCommand{
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		status := orderStatus(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			message = "Failed to place order: " + message
		}
		c.JSON(status, OrderErrorResponse{Code: placementCode(err), Message: message})
		return
	}

	resp := newOrderResponse(order)
	resp.Message = service.MessageOrderPlaced
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, OrderErrorResponse{
			Code:    domain.CodeInvalidRequest,
			Message: "invalid order id",
		})
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, OrderErrorResponse{Code: domain.ErrorCode(err), Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, newOrderResponse(order))
}

func placementCode(err error) string {
	if errors.Is(err, domain.ErrPersistenceFailure) {
		return domain.CodeInternal
	}
	return domain.ErrorCode(err)
}

func newOrderResponse(o *domain.Order) OrderResponse {
	ids := o.ReservedBatchIDs
	if ids == nil {
		ids = []int64{}
	}
	return OrderResponse{
		OrderID:              o.ID,
		ProductID:            o.ProductID,
		ProductName:          o.ProductName,
		Quantity:             o.Quantity,
		Status:               string(o.Status),
		OrderDate:            o.CreatedAt.Format(domain.DateLayout),
		ReservationID:        o.ReservationID,
		ReservedFromBatchIDs: ids,
	}
}
