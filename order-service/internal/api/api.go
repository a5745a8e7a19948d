package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/service"
	"github.com/jacobmousa/OrderCatalog/pkg/httpx"
)

// IdempotencyKeyHeader optionally makes order creation replay-safe.
const IdempotencyKeyHeader = "Idempotency-Key"

type OrderService interface {
	CreateDraft(ctx context.Context, customerID, idempotencyKey string) (*entity.Order, error)
	AddItem(ctx context.Context, orderID int64, req service.AddItemRequest) (*entity.Order, error)
	Confirm(ctx context.Context, orderID int64) (*entity.Order, error)
	Cancel(ctx context.Context, orderID int64) (*entity.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*entity.Order, error)
	ListOrders(ctx context.Context, filter entity.OrderFilter) (*entity.OrderPage, error)
}

type OrderHandler struct {
	orderService OrderService
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// RegisterRoutes mounts the order API under /api/orders.
func RegisterRoutes(e *echo.Echo, h *OrderHandler) {
	g := e.Group("/api/orders")
	g.POST("", h.CreateOrder)
	g.GET("", h.ListOrders)
	g.GET("/:id", h.GetOrder)
	g.POST("/:id/items", h.AddItem)
	g.POST("/:id/confirm", h.ConfirmOrder)
	g.POST("/:id/cancel", h.CancelOrder)
}

type createOrderRequest struct {
	CustomerID string `json:"customerId"`
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
}

type orderItemResponse struct {
	ProductID uuid.UUID   `json:"productId"`
	SKU       string      `json:"sku"`
	Qty       int         `json:"qty"`
	UnitPrice json.Number `json:"unitPrice"`
	LineTotal json.Number `json:"lineTotal"`
}

type orderResponse struct {
	ID          int64               `json:"id"`
	CustomerID  string              `json:"customerId"`
	Status      string              `json:"status"`
	TotalAmount json.Number         `json:"totalAmount"`
	CreatedUTC  time.Time           `json:"createdUtc"`
	UpdatedUTC  time.Time           `json:"updatedUtc"`
	Items       []orderItemResponse `json:"items"`
}

type orderPageResponse struct {
	Items    []orderResponse `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

func toOrderResponse(o *entity.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Qty:       item.Qty,
			UnitPrice: json.Number(item.UnitPrice.StringFixed(2)),
			LineTotal: json.Number(item.LineTotal().StringFixed(2)),
		})
	}

	return orderResponse{
		ID:          o.ID,
		CustomerID:  o.CustomerID,
		Status:      string(o.Status),
		TotalAmount: json.Number(o.TotalAmount.StringFixed(2)),
		CreatedUTC:  o.CreatedUTC,
		UpdatedUTC:  o.UpdatedUTC,
		Items:       items,
	}
}

func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return httpx.WriteProblem(c, http.StatusBadRequest, "Invalid request payload")
	}

	order, err := h.orderService.CreateDraft(c.Request().Context(), req.CustomerID, c.Request().Header.Get(IdempotencyKeyHeader))
	if err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/orders/"+strconv.FormatInt(order.ID, 10))
	return c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) AddItem(c echo.Context) error {
	id, ok := orderID(c)
	if !ok {
		return writeError(c, entity.ErrOrderNotFound)
	}

	var req addItemRequest
	if err := c.Bind(&req); err != nil {
		return httpx.WriteProblem(c, http.StatusBadRequest, "Invalid request payload")
	}

	cmd := service.AddItemRequest{SKU: req.SKU, Qty: req.Qty}
	if raw := strings.TrimSpace(req.ProductID); raw != "" {
		productID, err := uuid.Parse(raw)
		if err != nil {
			// a missing order is reported ahead of a bad selector
			if _, err := h.orderService.GetOrder(c.Request().Context(), id); err != nil {
				return writeError(c, err)
			}
			return httpx.WriteValidationProblem(c, map[string][]string{
				"productId": {"The productId field is not a valid identifier."},
			})
		}
		cmd.ProductID = &productID
	}

	order, err := h.orderService.AddItem(c.Request().Context(), id, cmd)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) ConfirmOrder(c echo.Context) error {
	id, ok := orderID(c)
	if !ok {
		return writeError(c, entity.ErrOrderNotFound)
	}

	order, err := h.orderService.Confirm(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	id, ok := orderID(c)
	if !ok {
		return writeError(c, entity.ErrOrderNotFound)
	}

	order, err := h.orderService.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	id, ok := orderID(c)
	if !ok {
		return writeError(c, entity.ErrOrderNotFound)
	}

	order, err := h.orderService.GetOrder(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}

// ListOrders ignores unknown statuses and malformed paging values.
func (h *OrderHandler) ListOrders(c echo.Context) error {
	filter := entity.OrderFilter{
		CustomerID: c.QueryParam("customerId"),
	}
	if status, ok := entity.ParseOrderStatus(c.QueryParam("status")); ok {
		filter.Status = status
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))

	page, err := h.orderService.ListOrders(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}

	resp := orderPageResponse{
		Items:    make([]orderResponse, 0, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, order := range page.Items {
		resp.Items = append(resp.Items, toOrderResponse(order))
	}
	return c.JSON(http.StatusOK, resp)
}

// orderID reads the :id path parameter. Ids that cannot exist are reported as
// not found.
func orderID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeError(c echo.Context, err error) error {
	var verr *entity.ValidationError
	switch {
	case errors.As(err, &verr):
		return httpx.WriteValidationProblem(c, map[string][]string{verr.Field: {verr.Message}})
	case errors.Is(err, entity.ErrOrderNotFound):
		return httpx.WriteProblem(c, http.StatusNotFound, "Order not found.")
	case errors.Is(err, entity.ErrConcurrentUpdate):
		return httpx.WriteProblem(c, http.StatusConflict, "The order was modified by another request. Reload and retry.")
	case errors.Is(err, service.ErrIdempotencyInFlight):
		return httpx.WriteProblem(c, http.StatusConflict, "A request with this idempotency key is still in progress.")
	default:
		return httpx.WriteInternalError(c, err)
	}
}
