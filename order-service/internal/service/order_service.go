package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/catalog"
	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
	"github.com/jacobmousa/OrderCatalog/pkg/contracts"
)

// ErrIdempotencyInFlight is returned when a create with the same idempotency
// key has been claimed but has not finished yet.
var ErrIdempotencyInFlight = errors.New("a request with this idempotency key is still in progress")

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*entity.Order, error)
	UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error)
	ListOrders(ctx context.Context, filter entity.OrderFilter) (*entity.OrderPage, error)
}

// ProductCatalog resolves products. A false result means "not available",
// whatever the reason.
type ProductCatalog interface {
	ProductByID(ctx context.Context, id uuid.UUID) (*catalog.Product, bool)
	ProductBySKU(ctx context.Context, sku string) (*catalog.Product, bool)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, order *entity.Order) error
}

// IdempotencyStore remembers which order a create request produced.
//
// Claim reports claimed=true when the caller now owns key. Otherwise orderID
// is the order bound to key, or 0 while the owner is still working.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (claimed bool, orderID int64, err error)
	Bind(ctx context.Context, key string, orderID int64) error
	Release(ctx context.Context, key string) error
}

// AddItemRequest selects a product by ProductID or, failing that, by SKU.
type AddItemRequest struct {
	ProductID *uuid.UUID
	SKU       string
	Qty       int
}

// OrderService is a service that provides order-related operations
type OrderService struct {
	orders      OrderRepository
	catalog     ProductCatalog
	publisher   EventPublisher
	idempotency IdempotencyStore
	now         func() time.Time
}

// NewOrderService creates a new instance of OrderService. idempotency may be
// nil, in which case idempotency keys are ignored.
func NewOrderService(orders OrderRepository, catalog ProductCatalog, publisher EventPublisher, idempotency IdempotencyStore) *OrderService {
	return &OrderService{
		orders:      orders,
		catalog:     catalog,
		publisher:   publisher,
		idempotency: idempotency,
		now:         entity.Now,
	}
}

// CreateDraft persists an empty draft. A blank customerID is replaced by a
// generated token. A repeated idempotencyKey returns the order created by the
// first request.
func (s *OrderService) CreateDraft(ctx context.Context, customerID, idempotencyKey string) (*entity.Order, error) {
	key := strings.TrimSpace(idempotencyKey)
	if key == "" || s.idempotency == nil {
		return s.createDraft(ctx, customerID)
	}

	claimed, existingID, err := s.idempotency.Claim(ctx, key)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if existingID == 0 {
			return nil, ErrIdempotencyInFlight
		}
		zerolog.Ctx(ctx).Info().Str("idempotency_key", key).Int64("order_id", existingID).Msg("replaying create")
		return s.orders.GetOrderByID(ctx, existingID)
	}

	order, err := s.createDraft(ctx, customerID)
	if err != nil {
		if relErr := s.idempotency.Release(ctx, key); relErr != nil {
			zerolog.Ctx(ctx).Warn().Err(relErr).Str("idempotency_key", key).Msg("failed to release idempotency key")
		}
		return nil, err
	}

	if err := s.idempotency.Bind(ctx, key, order.ID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("idempotency_key", key).Int64("order_id", order.ID).Msg("failed to bind idempotency key")
	}
	return order, nil
}

func (s *OrderService) createDraft(ctx context.Context, customerID string) (*entity.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		customerID = uuid.NewString()
	}

	created, err := s.orders.CreateOrder(ctx, entity.NewDraftOrder(customerID, s.now()))
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Int64("order_id", created.ID).Str("customer_id", created.CustomerID).Msg("draft order created")
	s.publish(ctx, contracts.OrderCreated, created)
	return created, nil
}

// AddItem resolves the product against the catalog and merges it into a draft
// order. A product already on the order has its quantity increased; its unit
// price stays at the first snapshot.
func (s *OrderService) AddItem(ctx context.Context, orderID int64, req AddItemRequest) (*entity.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.EnsureDraft(); err != nil {
		return nil, err
	}
	if req.Qty <= 0 {
		return nil, entity.NewValidationError("qty", "Quantity must be greater than zero.")
	}
	if req.Qty > entity.MaxItemQty {
		return nil, entity.NewValidationError("qty", "Quantity must not exceed 2147483647.")
	}

	product, err := s.resolveProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	if existing := order.ItemForProduct(product.ID); existing != nil {
		if existing.Qty > entity.MaxItemQty-req.Qty {
			return nil, entity.NewValidationError("qty", "Quantity on the order line must not exceed 2147483647.")
		}
		existing.Qty += req.Qty
	} else {
		order.Items = append(order.Items, entity.OrderItem{
			ID:        uuid.New(),
			ProductID: product.ID,
			SKU:       product.SKU,
			Qty:       req.Qty,
			UnitPrice: product.Price,
		})
	}
	order.RecalculateTotal()
	order.UpdatedUTC = s.now()

	updated, err := s.orders.UpdateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Int64("order_id", updated.ID).Str("sku", product.SKU).Int("qty", req.Qty).Msg("item added")
	s.publish(ctx, contracts.OrderItemAdded, updated)
	return updated, nil
}

func (s *OrderService) resolveProduct(ctx context.Context, req AddItemRequest) (*catalog.Product, error) {
	var (
		product *catalog.Product
		found   bool
	)
	sku := strings.TrimSpace(req.SKU)

	switch {
	case req.ProductID != nil && *req.ProductID != uuid.Nil:
		product, found = s.catalog.ProductByID(ctx, *req.ProductID)
	case sku != "":
		product, found = s.catalog.ProductBySKU(ctx, sku)
	default:
		return nil, entity.NewValidationError("product", "Either productId or sku must be provided.")
	}

	if !found {
		return nil, entity.NewValidationError("product", "Product not found in catalog")
	}
	return product, nil
}

// Confirm moves a non-empty draft to Confirmed.
func (s *OrderService) Confirm(ctx context.Context, orderID int64) (*entity.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := order.Confirm(s.now()); err != nil {
		return nil, err
	}
	order.RecalculateTotal()

	updated, err := s.orders.UpdateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Int64("order_id", updated.ID).Str("total", updated.TotalAmount.StringFixed(2)).Msg("order confirmed")
	s.publish(ctx, contracts.OrderConfirmed, updated)
	return updated, nil
}

// Cancel cancels a draft. Cancelling a cancelled order returns it unchanged.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (*entity.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == entity.StatusCancelled {
		return order, nil
	}
	if err := order.Cancel(s.now()); err != nil {
		return nil, err
	}

	updated, err := s.orders.UpdateOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Int64("order_id", updated.ID).Msg("order cancelled")
	s.publish(ctx, contracts.OrderCancelled, updated)
	return updated, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*entity.Order, error) {
	return s.orders.GetOrderByID(ctx, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, filter entity.OrderFilter) (*entity.OrderPage, error) {
	return s.orders.ListOrders(ctx, filter.Normalize())
}

// publish never fails the command: the order is already persisted.
func (s *OrderService) publish(ctx context.Context, eventType string, order *entity.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, order); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("order_id", order.ID).Str("event", eventType).Msg("failed to publish order event")
	}
}
