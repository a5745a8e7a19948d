package contracts

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order event types. The Kafka message key is "order.<type>.<orderID>".
const (
	OrderCreated   = "created"
	OrderItemAdded = "item_added"
	OrderConfirmed = "confirmed"
	OrderCancelled = "cancelled"
)

// CorrelationHeader carries the correlation token on Kafka messages.
const CorrelationHeader = "x-correlation-id"

type OrderEvent struct {
	Type        string           `json:"type"`
	OrderID     int64            `json:"orderId"`
	CustomerID  string           `json:"customerId"`
	Status      string           `json:"status"`
	TotalAmount decimal.Decimal  `json:"totalAmount"`
	Items       []OrderEventItem `json:"items"`
	OccurredUTC time.Time        `json:"occurredUtc"`
}

type OrderEventItem struct {
	ProductID uuid.UUID       `json:"productId"`
	SKU       string          `json:"sku"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Key returns the message key for the event.
func (e OrderEvent) Key() string {
	return fmt.Sprintf("order.%s.%d", e.Type, e.OrderID)
}

// EventTypeFromKey extracts the type segment from a message key.
func EventTypeFromKey(key string) (string, bool) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[0] != "order" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
