package entity

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

// MaxItemQty bounds a line quantity, merged or not, to the store's INT column.
const MaxItemQty = math.MaxInt32

const (
	StatusDraft     OrderStatus = "Draft"
	StatusConfirmed OrderStatus = "Confirmed"
	StatusCancelled OrderStatus = "Cancelled"
)

// ParseOrderStatus matches s case-insensitively against the known statuses.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range []OrderStatus{StatusDraft, StatusConfirmed, StatusCancelled} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

// Order is the aggregate root. ID is assigned by the store on creation and
// Version is the optimistic concurrency stamp maintained by the store.
type Order struct {
	ID          int64
	CustomerID  string
	Status      OrderStatus
	Items       []OrderItem
	TotalAmount decimal.Decimal
	CreatedUTC  time.Time
	UpdatedUTC  time.Time
	Version     int64
}

// OrderItem is one line of an order. SKU and UnitPrice are snapshots taken
// when the product was first added and are never refreshed.
type OrderItem struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	SKU       string
	Qty       int
	UnitPrice decimal.Decimal
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// Now returns the current UTC time at the precision the store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewDraftOrder returns an empty draft for customerID.
func NewDraftOrder(customerID string, now time.Time) *Order {
	return &Order{
		CustomerID:  customerID,
		Status:      StatusDraft,
		Items:       []OrderItem{},
		TotalAmount: decimal.Zero,
		CreatedUTC:  now,
		UpdatedUTC:  now,
	}
}

// RecalculateTotal sets TotalAmount to the sum of all line totals.
func (o *Order) RecalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	o.TotalAmount = total
}

// EnsureDraft fails unless the order still accepts line-item changes.
func (o *Order) EnsureDraft() error {
	if o.Status != StatusDraft {
		return NewValidationError("status", "Only draft orders can be modified.")
	}
	return nil
}

// Confirm moves a non-empty draft to Confirmed.
func (o *Order) Confirm(now time.Time) error {
	if err := o.EnsureDraft(); err != nil {
		return err
	}
	if len(o.Items) == 0 {
		return NewValidationError("items", "Cannot confirm order without items.")
	}
	o.Status = StatusConfirmed
	o.UpdatedUTC = now
	return nil
}

// Cancel moves a draft to Cancelled. Cancelling a cancelled order is a no-op;
// confirmed orders cannot be cancelled.
func (o *Order) Cancel(now time.Time) error {
	switch o.Status {
	case StatusCancelled:
		return nil
	case StatusConfirmed:
		return NewValidationError("status", "Confirmed orders cannot be cancelled.")
	}
	o.Status = StatusCancelled
	o.UpdatedUTC = now
	return nil
}

// ItemForProduct returns the line holding productID, or nil.
func (o *Order) ItemForProduct(productID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// OrderFilter selects orders for listing. Zero values mean "no filter".
type OrderFilter struct {
	Status     OrderStatus
	CustomerID string
	Page       int
	PageSize   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize applies paging defaults and bounds.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.CustomerID = strings.TrimSpace(f.CustomerID)
	return f
}

// OrderPage is one page of a listing.
type OrderPage struct {
	Items    []*Order
	Total    int
	Page     int
	PageSize int
}
