package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a catalog record. The JSON form is what the product cache stores.
type Product struct {
	ID         uuid.UUID       `json:"id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	CreatedUTC time.Time       `json:"createdUtc"`
	UpdatedUTC time.Time       `json:"updatedUtc"`
}

// Now returns the current UTC time at the precision the store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type CreateProductRequest struct {
	SKU   string
	Name  string
	Price decimal.Decimal
	Stock int
}

// Validate checks the field rules. SKU uniqueness is checked by the service.
func (r CreateProductRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if strings.TrimSpace(r.SKU) == "" {
		errs.Add("sku", "SKU is required.")
	}
	if strings.TrimSpace(r.Name) == "" {
		errs.Add("name", "Name is required.")
	}
	if r.Price.IsNegative() {
		errs.Add("price", "Price must be >= 0.")
	}
	if r.Stock < 0 {
		errs.Add("stock", "Stock must be >= 0.")
	}
	return errs
}

// PatchProductRequest changes only the fields that are non-nil.
type PatchProductRequest struct {
	Price *decimal.Decimal
	Stock *int
	Name  *string
	SKU   *string
}

func (r PatchProductRequest) Empty() bool {
	return r.Price == nil && r.Stock == nil && r.Name == nil && r.SKU == nil
}

// Validate checks the field rules. SKU uniqueness is checked by the service.
func (r PatchProductRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if r.Empty() {
		errs.Add("body", "At least one field (price, stock, name, sku) must be provided.")
	}
	if r.Price != nil && r.Price.IsNegative() {
		errs.Add("price", "Price must be >= 0.")
	}
	if r.Stock != nil && *r.Stock < 0 {
		errs.Add("stock", "Stock must be >= 0.")
	}
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		errs.Add("name", "Name cannot be empty.")
	}
	if r.SKU != nil && strings.TrimSpace(*r.SKU) == "" {
		errs.Add("sku", "Sku cannot be empty.")
	}
	return errs
}

// Apply copies the supplied fields onto p and reports whether the SKU changed.
// A SKU that differs from the current one only by case is left alone.
func (r PatchProductRequest) Apply(p *Product, now time.Time) (skuChanged bool) {
	if r.Price != nil {
		p.Price = *r.Price
	}
	if r.Stock != nil {
		p.Stock = *r.Stock
	}
	if r.Name != nil {
		p.Name = strings.TrimSpace(*r.Name)
	}
	if r.SKU != nil && !strings.EqualFold(strings.TrimSpace(*r.SKU), p.SKU) {
		p.SKU = strings.TrimSpace(*r.SKU)
		skuChanged = true
	}
	p.UpdatedUTC = now
	return skuChanged
}

type ProductFilter struct {
	Search      string
	MinPrice    *decimal.Decimal
	MaxPrice    *decimal.Decimal
	InStockOnly bool
	Page        int
	PageSize    int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize applies paging defaults and bounds.
func (f ProductFilter) Normalize() ProductFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	f.Search = strings.TrimSpace(f.Search)
	return f
}

type ProductPage struct {
	Items    []*Product
	Total    int
	Page     int
	PageSize int
}
