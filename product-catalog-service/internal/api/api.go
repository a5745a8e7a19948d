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
	"github.com/shopspring/decimal"

	"github.com/jacobmousa/OrderCatalog/pkg/httpx"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

type ProductService interface {
	CreateProduct(ctx context.Context, req entity.CreateProductRequest) (*entity.Product, error)
	ListProducts(ctx context.Context, filter entity.ProductFilter) (*entity.ProductPage, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*entity.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*entity.Product, error)
	GetProductStock(ctx context.Context, id uuid.UUID) (int, error)
	PatchProduct(ctx context.Context, id uuid.UUID, req entity.PatchProductRequest) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	PreWarmCache(ctx context.Context) (int, error)
}

type ProductHandler struct {
	productService ProductService
}

// NewProductHandler creates a new instance of ProductHandler
func NewProductHandler(productService ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// RegisterRoutes mounts the product API under /api/products.
func RegisterRoutes(e *echo.Echo, h *ProductHandler) {
	g := e.Group("/api/products")
	g.POST("", h.CreateProduct)
	g.GET("", h.ListProducts)
	g.POST("/cache/warmup", h.PreWarmupCache)
	g.GET("/sku/:sku", h.GetProductBySKU)
	g.GET("/:id", h.GetProduct)
	g.GET("/:id/stock", h.GetProductStock)
	g.PATCH("/:id", h.PatchProduct)
	g.DELETE("/:id", h.DeleteProduct)
}

type createProductRequest struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type patchProductRequest struct {
	Price *decimal.Decimal `json:"price"`
	Stock *int             `json:"stock"`
	Name  *string          `json:"name"`
	SKU   *string          `json:"sku"`
}

type productResponse struct {
	ID         uuid.UUID   `json:"id"`
	SKU        string      `json:"sku"`
	Name       string      `json:"name"`
	Price      json.Number `json:"price"`
	Stock      int         `json:"stock"`
	CreatedUTC time.Time   `json:"createdUtc"`
	UpdatedUTC time.Time   `json:"updatedUtc"`
}

type productPageResponse struct {
	Items    []productResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

func toProductResponse(p *entity.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		SKU:        p.SKU,
		Name:       p.Name,
		Price:      json.Number(p.Price.StringFixed(2)),
		Stock:      p.Stock,
		CreatedUTC: p.CreatedUTC,
		UpdatedUTC: p.UpdatedUTC,
	}
}

// CreateProduct --> POST /api/products
func (ph *ProductHandler) CreateProduct(c echo.Context) error {
	var req createProductRequest
	if err := c.Bind(&req); err != nil {
		return httpx.WriteProblem(c, http.StatusBadRequest, "Invalid request payload")
	}

	product, err := ph.productService.CreateProduct(c.Request().Context(), entity.CreateProductRequest{
		SKU:   req.SKU,
		Name:  req.Name,
		Price: req.Price,
		Stock: req.Stock,
	})
	if err != nil {
		return writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/products/"+product.ID.String())
	return c.JSON(http.StatusCreated, toProductResponse(product))
}

// ListProducts --> GET /api/products?search=&minPrice=&maxPrice=&inStockOnly=&page=&pageSize=
func (ph *ProductHandler) ListProducts(c echo.Context) error {
	filter := entity.ProductFilter{Search: c.QueryParam("search")}

	errs := entity.ValidationErrors{}
	filter.MinPrice = priceParam(c, "minPrice", errs)
	filter.MaxPrice = priceParam(c, "maxPrice", errs)
	if raw := c.QueryParam("inStockOnly"); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			errs.Add("inStockOnly", "The inStockOnly field must be true or false.")
		}
		filter.InStockOnly = inStock
	}
	if err := errs.Err(); err != nil {
		return writeError(c, err)
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("pageSize"))

	page, err := ph.productService.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}

	resp := productPageResponse{
		Items:    make([]productResponse, 0, len(page.Items)),
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	}
	for _, p := range page.Items {
		resp.Items = append(resp.Items, toProductResponse(p))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetProduct --> GET /api/products/:id
func (ph *ProductHandler) GetProduct(c echo.Context) error {
	id, ok := productID(c)
	if !ok {
		return writeError(c, entity.ErrProductNotFound)
	}

	product, err := ph.productService.GetProduct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

// GetProductBySKU --> GET /api/products/sku/:sku
func (ph *ProductHandler) GetProductBySKU(c echo.Context) error {
	product, err := ph.productService.GetProductBySKU(c.Request().Context(), c.Param("sku"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

// GetProductStock gets the stock of a product --> GET /api/products/:id/stock
func (ph *ProductHandler) GetProductStock(c echo.Context) error {
	id, ok := productID(c)
	if !ok {
		return writeError(c, entity.ErrProductNotFound)
	}

	stock, err := ph.productService.GetProductStock(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"stock": stock})
}

// PatchProduct --> PATCH /api/products/:id
func (ph *ProductHandler) PatchProduct(c echo.Context) error {
	id, ok := productID(c)
	if !ok {
		return writeError(c, entity.ErrProductNotFound)
	}

	var req patchProductRequest
	if err := c.Bind(&req); err != nil {
		return httpx.WriteProblem(c, http.StatusBadRequest, "Invalid request payload")
	}

	product, err := ph.productService.PatchProduct(c.Request().Context(), id, entity.PatchProductRequest{
		Price: req.Price,
		Stock: req.Stock,
		Name:  req.Name,
		SKU:   req.SKU,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

// DeleteProduct --> DELETE /api/products/:id
func (ph *ProductHandler) DeleteProduct(c echo.Context) error {
	id, ok := productID(c)
	if !ok {
		return writeError(c, entity.ErrProductNotFound)
	}

	if err := ph.productService.DeleteProduct(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PreWarmupCache pre-warms the cache with product data --> POST /api/products/cache/warmup
func (ph *ProductHandler) PreWarmupCache(c echo.Context) error {
	warmed, err := ph.productService.PreWarmCache(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"warmed": warmed})
}

// productID reads the :id path parameter. Malformed ids are reported as not
// found.
func productID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func priceParam(c echo.Context, name string, errs entity.ValidationErrors) *decimal.Decimal {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		errs.Add(name, "The "+name+" field must be a number.")
		return nil
	}
	return &d
}

func writeError(c echo.Context, err error) error {
	var verrs entity.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return httpx.WriteValidationProblem(c, verrs)
	case errors.Is(err, entity.ErrProductNotFound):
		return httpx.WriteProblem(c, http.StatusNotFound, "Product not found.")
	case errors.Is(err, entity.ErrInsufficientStock):
		return httpx.WriteProblem(c, http.StatusConflict, "Insufficient stock.")
	default:
		return httpx.WriteInternalError(c, err)
	}
}
