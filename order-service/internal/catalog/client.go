// Package catalog resolves products against the catalog service. Lookups never
// return errors: an unknown product and an unreachable catalog both come back
// as "not found", with the cause logged.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/jacobmousa/OrderCatalog/pkg/correlation"
)

// Product is the catalog's answer to a lookup. It is never persisted.
type Product struct {
	ID    uuid.UUID       `json:"id"`
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the catalog at baseURL. Every request carries
// the caller's correlation token and is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: correlation.NewTransport(nil),
		},
	}
}

// ProductByID looks a product up by identifier.
func (c *Client) ProductByID(ctx context.Context, id uuid.UUID) (*Product, bool) {
	return c.get(ctx, "/api/products/"+id.String())
}

// ProductBySKU looks a product up by SKU.
func (c *Client) ProductBySKU(ctx context.Context, sku string) (*Product, bool) {
	return c.get(ctx, "/api/products/sku/"+url.PathEscape(sku))
}

func (c *Client) get(ctx context.Context, path string) (*Product, bool) {
	logger := zerolog.Ctx(ctx)

	product, err := c.fetch(ctx, path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("catalog lookup failed")
		return nil, false
	}
	if product == nil {
		logger.Info().Str("path", path).Msg("product not found in catalog")
		return nil, false
	}
	return product, true
}

// fetch returns (nil, nil) for a 404 and an error for everything else that is
// not a well-formed product.
func (c *Client) fetch(ctx context.Context, path string) (*Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	if product.ID == uuid.Nil || product.SKU == "" {
		return nil, fmt.Errorf("malformed product payload")
	}

	return &product, nil
}
