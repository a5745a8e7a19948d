package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

// ProductCache stores products as JSON under an id key and a sku key.
type ProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewProductCache(rdb redis.Cmdable, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func IDKey(id uuid.UUID) string {
	return fmt.Sprintf("product:id:%s", id)
}

// SKUKey folds case so lookups match the store's case-insensitive SKUs.
func SKUKey(sku string) string {
	return fmt.Sprintf("product:sku:%s", strings.ToLower(strings.TrimSpace(sku)))
}

// Get returns nil, nil on a miss.
func (c *ProductCache) Get(ctx context.Context, key string) (*entity.Product, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var product entity.Product
	if err := json.Unmarshal(raw, &product); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return &product, nil
}

// Set writes product under both of its keys.
func (c *ProductCache) Set(ctx context.Context, product *entity.Product) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return err
	}

	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, IDKey(product.ID), raw, c.ttl)
		pipe.Set(ctx, SKUKey(product.SKU), raw, c.ttl)
		return nil
	})
	return err
}

func (c *ProductCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
