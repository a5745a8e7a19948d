package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11")
	assert.Equal(t, "product:id:6f1c1a9e-3f7a-4b65-9d1e-2f0c4b8a9d11", IDKey(id))
	assert.Equal(t, "product:sku:sku-1", SKUKey(" SKU-1 "))
}

func TestProductCache_Unreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewProductCache(rdb, time.Minute)
	ctx := context.Background()

	product, err := c.Get(ctx, SKUKey("SKU-1"))
	assert.Error(t, err)
	assert.Nil(t, product)

	assert.Error(t, c.Set(ctx, &entity.Product{ID: uuid.New(), SKU: "SKU-1"}))
	assert.Error(t, c.Invalidate(ctx, SKUKey("SKU-1")))
	assert.NoError(t, c.Invalidate(ctx))
}
