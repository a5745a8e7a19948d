package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/cache"
	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

type ProductRepository interface {
	GetProductByID(ctx context.Context, id uuid.UUID) (*entity.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*entity.Product, error)
	SKUExists(ctx context.Context, sku string, excludeID uuid.UUID) (bool, error)
	CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ReserveStock(ctx context.Context, id uuid.UUID, qty int, now time.Time) error
	GetProducts(ctx context.Context) ([]*entity.Product, error)
	ListProducts(ctx context.Context, filter entity.ProductFilter) (*entity.ProductPage, error)
}

type ProductCache interface {
	Get(ctx context.Context, key string) (*entity.Product, error)
	Set(ctx context.Context, product *entity.Product) error
	Invalidate(ctx context.Context, keys ...string) error
}

type ProductService struct {
	productRepo ProductRepository
	cache       ProductCache
	now         func() time.Time
}

// NewProductService creates a new instance of ProductService. A nil cache
// sends every read to the repository.
func NewProductService(productRepo ProductRepository, productCache ProductCache) *ProductService {
	return &ProductService{
		productRepo: productRepo,
		cache:       productCache,
		now:         entity.Now,
	}
}

// CreateProduct validates req and stores a new product with a fresh id.
func (s *ProductService) CreateProduct(ctx context.Context, req entity.CreateProductRequest) (*entity.Product, error) {
	if err := req.Validate().Err(); err != nil {
		return nil, err
	}

	sku := strings.TrimSpace(req.SKU)
	exists, err := s.productRepo.SKUExists(ctx, sku, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, entity.ValidationErrors{"sku": {"SKU already exists."}}
	}

	now := s.now()
	product, err := s.productRepo.CreateProduct(ctx, &entity.Product{
		ID:         uuid.New(),
		SKU:        sku,
		Name:       strings.TrimSpace(req.Name),
		Price:      req.Price,
		Stock:      req.Stock,
		CreatedUTC: now,
		UpdatedUTC: now,
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("product_id", product.ID.String()).Str("sku", product.SKU).Msg("product created")
	return product, nil
}

func (s *ProductService) ListProducts(ctx context.Context, filter entity.ProductFilter) (*entity.ProductPage, error) {
	return s.productRepo.ListProducts(ctx, filter.Normalize())
}

// GetProduct reads through the cache.
func (s *ProductService) GetProduct(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	return s.cached(ctx, cache.IDKey(id), func() (*entity.Product, error) {
		return s.productRepo.GetProductByID(ctx, id)
	})
}

// GetProductBySKU reads through the cache.
func (s *ProductService) GetProductBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, entity.ErrProductNotFound
	}
	return s.cached(ctx, cache.SKUKey(sku), func() (*entity.Product, error) {
		return s.productRepo.GetProductBySKU(ctx, sku)
	})
}

// GetProductStock retrieves the stock for a product.
func (s *ProductService) GetProductStock(ctx context.Context, id uuid.UUID) (int, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return 0, err
	}
	return product.Stock, nil
}

// PatchProduct applies the supplied fields. A new SKU must not belong to
// another product.
func (s *ProductService) PatchProduct(ctx context.Context, id uuid.UUID, req entity.PatchProductRequest) (*entity.Product, error) {
	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	errs := req.Validate()
	if req.SKU != nil {
		newSKU := strings.TrimSpace(*req.SKU)
		if newSKU != "" && !strings.EqualFold(newSKU, product.SKU) {
			exists, err := s.productRepo.SKUExists(ctx, newSKU, product.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				errs.Add("sku", "SKU already exists.")
			}
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	oldSKU := product.SKU
	req.Apply(product, s.now())

	updated, err := s.productRepo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, cache.IDKey(id), cache.SKUKey(oldSKU), cache.SKUKey(updated.SKU))
	return updated, nil
}

func (s *ProductService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.productRepo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, cache.IDKey(id), cache.SKUKey(product.SKU))
	zerolog.Ctx(ctx).Info().Str("product_id", id.String()).Msg("product deleted")
	return nil
}

// ReserveProductStock takes qty units of stock for a confirmed order.
func (s *ProductService) ReserveProductStock(ctx context.Context, id uuid.UUID, qty int) error {
	if err := s.productRepo.ReserveStock(ctx, id, qty, s.now()); err != nil {
		return err
	}

	product, err := s.productRepo.GetProductByID(ctx, id)
	if err != nil {
		s.invalidate(ctx, cache.IDKey(id))
		return nil
	}
	s.store(ctx, product)
	return nil
}

// PreWarmCache loads every product into the cache and returns how many were
// written.
func (s *ProductService) PreWarmCache(ctx context.Context) (int, error) {
	if s.cache == nil {
		return 0, nil
	}

	products, err := s.productRepo.GetProducts(ctx)
	if err != nil {
		return 0, err
	}

	warmed := 0
	for _, product := range products {
		if err := s.cache.Set(ctx, product); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("product_id", product.ID.String()).Msg("error setting product in cache")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// cached serves key from the cache, falling back to load on a miss. Cache
// failures are logged and treated as misses.
func (s *ProductService) cached(ctx context.Context, key string, load func() (*entity.Product, error)) (*entity.Product, error) {
	if s.cache != nil {
		product, err := s.cache.Get(ctx, key)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("error getting product from cache")
		} else if product != nil {
			return product, nil
		}
	}

	product, err := load()
	if err != nil {
		return nil, err
	}
	s.store(ctx, product)
	return product, nil
}

func (s *ProductService) store(ctx context.Context, product *entity.Product) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, product); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("product_id", product.ID.String()).Msg("error setting product in cache")
	}
}

func (s *ProductService) invalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Strs("keys", keys).Msg("error invalidating product cache")
	}
}
