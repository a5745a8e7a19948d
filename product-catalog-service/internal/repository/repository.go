package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jacobmousa/OrderCatalog/product-catalog-service/internal/entity"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db}
}

const productColumns = `id, sku, name, price, stock, created_unix, updated_unix`

func (r *ProductRepository) GetProductByID(ctx context.Context, id uuid.UUID) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetProductBySKU matches sku case-insensitively.
func (r *ProductRepository) GetProductBySKU(ctx context.Context, sku string) (*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE LOWER(sku) = LOWER(?)`
	return r.getOne(ctx, query, sku)
}

func (r *ProductRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.Product, error) {
	product, err := scanProduct(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

// SKUExists reports whether another product already uses sku.
func (r *ProductRepository) SKUExists(ctx context.Context, sku string, excludeID uuid.UUID) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM products WHERE LOWER(sku) = LOWER(?) AND id <> ?`
	if err := r.db.QueryRowContext(ctx, query, sku, excludeID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ProductRepository) CreateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `INSERT INTO products (id, sku, name, price, stock, created_unix, updated_unix) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		product.ID, product.SKU, product.Name, product.Price, product.Stock,
		product.CreatedUTC.UnixMicro(), product.UpdatedUTC.UnixMicro())
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return product, nil
}

func (r *ProductRepository) UpdateProduct(ctx context.Context, product *entity.Product) (*entity.Product, error) {
	query := `UPDATE products SET sku = ?, name = ?, price = ?, stock = ?, updated_unix = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		product.SKU, product.Name, product.Price, product.Stock, product.UpdatedUTC.UnixMicro(), product.ID)
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", product.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, entity.ErrProductNotFound
	}
	return product, nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM products WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrProductNotFound
	}
	return nil
}

// ReserveStock takes qty units off the product's stock, refusing to go below
// zero.
func (r *ProductRepository) ReserveStock(ctx context.Context, id uuid.UUID, qty int, now time.Time) error {
	query := `UPDATE products SET stock = stock - ?, updated_unix = ? WHERE id = ? AND stock >= ?`
	res, err := r.db.ExecContext(ctx, query, qty, now.UnixMicro(), id, qty)
	if err != nil {
		return fmt.Errorf("reserve stock of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := r.GetProductByID(ctx, id); err != nil {
		return err
	}
	return entity.ErrInsufficientStock
}

// GetProducts returns every product ordered by name.
func (r *ProductRepository) GetProducts(ctx context.Context) ([]*entity.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanProducts(rows)
}

// ListProducts returns one page of products ordered by name.
func (r *ProductRepository) ListProducts(ctx context.Context, filter entity.ProductFilter) (*entity.ProductPage, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if filter.Search != "" {
		where = append(where, "(name LIKE ? OR sku LIKE ?)")
		term := "%" + filter.Search + "%"
		args = append(args, term, term)
	}
	if filter.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if filter.InStockOnly {
		where = append(where, "stock > 0")
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	page := &entity.ProductPage{
		Items:    []*entity.Product{},
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	offset := (filter.Page - 1) * filter.PageSize
	if offset >= total {
		return page, nil
	}

	query := `SELECT ` + productColumns + ` FROM products` + whereClause + ` ORDER BY name, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	page.Items, err = scanProducts(rows)
	if err != nil {
		return nil, err
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*entity.Product, error) {
	var (
		product     entity.Product
		createdUnix int64
		updatedUnix int64
	)
	if err := row.Scan(&product.ID, &product.SKU, &product.Name, &product.Price, &product.Stock, &createdUnix, &updatedUnix); err != nil {
		return nil, err
	}
	product.CreatedUTC = time.UnixMicro(createdUnix).UTC()
	product.UpdatedUTC = time.UnixMicro(updatedUnix).UTC()
	return &product, nil
}

func scanProducts(rows *sql.Rows) ([]*entity.Product, error) {
	products := []*entity.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}
