package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jacobmousa/OrderCatalog/order-service/internal/entity"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, customer_id, status, total_amount, created_unix, updated_unix, version`

func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	orderQuery := `SELECT ` + orderColumns + ` FROM orders WHERE id = ?`

	order, err := scanOrder(r.db.QueryRowContext(ctx, orderQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	items, err := r.itemsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	order.Items = items[id]
	if order.Items == nil {
		order.Items = []entity.OrderItem{}
	}

	return order, nil
}

// CreateOrder inserts order and its items, assigning ID and the initial
// Version.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orderQuery := `INSERT INTO orders (customer_id, status, total_amount, created_unix, updated_unix, version) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, orderQuery,
		order.CustomerID, string(order.Status), order.TotalAmount,
		order.CreatedUTC.UnixMicro(), order.UpdatedUTC.UnixMicro(), 1)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := insertItems(ctx, tx, orderID, order.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.ID = orderID
	order.Version = 1
	return order, nil
}

// UpdateOrder saves order if nobody else has saved it since it was loaded.
// The stored items are replaced wholesale.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	orderQuery := `UPDATE orders SET customer_id = ?, status = ?, total_amount = ?, updated_unix = ?, version = version + 1 WHERE id = ? AND version = ?`
	res, err := tx.ExecContext(ctx, orderQuery,
		order.CustomerID, string(order.Status), order.TotalAmount,
		order.UpdatedUTC.UnixMicro(), order.ID, order.Version)
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", order.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, order.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrOrderNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, entity.ErrConcurrentUpdate
	}

	deleteQuery := `DELETE FROM order_items WHERE order_id = ?`
	if _, err := tx.ExecContext(ctx, deleteQuery, order.ID); err != nil {
		return nil, fmt.Errorf("delete items of order %d: %w", order.ID, err)
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	order.Version++
	return order, nil
}

// ListOrders returns one page of orders, newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, filter entity.OrderFilter) (*entity.OrderPage, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+whereClause, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	page := &entity.OrderPage{
		Items:    []*entity.Order{},
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}

	offset := (filter.Page - 1) * filter.PageSize
	if offset >= total {
		return page, nil
	}

	listQuery := `SELECT ` + orderColumns + ` FROM orders` + whereClause + ` ORDER BY created_unix DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, listQuery, append(args, filter.PageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := r.itemsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, order := range page.Items {
		order.Items = items[order.ID]
		if order.Items == nil {
			order.Items = []entity.OrderItem{}
		}
	}

	return page, nil
}

func (r *OrderRepository) itemsFor(ctx context.Context, orderIDs []int64) (map[int64][]entity.OrderItem, error) {
	out := make(map[int64][]entity.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orderIDs)), ",")
	args := make([]interface{}, 0, len(orderIDs))
	for _, id := range orderIDs {
		args = append(args, id)
	}

	itemQuery := `SELECT order_id, id, product_id, sku, qty, unit_price FROM order_items WHERE order_id IN (` + placeholders + `) ORDER BY order_id, line_no`
	rows, err := r.db.QueryContext(ctx, itemQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    entity.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ID, &item.ProductID, &item.SKU, &item.Qty, &item.UnitPrice); err != nil {
			return nil, err
		}
		out[orderID] = append(out[orderID], item)
	}

	return out, rows.Err()
}

// insertItems batch-inserts items, numbering lines in slice order.
func insertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []entity.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	itemQuery := `INSERT INTO order_items (id, order_id, line_no, product_id, sku, qty, unit_price) VALUES `

	var values []interface{}
	for i, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
			items[i].ID = item.ID
		}
		itemQuery += "(?, ?, ?, ?, ?, ?, ?),"
		values = append(values, item.ID, orderID, i, item.ProductID, item.SKU, item.Qty, item.UnitPrice)
	}
	itemQuery = strings.TrimSuffix(itemQuery, ",")

	if _, err := tx.ExecContext(ctx, itemQuery, values...); err != nil {
		return fmt.Errorf("insert items of order %d: %w", orderID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		order       entity.Order
		status      string
		createdUnix int64
		updatedUnix int64
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &status, &order.TotalAmount, &createdUnix, &updatedUnix, &order.Version); err != nil {
		return nil, err
	}
	order.Status = entity.OrderStatus(status)
	order.CreatedUTC = time.UnixMicro(createdUnix).UTC()
	order.UpdatedUTC = time.UnixMicro(updatedUnix).UTC()
	return &order, nil
}
