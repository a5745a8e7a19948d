package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/jacobmousa/OrderCatalog/pkg/database"
)

var mysqlStatements = []string{
	`
		CREATE TABLE IF NOT EXISTS orders (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			customer_id VARCHAR(200) NOT NULL,
			status VARCHAR(20) NOT NULL,
			total_amount DECIMAL(18,2) NOT NULL,
			created_unix BIGINT NOT NULL,
			updated_unix BIGINT NOT NULL,
			version BIGINT NOT NULL,
			INDEX idx_orders_created (created_unix),
			INDEX idx_orders_status (status)
		);
	`,
	`
		CREATE TABLE IF NOT EXISTS order_items (
			id CHAR(36) PRIMARY KEY,
			order_id BIGINT NOT NULL,
			line_no INT NOT NULL,
			product_id CHAR(36) NOT NULL,
			sku VARCHAR(100) NOT NULL,
			qty INT NOT NULL,
			unit_price DECIMAL(18,2) NOT NULL,
			INDEX idx_order_items_order (order_id, line_no),
			FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE
		);
	`,
}

// SQLite has no DECIMAL; money is kept as canonical decimal text.
var sqliteStatements = []string{
	`
		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			customer_id TEXT NOT NULL,
			status TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			created_unix INTEGER NOT NULL,
			updated_unix INTEGER NOT NULL,
			version INTEGER NOT NULL
		);
	`,
	`CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_unix);`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`,
	`
		CREATE TABLE IF NOT EXISTS order_items (
			id TEXT PRIMARY KEY,
			order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			line_no INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			qty INTEGER NOT NULL,
			unit_price TEXT NOT NULL
		);
	`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id, line_no);`,
}

// Statements returns the schema DDL for dialect.
func Statements(dialect database.Dialect) []string {
	if dialect == database.SQLite {
		return sqliteStatements
	}
	return mysqlStatements
}

// AutoMigrateOrders creates the orders and order_items tables if they do not
// exist.
func AutoMigrateOrders(ctx context.Context, db *sql.DB, dialect database.Dialect, retries int) error {
	return database.Migrate(ctx, db, Statements(dialect), retries, time.Second)
}
