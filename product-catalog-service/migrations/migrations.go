package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/jacobmousa/OrderCatalog/pkg/database"
)

var mysqlStatements = []string{
	`
		CREATE TABLE IF NOT EXISTS products (
			id CHAR(36) PRIMARY KEY,
			sku VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			price DECIMAL(18,2) NOT NULL,
			stock INT NOT NULL,
			created_unix BIGINT NOT NULL,
			updated_unix BIGINT NOT NULL,
			UNIQUE KEY uq_products_sku (sku),
			INDEX idx_products_name (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
	`,
}

// NUMERIC affinity keeps price range filters numeric in SQLite.
var sqliteStatements = []string{
	`
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL COLLATE NOCASE UNIQUE,
			name TEXT NOT NULL,
			price NUMERIC NOT NULL,
			stock INTEGER NOT NULL,
			created_unix INTEGER NOT NULL,
			updated_unix INTEGER NOT NULL
		);
	`,
	`CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);`,
}

// Statements returns the schema DDL for dialect.
func Statements(dialect database.Dialect) []string {
	if dialect == database.SQLite {
		return sqliteStatements
	}
	return mysqlStatements
}

// AutoMigrateProducts creates the products table if it does not exist.
func AutoMigrateProducts(ctx context.Context, db *sql.DB, dialect database.Dialect, retries int) error {
	return database.Migrate(ctx, db, Statements(dialect), retries, time.Second)
}
