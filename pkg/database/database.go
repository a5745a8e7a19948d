package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// drivers
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend. Its value doubles as the database/sql
// driver name.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported db driver %q", s)
	}
}

// Options control Connect.
type Options struct {
	Dialect Dialect
	DSN     string
	Retries int
	Delay   time.Duration
}

// Connect opens the database and pings it, retrying a bounded number of times
// while the server is still coming up.
func Connect(ctx context.Context, opts Options, logger zerolog.Logger) (*sql.DB, error) {
	retries := opts.Retries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		db, err := open(opts.Dialect, opts.DSN)
		if err == nil {
			err = db.PingContext(ctx)
			if err == nil {
				logger.Info().Str("driver", string(opts.Dialect)).Int("attempt", i+1).Msg("database connected")
				return db, nil
			}
			_ = db.Close()
		}
		lastErr = err

		logger.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", retries).Msg("database connect failed")
		if i == retries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}

	return nil, fmt.Errorf("connect %s after %d attempts: %w", opts.Dialect, retries, lastErr)
}

func open(dialect Dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case SQLite:
		return OpenSQLite(dsn)
	default:
		return sql.Open(string(MySQL), dsn)
	}
}

// OpenSQLite opens a SQLite database with foreign keys enforced and a busy
// timeout. The pool is limited to one connection: SQLite has a single writer and
// an in-memory database only exists on the connection that created it.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"

	db, err := sql.Open(string(SQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate runs DDL statements in order, retrying each failed statement a few
// times before giving up.
func Migrate(ctx context.Context, db *sql.DB, statements []string, retries int, delay time.Duration) error {
	for _, stmt := range statements {
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if _, err = db.ExecContext(ctx, stmt); err == nil {
				break
			}
			if attempt < retries {
				time.Sleep(delay)
			}
		}
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
