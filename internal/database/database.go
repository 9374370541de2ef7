package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"selefli/internal/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// DB is the relational store shared by every service.
// Queries are written with `?` placeholders and rebound per driver.
type DB struct {
	*sqlx.DB
	driver string
	logger *zerolog.Logger
}

func NewDB(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		db, err := Open(DriverPostgres, cfg.Postgres.DSN(), logger)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.MaxConnections > 0 {
			db.SetMaxOpenConns(cfg.Postgres.MaxConnections)
		}
		return db, nil
	case DriverSQLite, "":
		return OpenSQLite(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens (and creates) a sqlite database file with foreign keys
// enforced and write transactions taking the lock up front.
func OpenSQLite(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := path + "?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate"
	return Open(DriverSQLite, dsn, logger)
}

func Open(driver, dsn string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	logger.Info().Str("driver", driver).Msg("database initialized")
	return &DB{DB: conn, driver: driver, logger: logger}, nil
}

func (db *DB) Driver() string {
	return db.driver
}

// withTx runs fn inside a transaction, committing only when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// forUpdate appends a row lock on drivers that support it; sqlite already
// holds the database write lock for the whole immediate transaction.
func (db *DB) forUpdate(query string) string {
	if db.driver == DriverPostgres {
		return query + " FOR UPDATE"
	}
	return query
}

// in expands slice arguments and rebinds placeholders for the driver.
func (db *DB) in(query string, args ...any) (string, []any, error) {
	q, a, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return db.Rebind(q), a, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
