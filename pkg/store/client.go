// Package store implements the Knowledge Store Facade (spec.md §4.C):
// idempotent create_or_update and typed get/list operations over the
// relational entities of §3, backed by Postgres.
//
// Grounded on the teacher's pkg/database/client.go connection-pool setup
// (pgx stdlib driver registration, DSN assembly, ping-on-connect,
// embedded-FS migrations via golang-migrate) adapted from ent's driver
// wrapping to a plain *sqlx.DB, since this project does not carry ent's
// code-generated schema forward (see DESIGN.md).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Facade is the Knowledge Store Facade, backed by a process-wide connection
// pool initialized once at startup (§4.C "Connection pooling").
type Facade struct {
	db *sqlx.DB
}

// Config controls pool sizing for Open.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	return c
}

// Open connects to Postgres, applies embedded migrations, and returns a
// ready Facade.
func Open(ctx context.Context, cfg Config) (*Facade, error) {
	cfg = cfg.withDefaults()

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := applyMigrations(sqlDB, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Facade{db: sqlx.NewDb(sqlDB, "pgx")}, nil
}

func applyMigrations(sqlDB *sql.DB, databaseURL string) error {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return err
	}
	srcDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", srcDriver, "pgx", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the underlying connection pool.
func (f *Facade) Close() error {
	return f.db.Close()
}

// HealthCheck returns true when at least one connection can execute a
// trivial round-trip (§4.C).
func (f *Facade) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	return f.db.GetContext(ctx, &one, "SELECT 1") == nil
}
