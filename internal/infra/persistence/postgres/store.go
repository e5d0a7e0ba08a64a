// Package postgres provides the Postgres-backed persistent store. It applies
// the embedded schema on startup and runs every transaction through sqlstore
// with dollar placeholders and ILIKE matching.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"fieldcore/internal/ids"
	"fieldcore/internal/infra/persistence/schema"
	"fieldcore/internal/infra/persistence/sqlstore"
	"fieldcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/fieldcore?sslmode=disable"

	// migrationLockKey is the advisory lock held while the schema is applied,
	// so concurrent processes starting against one database migrate once.
	migrationLockKey int64 = 0x6669656c64636f72
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Pool bounds the connection pool. Zero fields keep the database/sql defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	if p.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}
	if p.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.ConnMaxLifetime)
	}
}

// Option customises NewStore.
type Option func(*options)

type options struct {
	pool    Pool
	timeout time.Duration
}

// WithPool sets the connection pool limits.
func WithPool(p Pool) Option { return func(o *options) { o.pool = p } }

// WithStartupTimeout bounds the ping and schema migration. Default 30s.
func WithStartupTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Store persists catalog, records and value rows in Postgres.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store for dsn (defaultDSN when empty),
// migrates the schema under an advisory lock and returns the store.
func NewStore(dsn string, gen *ids.Generator, opts ...Option) (*Store, error) {
	o := options{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	o.pool.apply(db)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, sqlstore.Postgres, gen)}, nil
}

// migrate applies the schema on one pinned connection. Session advisory
// locks belong to a connection, so lock, DDL and unlock must share it.
func migrate(ctx context.Context, db *sql.DB) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	defer func() {
		if _, uerr := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); uerr != nil && err == nil {
			err = fmt.Errorf("unlock schema: %w", uerr)
		}
	}()
	return sqlstore.ApplyDDL(ctx, conn, schema.Postgres())
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
