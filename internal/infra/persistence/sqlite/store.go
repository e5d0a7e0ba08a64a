// Package sqlite provides the SQLite-backed persistent store. It opens the
// database file with the pure Go modernc driver, applies the embedded schema
// under a cross-process file lock and delegates every transaction to sqlstore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"fieldcore/internal/ids"
	"fieldcore/internal/infra/persistence/schema"
	"fieldcore/internal/infra/persistence/sqlstore"
	"fieldcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath       = "fieldcore.db"
	migrateRetryDelay = 50 * time.Millisecond
	migrateTimeout    = 30 * time.Second
)

// Store persists catalog, records and value rows in a single SQLite file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(path string, gen *ids.Generator) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()
	if err := migrate(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{Store: sqlstore.New(db, sqlstore.SQLite, gen), path: path}, nil
}

// migrate applies the schema while holding path.lock so concurrent processes
// opening the same file do not race on DDL.
func migrate(ctx context.Context, db *sql.DB, path string) error {
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		return fmt.Errorf("configure sqlite: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, migrateRetryDelay)
	if err != nil {
		return fmt.Errorf("lock schema: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock schema: %s is held by another process", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()
	return sqlstore.ApplyDDL(ctx, db, schema.SQLite())
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
