// Package sqlstore implements the domain persistence contract on database/sql.
// The SQLite and Postgres backends share it and differ only in their Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"fieldcore/internal/ids"
	"fieldcore/internal/infra/persistence/schema"
	"fieldcore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// insertChunk bounds the rows of one multi-row INSERT so the statement stays
// under the drivers' bind variable limits.
const insertChunk = 500

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store runs scoped transactions against a database/sql handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
	ids     *ids.Generator
	builder sq.StatementBuilderType
	now     func() time.Time
}

// New wraps db. A nil generator uses node 0.
func New(db *sql.DB, dialect Dialect, gen *ids.Generator) *Store {
	if gen == nil {
		gen = ids.MustNew(0)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		ids:     gen,
		builder: sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		now:     time.Now,
	}
}

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyDDL executes every statement of ddl.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range schema.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// RunInTransaction runs fn inside a database transaction scoped by the
// tenant/app carried in ctx. The transaction commits only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	scope, err := domain.ScopeFrom(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txn{store: s, ctx: ctx, q: tx, scope: scope}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// View runs fn against a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	scope, err := domain.ScopeFrom(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(&txn{store: s, ctx: ctx, q: tx, scope: scope})
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// txn is the scoped view of one database transaction.
type txn struct {
	store *Store
	ctx   context.Context
	q     querier
	scope domain.Scope
}

func (t *txn) Scope() domain.Scope { return t.scope }

// scoped restricts a statement to the transaction's tenant/app and, with
// validOnly, to valid rows. prefix qualifies the columns ("r." etc).
func (t *txn) scoped(prefix string, validOnly bool) sq.Eq {
	eq := sq.Eq{prefix + "tenant_id": t.scope.TenantID, prefix + "app_code": t.scope.AppCode}
	if validOnly {
		eq[prefix+"is_valid"] = true
	}
	return eq
}

func (t *txn) exec(b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build statement: %w", err)
	}
	return t.q.ExecContext(t.ctx, query, t.store.dialect.bindArgs(args)...)
}

func (t *txn) query(b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return t.q.QueryContext(t.ctx, query, t.store.dialect.bindArgs(args)...)
}

// execOne runs an update that must touch a row, reporting ErrNotFound otherwise.
func (t *txn) execOne(b sq.Sqlizer, entity domain.EntityType, id int64) error {
	res, err := t.exec(b)
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", entity, err)
	}
	if n == 0 {
		return domain.ErrNotFound{Entity: entity, ID: fmt.Sprint(id)}
	}
	return nil
}

func (t *txn) stamp(a *domain.Audit) {
	now := t.store.now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.ModifiedAt.IsZero() {
		a.ModifiedAt = a.CreatedAt
	}
}
