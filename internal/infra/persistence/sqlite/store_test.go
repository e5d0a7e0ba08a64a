package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"fieldcore/internal/infra/persistence/schema"
	"fieldcore/pkg/domain"
)

var testScope = domain.Scope{TenantID: "t1", AppCode: "crm"}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	ctx := domain.WithScope(context.Background(), testScope)
	if err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertField(domain.FieldDefinition{Name: "Budget", DataType: domain.DataTypeNumber})
		return err
	}); err != nil {
		t.Fatalf("insert field: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file missing: %v", err)
	}

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	var fields []domain.FieldDefinition
	if err := reloaded.View(ctx, func(tx domain.TransactionView) error {
		var err error
		fields, err = tx.ListFields()
		return err
	}); err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "Budget" {
		t.Fatalf("expected Budget after reload, got %+v", fields)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreAppliesSchema(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	for _, table := range schema.Tables {
		var name string
		if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name); err != nil {
			t.Fatalf("lookup %s table: %v", table, err)
		}
	}
}

func TestSQLiteStoreRequiresScope(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	err = store.RunInTransaction(context.Background(), func(domain.Transaction) error { return nil })
	if err != domain.ErrMissingScope {
		t.Fatalf("expected ErrMissingScope, got %v", err)
	}
}
