package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"fieldcore/internal/convert"
	"fieldcore/internal/infra/persistence/schema"
	"fieldcore/pkg/domain"
)

type fieldTypes map[string]domain.DataType

func (f fieldTypes) ResolveFieldType(name string) (domain.DataType, bool) {
	for k, t := range f {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return domain.DataTypeUnknown, false
}

var (
	tenantA = domain.Scope{TenantID: "t1", AppCode: "crm"}
	tenantB = domain.Scope{TenantID: "t2", AppCode: "crm"}
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "fieldcore.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, ApplyDDL(context.Background(), db, schema.SQLite()))
	s := New(db, SQLite, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func typedValue(recordID int64, field domain.FieldDefinition, raw any) domain.Value {
	v := domain.Value{RecordID: recordID, FieldID: field.ID, FieldName: field.Name}
	convert.For(field.DataType).Set(&v, raw)
	return v
}

type fixture struct {
	store  *Store
	fields map[string]domain.FieldDefinition
	types  fieldTypes
	ids    map[string]int64
}

// seed defines Budget/Status/Due and three records in tenantA.
func seed(t *testing.T) fixture {
	t.Helper()
	s := openSQLite(t)
	fx := fixture{store: s, fields: map[string]domain.FieldDefinition{}, types: fieldTypes{}, ids: map[string]int64{}}
	ctx := domain.WithScope(context.Background(), tenantA)
	defs := []domain.FieldDefinition{
		{Name: "Budget", DisplayName: "Budget", DataType: domain.DataTypeNumber, Sort: 1},
		{Name: "Status", DisplayName: "Status", DataType: domain.DataTypeShortText, Sort: 2},
		{Name: "Due", DisplayName: "Due date", DataType: domain.DataTypeTimestamp, Sort: 3},
	}
	rows := map[string]map[string]any{
		"big":    {"Budget": "1500.50", "Status": "Active", "Due": "2024-03-01"},
		"small":  {"Budget": 20, "Status": "Pending", "Due": "2024-01-15T08:00:00Z"},
		"closed": {"Budget": 5000, "Status": "Closed"},
	}
	err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, d := range defs {
			f, err := tx.InsertField(d)
			if err != nil {
				return err
			}
			fx.fields[f.Name] = f
			fx.types[f.Name] = f.DataType
		}
		for _, name := range []string{"big", "small", "closed"} {
			rec, err := tx.InsertRecord(domain.Record{ModuleID: 1, Payload: name})
			if err != nil {
				return err
			}
			fx.ids[name] = rec.ID
			var values []domain.Value
			for field, raw := range rows[name] {
				values = append(values, typedValue(rec.ID, fx.fields[field], raw))
			}
			if _, err := tx.InsertValues(values); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return fx
}

func (fx fixture) query(t *testing.T, scope domain.Scope, cond domain.Condition) []int64 {
	t.Helper()
	var ids []int64
	err := fx.store.View(domain.WithScope(context.Background(), scope), func(tx domain.TransactionView) error {
		var err error
		ids, err = tx.QueryRecordIDs(cond, fx.types, domain.Page{})
		return err
	})
	require.NoError(t, err)
	return ids
}

func TestQueryBudgetScenario(t *testing.T) {
	fx := seed(t)
	got := fx.query(t, tenantA, domain.And(
		domain.Leaf("Budget", domain.OpGreaterOrEqual, 1000),
		domain.Leaf("Status", domain.OpEqual, "Active"),
	))
	assert.Equal(t, []int64{fx.ids["big"]}, got)
}

func TestQueryStatusOrScenario(t *testing.T) {
	fx := seed(t)
	got := fx.query(t, tenantA, domain.And(
		domain.Leaf("Status", domain.OpEqual, "Active"),
		domain.Leaf("Status", domain.OpEqual, "Pending").WithJoin(domain.LogicOr),
	))
	assert.ElementsMatch(t, []int64{fx.ids["big"], fx.ids["small"]}, got)
}

func TestQueryEmptyIdentityMembershipMatchesNothing(t *testing.T) {
	fx := seed(t)
	assert.Empty(t, fx.query(t, tenantA, domain.And(domain.LeafValues("id", domain.OpIn))))
	got := fx.query(t, tenantA, domain.LeafValues("id", domain.OpIn, fx.ids["small"], fx.ids["closed"]))
	assert.Equal(t, []int64{fx.ids["closed"], fx.ids["small"]}, got, "newest first")
}

func TestQueryEmptyConditionReturnsAllNewestFirst(t *testing.T) {
	fx := seed(t)
	got := fx.query(t, tenantA, domain.And())
	assert.Equal(t, []int64{fx.ids["closed"], fx.ids["small"], fx.ids["big"]}, got)
}

func TestQueryTimestampRangeAndPatterns(t *testing.T) {
	fx := seed(t)
	got := fx.query(t, tenantA, domain.LeafValues("Due", domain.OpRange, "2024-02-01", "2024-12-31"))
	assert.Equal(t, []int64{fx.ids["big"]}, got)

	got = fx.query(t, tenantA, domain.Leaf("Due", domain.OpLess, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, []int64{fx.ids["small"]}, got)

	got = fx.query(t, tenantA, domain.Leaf("Status", domain.OpContains, "end"))
	assert.Equal(t, []int64{fx.ids["small"]}, got)
}

func TestQueryIsScoped(t *testing.T) {
	fx := seed(t)
	assert.Empty(t, fx.query(t, tenantB, domain.And()))
	err := fx.store.View(context.Background(), func(domain.TransactionView) error { return nil })
	assert.ErrorIs(t, err, domain.ErrMissingScope)
}

func TestValuesRoundTripThroughColumns(t *testing.T) {
	fx := seed(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	var values []domain.Value
	require.NoError(t, fx.store.View(ctx, func(tx domain.TransactionView) error {
		var err error
		values, err = tx.ValuesByRecordID(fx.ids["big"])
		return err
	}))
	require.Len(t, values, 3)
	byName := map[string]any{}
	for i := range values {
		v := values[i]
		assert.Len(t, v.PopulatedColumns(), 1, v.FieldName)
		byName[v.FieldName] = convert.For(v.DataType).Get(&v)
	}
	assert.Equal(t, 1500.5, byName["Budget"])
	assert.Equal(t, "Active", byName["Status"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), byName["Due"])
}

func TestUpdateValuesRewritesColumns(t *testing.T) {
	fx := seed(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	err := fx.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		values, err := tx.ValuesByRecordID(fx.ids["small"])
		if err != nil {
			return err
		}
		for i := range values {
			if values[i].FieldName == "Status" {
				convert.For(domain.DataTypeLongText).Set(&values[i], "Reviewed")
			}
		}
		return tx.UpdateValues(values)
	})
	require.NoError(t, err)
	got := fx.query(t, tenantA, domain.Leaf("Status", domain.OpEqual, "Reviewed").WithType(domain.DataTypeLongText))
	assert.Equal(t, []int64{fx.ids["small"]}, got)
	assert.Empty(t, fx.query(t, tenantA, domain.Leaf("Status", domain.OpEqual, "Pending")))
}

func TestInvalidateRecordsHidesThem(t *testing.T) {
	fx := seed(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	err := fx.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := tx.InvalidateRecords([]int64{fx.ids["closed"]}, domain.Audit{ModifiedBy: "tester"}); err != nil {
			return err
		}
		return tx.InvalidateValuesByRecordIDs([]int64{fx.ids["closed"]})
	})
	require.NoError(t, err)
	assert.NotContains(t, fx.query(t, tenantA, domain.And()), fx.ids["closed"])
	require.NoError(t, fx.store.View(ctx, func(tx domain.TransactionView) error {
		_, ok, err := tx.GetRecord(fx.ids["closed"])
		assert.False(t, ok)
		values, verr := tx.ValuesByRecordID(fx.ids["closed"])
		assert.Empty(t, values)
		return errors.Join(err, verr)
	}))
}

func TestFailedTransactionRollsBack(t *testing.T) {
	s := openSQLite(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.InsertField(domain.FieldDefinition{Name: "Budget", DataType: domain.DataTypeNumber}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.View(ctx, func(tx domain.TransactionView) error {
		fields, err := tx.ListFields()
		assert.Empty(t, fields)
		return err
	}))
}

func TestUpdateMissingRowIsNotFound(t *testing.T) {
	s := openSQLite(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.UpdateRecord(domain.Record{ID: 404})
	})
	var nf domain.ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, domain.EntityRecord, nf.Entity)
}

func TestGroupsPersistFieldOrder(t *testing.T) {
	s := openSQLite(t)
	ctx := domain.WithScope(context.Background(), tenantA)
	var id int64
	require.NoError(t, s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		g, err := tx.InsertGroup(domain.FieldGroup{Name: "Basics", FieldIDs: []int64{3, 1, 2}})
		id = g.ID
		return err
	}))
	require.NoError(t, s.View(ctx, func(tx domain.TransactionView) error {
		groups, err := tx.ListGroups()
		require.Len(t, groups, 1)
		assert.Equal(t, id, groups[0].ID)
		assert.Equal(t, []int64{3, 1, 2}, groups[0].FieldIDs)
		return err
	}))
}
