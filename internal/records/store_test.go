package records

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcore/internal/catalog"
	"fieldcore/internal/infra/persistence/memory"
	"fieldcore/internal/infra/persistence/sqlite"
	"fieldcore/pkg/domain"
)

var testScope = domain.Scope{TenantID: "t1", AppCode: "crm"}

type backend struct {
	name string
	open func(t *testing.T) domain.PersistentStore
}

var backends = []backend{
	{"memory", func(*testing.T) domain.PersistentStore { return memory.NewStore(nil) }},
	{"sqlite", func(t *testing.T) domain.PersistentStore {
		s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "records.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

type harness struct {
	records *Store
	catalog *catalog.Catalog
	ctx     context.Context
}

func setup(t *testing.T, b backend) harness {
	t.Helper()
	store := b.open(t)
	cat, err := catalog.New(store, 0)
	require.NoError(t, err)
	ctx := domain.WithActor(domain.WithScope(context.Background(), testScope), domain.Actor{UserID: 3, UserName: "grace"})
	for _, def := range []domain.FieldDefinition{
		{Name: "Budget", DataType: domain.DataTypeNumber, Sort: 2},
		{Name: "Status", DataType: domain.DataTypeShortText, Sort: 1},
		{Name: "Due", DisplayName: "Due date", DataType: domain.DataTypeTimestamp, Sort: 3},
		{Name: "Tags", DataType: domain.DataTypeStringList, Sort: 4},
	} {
		_, err := cat.DefineField(ctx, def)
		require.NoError(t, err)
	}
	return harness{records: NewStore(store, cat), catalog: cat, ctx: ctx}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h harness)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) { fn(t, setup(t, b)) })
	}
}

func TestCreateAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		rec := FromMap(0, map[string]any{"budget": "1500.50", "Status": "Active", "Due": "2024-03-01"})
		rec.Payload = `{"source":"import"}`
		created, err := h.records.Create(h.ctx, rec)
		require.NoError(t, err)
		require.NotZero(t, created.ID)
		assert.Equal(t, "grace", created.CreatedBy)

		got, ok, err := h.records.Get(h.ctx, created.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"source":"import"}`, got.Payload)
		require.Len(t, got.Items, 3)
		assert.Equal(t, []string{"Status", "Budget", "Due"},
			[]string{got.Items[0].FieldName, got.Items[1].FieldName, got.Items[2].FieldName})
		assert.Equal(t, 1500.5, got.Map()["Budget"])
		due, _ := got.Item("due")
		assert.Equal(t, "Due date", due.DisplayName)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), due.Value)

		_, ok, err = h.records.Get(h.ctx, created.ID+1)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCreateRejectsUnknownField(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		_, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Budget": 1, "Colour": "red"}))
		var unknown domain.ErrUnknownField
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "Colour", unknown.Name)
		ids, err := h.records.Query(h.ctx, domain.And(), domain.Page{})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestUpdateFieldsDiffsAndIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		created, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Budget": 10, "Status": "Pending"}))
		require.NoError(t, err)

		patch := map[string]any{"Status": "Active", "Tags": []string{"vip"}, "id": created.ID}
		first, err := h.records.UpdateFields(h.ctx, created.ID, patch)
		require.NoError(t, err)
		second, err := h.records.UpdateFields(h.ctx, created.ID, patch)
		require.NoError(t, err)
		assert.Equal(t, first.Map(), second.Map())

		got, _, err := h.records.Get(h.ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 3, "no duplicate value rows")
		m := got.Map()
		assert.Equal(t, float64(10), m["Budget"], "fields absent from the patch are untouched")
		assert.Equal(t, "Active", m["Status"])
		assert.JSONEq(t, `["vip"]`, string(m["Tags"].(json.RawMessage)))
	})
}

func TestUpdateRewritesPayloadAndRetypedValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		created, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "Pending"}))
		require.NoError(t, err)

		snap, err := h.catalog.Snapshot(h.ctx)
		require.NoError(t, err)
		status, _ := snap.Field("Status")
		_, err = h.catalog.UpdateField(h.ctx, domain.FieldDefinition{ID: status.ID, DataType: domain.DataTypeLongText})
		require.NoError(t, err)

		rec := FromMap(created.ID, map[string]any{"Status": "Pending"})
		rec.Payload = "v2"
		updated, err := h.records.Update(h.ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, "v2", updated.Payload)
		item, ok := updated.Item("Status")
		require.True(t, ok)
		assert.Equal(t, domain.DataTypeLongText, item.DataType)

		ids, err := h.records.Query(h.ctx, domain.Leaf("Status", domain.OpEqual, "Pending"), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{created.ID}, ids)

		_, err = h.records.Update(h.ctx, FromMap(created.ID+99, map[string]any{"Status": "x"}))
		assert.True(t, IsNotFound(err))
	})
}

func TestDeleteCascadesToValues(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		a, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "Active"}))
		require.NoError(t, err)
		b, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "Active"}))
		require.NoError(t, err)
		c, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "Active"}))
		require.NoError(t, err)

		require.NoError(t, h.records.Delete(h.ctx, a.ID))
		assert.True(t, IsNotFound(h.records.Delete(h.ctx, a.ID)))
		require.NoError(t, h.records.DeleteMany(h.ctx, []int64{b.ID, 424242}))

		ids, err := h.records.Query(h.ctx, domain.Leaf("Status", domain.OpEqual, "Active"), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{c.ID}, ids)
		recs, err := h.records.GetMany(h.ctx, []int64{a.ID, b.ID, c.ID})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, c.ID, recs[0].ID)
	})
}

func TestQueryRecordsBudgetScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		big, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Budget": "1500.50", "Status": "Active"}))
		require.NoError(t, err)
		_, err = h.records.Create(h.ctx, FromMap(0, map[string]any{"Budget": 20, "Status": "Active"}))
		require.NoError(t, err)
		_, err = h.records.Create(h.ctx, FromMap(0, map[string]any{"Budget": 5000, "Status": "Closed"}))
		require.NoError(t, err)

		recs, err := h.records.QueryRecords(h.ctx, domain.And(
			domain.Leaf("Budget", domain.OpGreaterOrEqual, 1000),
			domain.Leaf("Status", domain.OpEqual, "Active"),
		), domain.Page{})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, big.ID, recs[0].ID)

		ids, err := h.records.Query(h.ctx, domain.LeafValues(domain.IdentityField, domain.OpIn), domain.Page{})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestQueryMatchesFieldNamesIgnoringCase(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		created, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"budget": "1500.50", "STATUS": "Active"}))
		require.NoError(t, err)

		ids, err := h.records.Query(h.ctx, domain.Leaf("budget", domain.OpGreaterOrEqual, 1000), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{created.ID}, ids)

		ids, err = h.records.Query(h.ctx, domain.And(
			domain.Leaf("BUDGET", domain.OpLess, 2000),
			domain.Leaf("status", domain.OpStartsWith, "act"),
		), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{created.ID}, ids)
	})
}

func TestQueryPatternWildcardsMatchLiterally(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h harness) {
		plain, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "500 units"}))
		require.NoError(t, err)
		discount, err := h.records.Create(h.ctx, FromMap(0, map[string]any{"Status": "50% off_peak"}))
		require.NoError(t, err)

		ids, err := h.records.Query(h.ctx, domain.Leaf("Status", domain.OpContains, "50%"), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{discount.ID}, ids)

		ids, err = h.records.Query(h.ctx, domain.LeafValues("Status", domain.OpContains, "f_p"), domain.Page{})
		require.NoError(t, err)
		assert.Equal(t, []int64{discount.ID}, ids)

		ids, err = h.records.Query(h.ctx, domain.Leaf("Status", domain.OpContains, "0_u"), domain.Page{})
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = h.records.Query(h.ctx, domain.Leaf("Status", domain.OpStartsWith, "50"), domain.Page{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{plain.ID, discount.ID}, ids)
	})
}
