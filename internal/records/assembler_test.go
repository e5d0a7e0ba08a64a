package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

type lookup map[int64]domain.FieldDefinition

func (l lookup) FieldByID(id int64) (domain.FieldDefinition, bool) {
	f, ok := l[id]
	return f, ok
}

func value(recordID, fieldID int64, name string, t domain.DataType, raw any) domain.Value {
	v := domain.Value{RecordID: recordID, FieldID: fieldID, FieldName: name}
	convert.For(t).Set(&v, raw)
	return v
}

func TestAssembleOrdersAndFallsBack(t *testing.T) {
	fields := lookup{
		1: {ID: 1, Name: "Budget", DisplayName: "Budget (EUR)", Sort: 2, IsDisplayField: true},
		2: {ID: 2, Name: "Status", DisplayName: "Status", Sort: 1, IsHidden: true},
		4: {ID: 4, Name: "Alpha", DisplayName: "Alpha", Sort: 2},
	}
	values := []domain.Value{
		value(9, 1, "Budget", domain.DataTypeNumber, 12),
		value(9, 3, "Legacy", domain.DataTypeShortText, "old"),
		value(9, 2, "Status", domain.DataTypeShortText, "Active"),
		value(9, 4, "Alpha", domain.DataTypeBoolean, "yes"),
		value(8, 2, "Status", domain.DataTypeShortText, "other record"),
	}
	rec := Assemble(domain.Record{ID: 9}, values, fields)
	require.Len(t, rec.Items, 4)
	names := []string{}
	for _, item := range rec.Items {
		names = append(names, item.FieldName)
	}
	assert.Equal(t, []string{"Legacy", "Status", "Alpha", "Budget"}, names)
	legacy, _ := rec.Item("legacy")
	assert.Equal(t, "Legacy", legacy.DisplayName)
	budget, _ := rec.Item("Budget")
	assert.Equal(t, "Budget (EUR)", budget.DisplayName)
	assert.True(t, budget.IsDisplayField)
	assert.Equal(t, float64(12), budget.Value)
	status, _ := rec.Item("Status")
	assert.True(t, status.IsHidden)
	assert.Equal(t, true, rec.Map()["Alpha"])
}

func TestDisassembleInvertsAssemble(t *testing.T) {
	header := domain.Record{ID: 5, ModuleID: 2, Payload: "p"}
	rec := Assemble(header, []domain.Value{value(5, 1, "Budget", domain.DataTypeNumber, 3)}, nil)
	gotHeader, items := Disassemble(rec)
	assert.Equal(t, header, gotHeader)
	require.Len(t, items, 1)
	assert.Equal(t, int64(5), items[0].RecordID)
	assert.Equal(t, float64(3), items[0].Value)
}

func TestFromMapSortsByName(t *testing.T) {
	rec := FromMap(7, map[string]any{"b": 1, "a": 2})
	require.Len(t, rec.Items, 2)
	assert.Equal(t, "a", rec.Items[0].FieldName)
	assert.Equal(t, int64(7), rec.Items[1].RecordID)
	assert.Equal(t, int64(7), rec.ID)
}
