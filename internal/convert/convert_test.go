package convert

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcore/pkg/domain"
)

func TestRoundTripLeavesSingleColumn(t *testing.T) {
	stamp := time.Date(2024, 3, 9, 10, 30, 0, 123456789, time.FixedZone("x", 3600))
	cases := []struct {
		dataType domain.DataType
		raw      any
		column   domain.Column
	}{
		{domain.DataTypePhone, "+1 555 0100", domain.ColumnShortString},
		{domain.DataTypeEmail, "ops@example.com", domain.ColumnShortString},
		{domain.DataTypeShortText, "Acme", domain.ColumnMediumString},
		{domain.DataTypeLongText, "line one\nline two", domain.ColumnLongText},
		{domain.DataTypeFreeText, 42, domain.ColumnLongText},
		{domain.DataTypeNumber, "1500.50", domain.ColumnNumber},
		{domain.DataTypeBoolean, "yes", domain.ColumnBool},
		{domain.DataTypeTimestamp, stamp, domain.ColumnTimestamp},
		{domain.DataTypeSingleSelect, json.Number("9007199254740993"), domain.ColumnRefID},
		{domain.DataTypeAttachment, map[string]any{"id": 7}, domain.ColumnRefID},
		{domain.DataTypeReference, "12", domain.ColumnRefID},
		{domain.DataTypeRelation, 3.0, domain.ColumnRefID},
		{domain.DataTypeImage, int32(5), domain.ColumnRefID},
		{domain.DataTypeStringList, []string{"a", "b"}, domain.ColumnList},
		{domain.DataTypeAttachmentList, `[ {"id": 1} ]`, domain.ColumnList},
		{domain.DataTypeTimeRange, map[string]any{"startDate": "2024-01-01", "endDate": "2024-02-01"}, domain.ColumnList},
	}
	for _, tc := range cases {
		t.Run(tc.dataType.String(), func(t *testing.T) {
			c := For(tc.dataType)
			require.Equal(t, tc.column, c.Column())

			want := c.Convert(tc.raw)
			var v domain.Value
			v.ShortString = ptr("stale")
			v.Number = ptr(9.0)
			c.Set(&v, want)

			assert.Equal(t, want, c.Get(&v))
			assert.Equal(t, []domain.Column{tc.column}, v.PopulatedColumns())
			assert.Equal(t, tc.dataType, v.DataType)
		})
	}
}

func TestConvertIsLenient(t *testing.T) {
	assert.Equal(t, float64(0), For(domain.DataTypeNumber).Convert("12abc"))
	assert.Equal(t, false, For(domain.DataTypeBoolean).Convert("maybe"))
	assert.Nil(t, For(domain.DataTypeTimestamp).Convert("not a date"))
	assert.Equal(t, int64(0), For(domain.DataTypeReference).Convert("x"))
	assert.Equal(t, json.RawMessage("[]"), For(domain.DataTypeAttachmentList).Convert("{broken"))
	assert.Nil(t, For(domain.DataTypeShortText).Convert(nil))
}

func TestConvertParsesLooseInput(t *testing.T) {
	assert.Equal(t, 1500.5, For(domain.DataTypeNumber).Convert(" 1,500.50 "))
	assert.Equal(t, true, For(domain.DataTypeBoolean).Convert(json.Number("1")))
	assert.Equal(t, "12.5", For(domain.DataTypeShortText).Convert(12.5))
	assert.Equal(t, json.RawMessage(`["solo"]`), For(domain.DataTypeStringList).Convert("solo"))

	got := For(domain.DataTypeTimestamp).Convert("2024-03-09")
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), got)

	unix := For(domain.DataTypeTimestamp).Convert(int64(1700000000))
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), unix)
}

func TestSetNilClearsEveryColumn(t *testing.T) {
	v := domain.Value{Number: ptr(1.0), List: ptr("[]")}
	For(domain.DataTypeNumber).Set(&v, nil)
	assert.Empty(t, v.PopulatedColumns())
	assert.Nil(t, For(domain.DataTypeNumber).Get(&v))
}

func TestConvertIsIdempotent(t *testing.T) {
	for dt := range registry {
		c := For(dt)
		for _, raw := range []any{"garbage", "12", true, []any{"x"}} {
			once := c.Convert(raw)
			assert.Equal(t, once, c.Convert(once), "%s %v", dt, raw)
		}
	}
}

func TestStrictReportsParseFailures(t *testing.T) {
	_, err := Strict(domain.DataTypeNumber, "twelve")
	require.Error(t, err)

	v, err := Strict(domain.DataTypeNumber, "12")
	require.NoError(t, err)
	assert.Equal(t, float64(12), v)

	v, err = Strict(domain.DataTypeEmail, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestReferenceRejectsOutOfRangeFloats(t *testing.T) {
	for _, raw := range []any{1e20, -1e20, float64(1 << 63), float32(1e19), "9.3e18", json.Number("1e19"), math.NaN()} {
		_, err := Strict(domain.DataTypeReference, raw)
		assert.Error(t, err, "%v", raw)
		assert.Equal(t, int64(0), For(domain.DataTypeReference).Convert(raw), "%v", raw)
	}

	v, err := Strict(domain.DataTypeReference, -9.223372036854775808e18)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), v)

	v, err = Strict(domain.DataTypeReference, "42.9")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestUnknownTypeStoresAsLongText(t *testing.T) {
	assert.Equal(t, domain.ColumnLongText, ColumnFor(domain.DataType(99)))
}

func TestCompare(t *testing.T) {
	n, ok := Compare(1.0, 2.0)
	require.True(t, ok)
	assert.Equal(t, -1, n)

	_, ok = Compare("a", 1.0)
	assert.False(t, ok)

	a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n, ok = Compare(a.Add(time.Hour), a)
	require.True(t, ok)
	assert.Equal(t, 1, n)
}

func ptr[T any](v T) *T { return &v }
