package sqlstore

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"fieldcore/pkg/domain"
)

var valueKeyColumns = []string{"id", "record_id", "field_id", "field_name", "data_type", "module_id"}

var valueDataColumns = func() []string {
	cols := make([]string, len(domain.ValueColumns))
	for i, c := range domain.ValueColumns {
		cols[i] = string(c)
	}
	return cols
}()

var valueColumns = append(append(append([]string{}, valueKeyColumns...), valueDataColumns...),
	"is_valid", "created_at", "modified_at")

// columnArgs returns the physical value columns of v in domain.ValueColumns
// order, with unset columns as NULL.
func (t *txn) columnArgs(v domain.Value) []any {
	args := make([]any, 0, len(domain.ValueColumns))
	for _, c := range domain.ValueColumns {
		var arg any
		switch c {
		case domain.ColumnShortString:
			arg = derefOrNil(v.ShortString)
		case domain.ColumnMediumString:
			arg = derefOrNil(v.MediumString)
		case domain.ColumnLongText:
			arg = derefOrNil(v.LongText)
		case domain.ColumnNumber:
			arg = derefOrNil(v.Number)
		case domain.ColumnBool:
			arg = derefOrNil(v.Bool)
		case domain.ColumnTimestamp:
			if v.Timestamp != nil {
				arg = *v.Timestamp
			}
		case domain.ColumnRefID:
			arg = derefOrNil(v.RefID)
		case domain.ColumnList:
			arg = derefOrNil(v.List)
		}
		args = append(args, arg)
	}
	return args
}

func derefOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (t *txn) ValuesByRecordID(id int64) ([]domain.Value, error) {
	return t.ValuesByRecordIDs([]int64{id})
}

func (t *txn) ValuesByRecordIDs(ids []int64) ([]domain.Value, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.query(t.store.builder.Select(valueColumns...).
		From("field_values").
		Where(sq.Eq{"record_id": ids}).
		Where(t.scoped("", true)).
		OrderBy("record_id", "id"))
	if err != nil {
		return nil, fmt.Errorf("select values: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Value
	for rows.Next() {
		v, err := t.scanValue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate values: %w", err)
	}
	return out, nil
}

func (t *txn) scanValue(rows *sql.Rows) (domain.Value, error) {
	v := domain.Value{Scope: t.scope}
	var (
		short, medium, long, list sql.NullString
		number                    sql.NullFloat64
		flag                      sql.NullBool
		stamp, created, modified  scanTime
		ref                       sql.NullInt64
	)
	if err := rows.Scan(&v.ID, &v.RecordID, &v.FieldID, &v.FieldName, &v.DataType, &v.ModuleID,
		&short, &medium, &long, &number, &flag, &stamp, &ref, &list,
		&v.IsValid, &created, &modified); err != nil {
		return v, fmt.Errorf("scan value: %w", err)
	}
	if short.Valid {
		v.ShortString = &short.String
	}
	if medium.Valid {
		v.MediumString = &medium.String
	}
	if long.Valid {
		v.LongText = &long.String
	}
	if number.Valid {
		v.Number = &number.Float64
	}
	if flag.Valid {
		v.Bool = &flag.Bool
	}
	v.Timestamp = stamp.ptr()
	if ref.Valid {
		v.RefID = &ref.Int64
	}
	if list.Valid {
		v.List = &list.String
	}
	v.CreatedAt, v.ModifiedAt = created.Time, modified.Time
	return v, nil
}

// InsertValues writes values with multi-row INSERT statements.
func (t *txn) InsertValues(values []domain.Value) ([]domain.Value, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]domain.Value, len(values))
	now := t.store.now().UTC()
	for start := 0; start < len(values); start += insertChunk {
		end := min(start+insertChunk, len(values))
		ins := t.store.builder.Insert("field_values").
			Columns(append([]string{"tenant_id", "app_code"}, valueColumns...)...)
		for i := start; i < end; i++ {
			v := values[i]
			v.ID = t.store.ids.Next()
			v.Scope = t.scope
			v.IsValid = true
			if v.CreatedAt.IsZero() {
				v.CreatedAt = now
			}
			if v.ModifiedAt.IsZero() {
				v.ModifiedAt = v.CreatedAt
			}
			row := []any{t.scope.TenantID, t.scope.AppCode, v.ID, v.RecordID, v.FieldID, v.FieldName, int(v.DataType), v.ModuleID}
			row = append(row, t.columnArgs(v)...)
			row = append(row, v.IsValid, v.CreatedAt, v.ModifiedAt)
			ins = ins.Values(row...)
			out[i] = v
		}
		if _, err := t.exec(ins); err != nil {
			return nil, fmt.Errorf("insert values: %w", err)
		}
	}
	return out, nil
}

// UpdateValues rewrites every physical column of each row, so a retyped
// value never keeps a stale column.
func (t *txn) UpdateValues(values []domain.Value) error {
	now := t.store.now().UTC()
	for _, v := range values {
		if v.ModifiedAt.IsZero() {
			v.ModifiedAt = now
		}
		set := map[string]any{
			"field_name":  v.FieldName,
			"data_type":   int(v.DataType),
			"modified_at": v.ModifiedAt,
		}
		for i, arg := range t.columnArgs(v) {
			set[valueDataColumns[i]] = arg
		}
		err := t.execOne(t.store.builder.Update("field_values").
			SetMap(set).
			Where(sq.Eq{"id": v.ID}).
			Where(t.scoped("", true)), domain.EntityValue, v.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) InvalidateValuesByRecordIDs(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.exec(t.store.builder.Update("field_values").
		Set("is_valid", false).
		Set("modified_at", t.store.now().UTC()).
		Where(sq.Eq{"record_id": ids}).
		Where(t.scoped("", true)))
	if err != nil {
		return fmt.Errorf("invalidate values: %w", err)
	}
	return nil
}
