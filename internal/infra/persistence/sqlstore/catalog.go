package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"fieldcore/pkg/domain"
)

var fieldColumns = []string{
	"id", "field_name", "display_name", "description", "data_type", "sort",
	"is_required", "is_hidden", "is_system", "is_display_field", "additional_info", "is_valid",
	"created_at", "created_by", "created_user_id", "modified_at", "modified_by", "modified_user_id",
}

var groupColumns = []string{
	"id", "group_name", "sort", "is_system", "is_default", "field_ids", "is_valid",
	"created_at", "created_by", "created_user_id", "modified_at", "modified_by", "modified_user_id",
}

func (t *txn) ListFields() ([]domain.FieldDefinition, error) {
	rows, err := t.query(t.store.builder.Select(fieldColumns...).
		From("field_definitions").
		Where(t.scoped("", true)).
		OrderBy("sort", "id"))
	if err != nil {
		return nil, fmt.Errorf("select fields: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.FieldDefinition
	for rows.Next() {
		f, err := t.scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return out, nil
}

func (t *txn) scanField(rows *sql.Rows) (domain.FieldDefinition, error) {
	f := domain.FieldDefinition{Scope: t.scope}
	var info sql.NullString
	var created, modified scanTime
	if err := rows.Scan(&f.ID, &f.Name, &f.DisplayName, &f.Description, &f.DataType, &f.Sort,
		&f.IsRequired, &f.IsHidden, &f.IsSystem, &f.IsDisplayField, &info, &f.IsValid,
		&created, &f.CreatedBy, &f.CreatedUserID, &modified, &f.ModifiedBy, &f.ModifiedUserID); err != nil {
		return f, fmt.Errorf("scan field: %w", err)
	}
	if info.Valid && info.String != "" {
		f.AdditionalInfo = json.RawMessage(info.String)
	}
	f.CreatedAt, f.ModifiedAt = created.Time, modified.Time
	return f, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func (t *txn) InsertField(f domain.FieldDefinition) (domain.FieldDefinition, error) {
	f.ID = t.store.ids.Next()
	f.Scope = t.scope
	f.IsValid = true
	t.stamp(&f.Audit)
	_, err := t.exec(t.store.builder.Insert("field_definitions").
		Columns(append([]string{"tenant_id", "app_code"}, fieldColumns...)...).
		Values(t.scope.TenantID, t.scope.AppCode,
			f.ID, f.Name, f.DisplayName, f.Description, int(f.DataType), f.Sort,
			f.IsRequired, f.IsHidden, f.IsSystem, f.IsDisplayField, nullableJSON(f.AdditionalInfo), f.IsValid,
			f.CreatedAt, f.CreatedBy, f.CreatedUserID, f.ModifiedAt, f.ModifiedBy, f.ModifiedUserID))
	if err != nil {
		return domain.FieldDefinition{}, fmt.Errorf("insert field: %w", err)
	}
	return f, nil
}

// UpdateField rewrites every mutable column, including validity, so soft
// deletion is an update with IsValid=false.
func (t *txn) UpdateField(f domain.FieldDefinition) error {
	if f.ModifiedAt.IsZero() {
		f.ModifiedAt = t.store.now().UTC()
	}
	return t.execOne(t.store.builder.Update("field_definitions").
		SetMap(map[string]any{
			"field_name":       f.Name,
			"display_name":     f.DisplayName,
			"description":      f.Description,
			"data_type":        int(f.DataType),
			"sort":             f.Sort,
			"is_required":      f.IsRequired,
			"is_hidden":        f.IsHidden,
			"is_display_field": f.IsDisplayField,
			"additional_info":  nullableJSON(f.AdditionalInfo),
			"is_valid":         f.IsValid,
			"modified_at":      f.ModifiedAt,
			"modified_by":      f.ModifiedBy,
			"modified_user_id": f.ModifiedUserID,
		}).
		Where(sq.Eq{"id": f.ID}).
		Where(t.scoped("", false)), domain.EntityField, f.ID)
}

func (t *txn) UpdateFieldSorts(sorts map[int64]int) error {
	for id, sort := range sorts {
		err := t.execOne(t.store.builder.Update("field_definitions").
			Set("sort", sort).
			Set("modified_at", t.store.now().UTC()).
			Where(sq.Eq{"id": id}).
			Where(t.scoped("", true)), domain.EntityField, id)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) ListGroups() ([]domain.FieldGroup, error) {
	rows, err := t.query(t.store.builder.Select(groupColumns...).
		From("field_groups").
		Where(t.scoped("", true)).
		OrderBy("sort", "id"))
	if err != nil {
		return nil, fmt.Errorf("select groups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.FieldGroup
	for rows.Next() {
		g := domain.FieldGroup{Scope: t.scope}
		var fieldIDs string
		var created, modified scanTime
		if err := rows.Scan(&g.ID, &g.Name, &g.Sort, &g.IsSystem, &g.IsDefault, &fieldIDs, &g.IsValid,
			&created, &g.CreatedBy, &g.CreatedUserID, &modified, &g.ModifiedBy, &g.ModifiedUserID); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldIDs), &g.FieldIDs); err != nil {
			return nil, fmt.Errorf("decode group %d fields: %w", g.ID, err)
		}
		g.CreatedAt, g.ModifiedAt = created.Time, modified.Time
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return out, nil
}

func encodeIDs(ids []int64) (string, error) {
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode field ids: %w", err)
	}
	return string(data), nil
}

func (t *txn) InsertGroup(g domain.FieldGroup) (domain.FieldGroup, error) {
	fieldIDs, err := encodeIDs(g.FieldIDs)
	if err != nil {
		return domain.FieldGroup{}, err
	}
	g.ID = t.store.ids.Next()
	g.Scope = t.scope
	g.IsValid = true
	t.stamp(&g.Audit)
	_, err = t.exec(t.store.builder.Insert("field_groups").
		Columns(append([]string{"tenant_id", "app_code"}, groupColumns...)...).
		Values(t.scope.TenantID, t.scope.AppCode,
			g.ID, g.Name, g.Sort, g.IsSystem, g.IsDefault, fieldIDs, g.IsValid,
			g.CreatedAt, g.CreatedBy, g.CreatedUserID, g.ModifiedAt, g.ModifiedBy, g.ModifiedUserID))
	if err != nil {
		return domain.FieldGroup{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func (t *txn) UpdateGroup(g domain.FieldGroup) error {
	fieldIDs, err := encodeIDs(g.FieldIDs)
	if err != nil {
		return err
	}
	if g.ModifiedAt.IsZero() {
		g.ModifiedAt = t.store.now().UTC()
	}
	return t.execOne(t.store.builder.Update("field_groups").
		SetMap(map[string]any{
			"group_name":       g.Name,
			"sort":             g.Sort,
			"is_default":       g.IsDefault,
			"field_ids":        fieldIDs,
			"modified_at":      g.ModifiedAt,
			"modified_by":      g.ModifiedBy,
			"modified_user_id": g.ModifiedUserID,
		}).
		Where(sq.Eq{"id": g.ID}).
		Where(t.scoped("", true)), domain.EntityFieldGroup, g.ID)
}

func (t *txn) InvalidateGroup(id int64, audit domain.Audit) error {
	if audit.ModifiedAt.IsZero() {
		audit.ModifiedAt = t.store.now().UTC()
	}
	return t.execOne(t.store.builder.Update("field_groups").
		Set("is_valid", false).
		Set("modified_at", audit.ModifiedAt).
		Set("modified_by", audit.ModifiedBy).
		Set("modified_user_id", audit.ModifiedUserID).
		Where(sq.Eq{"id": id}).
		Where(t.scoped("", true)), domain.EntityFieldGroup, id)
}
