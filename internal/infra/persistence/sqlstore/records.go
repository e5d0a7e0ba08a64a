package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"fieldcore/internal/condition"
	"fieldcore/pkg/domain"
)

var recordColumns = []string{
	"id", "module_id", "payload", "is_valid",
	"created_at", "created_by", "created_user_id", "modified_at", "modified_by", "modified_user_id",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *txn) scanRecord(row rowScanner) (domain.Record, error) {
	r := domain.Record{Scope: t.scope}
	var created, modified scanTime
	err := row.Scan(&r.ID, &r.ModuleID, &r.Payload, &r.IsValid,
		&created, &r.CreatedBy, &r.CreatedUserID, &modified, &r.ModifiedBy, &r.ModifiedUserID)
	r.CreatedAt, r.ModifiedAt = created.Time, modified.Time
	return r, err
}

func (t *txn) GetRecord(id int64) (domain.Record, bool, error) {
	query, args, err := t.store.builder.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"id": id}).
		Where(t.scoped("", true)).
		ToSql()
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("build query: %w", err)
	}
	r, err := t.scanRecord(t.q.QueryRowContext(t.ctx, query, t.store.dialect.bindArgs(args)...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("select record %d: %w", id, err)
	}
	return r, true, nil
}

func (t *txn) GetRecords(ids []int64) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.query(t.store.builder.Select(recordColumns...).
		From("records").
		Where(sq.Eq{"id": ids}).
		Where(t.scoped("", true)).
		OrderBy("id DESC"))
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Record
	for rows.Next() {
		r, err := t.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (t *txn) InsertRecord(r domain.Record) (domain.Record, error) {
	if r.ID == 0 {
		r.ID = t.store.ids.Next()
	}
	r.Scope = t.scope
	r.IsValid = true
	t.stamp(&r.Audit)
	_, err := t.exec(t.store.builder.Insert("records").
		Columns(append([]string{"tenant_id", "app_code"}, recordColumns...)...).
		Values(t.scope.TenantID, t.scope.AppCode,
			r.ID, r.ModuleID, r.Payload, r.IsValid,
			r.CreatedAt, r.CreatedBy, r.CreatedUserID, r.ModifiedAt, r.ModifiedBy, r.ModifiedUserID))
	if err != nil {
		return domain.Record{}, fmt.Errorf("insert record: %w", err)
	}
	return r, nil
}

func (t *txn) UpdateRecord(r domain.Record) error {
	if r.ModifiedAt.IsZero() {
		r.ModifiedAt = t.store.now().UTC()
	}
	return t.execOne(t.store.builder.Update("records").
		Set("module_id", r.ModuleID).
		Set("payload", r.Payload).
		Set("modified_at", r.ModifiedAt).
		Set("modified_by", r.ModifiedBy).
		Set("modified_user_id", r.ModifiedUserID).
		Where(sq.Eq{"id": r.ID}).
		Where(t.scoped("", true)), domain.EntityRecord, r.ID)
}

func (t *txn) InvalidateRecords(ids []int64, audit domain.Audit) error {
	if len(ids) == 0 {
		return nil
	}
	if audit.ModifiedAt.IsZero() {
		audit.ModifiedAt = t.store.now().UTC()
	}
	_, err := t.exec(t.store.builder.Update("records").
		Set("is_valid", false).
		Set("modified_at", audit.ModifiedAt).
		Set("modified_by", audit.ModifiedBy).
		Set("modified_user_id", audit.ModifiedUserID).
		Where(sq.Eq{"id": ids}).
		Where(t.scoped("", true)))
	if err != nil {
		return fmt.Errorf("invalidate records: %w", err)
	}
	return nil
}

// QueryRecordIDs compiles cond in EAV mode and matches every field leaf
// through a semi-join on the value table, so leaves on different fields can
// be combined with AND.
func (t *txn) QueryRecordIDs(cond domain.Condition, resolver domain.FieldResolver, page domain.Page) ([]int64, error) {
	page = page.Normalize()
	scope := t.scope
	compiler := condition.New(resolver, condition.Options{
		Table:        "v",
		LikeOperator: t.store.dialect.LikeOperator,
		IDColumn:     "r.id",
		Wrap: func(_ domain.Condition, fragment string, p *condition.Params) string {
			return "r.id IN (SELECT v.record_id FROM field_values v WHERE v.tenant_id = " + p.Add(scope.TenantID) +
				" AND v.app_code = " + p.Add(scope.AppCode) +
				" AND v.is_valid = " + p.Add(true) +
				" AND " + fragment + ")"
		},
	})
	res, err := compiler.Compile(cond)
	if err != nil {
		return nil, err
	}
	sel := t.store.builder.Select("r.id").
		From("records r").
		Where(t.scoped("r.", true)).
		OrderBy("r.id DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset))
	if res.SQL != "" {
		fragment, args := condition.Rebind(res.SQL, res.Params)
		sel = sel.Where(sq.Expr(fragment, args...))
	}
	rows, err := t.query(sel)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record ids: %w", err)
	}
	return out, nil
}
