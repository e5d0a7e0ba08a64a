// Package records persists records as a header row plus typed value rows and
// rebuilds them into structured records on read.
package records

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"fieldcore/internal/catalog"
	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// Store implements record create, read, update and soft delete on top of a
// persistent store and the field catalog.
type Store struct {
	store   domain.PersistentStore
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewStore wires a record store.
func NewStore(store domain.PersistentStore, cat *catalog.Catalog) *Store {
	return &Store{store: store, catalog: cat, now: time.Now}
}

// SetClock overrides the time source used for audit stamps.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func notFound(id int64) error {
	return domain.ErrNotFound{Entity: domain.EntityRecord, ID: fmt.Sprint(id)}
}

// Get loads and assembles one record.
func (s *Store) Get(ctx context.Context, id int64) (domain.StructuredRecord, bool, error) {
	recs, err := s.GetMany(ctx, []int64{id})
	if err != nil || len(recs) == 0 {
		return domain.StructuredRecord{}, false, err
	}
	return recs[0], true, nil
}

// GetMany loads the valid records among ids with one header and one value
// read, newest first.
func (s *Store) GetMany(ctx context.Context, ids []int64) ([]domain.StructuredRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.StructuredRecord
	err = s.store.View(ctx, func(view domain.TransactionView) error {
		headers, err := view.GetRecords(ids)
		if err != nil || len(headers) == 0 {
			return err
		}
		found := make([]int64, len(headers))
		for i, h := range headers {
			found[i] = h.ID
		}
		values, err := view.ValuesByRecordIDs(found)
		if err != nil {
			return err
		}
		out = AssembleMany(headers, values, snap)
		return nil
	})
	return out, err
}

// resolved is a field item bound to its catalog definition.
type resolved struct {
	field domain.FieldDefinition
	value any
}

// resolve binds items to catalog fields. The identity field is ignored and an
// unknown field is a hard error.
func resolve(snap *catalog.Snapshot, items []domain.FieldItem) ([]resolved, error) {
	out := make([]resolved, 0, len(items))
	seen := map[int64]int{}
	for _, item := range items {
		if strings.EqualFold(item.FieldName, domain.IdentityField) {
			continue
		}
		f, ok := snap.Field(item.FieldName)
		if !ok && item.FieldID != 0 {
			f, ok = snap.FieldByID(item.FieldID)
		}
		if !ok {
			name := item.FieldName
			if name == "" {
				name = fmt.Sprint(item.FieldID)
			}
			return nil, domain.ErrUnknownField{Name: name}
		}
		if i, dup := seen[f.ID]; dup {
			out[i].value = item.Value
			continue
		}
		seen[f.ID] = len(out)
		out = append(out, resolved{field: f, value: item.Value})
	}
	return out, nil
}

func newValue(header domain.Record, r resolved) domain.Value {
	v := domain.Value{
		RecordID:  header.ID,
		FieldID:   r.field.ID,
		FieldName: r.field.Name,
		ModuleID:  header.ModuleID,
	}
	convert.For(r.field.DataType).Set(&v, r.value)
	return v
}

// Create inserts the header with a generated id and its initial values in
// one transaction.
func (s *Store) Create(ctx context.Context, rec domain.StructuredRecord) (domain.StructuredRecord, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	header, items := Disassemble(rec)
	fields, err := resolve(snap, items)
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	header.ID = 0
	header.Audit = domain.ActorFrom(ctx).Stamp(s.now().UTC())
	var values []domain.Value
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.InsertRecord(header)
		if err != nil {
			return err
		}
		header = created
		pending := make([]domain.Value, 0, len(fields))
		for _, r := range fields {
			pending = append(pending, newValue(header, r))
		}
		values, err = tx.InsertValues(pending)
		return err
	})
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	return Assemble(header, values, snap), nil
}

// Update rewrites the header payload and diffs the items against the stored
// values: shared fields are rewritten with their type re-resolved, new
// fields are inserted and fields absent from rec are left untouched.
func (s *Store) Update(ctx context.Context, rec domain.StructuredRecord) (domain.StructuredRecord, error) {
	header, items := Disassemble(rec)
	return s.update(ctx, header.ID, items, func(current *domain.Record) {
		current.ModuleID = header.ModuleID
		current.Payload = header.Payload
	})
}

// UpdateFields applies a name to value map to a record, keeping its payload.
// Applying the same map twice leaves the record unchanged.
func (s *Store) UpdateFields(ctx context.Context, id int64, values map[string]any) (domain.StructuredRecord, error) {
	_, items := Disassemble(FromMap(id, values))
	return s.update(ctx, id, items, nil)
}

func (s *Store) update(ctx context.Context, id int64, items []domain.FieldItem, edit func(*domain.Record)) (domain.StructuredRecord, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	fields, err := resolve(snap, items)
	if err != nil {
		return domain.StructuredRecord{}, err
	}
	actor := domain.ActorFrom(ctx)
	now := s.now().UTC()
	var out domain.StructuredRecord
	err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		header, ok, err := tx.GetRecord(id)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(id)
		}
		existing, err := tx.ValuesByRecordID(id)
		if err != nil {
			return err
		}
		byField := make(map[int64]int, len(existing))
		for i, v := range existing {
			if _, dup := byField[v.FieldID]; !dup {
				byField[v.FieldID] = i
			}
		}
		var inserts, updates []domain.Value
		for _, r := range fields {
			i, found := byField[r.field.ID]
			if !found {
				inserts = append(inserts, newValue(header, r))
				continue
			}
			next := existing[i]
			next.FieldName = r.field.Name
			next.ModifiedAt = time.Time{}
			convert.For(r.field.DataType).Set(&next, r.value)
			if sameValue(existing[i], next) {
				continue
			}
			next.ModifiedAt = now
			existing[i] = next
			updates = append(updates, next)
		}
		if err := tx.UpdateValues(updates); err != nil {
			return err
		}
		inserted, err := tx.InsertValues(inserts)
		if err != nil {
			return err
		}
		if edit != nil {
			edit(&header)
		}
		actor.Touch(&header.Audit, now)
		if err := tx.UpdateRecord(header); err != nil {
			return err
		}
		out = Assemble(header, append(existing, inserted...), snap)
		return nil
	})
	return out, err
}

// sameValue reports whether next stores exactly what current stores.
func sameValue(current, next domain.Value) bool {
	if current.DataType != next.DataType || current.FieldName != next.FieldName {
		return false
	}
	a := convert.For(current.DataType).Get(&current)
	b := convert.For(next.DataType).Get(&next)
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// Delete soft deletes one record and its values.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.delete(ctx, []int64{id}, true)
}

// DeleteMany soft deletes every valid record among ids and their values.
// Unknown ids are ignored.
func (s *Store) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.delete(ctx, ids, false)
}

func (s *Store) delete(ctx context.Context, ids []int64, strict bool) error {
	actor := domain.ActorFrom(ctx)
	now := s.now().UTC()
	return s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if strict {
			if _, ok, err := tx.GetRecord(ids[0]); err != nil {
				return err
			} else if !ok {
				return notFound(ids[0])
			}
		}
		var audit domain.Audit
		actor.Touch(&audit, now)
		if err := tx.InvalidateRecords(ids, audit); err != nil {
			return err
		}
		return tx.InvalidateValuesByRecordIDs(ids)
	})
}

// Query returns the ids of valid records matching cond, newest first. Field
// names resolve against the catalog of ctx's scope.
func (s *Store) Query(ctx context.Context, cond domain.Condition, page domain.Page) ([]int64, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = s.store.View(ctx, func(view domain.TransactionView) error {
		var err error
		ids, err = view.QueryRecordIDs(cond, snap, page)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	return ids, nil
}

// QueryRecords runs Query and assembles the matching records.
func (s *Store) QueryRecords(ctx context.Context, cond domain.Condition, page domain.Page) ([]domain.StructuredRecord, error) {
	ids, err := s.Query(ctx, cond, page)
	if err != nil {
		return nil, err
	}
	return s.GetMany(ctx, ids)
}

// IsNotFound reports whether err is a missing record.
func IsNotFound(err error) bool {
	var nf domain.ErrNotFound
	return errors.As(err, &nf) && nf.Entity == domain.EntityRecord
}
