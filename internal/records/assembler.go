package records

import (
	"cmp"
	"slices"
	"strings"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// FieldLookup resolves catalog entries by id. *catalog.Snapshot satisfies it.
type FieldLookup interface {
	FieldByID(id int64) (domain.FieldDefinition, bool)
}

// Assemble joins a record header with its value rows. Catalog metadata is
// matched by field id; values whose field is no longer in the catalog keep
// their denormalized name as display name. Items are ordered by sort and
// then by field name.
func Assemble(header domain.Record, values []domain.Value, fields FieldLookup) domain.StructuredRecord {
	rec := domain.StructuredRecord{Record: header, Items: make([]domain.FieldItem, 0, len(values))}
	for i := range values {
		v := values[i]
		if v.RecordID != header.ID {
			continue
		}
		item := domain.FieldItem{
			RecordID:    v.RecordID,
			FieldID:     v.FieldID,
			FieldName:   v.FieldName,
			DisplayName: v.FieldName,
			DataType:    v.DataType,
			Value:       convert.For(v.DataType).Get(&v),
		}
		if fields != nil {
			if f, ok := fields.FieldByID(v.FieldID); ok {
				item.FieldName = f.Name
				item.DisplayName = f.DisplayName
				item.Description = f.Description
				item.Sort = f.Sort
				item.IsHidden = f.IsHidden
				item.IsDisplayField = f.IsDisplayField
			}
		}
		rec.Items = append(rec.Items, item)
	}
	sortItems(rec.Items)
	return rec
}

// AssembleMany assembles every header with the values that belong to it,
// keeping the order of headers.
func AssembleMany(headers []domain.Record, values []domain.Value, fields FieldLookup) []domain.StructuredRecord {
	byRecord := make(map[int64][]domain.Value, len(headers))
	for _, v := range values {
		byRecord[v.RecordID] = append(byRecord[v.RecordID], v)
	}
	out := make([]domain.StructuredRecord, 0, len(headers))
	for _, h := range headers {
		out = append(out, Assemble(h, byRecord[h.ID], fields))
	}
	return out
}

func sortItems(items []domain.FieldItem) {
	slices.SortStableFunc(items, func(a, b domain.FieldItem) int {
		if c := cmp.Compare(a.Sort, b.Sort); c != 0 {
			return c
		}
		return strings.Compare(a.FieldName, b.FieldName)
	})
}

// Disassemble splits a structured record into its header and field items.
func Disassemble(rec domain.StructuredRecord) (domain.Record, []domain.FieldItem) {
	items := slices.Clone(rec.Items)
	for i := range items {
		items[i].RecordID = rec.ID
	}
	return rec.Record, items
}

// FromMap builds the update input for a record from a name to value map.
// Items are ordered by name so the write order is deterministic.
func FromMap(recordID int64, values map[string]any) domain.StructuredRecord {
	rec := domain.StructuredRecord{Record: domain.Record{ID: recordID}}
	for name, value := range values {
		rec.Items = append(rec.Items, domain.FieldItem{RecordID: recordID, FieldName: name, Value: value})
	}
	slices.SortFunc(rec.Items, func(a, b domain.FieldItem) int { return strings.Compare(a.FieldName, b.FieldName) })
	return rec
}
