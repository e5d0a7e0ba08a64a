// Package convert maps logical field types onto their physical value column
// and converts loosely typed input into each type's canonical form.
//
// Canonical forms:
//
//	text types       string
//	Number           float64
//	Boolean          bool
//	Timestamp        time.Time (UTC, microsecond precision)
//	reference types  int64
//	list types       json.RawMessage (compact JSON)
//
// Convert is total: input that cannot be parsed yields the type default
// (empty string, zero, false, or a nil timestamp) instead of an error. Use
// Strict where a parse failure must be reported.
package convert

import (
	"encoding/json"
	"time"

	"fieldcore/pkg/domain"
)

// Converter owns the mapping between one data type, its physical column and
// its canonical value.
type Converter interface {
	DataType() domain.DataType
	Column() domain.Column
	// Convert returns the canonical form of raw. nil stays nil.
	Convert(raw any) any
	// Get decodes the authoritative column of v, or nil when it is unset.
	Get(v *domain.Value) any
	// Set clears every column of v and stores the canonical form of value.
	Set(v *domain.Value, value any)
}

type converter struct {
	dataType domain.DataType
	column   domain.Column
	parse    func(raw any) (any, bool)
	zero     any
}

func (c converter) DataType() domain.DataType { return c.dataType }
func (c converter) Column() domain.Column     { return c.column }

func (c converter) Convert(raw any) any {
	if isNil(raw) {
		return nil
	}
	v, ok := c.parse(raw)
	if !ok {
		return c.zero
	}
	return v
}

func (c converter) Get(v *domain.Value) any {
	if v == nil {
		return nil
	}
	switch c.column {
	case domain.ColumnShortString:
		return derefString(v.ShortString)
	case domain.ColumnMediumString:
		return derefString(v.MediumString)
	case domain.ColumnLongText:
		return derefString(v.LongText)
	case domain.ColumnNumber:
		if v.Number == nil {
			return nil
		}
		return *v.Number
	case domain.ColumnBool:
		if v.Bool == nil {
			return nil
		}
		return *v.Bool
	case domain.ColumnTimestamp:
		if v.Timestamp == nil {
			return nil
		}
		return v.Timestamp.UTC()
	case domain.ColumnRefID:
		if v.RefID == nil {
			return nil
		}
		return *v.RefID
	case domain.ColumnList:
		if v.List == nil {
			return nil
		}
		return json.RawMessage(*v.List)
	}
	return nil
}

func (c converter) Set(v *domain.Value, value any) {
	v.ClearColumns()
	v.DataType = c.dataType
	canonical := c.Convert(value)
	if canonical == nil {
		return
	}
	switch c.column {
	case domain.ColumnShortString:
		s := canonical.(string)
		v.ShortString = &s
	case domain.ColumnMediumString:
		s := canonical.(string)
		v.MediumString = &s
	case domain.ColumnLongText:
		s := canonical.(string)
		v.LongText = &s
	case domain.ColumnNumber:
		f := canonical.(float64)
		v.Number = &f
	case domain.ColumnBool:
		b := canonical.(bool)
		v.Bool = &b
	case domain.ColumnTimestamp:
		t := canonical.(time.Time)
		v.Timestamp = &t
	case domain.ColumnRefID:
		id := canonical.(int64)
		v.RefID = &id
	case domain.ColumnList:
		s := string(canonical.(json.RawMessage))
		v.List = &s
	}
}

func textConverter(t domain.DataType, col domain.Column) converter {
	return converter{dataType: t, column: col, parse: parseString, zero: ""}
}

func refConverter(t domain.DataType) converter {
	return converter{dataType: t, column: domain.ColumnRefID, parse: parseInt64, zero: int64(0)}
}

var registry = map[domain.DataType]converter{
	domain.DataTypePhone:          textConverter(domain.DataTypePhone, domain.ColumnShortString),
	domain.DataTypeEmail:          textConverter(domain.DataTypeEmail, domain.ColumnShortString),
	domain.DataTypeShortText:      textConverter(domain.DataTypeShortText, domain.ColumnMediumString),
	domain.DataTypeLongText:       textConverter(domain.DataTypeLongText, domain.ColumnLongText),
	domain.DataTypeFreeText:       textConverter(domain.DataTypeFreeText, domain.ColumnLongText),
	domain.DataTypeNumber:         {dataType: domain.DataTypeNumber, column: domain.ColumnNumber, parse: parseFloat, zero: float64(0)},
	domain.DataTypeBoolean:        {dataType: domain.DataTypeBoolean, column: domain.ColumnBool, parse: parseBool, zero: false},
	domain.DataTypeTimestamp:      {dataType: domain.DataTypeTimestamp, column: domain.ColumnTimestamp, parse: parseTime, zero: nil},
	domain.DataTypeSingleSelect:   refConverter(domain.DataTypeSingleSelect),
	domain.DataTypeAttachment:     refConverter(domain.DataTypeAttachment),
	domain.DataTypeReference:      refConverter(domain.DataTypeReference),
	domain.DataTypeRelation:       refConverter(domain.DataTypeRelation),
	domain.DataTypeImage:          refConverter(domain.DataTypeImage),
	domain.DataTypeStringList:     {dataType: domain.DataTypeStringList, column: domain.ColumnList, parse: parseStringList, zero: json.RawMessage("[]")},
	domain.DataTypeAttachmentList: {dataType: domain.DataTypeAttachmentList, column: domain.ColumnList, parse: parseJSON, zero: json.RawMessage("[]")},
	domain.DataTypeTimeRange:      {dataType: domain.DataTypeTimeRange, column: domain.ColumnList, parse: parseTimeRange, zero: json.RawMessage(`{"startDate":null,"endDate":null}`)},
	domain.DataTypeIdentity:       refConverter(domain.DataTypeIdentity),
}

// For returns the converter of t. Unknown types store as long text.
func For(t domain.DataType) Converter {
	if c, ok := registry[t]; ok {
		return c
	}
	return textConverter(t, domain.ColumnLongText)
}

// ColumnFor returns the physical column a value of type t occupies.
func ColumnFor(t domain.DataType) domain.Column {
	return For(t).Column()
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
