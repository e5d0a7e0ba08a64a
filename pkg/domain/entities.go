// Package domain defines the persistent entities, value types, condition model
// and persistence contracts shared by every fieldcore layer.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType identifies the kind of row a persistence error or audit entry refers to.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityField identifies a field definition in the catalog.
	EntityField EntityType = "field_definition"
	// EntityFieldGroup identifies a field group in the catalog.
	EntityFieldGroup EntityType = "field_group"
	// EntityRecord identifies a record header.
	EntityRecord EntityType = "record"
	// EntityValue identifies a typed value row.
	EntityValue EntityType = "field_value"
)

// IdentityField is the reserved field name that addresses a record's own id.
const IdentityField = "id"

// DataType is the logical type of a user-defined field. The numeric codes are
// part of the persisted and wire format and must not be renumbered.
type DataType int

// Supported data types.
const (
	DataTypeUnknown        DataType = 0
	DataTypePhone          DataType = 3
	DataTypeEmail          DataType = 4
	DataTypeSingleSelect   DataType = 5
	DataTypeBoolean        DataType = 7
	DataTypeTimestamp      DataType = 10
	DataTypeShortText      DataType = 11
	DataTypeLongText       DataType = 12
	DataTypeNumber         DataType = 13
	DataTypeFreeText       DataType = 14
	DataTypeStringList     DataType = 15
	DataTypeAttachment     DataType = 16
	DataTypeAttachmentList DataType = 17
	DataTypeIdentity       DataType = 18
	DataTypeReference      DataType = 19
	DataTypeRelation       DataType = 20
	DataTypeImage          DataType = 22
	DataTypeTimeRange      DataType = 23
)

var dataTypeNames = map[DataType]string{
	DataTypePhone:          "phone",
	DataTypeEmail:          "email",
	DataTypeSingleSelect:   "single_select",
	DataTypeBoolean:        "boolean",
	DataTypeTimestamp:      "timestamp",
	DataTypeShortText:      "short_text",
	DataTypeLongText:       "long_text",
	DataTypeNumber:         "number",
	DataTypeFreeText:       "free_text",
	DataTypeStringList:     "string_list",
	DataTypeAttachment:     "attachment",
	DataTypeAttachmentList: "attachment_list",
	DataTypeIdentity:       "identity",
	DataTypeReference:      "reference",
	DataTypeRelation:       "relation",
	DataTypeImage:          "image",
	DataTypeTimeRange:      "time_range",
}

// String returns the stable lower_snake name of the data type.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether t is a storable field type. The identity pseudo-type is
// not storable.
func (t DataType) Valid() bool {
	_, ok := dataTypeNames[t]
	return ok && t != DataTypeIdentity
}

// ParseDataType resolves a data type from its name. Matching ignores case
// and underscores, so "ShortText" and "short_text" are the same type.
func ParseDataType(name string) (DataType, bool) {
	name = strings.ReplaceAll(name, "_", "")
	for t, n := range dataTypeNames {
		if strings.EqualFold(strings.ReplaceAll(n, "_", ""), name) {
			return t, true
		}
	}
	return DataTypeUnknown, false
}

// Column names the physical storage column of a value row.
type Column string

// Physical value columns. Exactly one is populated per row.
const (
	ColumnShortString  Column = "varchar100_value"
	ColumnMediumString Column = "varchar500_value"
	ColumnLongText     Column = "text_value"
	ColumnNumber       Column = "double_value"
	ColumnBool         Column = "bool_value"
	ColumnTimestamp    Column = "date_time_value"
	ColumnRefID        Column = "long_value"
	ColumnList         Column = "string_list_value"
)

// ValueColumns lists every physical value column in table order.
var ValueColumns = []Column{
	ColumnShortString,
	ColumnMediumString,
	ColumnLongText,
	ColumnNumber,
	ColumnBool,
	ColumnTimestamp,
	ColumnRefID,
	ColumnList,
}

// IsString reports whether the column holds text and supports pattern matching.
func (c Column) IsString() bool {
	switch c {
	case ColumnShortString, ColumnMediumString, ColumnLongText, ColumnList:
		return true
	default:
		return false
	}
}

// Audit carries the created/modified stamps shared by catalog rows and records.
type Audit struct {
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
	CreatedUserID  int64     `json:"createdUserId"`
	ModifiedAt     time.Time `json:"modifiedAt"`
	ModifiedBy     string    `json:"modifiedBy"`
	ModifiedUserID int64     `json:"modifiedUserId"`
}

// FieldDefinition describes one user-defined field in a tenant's catalog.
type FieldDefinition struct {
	ID             int64           `json:"id"`
	Scope          Scope           `json:"-"`
	Name           string          `json:"fieldName"`
	DisplayName    string          `json:"displayName"`
	Description    string          `json:"description,omitempty"`
	DataType       DataType        `json:"dataType"`
	Sort           int             `json:"sort"`
	IsRequired     bool            `json:"isRequired"`
	IsHidden       bool            `json:"isHidden"`
	IsSystem       bool            `json:"isSystem"`
	IsDisplayField bool            `json:"isDisplayField"`
	AdditionalInfo json.RawMessage `json:"additionalInfo,omitempty"`
	IsValid        bool            `json:"-"`
	Audit
}

// FieldGroup orders a subset of the catalog under a named heading.
type FieldGroup struct {
	ID        int64   `json:"id"`
	Scope     Scope   `json:"-"`
	Name      string  `json:"groupName"`
	Sort      int     `json:"sort"`
	IsSystem  bool    `json:"isSystem"`
	IsDefault bool    `json:"isDefault"`
	FieldIDs  []int64 `json:"fields"`
	IsValid   bool    `json:"-"`
	Audit
}

// Record is the header row of a business record. Its field values live in Value rows.
type Record struct {
	ID       int64  `json:"id"`
	Scope    Scope  `json:"-"`
	ModuleID int    `json:"moduleId"`
	Payload  string `json:"payload,omitempty"`
	IsValid  bool   `json:"-"`
	Audit
}

// Value is a single typed field value of a record. At most one of the typed
// column pointers is non-nil and DataType decides which one is authoritative.
// Reads and writes go through the convert package rather than the columns.
type Value struct {
	ID         int64
	Scope      Scope
	RecordID   int64
	FieldID    int64
	FieldName  string
	DataType   DataType
	ModuleID   int
	IsValid    bool
	CreatedAt  time.Time
	ModifiedAt time.Time

	ShortString  *string
	MediumString *string
	LongText     *string
	Number       *float64
	Bool         *bool
	Timestamp    *time.Time
	RefID        *int64
	List         *string
}

// ClearColumns resets every physical value column.
func (v *Value) ClearColumns() {
	v.ShortString = nil
	v.MediumString = nil
	v.LongText = nil
	v.Number = nil
	v.Bool = nil
	v.Timestamp = nil
	v.RefID = nil
	v.List = nil
}

// PopulatedColumns returns the columns holding a non-nil value.
func (v Value) PopulatedColumns() []Column {
	var cols []Column
	if v.ShortString != nil {
		cols = append(cols, ColumnShortString)
	}
	if v.MediumString != nil {
		cols = append(cols, ColumnMediumString)
	}
	if v.LongText != nil {
		cols = append(cols, ColumnLongText)
	}
	if v.Number != nil {
		cols = append(cols, ColumnNumber)
	}
	if v.Bool != nil {
		cols = append(cols, ColumnBool)
	}
	if v.Timestamp != nil {
		cols = append(cols, ColumnTimestamp)
	}
	if v.RefID != nil {
		cols = append(cols, ColumnRefID)
	}
	if v.List != nil {
		cols = append(cols, ColumnList)
	}
	return cols
}

// FieldItem is one named, typed entry of a StructuredRecord.
type FieldItem struct {
	RecordID       int64    `json:"businessId,omitempty"`
	FieldID        int64    `json:"fieldId"`
	FieldName      string   `json:"fieldName"`
	DisplayName    string   `json:"displayName"`
	Description    string   `json:"description,omitempty"`
	DataType       DataType `json:"dataType"`
	Sort           int      `json:"sort"`
	IsHidden       bool     `json:"isHidden"`
	IsDisplayField bool     `json:"isDisplayField"`
	Value          any      `json:"value"`
}

// StructuredRecord is the caller-facing shape of a record: its header plus
// an ordered list of decoded field items. It is rebuilt on every read.
type StructuredRecord struct {
	Record
	Items []FieldItem `json:"fields"`
}

// Item returns the field item with the given name (case-insensitive).
func (r StructuredRecord) Item(name string) (FieldItem, bool) {
	for _, item := range r.Items {
		if strings.EqualFold(item.FieldName, name) {
			return item, true
		}
	}
	return FieldItem{}, false
}

// Map flattens the record's items into a name to value map.
func (r StructuredRecord) Map() map[string]any {
	out := make(map[string]any, len(r.Items))
	for _, item := range r.Items {
		out[item.FieldName] = item.Value
	}
	return out
}
