package convert

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fieldcore/pkg/domain"
)

// Typed is a value resolved once against its data type. Downstream code
// switches on Type and never re-inspects the raw input.
type Typed struct {
	Type  domain.DataType
	Value any
}

// Resolve converts raw into the canonical form of t.
func Resolve(t domain.DataType, raw any) Typed {
	return Typed{Type: t, Value: For(t).Convert(raw)}
}

// Column returns the physical column the value belongs to.
func (t Typed) Column() domain.Column {
	return ColumnFor(t.Type)
}

// Strict converts raw like Convert but reports input that would silently
// fall back to the type default.
func Strict(t domain.DataType, raw any) (any, error) {
	if isNil(raw) {
		return nil, nil
	}
	c, ok := registry[t]
	if !ok {
		c = textConverter(t, domain.ColumnLongText)
	}
	v, ok := c.parse(raw)
	if !ok {
		return nil, fmt.Errorf("convert %v to %s", raw, t)
	}
	return v, nil
}

// TimeRange is the canonical payload of a time range field.
type TimeRange struct {
	Start *time.Time `json:"startDate"`
	End   *time.Time `json:"endDate"`
}

func parseTimeRange(raw any) (any, bool) {
	var tr TimeRange
	switch v := deref(raw).(type) {
	case TimeRange:
		tr = v
	case json.RawMessage:
		return parseTimeRangeJSON(v)
	case []byte:
		return parseTimeRangeJSON(v)
	case string:
		return parseTimeRangeJSON([]byte(v))
	case map[string]any:
		for k, val := range v {
			switch strings.ToLower(k) {
			case "startdate", "start", "from":
				if t, ok := parseTime(val); ok {
					tt := t.(time.Time)
					tr.Start = &tt
				}
			case "enddate", "end", "to":
				if t, ok := parseTime(val); ok {
					tt := t.(time.Time)
					tr.End = &tt
				}
			}
		}
	case []any:
		if len(v) != 2 {
			return nil, false
		}
		return parseTimeRange(map[string]any{"startDate": v[0], "endDate": v[1]})
	default:
		return nil, false
	}
	if tr.Start != nil {
		s := tr.Start.UTC().Truncate(time.Microsecond)
		tr.Start = &s
	}
	if tr.End != nil {
		e := tr.End.UTC().Truncate(time.Microsecond)
		tr.End = &e
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return nil, false
	}
	return json.RawMessage(b), true
}

func parseTimeRangeJSON(b []byte) (any, bool) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	return parseTimeRange(m)
}

// Compare orders two canonical values of the same type. ok is false when
// the values are not comparable.
func Compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return cmp.Compare(av, bv), true
	case int64:
		bv, ok := b.(int64)
		if !ok {
			return 0, false
		}
		return cmp.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	case json.RawMessage:
		bv, ok := b.(json.RawMessage)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av, bv), true
	}
	return 0, false
}
