package sqlstore

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the two knobs that differ between the shipped backends.
type Dialect struct {
	Name string
	// Placeholder is the positional placeholder style of the driver.
	Placeholder sq.PlaceholderFormat
	// LikeOperator is the case-insensitive pattern keyword.
	LikeOperator string
	// textTime stores timestamps as fixed-width UTC text.
	textTime bool
}

// Supported dialects.
var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question, LikeOperator: "LIKE", textTime: true}
	Postgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, LikeOperator: "ILIKE"}
)

// timeLayout sorts lexically for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var timeLayouts = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

// bindTime converts t into the dialect's storage form.
func (d Dialect) bindTime(t time.Time) any {
	t = t.UTC()
	if d.textTime {
		return t.Format(timeLayout)
	}
	return t
}

// bindArgs rewrites time arguments for the dialect.
func (d Dialect) bindArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case time.Time:
			out[i] = d.bindTime(v)
		case *time.Time:
			if v == nil {
				out[i] = nil
			} else {
				out[i] = d.bindTime(*v)
			}
		default:
			out[i] = a
		}
	}
	return out
}

// scanTime reads a timestamp column stored either natively or as text.
type scanTime struct {
	Time  time.Time
	Valid bool
}

func (t *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *scanTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("scan time: cannot parse %q", s)
}

func (t scanTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
