package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	return rv.Interface()
}

// ToString renders any scalar as text. It is the canonical text form used
// for pattern operands.
func ToString(raw any) string {
	s, _ := parseString(raw)
	return s.(string)
}

func parseString(raw any) (any, bool) {
	if isNil(raw) {
		return "", true
	}
	switch v := deref(raw).(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.Number:
		return v.String(), true
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s, true
		}
		return string(v), true
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return v.String(), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), true
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v), true
		}
		return string(b), true
	}
}

func parseFloat(raw any) (any, bool) {
	switch v := deref(raw).(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return float64(1), true
		}
		return float64(0), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return float64(0), false
		}
		return f, true
	}
	return float64(0), false
}

func parseInt64(raw any) (any, bool) {
	switch v := deref(raw).(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return int64(0), false
		}
		return int64(v), true
	case float64:
		return floatToInt64(v)
	case float32:
		return floatToInt64(float64(v))
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return floatToInt64(f)
		}
		return int64(0), false
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatToInt64(f)
		}
		return int64(0), false
	case map[string]any:
		if id, ok := v["id"]; ok {
			return parseInt64(id)
		}
	}
	return int64(0), false
}

// floatToInt64 truncates f, rejecting NaN and values outside the int64 range.
// The upper bound is 2^63 itself because float64(math.MaxInt64) rounds up to it.
func floatToInt64(f float64) (any, bool) {
	if math.IsNaN(f) || f < -9.223372036854775808e18 || f >= 9.223372036854775808e18 {
		return int64(0), false
	}
	return int64(f), true
}

func parseBool(raw any) (any, bool) {
	switch v := deref(raw).(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y", "on", "t":
			return true, true
		case "false", "0", "no", "n", "off", "f", "":
			return false, true
		}
		return false, false
	case json.Number:
		f, err := v.Float64()
		return f != 0, err == nil
	}
	if f, ok := parseFloat(raw); ok {
		return f.(float64) != 0, true
	}
	return false, false
}

func parseTime(raw any) (any, bool) {
	normalize := func(t time.Time) time.Time { return t.UTC().Truncate(time.Microsecond) }
	switch v := deref(raw).(type) {
	case time.Time:
		if v.IsZero() {
			return nil, false
		}
		return normalize(v), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return normalize(t), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return normalize(unixTime(n)), true
		}
		return nil, false
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return normalize(unixTime(n)), true
		}
		return nil, false
	}
	if n, ok := parseInt64(raw); ok {
		return normalize(unixTime(n.(int64))), true
	}
	return nil, false
}

// unixTime treats values beyond year 33658 in seconds as milliseconds.
func unixTime(n int64) time.Time {
	if n > 1e12 || n < -1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

func parseJSON(raw any) (any, bool) {
	switch v := deref(raw).(type) {
	case json.RawMessage:
		return compactJSON(v)
	case []byte:
		return compactJSON(v)
	case string:
		return compactJSON([]byte(v))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		return json.RawMessage(b), true
	}
}

func parseStringList(raw any) (any, bool) {
	if s, ok := deref(raw).(string); ok {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return json.RawMessage("[]"), true
		}
		if !strings.HasPrefix(trimmed, "[") {
			b, _ := json.Marshal([]string{s})
			return json.RawMessage(b), true
		}
	}
	return parseJSON(raw)
}

func compactJSON(b []byte) (any, bool) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(b)); err != nil {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}
