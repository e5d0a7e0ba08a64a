package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// legacyLogic maps the numeric logic codes of stored condition payloads.
// Codes 1 and 2 are composite logic; the rest are leaf operators.
var legacyLogic = map[int]Operator{
	3:  OpEqual,
	4:  OpNotEqual,
	5:  OpGreater,
	6:  OpGreaterOrEqual,
	7:  OpLess,
	8:  OpLessOrEqual,
	9:  OpIn,
	10: OpNotIn,
	11: OpContains,
	12: OpEndsWith,
	13: OpStartsWith,
	14: OpNotEqual,
	15: OpIsNullOrEmpty,
	16: OpIsNotNull,
	17: OpNotContains,
	18: OpIsNull,
	19: OpInLike,
	20: OpRange,
	21: Operator("within"),
	22: Operator("without"),
	32: OpIsNotNullOrEmpty,
}

type conditionWire struct {
	Logic      json.RawMessage `json:"logic,omitempty"`
	Conditions []Condition     `json:"conditions,omitempty"`
	Condition  []Condition     `json:"condition,omitempty"`
	Field      string          `json:"field,omitempty"`
	FieldName  string          `json:"fieldName,omitempty"`
	Type       json.RawMessage `json:"type,omitempty"`
	FieldType  json.RawMessage `json:"fieldType,omitempty"`
	Op         string          `json:"op,omitempty"`
	Operator   string          `json:"operator,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	FieldValue json.RawMessage `json:"fieldValue,omitempty"`
	Values     json.RawMessage `json:"values,omitempty"`
	Join       json.RawMessage `json:"join,omitempty"`
}

// UnmarshalJSON accepts the native payload
//
//	{"logic":"and","conditions":[{"field":"Budget","op":">=","value":1000,"join":"or"}]}
//
// as well as the numeric form used by stored payloads, where "logic" is 1/2
// on composites and an operator code on leaves, children are listed under
// "condition" and operands under "fieldValue". Numbers are kept as
// json.Number so large identifiers survive decoding.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var out Condition

	children := w.Conditions
	if children == nil {
		children = w.Condition
	}
	field := firstNonEmpty(w.Field, w.FieldName)

	logicText, logicCode, err := decodeCode(w.Logic)
	if err != nil {
		return fmt.Errorf("condition logic: %w", err)
	}
	if field == "" && (children != nil || logicCode == 1 || logicCode == 2 || logicText != "") {
		out.Children = children
		switch {
		case logicCode == 1:
			out.Logic = LogicAnd
		case logicCode == 2:
			out.Logic = LogicOr
		default:
			l, ok := ParseLogic(logicText)
			if !ok {
				return fmt.Errorf("condition logic %q is not and/or", logicText)
			}
			out.Logic = l
		}
		if out.Logic == LogicUnset {
			out.Logic = LogicAnd
		}
	} else {
		out.Field = field
		switch op := firstNonEmpty(w.Op, w.Operator); {
		case op != "":
			out.Operator = ParseOperator(op)
		case logicCode != 0:
			mapped, ok := legacyLogic[logicCode]
			if !ok {
				return fmt.Errorf("condition operator code %d is unknown", logicCode)
			}
			out.Operator = mapped
		default:
			out.Operator = ParseOperator(logicText)
		}
		t, err := decodeDataType(firstRaw(w.Type, w.FieldType))
		if err != nil {
			return err
		}
		out.Type = t
		if raw := firstRaw(w.Value, w.FieldValue); raw != nil {
			v, err := decodeAny(raw)
			if err != nil {
				return fmt.Errorf("condition value: %w", err)
			}
			out.Value = v
		}
		if w.Values != nil {
			v, err := decodeAny(w.Values)
			if err != nil {
				return fmt.Errorf("condition values: %w", err)
			}
			list, ok := v.([]any)
			if !ok && v != nil {
				return fmt.Errorf("condition values must be an array")
			}
			if list == nil {
				list = []any{}
			}
			out.Values = list
		}
	}

	joinText, joinCode, err := decodeCode(w.Join)
	if err != nil {
		return fmt.Errorf("condition join: %w", err)
	}
	switch {
	case joinCode == 1:
		out.Join = LogicAnd
	case joinCode == 2:
		out.Join = LogicOr
	default:
		l, ok := ParseLogic(joinText)
		if !ok {
			return fmt.Errorf("condition join %q is not and/or", joinText)
		}
		out.Join = l
	}

	*c = out
	return nil
}

// MarshalJSON emits the native payload form.
func (c Condition) MarshalJSON() ([]byte, error) {
	type leafOut struct {
		Field  string `json:"field"`
		Type   string `json:"type,omitempty"`
		Op     string `json:"op"`
		Value  any    `json:"value,omitempty"`
		Values []any  `json:"values,omitempty"`
		Join   string `json:"join,omitempty"`
	}
	type compositeOut struct {
		Logic      string      `json:"logic"`
		Conditions []Condition `json:"conditions"`
		Join       string      `json:"join,omitempty"`
	}
	join := strings.ToLower(c.Join.String())
	if c.IsLeaf() {
		out := leafOut{Field: c.Field, Op: string(c.Operator), Value: c.Value, Values: c.Values, Join: join}
		if c.Type != DataTypeUnknown {
			out.Type = c.Type.String()
		}
		return json.Marshal(out)
	}
	logic := c.Logic
	if logic == LogicUnset {
		logic = LogicAnd
	}
	children := c.Children
	if children == nil {
		children = []Condition{}
	}
	return json.Marshal(compositeOut{Logic: strings.ToLower(logic.String()), Conditions: children, Join: join})
}

// ParseCondition decodes a JSON condition payload.
func ParseCondition(data []byte) (Condition, error) {
	var c Condition
	if len(bytes.TrimSpace(data)) == 0 {
		return And(), nil
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Condition{}, fmt.Errorf("parse condition: %w", err)
	}
	return c, nil
}

// decodeCode reads a field that is either a string or an integer code.
func decodeCode(raw json.RawMessage) (string, int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", 0, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", 0, err
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return "", n, nil
		}
		return s, 0, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", 0, err
	}
	return "", n, nil
}

func decodeDataType(raw json.RawMessage) (DataType, error) {
	text, code, err := decodeCode(raw)
	if err != nil {
		return DataTypeUnknown, fmt.Errorf("condition type: %w", err)
	}
	if code != 0 {
		return DataType(code), nil
	}
	if text == "" {
		return DataTypeUnknown, nil
	}
	t, ok := ParseDataType(text)
	if !ok {
		return DataTypeUnknown, fmt.Errorf("condition type %q is unknown", text)
	}
	return t, nil
}

func decodeAny(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstRaw(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if len(bytes.TrimSpace(v)) > 0 {
			return v
		}
	}
	return nil
}
