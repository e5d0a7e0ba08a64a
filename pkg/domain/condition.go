package domain

import (
	"reflect"
	"strings"
)

// Logic combines conditions.
type Logic int

// Logic values. LogicUnset on a leaf means "inherit the parent's logic".
const (
	LogicUnset Logic = iota
	LogicAnd
	LogicOr
)

// String returns the SQL keyword for the logic operator.
func (l Logic) String() string {
	switch l {
	case LogicOr:
		return "OR"
	case LogicAnd:
		return "AND"
	default:
		return ""
	}
}

// ParseLogic accepts "and"/"or" and the symbolic forms "&&"/"||".
func ParseLogic(s string) (Logic, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and", "&&":
		return LogicAnd, true
	case "or", "||":
		return LogicOr, true
	case "":
		return LogicUnset, true
	default:
		return LogicUnset, false
	}
}

// Operator is the comparison a leaf applies to its field.
type Operator string

// Supported operators.
const (
	OpEqual            Operator = "="
	OpNotEqual         Operator = "!="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpIn               Operator = "in"
	OpNotIn            Operator = "not_in"
	OpContains         Operator = "contains"
	OpStartsWith       Operator = "starts_with"
	OpEndsWith         Operator = "ends_with"
	OpNotContains      Operator = "not_contains"
	OpIsNull           Operator = "is_null"
	OpIsNotNull        Operator = "is_not_null"
	OpIsNullOrEmpty    Operator = "is_null_or_empty"
	OpIsNotNullOrEmpty Operator = "is_not_null_or_empty"
	OpRange            Operator = "range"
	OpInLike           Operator = "in_like"
)

var operatorAliases = map[string]Operator{
	"=":                    OpEqual,
	"==":                   OpEqual,
	"eq":                   OpEqual,
	"equal":                OpEqual,
	"!=":                   OpNotEqual,
	"<>":                   OpNotEqual,
	"ne":                   OpNotEqual,
	"notequal":             OpNotEqual,
	"noequal":              OpNotEqual,
	">":                    OpGreater,
	"gt":                   OpGreater,
	"greaterthan":          OpGreater,
	">=":                   OpGreaterOrEqual,
	"gte":                  OpGreaterOrEqual,
	"greaterthanorequal":   OpGreaterOrEqual,
	"<":                    OpLess,
	"lt":                   OpLess,
	"lessthan":             OpLess,
	"<=":                   OpLessOrEqual,
	"lte":                  OpLessOrEqual,
	"lessthanorequal":      OpLessOrEqual,
	"in":                   OpIn,
	"not_in":               OpNotIn,
	"notin":                OpNotIn,
	"contains":             OpContains,
	"like":                 OpContains,
	"ilike":                OpContains,
	"starts_with":          OpStartsWith,
	"likeright":            OpStartsWith,
	"ends_with":            OpEndsWith,
	"likeleft":             OpEndsWith,
	"not_contains":         OpNotContains,
	"nolike":               OpNotContains,
	"is_null":              OpIsNull,
	"isnull":               OpIsNull,
	"is_not_null":          OpIsNotNull,
	"isnotnull":            OpIsNotNull,
	"is_null_or_empty":     OpIsNullOrEmpty,
	"isnullorempty":        OpIsNullOrEmpty,
	"is_not_null_or_empty": OpIsNotNullOrEmpty,
	"isnotnullandnotempty": OpIsNotNullOrEmpty,
	"range":                OpRange,
	"between":              OpRange,
	"in_like":              OpInLike,
	"inlike":               OpInLike,
}

// ParseOperator resolves an operator token or one of its aliases. Unknown
// tokens are returned verbatim so the compiler can reject them with context.
func ParseOperator(s string) Operator {
	key := strings.ToLower(strings.TrimSpace(s))
	if op, ok := operatorAliases[key]; ok {
		return op
	}
	return Operator(key)
}

// Condition is a node of a condition tree: either a composite grouping
// children under Logic, or a leaf comparing Field with Operator.
//
// Join on a node controls how it attaches to its preceding sibling. When
// unset the parent's Logic applies, which lets a flat list of leaves mix
// default AND with selective OR without nesting.
type Condition struct {
	Logic    Logic
	Children []Condition

	Field    string
	Type     DataType
	Operator Operator
	Value    any
	Values   []any

	Join Logic
}

// And groups children under AND.
func And(children ...Condition) Condition {
	return Condition{Logic: LogicAnd, Children: children}
}

// Or groups children under OR.
func Or(children ...Condition) Condition {
	return Condition{Logic: LogicOr, Children: children}
}

// Leaf builds a single comparison.
func Leaf(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// LeafValues builds a comparison against a set of operands.
func LeafValues(field string, op Operator, values ...any) Condition {
	if values == nil {
		values = []any{}
	}
	return Condition{Field: field, Operator: op, Values: values}
}

// WithJoin returns a copy of c that attaches to its preceding sibling with l.
func (c Condition) WithJoin(l Logic) Condition {
	c.Join = l
	return c
}

// WithType returns a copy of c with an explicit field type override.
func (c Condition) WithType(t DataType) Condition {
	c.Type = t
	return c
}

// IsLeaf reports whether c is a comparison rather than a grouping.
func (c Condition) IsLeaf() bool {
	return c.Field != "" || c.Operator != ""
}

// IsEmpty reports whether c is a composite without children.
func (c Condition) IsEmpty() bool {
	return !c.IsLeaf() && len(c.Children) == 0
}

// IsIdentity reports whether the leaf addresses the record's own id.
func (c Condition) IsIdentity() bool {
	return strings.EqualFold(c.Field, IdentityField)
}

// Operands returns the leaf's operand collection. Values wins over Value; a
// slice or array Value is expanded. ok is false when no collection was given.
func (c Condition) Operands() ([]any, bool) {
	if c.Values != nil {
		return c.Values, true
	}
	if c.Value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(c.Value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	default:
		return nil, false
	}
}

// Walk visits c and every descendant depth-first.
func (c Condition) Walk(fn func(Condition)) {
	fn(c)
	for _, child := range c.Children {
		child.Walk(fn)
	}
}

// Fields returns the distinct field names referenced by leaves of c.
func (c Condition) Fields() []string {
	seen := map[string]struct{}{}
	var out []string
	c.Walk(func(n Condition) {
		if !n.IsLeaf() {
			return
		}
		key := strings.ToLower(n.Field)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, n.Field)
	})
	return out
}
