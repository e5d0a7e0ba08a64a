package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlatCondition is the per-field list form of a query: every entry holds the
// expressions for one field, and Logical joins the entry with the NEXT one.
type FlatCondition struct {
	FieldName   string           `json:"fieldName"`
	Expressions []FlatExpression `json:"customExpList"`
	Logical     FlatLogical      `json:"logical"`
}

// FlatExpression is one comparison inside a FlatCondition. Logical joins it
// with the next expression on the same field.
type FlatExpression struct {
	Operation FlatOperation `json:"operation"`
	Value     any           `json:"value"`
	Logical   FlatLogical   `json:"logical"`
}

// FlatLogical is the join of the flat form. When unset, expressions on one
// field join with OR and entries join with AND.
type FlatLogical int

// Flat join values.
const (
	FlatUnset FlatLogical = iota
	FlatOr
	FlatAnd
)

func (l FlatLogical) logic(fallback Logic) Logic {
	switch l {
	case FlatAnd:
		return LogicAnd
	case FlatOr:
		return LogicOr
	default:
		return fallback
	}
}

// UnmarshalJSON accepts the stored codes 0 (or) and 1 (and) as well as "or"/"and".
func (l *FlatLogical) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	text, code, err := decodeCode(data)
	if err != nil {
		return err
	}
	switch {
	case text == "" && code == 1:
		*l = FlatAnd
	case text == "" && code == 0:
		*l = FlatOr
	default:
		parsed, ok := ParseLogic(text)
		if !ok || parsed == LogicUnset {
			return fmt.Errorf("flat logical %q is not and/or", text)
		}
		if parsed == LogicAnd {
			*l = FlatAnd
		} else {
			*l = FlatOr
		}
	}
	return nil
}

// FlatOperation is the operator token of the flat form.
type FlatOperation string

var flatOperationCodes = []FlatOperation{"in", "is", "=", ">", "<", ">=", "<>", "<=", "ilike", "intelligence"}

// UnmarshalJSON accepts the operator token or its numeric position.
func (o *FlatOperation) UnmarshalJSON(data []byte) error {
	text, code, err := decodeCode(data)
	if err != nil {
		return err
	}
	if text == "" {
		if code < 0 || code >= len(flatOperationCodes) {
			return fmt.Errorf("flat operation code %d is unknown", code)
		}
		*o = flatOperationCodes[code]
		return nil
	}
	*o = FlatOperation(strings.ToLower(strings.TrimSpace(text)))
	return nil
}

func (o FlatOperation) operator(value any) Operator {
	switch o {
	case "is":
		if s, ok := value.(string); ok && strings.EqualFold(strings.TrimSpace(s), "not null") {
			return OpIsNotNull
		}
		return OpIsNull
	case "ilike":
		return OpContains
	default:
		return ParseOperator(string(o))
	}
}

// ParseFlatConditions decodes the flat list payload.
func ParseFlatConditions(data []byte) ([]FlatCondition, error) {
	var list []FlatCondition
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("parse flat conditions: %w", err)
	}
	return list, nil
}

// FromFlatConditions converts the flat list form into a condition tree.
// Each entry becomes a group whose members carry their predecessor's join,
// so the result compiles to the same left-to-right chain the flat form
// describes.
func FromFlatConditions(list []FlatCondition) Condition {
	root := And()
	var prev *FlatCondition
	for i := range list {
		entry := list[i]
		var leaves []Condition
		for j, exp := range entry.Expressions {
			leaf := Leaf(entry.FieldName, exp.Operation.operator(exp.Value), exp.Value)
			if j > 0 {
				leaf.Join = entry.Expressions[j-1].Logical.logic(LogicOr)
			}
			if leaf.Operator == OpIsNull || leaf.Operator == OpIsNotNull {
				leaf.Value = nil
			}
			leaves = append(leaves, leaf)
		}
		if len(leaves) == 0 {
			continue
		}
		node := leaves[0]
		if len(leaves) > 1 {
			node = And(leaves...)
		} else {
			node.Join = LogicUnset
		}
		if prev != nil {
			node.Join = prev.Logical.logic(LogicAnd)
		}
		root.Children = append(root.Children, node)
		prev = &list[i]
	}
	return root
}
