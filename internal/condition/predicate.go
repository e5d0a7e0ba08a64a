package condition

import (
	"strings"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// Row is what a predicate evaluates against.
type Row interface {
	ID() int64
	// Lookup returns the field's value. ok=false means the row has no such
	// field, which matches nothing, the same as a missing value row in SQL.
	Lookup(field string) (value any, ok bool)
}

// Predicate reports whether a row satisfies a compiled condition.
type Predicate func(Row) bool

// CompilePredicate compiles cond into an in-memory predicate with the same
// semantics as the SQL fragment: empty composites are skipped, unknown
// fields and malformed operands never match, and a NULL value only
// satisfies the null checks.
func (c *Compiler) CompilePredicate(cond domain.Condition) (Predicate, error) {
	pred, err := c.predicateNode(cond)
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return func(Row) bool { return true }, nil
	}
	return pred, nil
}

func (c *Compiler) predicateNode(n domain.Condition) (Predicate, error) {
	if n.IsLeaf() {
		return c.predicateLeaf(n)
	}
	logic := n.Logic
	if logic == domain.LogicUnset {
		logic = domain.LogicAnd
	}
	type step struct {
		join domain.Logic
		pred Predicate
	}
	var steps []step
	for _, child := range n.Children {
		pred, err := c.predicateNode(child)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			continue
		}
		join := child.Join
		if join == domain.LogicUnset {
			join = logic
		}
		steps = append(steps, step{join: join, pred: pred})
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return func(r Row) bool {
		acc := steps[0].pred(r)
		for _, s := range steps[1:] {
			if s.join == domain.LogicOr {
				acc = acc || s.pred(r)
			} else {
				acc = acc && s.pred(r)
			}
		}
		return acc
	}, nil
}

func (c *Compiler) predicateLeaf(leaf domain.Condition) (Predicate, error) {
	op, err := c.operatorFor(leaf)
	if err != nil {
		return nil, err
	}
	never := func(Row) bool { return false }
	lc, ok := c.leafContext(leaf)
	if !ok {
		return never, nil
	}
	eval, ok := op.prepare(lc)
	if !ok {
		return never, nil
	}
	conv := lc.conv
	if leaf.IsIdentity() {
		return func(r Row) bool { return eval(conv.Convert(r.ID())) }, nil
	}
	field := leaf.Field
	return func(r Row) bool {
		raw, ok := r.Lookup(field)
		if !ok {
			return false
		}
		return eval(conv.Convert(raw))
	}, nil
}

// ValuesRow adapts a record's value rows for predicate evaluation.
type ValuesRow struct {
	RecordID int64
	values   map[string]any
}

// NewValuesRow decodes values through their converters. Field names match
// case-insensitively.
func NewValuesRow(recordID int64, values []domain.Value) ValuesRow {
	row := ValuesRow{RecordID: recordID, values: make(map[string]any, len(values))}
	for i := range values {
		v := values[i]
		row.values[strings.ToLower(v.FieldName)] = convert.For(v.DataType).Get(&v)
	}
	return row
}

// ID implements Row.
func (r ValuesRow) ID() int64 { return r.RecordID }

// Lookup implements Row.
func (r ValuesRow) Lookup(field string) (any, bool) {
	v, ok := r.values[strings.ToLower(field)]
	return v, ok
}

// MapRow adapts a plain field map, as used with direct-mode predicates.
type MapRow struct {
	RowID  int64
	Fields map[string]any
}

// ID implements Row.
func (r MapRow) ID() int64 { return r.RowID }

// Lookup implements Row.
func (r MapRow) Lookup(field string) (any, bool) {
	if v, ok := r.Fields[field]; ok {
		return v, true
	}
	for k, v := range r.Fields {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return nil, false
}
