// Package condition compiles condition trees into parameterized SQL
// fragments and in-memory predicates.
//
// Two targets share one operator table. The EAV target addresses the typed
// value table, picking the physical column from the field's data type and
// guarding every leaf with field_name = '<name>'. The direct target
// addresses a conventional table whose columns are named after the fields
// and accepts a narrower operator set.
package condition

import (
	"fmt"
	"regexp"
	"strings"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// Mode selects the compile target.
type Mode int

// Compile targets.
const (
	ModeEAV Mode = iota
	ModeDirect
)

func (m Mode) String() string {
	if m == ModeDirect {
		return "direct"
	}
	return "eav"
}

// ParseMode resolves "eav" or "direct".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "eav":
		return ModeEAV, nil
	case "direct":
		return ModeDirect, nil
	default:
		return ModeEAV, fmt.Errorf("unknown compile mode %q", s)
	}
}

// FieldNameColumn is the value-table column holding the denormalized field name.
const FieldNameColumn = "field_name"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LeafWrapper rewrites the guarded fragment of a non-identity EAV leaf, for
// example into a semi-join from the record table. It may bind further
// parameters on p.
type LeafWrapper func(leaf domain.Condition, fragment string, p *Params) string

// ColumnFunc maps a field to its column in direct mode. ok=false marks the
// field as unknown.
type ColumnFunc func(field string, t domain.DataType) (column string, ok bool)

// Options tune the emitted SQL.
type Options struct {
	Mode Mode
	// Table prefixes every column, e.g. "v" yields v.double_value.
	Table string
	// LikeOperator is the case-insensitive match keyword. Defaults to ILIKE.
	LikeOperator string
	// IDColumn addresses the record identity. Defaults to record_id in EAV
	// mode and id in direct mode.
	IDColumn   string
	ColumnFunc ColumnFunc
	Wrap       LeafWrapper
}

// Result is a compiled fragment with its parameter table. An empty SQL
// string means "no filter".
type Result struct {
	SQL    string
	Params *Params
}

// Compiler compiles condition trees against one field catalog.
type Compiler struct {
	resolver domain.FieldResolver
	opts     Options
	target   target
}

// target is the part of leaf compilation that differs between modes.
type target struct {
	allowed func(domain.Operator) bool
	column  func(c *Compiler, leaf domain.Condition, t domain.DataType) (string, bool)
	guard   func(c *Compiler, leaf domain.Condition, fragment string) string
}

var eavTarget = target{
	allowed: func(op domain.Operator) bool {
		_, ok := operators[op]
		return ok
	},
	column: func(c *Compiler, _ domain.Condition, t domain.DataType) (string, bool) {
		return c.qualify(string(convert.ColumnFor(t))), true
	},
	guard: func(c *Compiler, leaf domain.Condition, fragment string) string {
		return "(" + c.qualify(FieldNameColumn) + " = " + quoteLiteral(leaf.Field) + " AND " + fragment + ")"
	},
}

var directTarget = target{
	allowed: func(op domain.Operator) bool { return directOperators[op] },
	column: func(c *Compiler, leaf domain.Condition, t domain.DataType) (string, bool) {
		if c.opts.ColumnFunc != nil {
			return c.opts.ColumnFunc(leaf.Field, t)
		}
		if !identifierPattern.MatchString(leaf.Field) {
			return "", false
		}
		return c.qualify(leaf.Field), true
	},
	guard: func(_ *Compiler, _ domain.Condition, fragment string) string { return fragment },
}

// New returns a compiler resolving field types through resolver.
func New(resolver domain.FieldResolver, opts Options) *Compiler {
	if opts.LikeOperator == "" {
		opts.LikeOperator = "ILIKE"
	}
	c := &Compiler{resolver: resolver, opts: opts, target: eavTarget}
	if opts.Mode == ModeDirect {
		c.target = directTarget
	}
	if c.opts.IDColumn == "" {
		if opts.Mode == ModeDirect {
			c.opts.IDColumn = c.qualify("id")
		} else {
			c.opts.IDColumn = c.qualify("record_id")
		}
	}
	return c
}

// Mode reports the compile target.
func (c *Compiler) Mode() Mode { return c.opts.Mode }

// Compile walks cond and returns the fragment and its parameters.
func (c *Compiler) Compile(cond domain.Condition) (Result, error) {
	p := NewParams()
	sql, err := c.compileNode(cond, p)
	if err != nil {
		return Result{}, err
	}
	return Result{SQL: sql, Params: p}, nil
}

func (c *Compiler) compileNode(n domain.Condition, p *Params) (string, error) {
	if n.IsLeaf() {
		return c.compileLeaf(n, p)
	}
	logic := n.Logic
	if logic == domain.LogicUnset {
		logic = domain.LogicAnd
	}
	var expr string
	var prev domain.Logic
	count := 0
	for _, child := range n.Children {
		frag, err := c.compileNode(child, p)
		if err != nil {
			return "", err
		}
		if frag == "" {
			continue
		}
		if count == 0 {
			expr = frag
			count++
			continue
		}
		join := child.Join
		if join == domain.LogicUnset {
			join = logic
		}
		if count > 1 && join != prev {
			expr = "(" + expr + ")"
		}
		expr += " " + join.String() + " " + frag
		prev = join
		count++
	}
	if count == 0 {
		return "", nil
	}
	return "(" + expr + ")", nil
}

func (c *Compiler) compileLeaf(leaf domain.Condition, p *Params) (string, error) {
	op, err := c.operatorFor(leaf)
	if err != nil {
		return "", err
	}
	leaf = c.canonical(leaf)
	lc, ok := c.leafContext(leaf)
	if !ok {
		return AlwaysFalse, nil
	}
	frag, ok := op.emit(lc, p)
	if !ok {
		return AlwaysFalse, nil
	}
	if leaf.IsIdentity() {
		return frag, nil
	}
	frag = c.target.guard(c, leaf, frag)
	if c.opts.Mode == ModeEAV && c.opts.Wrap != nil {
		frag = c.opts.Wrap(leaf, frag, p)
	}
	return frag, nil
}

func (c *Compiler) operatorFor(leaf domain.Condition) (operator, error) {
	op, ok := operators[leaf.Operator]
	if !ok || !c.target.allowed(leaf.Operator) {
		return operator{}, domain.ErrUnsupportedOperator{Operator: leaf.Operator, Mode: c.opts.Mode.String()}
	}
	return op, nil
}

// leafContext resolves the leaf's type and column. ok=false means the field
// is unknown and the leaf cannot match.
func (c *Compiler) leafContext(leaf domain.Condition) (leafContext, bool) {
	t, ok := c.resolveType(leaf)
	if !ok {
		return leafContext{}, false
	}
	lc := leafContext{leaf: leaf, conv: convert.For(t), like: c.opts.LikeOperator}
	if leaf.IsIdentity() {
		lc.column = c.opts.IDColumn
		return lc, true
	}
	col, ok := c.target.column(c, leaf, t)
	if !ok {
		return leafContext{}, false
	}
	lc.column = col
	return lc, true
}

// resolveType applies the explicit override first, then the identity
// special case, then the catalog.
func (c *Compiler) resolveType(leaf domain.Condition) (domain.DataType, bool) {
	if leaf.Type != domain.DataTypeUnknown {
		return leaf.Type, true
	}
	if leaf.IsIdentity() {
		return domain.DataTypeIdentity, true
	}
	if c.resolver == nil || strings.TrimSpace(leaf.Field) == "" {
		return domain.DataTypeUnknown, false
	}
	return c.resolver.ResolveFieldType(leaf.Field)
}

// canonical rewrites the leaf's field to the resolver's spelling so the
// field_name guard matches the stored rows whatever case the caller used.
func (c *Compiler) canonical(leaf domain.Condition) domain.Condition {
	if leaf.IsIdentity() {
		return leaf
	}
	namer, ok := c.resolver.(domain.FieldNamer)
	if !ok {
		return leaf
	}
	if name, ok := namer.CanonicalFieldName(leaf.Field); ok {
		leaf.Field = name
	}
	return leaf
}

func (c *Compiler) qualify(column string) string {
	if c.opts.Table == "" {
		return column
	}
	return c.opts.Table + "." + column
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
