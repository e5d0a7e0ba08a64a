package condition

import (
	"strings"

	"fieldcore/internal/convert"
	"fieldcore/pkg/domain"
)

// AlwaysFalse is emitted for leaves that cannot match: unknown fields,
// empty candidate sets and malformed operands.
const AlwaysFalse = "1 = 0"

// leafContext is what an operator sees of the leaf it compiles: the resolved
// column and converter plus the operands already converted to canonical form.
type leafContext struct {
	leaf   domain.Condition
	column string
	conv   convert.Converter
	like   string
}

func (lc leafContext) single() any {
	if lc.leaf.Value == nil && len(lc.leaf.Values) == 1 {
		return lc.conv.Convert(lc.leaf.Values[0])
	}
	return lc.conv.Convert(lc.leaf.Value)
}

// text is the single string operand of a pattern leaf, accepting a lone
// element of Values the way single does.
func (lc leafContext) text() (string, bool) {
	v := lc.leaf.Value
	if v == nil && len(lc.leaf.Values) == 1 {
		v = lc.leaf.Values[0]
	}
	if v == nil {
		return "", false
	}
	return convert.ToString(v), true
}

func (lc leafContext) list() ([]any, bool) {
	raw, ok := lc.leaf.Operands()
	if !ok {
		return nil, false
	}
	out := make([]any, len(raw))
	for i, v := range raw {
		out[i] = lc.conv.Convert(v)
	}
	return out, true
}

func (lc leafContext) patterns() ([]string, bool) {
	raw, ok := lc.leaf.Operands()
	if !ok {
		if lc.leaf.Value == nil {
			return nil, false
		}
		raw = []any{lc.leaf.Value}
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		out[i] = convert.ToString(v)
	}
	return out, true
}

// likeEscape makes the LIKE wildcards in an operand match literally. Emitted
// patterns pair it with likeEscapeClause.
var likeEscape = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const likeEscapeClause = ` ESCAPE '\'`

func (lc leafContext) isString() bool {
	return lc.conv.Column().IsString() && lc.conv.DataType() != domain.DataTypeIdentity
}

// operator pairs the SQL emitter of an operator with its in-memory evaluator.
// An emitter returns ok=false for operands it cannot compile; the leaf then
// becomes AlwaysFalse. prepare does the same check for predicates and
// returns the evaluator bound to the converted operands.
type operator struct {
	emit    func(lc leafContext, p *Params) (string, bool)
	prepare func(lc leafContext) (func(actual any) bool, bool)
}

var operators = map[domain.Operator]operator{
	domain.OpEqual:            comparison("=", func(c int) bool { return c == 0 }),
	domain.OpNotEqual:         comparison("!=", func(c int) bool { return c != 0 }),
	domain.OpGreater:          comparison(">", func(c int) bool { return c > 0 }),
	domain.OpGreaterOrEqual:   comparison(">=", func(c int) bool { return c >= 0 }),
	domain.OpLess:             comparison("<", func(c int) bool { return c < 0 }),
	domain.OpLessOrEqual:      comparison("<=", func(c int) bool { return c <= 0 }),
	domain.OpIn:               membership(false),
	domain.OpNotIn:            membership(true),
	domain.OpContains:         pattern(false, func(s string) string { return "%" + s + "%" }, strings.Contains),
	domain.OpStartsWith:       pattern(false, func(s string) string { return s + "%" }, strings.HasPrefix),
	domain.OpEndsWith:         pattern(false, func(s string) string { return "%" + s }, strings.HasSuffix),
	domain.OpNotContains:      pattern(true, func(s string) string { return "%" + s + "%" }, strings.Contains),
	domain.OpIsNull:           nullCheck(false, false),
	domain.OpIsNotNull:        nullCheck(true, false),
	domain.OpIsNullOrEmpty:    nullCheck(false, true),
	domain.OpIsNotNullOrEmpty: nullCheck(true, true),
	domain.OpRange:            between(),
	domain.OpInLike:           inLike(),
}

// directOperators is the subset accepted against conventional tables.
var directOperators = map[domain.Operator]bool{
	domain.OpEqual:          true,
	domain.OpNotEqual:       true,
	domain.OpGreater:        true,
	domain.OpGreaterOrEqual: true,
	domain.OpLess:           true,
	domain.OpLessOrEqual:    true,
	domain.OpRange:          true,
	domain.OpIn:             true,
	domain.OpContains:       true,
	domain.OpStartsWith:     true,
	domain.OpEndsWith:       true,
}

func comparison(token string, accept func(int) bool) operator {
	return operator{
		emit: func(lc leafContext, p *Params) (string, bool) {
			v := lc.single()
			if v == nil {
				return "", false
			}
			return lc.column + " " + token + " " + p.Add(v), true
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			want := lc.single()
			if want == nil {
				return nil, false
			}
			return func(actual any) bool {
				c, ok := convert.Compare(actual, want)
				return ok && accept(c)
			}, true
		},
	}
}

func membership(negate bool) operator {
	keyword := " IN ("
	if negate {
		keyword = " NOT IN ("
	}
	return operator{
		emit: func(lc leafContext, p *Params) (string, bool) {
			values, ok := lc.list()
			if !ok || len(values) == 0 {
				return "", false
			}
			tokens := make([]string, len(values))
			for i, v := range values {
				tokens[i] = p.Add(v)
			}
			return lc.column + keyword + strings.Join(tokens, ", ") + ")", true
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			values, ok := lc.list()
			if !ok || len(values) == 0 {
				return nil, false
			}
			return func(actual any) bool {
				if actual == nil {
					return false
				}
				for _, v := range values {
					if c, ok := convert.Compare(actual, v); ok && c == 0 {
						return !negate
					}
				}
				return negate
			}, true
		},
	}
}

func pattern(negate bool, wrap func(string) string, match func(s, substr string) bool) operator {
	return operator{
		emit: func(lc leafContext, p *Params) (string, bool) {
			text, ok := lc.text()
			if !ok || !lc.isString() {
				return "", false
			}
			keyword := " " + lc.like + " "
			if negate {
				keyword = " NOT " + lc.like + " "
			}
			return lc.column + keyword + p.Add(wrap(likeEscape.Replace(text))) + likeEscapeClause, true
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			text, ok := lc.text()
			if !ok || !lc.isString() {
				return nil, false
			}
			needle := strings.ToLower(text)
			return func(actual any) bool {
				if actual == nil {
					return false
				}
				return match(strings.ToLower(convert.ToString(actual)), needle) != negate
			}, true
		},
	}
}

func nullCheck(negate, orEmpty bool) operator {
	return operator{
		emit: func(lc leafContext, _ *Params) (string, bool) {
			empty := orEmpty && lc.isString()
			switch {
			case !negate && empty:
				return "(" + lc.column + " IS NULL OR " + lc.column + " = '')", true
			case negate && empty:
				return "(" + lc.column + " IS NOT NULL AND " + lc.column + " != '')", true
			case negate:
				return lc.column + " IS NOT NULL", true
			default:
				return lc.column + " IS NULL", true
			}
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			empty := orEmpty && lc.isString()
			return func(actual any) bool {
				isNull := actual == nil
				if !isNull && empty {
					s, ok := actual.(string)
					isNull = ok && s == ""
				}
				return isNull != negate
			}, true
		},
	}
}

func between() operator {
	bounds := func(lc leafContext) (any, any, bool) {
		values, ok := lc.list()
		if !ok || len(values) != 2 || values[0] == nil || values[1] == nil {
			return nil, nil, false
		}
		return values[0], values[1], true
	}
	return operator{
		emit: func(lc leafContext, p *Params) (string, bool) {
			lo, hi, ok := bounds(lc)
			if !ok {
				return "", false
			}
			return lc.column + " BETWEEN " + p.Add(lo) + " AND " + p.Add(hi), true
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			lo, hi, ok := bounds(lc)
			if !ok {
				return nil, false
			}
			return func(actual any) bool {
				a, okA := convert.Compare(actual, lo)
				b, okB := convert.Compare(actual, hi)
				return okA && okB && a >= 0 && b <= 0
			}, true
		},
	}
}

func inLike() operator {
	return operator{
		emit: func(lc leafContext, p *Params) (string, bool) {
			candidates, ok := lc.patterns()
			if !ok || len(candidates) == 0 || !lc.isString() {
				return "", false
			}
			parts := make([]string, len(candidates))
			for i, c := range candidates {
				parts[i] = lc.column + " " + lc.like + " " + p.Add("%"+likeEscape.Replace(c)+"%") + likeEscapeClause
			}
			return "(" + strings.Join(parts, " OR ") + ")", true
		},
		prepare: func(lc leafContext) (func(any) bool, bool) {
			candidates, ok := lc.patterns()
			if !ok || len(candidates) == 0 || !lc.isString() {
				return nil, false
			}
			for i := range candidates {
				candidates[i] = strings.ToLower(candidates[i])
			}
			return func(actual any) bool {
				if actual == nil {
					return false
				}
				s := strings.ToLower(convert.ToString(actual))
				for _, c := range candidates {
					if strings.Contains(s, c) {
						return true
					}
				}
				return false
			}, true
		},
	}
}
