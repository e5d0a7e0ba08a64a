package condition

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
)

// Params is the ordered parameter table of a compiled fragment. Names are
// assigned in bind order as p0, p1, ... and appear in the fragment as :p0, :p1.
type Params struct {
	names  []string
	values []any
}

// NewParams returns an empty parameter table.
func NewParams() *Params {
	return &Params{}
}

// Add binds v and returns its placeholder token.
func (p *Params) Add(v any) string {
	name := "p" + strconv.Itoa(len(p.names))
	p.names = append(p.names, name)
	p.values = append(p.values, bindable(v))
	return ":" + name
}

// Len reports the number of bound parameters.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.names)
}

// Names returns the parameter names in bind order.
func (p *Params) Names() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.names...)
}

// Value returns the value bound under name ("p0" or ":p0").
func (p *Params) Value(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	name = strings.TrimPrefix(name, ":")
	for i, n := range p.names {
		if n == name {
			return p.values[i], true
		}
	}
	return nil, false
}

// Args returns the bound values in bind order.
func (p *Params) Args() []any {
	if p == nil {
		return nil
	}
	return append([]any(nil), p.values...)
}

// NamedArgs returns the bound values as sql.NamedArg for drivers that accept
// :name placeholders directly.
func (p *Params) NamedArgs() []any {
	if p == nil {
		return nil
	}
	out := make([]any, len(p.names))
	for i, n := range p.names {
		out[i] = sql.Named(n, p.values[i])
	}
	return out
}

// Map returns the table as a name to value map.
func (p *Params) Map() map[string]any {
	out := make(map[string]any, p.Len())
	if p == nil {
		return out
	}
	for i, n := range p.names {
		out[n] = p.values[i]
	}
	return out
}

// Rebind rewrites every :pN placeholder of fragment to "?" and returns the
// matching positional arguments in occurrence order. Quoted literals are
// copied untouched.
func Rebind(fragment string, p *Params) (string, []any) {
	var b strings.Builder
	args := make([]any, 0, p.Len())
	inQuote := false
	for i := 0; i < len(fragment); i++ {
		ch := fragment[i]
		if ch == '\'' {
			inQuote = !inQuote
			b.WriteByte(ch)
			continue
		}
		if inQuote || ch != ':' || i+1 >= len(fragment) || fragment[i+1] != 'p' {
			b.WriteByte(ch)
			continue
		}
		j := i + 2
		for j < len(fragment) && fragment[j] >= '0' && fragment[j] <= '9' {
			j++
		}
		if j == i+2 {
			b.WriteByte(ch)
			continue
		}
		v, ok := p.Value(fragment[i+1 : j])
		if !ok {
			b.WriteString(fragment[i:j])
			i = j - 1
			continue
		}
		b.WriteByte('?')
		args = append(args, v)
		i = j - 1
	}
	return b.String(), args
}

func bindable(v any) any {
	switch t := v.(type) {
	case json.RawMessage:
		return string(t)
	case json.Number:
		return t.String()
	default:
		return v
	}
}
