package condition

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcore/pkg/domain"
)

type catalog map[string]domain.DataType

func (c catalog) ResolveFieldType(name string) (domain.DataType, bool) {
	for k, t := range c {
		if strings.EqualFold(k, name) {
			return t, true
		}
	}
	return domain.DataTypeUnknown, false
}

var testCatalog = catalog{
	"Budget": domain.DataTypeNumber,
	"Status": domain.DataTypeShortText,
	"Email":  domain.DataTypeEmail,
	"Tags":   domain.DataTypeStringList,
	"Active": domain.DataTypeBoolean,
}

func compileEAV(t *testing.T, cond domain.Condition) Result {
	t.Helper()
	res, err := New(testCatalog, Options{}).Compile(cond)
	require.NoError(t, err)
	return res
}

// namedCatalog also reports the stored spelling of a field.
type namedCatalog struct{ catalog }

func (c namedCatalog) CanonicalFieldName(name string) (string, bool) {
	for k := range c.catalog {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

func TestCompileGuardUsesCanonicalFieldName(t *testing.T) {
	res, err := New(namedCatalog{testCatalog}, Options{}).Compile(domain.And(
		domain.Leaf("budget", domain.OpGreaterOrEqual, 1000),
		domain.Leaf("STATUS", domain.OpEqual, "Active"),
		domain.LeafValues("ID", domain.OpIn, 7),
	))
	require.NoError(t, err)
	assert.Equal(t, "((field_name = 'Budget' AND double_value >= :p0) AND "+
		"(field_name = 'Status' AND varchar500_value = :p1) AND record_id IN (:p2))", res.SQL)

	direct, err := New(namedCatalog{testCatalog}, Options{Mode: ModeDirect}).Compile(domain.Leaf("budget", domain.OpEqual, 5))
	require.NoError(t, err)
	assert.Equal(t, "Budget = :p0", direct.SQL)

	unknown, err := New(namedCatalog{testCatalog}, Options{}).Compile(domain.Leaf("ghost", domain.OpEqual, 1))
	require.NoError(t, err)
	assert.Equal(t, AlwaysFalse, unknown.SQL)
}

func TestCompileLeafGuardsFieldName(t *testing.T) {
	res := compileEAV(t, domain.Leaf("Budget", domain.OpGreaterOrEqual, 1000))
	assert.Equal(t, "(field_name = 'Budget' AND double_value >= :p0)", res.SQL)
	v, ok := res.Params.Value("p0")
	require.True(t, ok)
	assert.Equal(t, float64(1000), v)
}

func TestCompileEmptyCompositeIsIdentity(t *testing.T) {
	leaf := domain.Leaf("Status", domain.OpEqual, "Active")
	with := compileEAV(t, domain.And(leaf, domain.And(), domain.Or(domain.And())))
	without := compileEAV(t, domain.And(leaf))
	assert.Equal(t, without.SQL, with.SQL)
	assert.Equal(t, without.Params.Map(), with.Params.Map())

	empty := compileEAV(t, domain.And())
	assert.Equal(t, "", empty.SQL)
	assert.Zero(t, empty.Params.Len())
}

func TestCompileEmptyMembershipIsAlwaysFalse(t *testing.T) {
	for _, op := range []domain.Operator{domain.OpIn, domain.OpNotIn} {
		res := compileEAV(t, domain.And(domain.LeafValues("id", op)))
		assert.Equal(t, "("+AlwaysFalse+")", res.SQL)
		assert.NotContains(t, res.SQL, "IN ()")
		assert.Zero(t, res.Params.Len())
	}
}

func TestCompileMembershipBindsEachCandidate(t *testing.T) {
	res := compileEAV(t, domain.LeafValues("Status", domain.OpIn, "a", "b"))
	assert.Equal(t, "(field_name = 'Status' AND varchar500_value IN (:p0, :p1))", res.SQL)
	assert.Equal(t, []any{"a", "b"}, res.Params.Args())

	scalar := compileEAV(t, domain.Leaf("Status", domain.OpIn, "a"))
	assert.Equal(t, AlwaysFalse, scalar.SQL)
}

func TestCompileIdentitySkipsGuard(t *testing.T) {
	res := compileEAV(t, domain.LeafValues("id", domain.OpIn, "7", int64(8)))
	assert.Equal(t, "record_id IN (:p0, :p1)", res.SQL)
	assert.Equal(t, []any{int64(7), int64(8)}, res.Params.Args())
}

func TestCompileRangeRequiresTwoValues(t *testing.T) {
	res := compileEAV(t, domain.LeafValues("Budget", domain.OpRange, 1, 2, 3))
	assert.Equal(t, AlwaysFalse, res.SQL)
	assert.Zero(t, res.Params.Len())

	res = compileEAV(t, domain.LeafValues("Budget", domain.OpRange, 1))
	assert.Equal(t, AlwaysFalse, res.SQL)

	res = compileEAV(t, domain.Leaf("Budget", domain.OpRange, [2]int{10, 20}))
	assert.Equal(t, "(field_name = 'Budget' AND double_value BETWEEN :p0 AND :p1)", res.SQL)
	assert.Equal(t, []any{float64(10), float64(20)}, res.Params.Args())
}

func TestCompileSiblingOrKeepsGuards(t *testing.T) {
	cond := domain.And(
		domain.Leaf("Status", domain.OpEqual, "Active"),
		domain.Leaf("Status", domain.OpEqual, "Pending").WithJoin(domain.LogicOr),
	)
	res := compileEAV(t, cond)
	assert.Equal(t,
		"((field_name = 'Status' AND varchar500_value = :p0) OR (field_name = 'Status' AND varchar500_value = :p1))",
		res.SQL)
	assert.Equal(t, 2, strings.Count(res.SQL, "field_name = 'Status'"))
	assert.Equal(t, []string{"p0", "p1"}, res.Params.Names())
}

func TestCompileMixedJoinsFoldLeftToRight(t *testing.T) {
	cond := domain.And(
		domain.Leaf("id", domain.OpEqual, 1),
		domain.Leaf("id", domain.OpEqual, 2).WithJoin(domain.LogicOr),
		domain.Leaf("id", domain.OpEqual, 3),
	)
	res := compileEAV(t, cond)
	assert.Equal(t, "((record_id = :p0 OR record_id = :p1) AND record_id = :p2)", res.SQL)
}

func TestCompileNestedComposites(t *testing.T) {
	cond := domain.Or(
		domain.And(domain.Leaf("Budget", domain.OpGreater, 10), domain.Leaf("Active", domain.OpEqual, "true")),
		domain.Leaf("Email", domain.OpEndsWith, "@example.com"),
	)
	res := compileEAV(t, cond)
	assert.Equal(t,
		"(((field_name = 'Budget' AND double_value > :p0) AND (field_name = 'Active' AND bool_value = :p1)) OR "+
			"(field_name = 'Email' AND varchar100_value ILIKE :p2 ESCAPE '\\'))",
		res.SQL)
	assert.Equal(t, []any{float64(10), true, "%@example.com"}, res.Params.Args())
}

func TestCompileUnknownFieldIsAlwaysFalse(t *testing.T) {
	res := compileEAV(t, domain.And(domain.Leaf("Nope", domain.OpEqual, 1), domain.Leaf("Budget", domain.OpEqual, 1)))
	assert.Equal(t, "("+AlwaysFalse+" AND (field_name = 'Budget' AND double_value = :p0))", res.SQL)
}

func TestCompileExplicitTypeOverride(t *testing.T) {
	res := compileEAV(t, domain.Leaf("O'Brien", domain.OpEqual, "x").WithType(domain.DataTypeLongText))
	assert.Equal(t, "(field_name = 'O''Brien' AND text_value = :p0)", res.SQL)
}

func TestCompilePatternOperators(t *testing.T) {
	res := compileEAV(t, domain.Leaf("Status", domain.OpContains, "act"))
	assert.Equal(t, "(field_name = 'Status' AND varchar500_value ILIKE :p0 ESCAPE '\\')", res.SQL)
	v, _ := res.Params.Value(":p0")
	assert.Equal(t, "%act%", v)

	res = compileEAV(t, domain.Leaf("Status", domain.OpNotContains, "act"))
	assert.Contains(t, res.SQL, "varchar500_value NOT ILIKE :p0")

	res = compileEAV(t, domain.Leaf("Budget", domain.OpContains, "1"))
	assert.Equal(t, AlwaysFalse, res.SQL)

	sqlite, err := New(testCatalog, Options{LikeOperator: "LIKE"}).Compile(domain.Leaf("Status", domain.OpStartsWith, "Ac"))
	require.NoError(t, err)
	assert.Equal(t, "(field_name = 'Status' AND varchar500_value LIKE :p0 ESCAPE '\\')", sqlite.SQL)
}

func TestCompileInLike(t *testing.T) {
	res := compileEAV(t, domain.LeafValues("Tags", domain.OpInLike, "red", "blue"))
	assert.Equal(t,
		"(field_name = 'Tags' AND (string_list_value ILIKE :p0 ESCAPE '\\' OR string_list_value ILIKE :p1 ESCAPE '\\'))",
		res.SQL)
	assert.Equal(t, []any{"%red%", "%blue%"}, res.Params.Args())
}

func TestCompilePatternEscapesWildcards(t *testing.T) {
	res := compileEAV(t, domain.Leaf("Status", domain.OpContains, `50%_off\`))
	assert.Equal(t, "(field_name = 'Status' AND varchar500_value ILIKE :p0 ESCAPE '\\')", res.SQL)
	assert.Equal(t, []any{`%50\%\_off\\%`}, res.Params.Args())

	res = compileEAV(t, domain.LeafValues("Tags", domain.OpInLike, "a_b"))
	assert.Equal(t, []any{`%a\_b%`}, res.Params.Args())
}

func TestCompilePatternAcceptsSingleValues(t *testing.T) {
	res := compileEAV(t, domain.LeafValues("Status", domain.OpContains, "act"))
	assert.Equal(t, "(field_name = 'Status' AND varchar500_value ILIKE :p0 ESCAPE '\\')", res.SQL)
	assert.Equal(t, []any{"%act%"}, res.Params.Args())

	res = compileEAV(t, domain.LeafValues("Status", domain.OpStartsWith, "a", "b"))
	assert.Equal(t, AlwaysFalse, res.SQL)

	assert.True(t, predicate(t, domain.LeafValues("Status", domain.OpEndsWith, "ive"))(budgetRecord()))
	assert.False(t, predicate(t, domain.LeafValues("Status", domain.OpContains, "act%"))(budgetRecord()))
}

func TestCompileNullChecks(t *testing.T) {
	res := compileEAV(t, domain.Leaf("Status", domain.OpIsNullOrEmpty, nil))
	assert.Equal(t, "(field_name = 'Status' AND (varchar500_value IS NULL OR varchar500_value = ''))", res.SQL)

	res = compileEAV(t, domain.Leaf("Budget", domain.OpIsNotNullOrEmpty, nil))
	assert.Equal(t, "(field_name = 'Budget' AND double_value IS NOT NULL)", res.SQL)
	assert.Zero(t, res.Params.Len())
}

func TestCompileUnsupportedOperator(t *testing.T) {
	_, err := New(testCatalog, Options{}).Compile(domain.And(domain.Leaf("Budget", domain.Operator("within"), 1)))
	var unsupported domain.ErrUnsupportedOperator
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "eav", unsupported.Mode)
}

func TestCompileDirectMode(t *testing.T) {
	c := New(testCatalog, Options{Mode: ModeDirect, Table: "t"})
	res, err := c.Compile(domain.And(
		domain.Leaf("Budget", domain.OpGreaterOrEqual, "5"),
		domain.LeafValues("id", domain.OpIn, 1, 2),
	))
	require.NoError(t, err)
	assert.Equal(t, "(t.Budget >= :p0 AND t.id IN (:p1, :p2))", res.SQL)

	for _, op := range []domain.Operator{domain.OpIsNull, domain.OpNotIn, domain.OpInLike, domain.OpNotContains, domain.OpIsNullOrEmpty} {
		_, err := c.Compile(domain.Leaf("Budget", op, 1))
		var unsupported domain.ErrUnsupportedOperator
		require.True(t, errors.As(err, &unsupported), "operator %s", op)
		assert.Equal(t, "direct", unsupported.Mode)
	}
}

func TestCompileDirectColumnFunc(t *testing.T) {
	c := New(testCatalog, Options{Mode: ModeDirect, ColumnFunc: func(field string, _ domain.DataType) (string, bool) {
		if field == "Budget" {
			return "budget_amount", true
		}
		return "", false
	}})
	res, err := c.Compile(domain.And(domain.Leaf("Budget", domain.OpLess, 3), domain.Leaf("Status", domain.OpEqual, "x")))
	require.NoError(t, err)
	assert.Equal(t, "(budget_amount < :p0 AND "+AlwaysFalse+")", res.SQL)
}

func TestCompileWrapSkipsIdentity(t *testing.T) {
	var wrapped []string
	c := New(testCatalog, Options{Table: "v", Wrap: func(leaf domain.Condition, fragment string, p *Params) string {
		wrapped = append(wrapped, leaf.Field)
		return "r.id IN (SELECT v.record_id FROM field_values v WHERE v.tenant_id = " + p.Add("t1") + " AND " + fragment + ")"
	}, IDColumn: "r.id"})
	res, err := c.Compile(domain.And(domain.Leaf("id", domain.OpEqual, 5), domain.Leaf("Budget", domain.OpEqual, 1)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Budget"}, wrapped)
	assert.Equal(t,
		"(r.id = :p0 AND r.id IN (SELECT v.record_id FROM field_values v WHERE v.tenant_id = :p2 AND (v.field_name = 'Budget' AND v.double_value = :p1)))",
		res.SQL)
	assert.Equal(t, []any{int64(5), float64(1), "t1"}, res.Params.Args())
}

func TestCompileLegacyPayload(t *testing.T) {
	payload := `{"logic":1,"condition":[{"fieldName":"Budget","logic":6,"fieldValue":"1000"},{"logic":2,"condition":[{"fieldName":"Status","logic":3,"fieldValue":"Active"},{"fieldName":"Status","logic":3,"fieldValue":"Pending"}]}]}`
	cond, err := domain.ParseCondition([]byte(payload))
	require.NoError(t, err)
	res := compileEAV(t, cond)
	assert.Equal(t,
		"((field_name = 'Budget' AND double_value >= :p0) AND ((field_name = 'Status' AND varchar500_value = :p1) OR (field_name = 'Status' AND varchar500_value = :p2)))",
		res.SQL)
}

func TestCompileFlatConditions(t *testing.T) {
	payload := `[{"fieldName":"Status","customExpList":[{"operation":"=","value":"Active"},{"operation":"=","value":"Pending"}],"logical":"and"},{"fieldName":"Budget","customExpList":[{"operation":">=","value":10}]}]`
	list, err := domain.ParseFlatConditions([]byte(payload))
	require.NoError(t, err)
	res := compileEAV(t, domain.FromFlatConditions(list))
	assert.Equal(t,
		"(((field_name = 'Status' AND varchar500_value = :p0) OR (field_name = 'Status' AND varchar500_value = :p1)) AND (field_name = 'Budget' AND double_value >= :p2))",
		res.SQL)
}

func TestRebind(t *testing.T) {
	p := NewParams()
	frag := "(a = " + p.Add(1) + " AND b IN (" + p.Add("x") + ", " + p.Add("y") + ") AND c = ':p9')"
	sql, args := Rebind(frag, p)
	assert.Equal(t, "(a = ? AND b IN (?, ?) AND c = ':p9')", sql)
	assert.Equal(t, []any{1, "x", "y"}, args)
}
