package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldcore/pkg/domain"
)

type harness struct {
	t    *testing.T
	base []string
	dir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FIELDCORE_CONFIG", filepath.Join(dir, "missing.yaml"))
	return &harness{
		t:   t,
		dir: dir,
		base: []string{
			"--sqlite-path", filepath.Join(dir, "fieldcore.db"),
			"--blob-fs-root", filepath.Join(dir, "exports"),
			"--tenant", "acme", "--app", "crm",
		},
	}
}

// run executes one fieldctl invocation with a fresh command tree.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	cli := NewCLI(&out, &errOut)
	err := cli.Execute(append(append([]string{}, h.base...), args...))
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, strings.Join(args, " "))
	return out
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v), raw)
	return v
}

func TestFieldsAndRecordsRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.mustRun("fields", "define", "Budget", "--type", "Number")
	h.mustRun("fields", "define", "Status", "--display-name", "State")

	fields := decode[[]domain.FieldDefinition](t, h.mustRun("fields", "list", "--json"))
	require.Len(t, fields, 2)
	assert.Equal(t, domain.DataTypeNumber, fields[0].DataType)
	assert.Equal(t, domain.DataTypeShortText, fields[1].DataType)
	assert.Equal(t, "State", fields[1].DisplayName)

	table := h.mustRun("fields", "list")
	assert.Contains(t, table, "NAME")
	assert.Contains(t, table, "number")

	big := decode[domain.StructuredRecord](t, h.mustRun("records", "create", `{"Budget":1500,"Status":"Active"}`, "--payload", "big"))
	small := decode[domain.StructuredRecord](t, h.mustRun("records", "create", `{"Budget":"20","Status":"Pending"}`))
	assert.Equal(t, "big", big.Payload)
	assert.Equal(t, domain.DefaultActorName, big.CreatedBy)

	cond := `{"logic":"and","conditions":[{"field":"Budget","op":">=","value":1000},{"field":"Status","op":"=","value":"Active"}]}`
	ids := decode[[]int64](t, h.mustRun("records", "query", cond, "--ids"))
	assert.Equal(t, []int64{big.ID}, ids)

	all := decode[[]domain.StructuredRecord](t, h.mustRun("records", "query"))
	require.Len(t, all, 2)
	assert.Equal(t, small.ID, all[0].ID)

	flat := `[{"fieldName":"Status","customExpList":[{"operation":"=","value":"Pending"}]}]`
	ids = decode[[]int64](t, h.mustRun("records", "query", flat, "--flat", "--ids"))
	assert.Equal(t, []int64{small.ID}, ids)

	updated := decode[domain.StructuredRecord](t, h.mustRun("records", "set", strconv.FormatInt(small.ID, 10), `{"Status":"Closed"}`))
	item, ok := updated.Item("Status")
	require.True(t, ok)
	assert.Equal(t, "Closed", item.Value)

	got := decode[[]domain.StructuredRecord](t, h.mustRun("records", "get", strconv.FormatInt(big.ID, 10)))
	require.Len(t, got, 1)
	assert.Equal(t, big.ID, got[0].ID)

	h.mustRun("records", "delete", strconv.FormatInt(big.ID, 10))
	_, err := h.run("records", "get", strconv.FormatInt(big.ID, 10))
	var nf domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
}

func TestCompileCommand(t *testing.T) {
	h := newHarness(t)
	h.mustRun("fields", "define", "Budget", "--type", "13")

	out := decode[compileOutput](t, h.mustRun("compile", `{"field":"Budget","op":">=","value":1000}`))
	assert.Equal(t, "eav", out.Mode)
	assert.Equal(t, "(field_name = 'Budget' AND double_value >= :p0)", out.SQL)
	assert.Equal(t, 1000.0, out.Params["p0"])

	out = decode[compileOutput](t, h.mustRun("compile", "--mode", "direct", `{"field":"Budget","op":"=","value":5}`))
	assert.Equal(t, "direct", out.Mode)
	assert.NotContains(t, out.SQL, "field_name")

	_, err := h.run("compile", "--mode", "direct", `{"field":"Budget","op":"is_null"}`)
	var unsupported domain.ErrUnsupportedOperator
	assert.ErrorAs(t, err, &unsupported)

	_, err = h.run("compile", "--mode", "sideways", `{}`)
	assert.Error(t, err)
}

func TestScopesAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.mustRun("fields", "define", "Budget", "--type", "number")
	h.mustRun("records", "create", `{"Budget":1}`)

	h.base = append(h.base, "--tenant", "globex")
	assert.Empty(t, decode[[]domain.FieldDefinition](t, h.mustRun("fields", "list", "--json")))
	assert.Empty(t, decode[[]int64](t, h.mustRun("records", "query", "--ids")))
}

func TestSeedAndExport(t *testing.T) {
	h := newHarness(t)
	seed := filepath.Join(h.dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("- name: ContactEmail\n- name: Amount\n  default: 0\n"), 0o644))

	created := decode[[]domain.FieldDefinition](t, h.mustRun("fields", "seed", seed))
	require.Len(t, created, 2)
	assert.Equal(t, domain.DataTypeEmail, created[0].DataType)

	h.mustRun("records", "create", `{"ContactEmail":"a@example.com","Amount":3}`)

	info := decode[map[string]any](t, h.mustRun("fields", "export"))
	key, _ := info["key"].(string)
	require.NotEmpty(t, key)
	data, err := os.ReadFile(filepath.Join(h.dir, "exports", filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ContactEmail")

	info = decode[map[string]any](t, h.mustRun("records", "export"))
	key, _ = info["key"].(string)
	data, err = os.ReadFile(filepath.Join(h.dir, "exports", filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Contains(t, string(data), "a@example.com")
}

func TestEnvironmentConfiguresScope(t *testing.T) {
	h := newHarness(t)
	h.base = []string{"--sqlite-path", filepath.Join(h.dir, "fieldcore.db")}
	t.Setenv("FIELDCORE_TENANT", "acme")
	t.Setenv("FIELDCORE_APP", "crm")
	h.mustRun("fields", "define", "Budget", "--type", "number")

	fields := decode[[]domain.FieldDefinition](t, h.mustRun("fields", "list", "--json", "--tenant", "acme", "--app", "crm"))
	assert.Len(t, fields, 1)
	fields = decode[[]domain.FieldDefinition](t, h.mustRun("fields", "list", "--json", "--app", "erp"))
	assert.Empty(t, fields)
}

func TestRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("fields", "define", "Budget", "--type", "money")
	assert.ErrorContains(t, err, "unknown data type")
	_, err = h.run("records", "get", "abc")
	assert.ErrorContains(t, err, "invalid record id")
	_, err = h.run("records", "create", `not json`)
	assert.Error(t, err)
	_, err = h.run("records", "create", `{"Ghost":1}`)
	var unknown domain.ErrUnknownField
	assert.ErrorAs(t, err, &unknown)
}
