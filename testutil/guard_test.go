package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"domain", DomainImportForbidden, "fieldcore/pkg/domain", true},
		{"domain versioned", DomainImportForbidden, "example.com/mod/pkg/domain@v1", true},
		{"not domain", DomainImportForbidden, "fieldcore/pkg/domainx", false},
		{"internal", InternalImportForbidden, "fieldcore/internal/condition", true},
		{"public", InternalImportForbidden, "fieldcore/pkg/domain", false},
		{"sqlite", DriverImportForbidden, "modernc.org/sqlite", true},
		{"sqlite subpackage", DriverImportForbidden, "modernc.org/sqlite/lib", true},
		{"pgx", DriverImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"squirrel", DriverImportForbidden, "github.com/Masterminds/squirrel", true},
		{"database/sql", DriverImportForbidden, "database/sql", false},
		{"sqlite prefix only", DriverImportForbidden, "modernc.org/sqlitex", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Fatalf("%s: predicate(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
	combined := AnyOf(InternalImportForbidden, DriverImportForbidden)
	if !combined("modernc.org/sqlite") || !combined("fieldcore/internal/ids") || combined("fmt") {
		t.Fatal("AnyOf did not OR its predicates")
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.go", "package tmp\nimport (\n\t\"fmt\"\n\t_ \"modernc.org/sqlite\"\n)\nfunc A() { fmt.Println() }\n")
	write("a_test.go", "package tmp\nimport _ \"github.com/jackc/pgx/v5\"\n")
	viols, err := directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailHelpersReportViolations(t *testing.T) {
	var rec recordingFatal
	failIfDirectViolations(&rec, "layering", []string{"x (in a.go)"})
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "x (in a.go)") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
	rec = recordingFatal{}
	failIfTransitiveViolations(&rec, "drivers", nil)
	if rec.msg != "" {
		t.Fatalf("no violations must not fail, got %q", rec.msg)
	}
}

func TestTransitiveViolationsWalkDependencies(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })

	driver := &packages.Package{PkgPath: "modernc.org/sqlite", Imports: map[string]*packages.Package{}}
	store := &packages.Package{PkgPath: "fieldcore/internal/infra/persistence/sqlite",
		Imports: map[string]*packages.Package{driver.PkgPath: driver}}
	root := &packages.Package{PkgPath: "fieldcore/internal/core",
		Imports: map[string]*packages.Package{store.PkgPath: store}}
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }

	viols, err := transitiveDependencyViolations("fieldcore/internal/core", DriverImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("unexpected violations %v", viols)
	}

	loadPackages = func(string) ([]*packages.Package, error) { return nil, errors.New("boom") }
	if _, err := transitiveDependencyViolations("./...", DriverImportForbidden); err == nil {
		t.Fatal("expected load error")
	}
}

func TestImporterViolations(t *testing.T) {
	pkg := func(path string, imports ...string) *packages.Package {
		p := &packages.Package{PkgPath: path, Imports: map[string]*packages.Package{}}
		for _, imp := range imports {
			p.Imports[imp] = &packages.Package{PkgPath: imp}
		}
		return p
	}
	pkgs := []*packages.Package{
		pkg("fieldcore/internal/blob", "fieldcore/internal/infra/blob/fs"),
		pkg("fieldcore/internal/infra/blob/s3", "fieldcore/internal/blob/core"),
		pkg("fieldcore/internal/infra/blob/fs", "fieldcore/internal/infra/blob/memory"),
		pkg("fieldcore/internal/core", "fieldcore/internal/infra/blob/s3", "fieldcore/internal/blob"),
		pkg("fieldcore/internal/blobby", "fieldcore/internal/infra/blob"),
	}
	viols := importerViolations(pkgs, "fieldcore/internal/infra/blob", []string{"fieldcore/internal/blob"})
	want := []string{
		"fieldcore/internal/infra/blob (in fieldcore/internal/blobby)",
		"fieldcore/internal/infra/blob/s3 (in fieldcore/internal/core)",
	}
	if strings.Join(viols, "|") != strings.Join(want, "|") {
		t.Fatalf("violations = %v, want %v", viols, want)
	}
}

func TestCompilerStaysDriverFree(t *testing.T) {
	AssertNoTransitiveDependency(t, "fieldcore/internal/condition", DriverImportForbidden, "the compiler emits SQL text only")
}
