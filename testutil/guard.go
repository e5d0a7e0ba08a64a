// Package testutil provides helpers that enforce the layering of fieldcore
// from package tests: the domain package stays free of internal packages,
// and only the persistence adapters load database drivers.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// driverModules are the modules only internal/infra/persistence may reach.
var driverModules = []string{
	"modernc.org/sqlite",
	"github.com/jackc/pgx",
	"github.com/Masterminds/squirrel",
}

// AssertNoTransitiveDependency loads pattern (e.g. "." or "fieldcore/...")
// with its dependency graph and fails the test if any package reached from it
// satisfies forbidden. The reason is appended to the failure.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfTransitiveViolations(t, reason, viols)
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// DomainImportForbidden matches import paths of the domain package.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InternalImportForbidden matches any import path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasPrefix(path, "internal/")
}

// DriverImportForbidden matches database drivers and the SQL builder.
func DriverImportForbidden(path string) bool {
	for _, mod := range driverModules {
		if path == mod || strings.HasPrefix(path, mod+"/") {
			return true
		}
	}
	return false
}

// AnyOf combines predicates with OR.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// AssertImportedOnlyBy loads the non-test packages matched by pattern and
// fails if a package outside allowed imports target or a package below it.
// Packages below target may import each other.
func AssertImportedOnlyBy(t testing.TB, pattern, target string, allowed ...string) {
	t.Helper()
	pkgs, err := loadPackages(pattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	failIfDirectViolations(t, target+" is internal to "+strings.Join(allowed, ", "), importerViolations(pkgs, target, allowed))
}

func importerViolations(pkgs []*packages.Package, target string, allowed []string) []string {
	within := func(path, root string) bool { return path == root || strings.HasPrefix(path, root+"/") }
	var viols []string
	for _, pkg := range pkgs {
		if within(pkg.PkgPath, target) {
			continue
		}
		ok := false
		for _, a := range allowed {
			if within(pkg.PkgPath, a) {
				ok = true
				break
			}
		}
		if ok {
			continue
		}
		for path := range pkg.Imports {
			if within(path, target) {
				viols = append(viols, path+" (in "+pkg.PkgPath+")")
			}
		}
	}
	sort.Strings(viols)
	return viols
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	if n := packages.PrintErrors(pkgs); n > 0 {
		return nil, fmt.Errorf("%d package errors loading %s", n, pattern)
	}
	return pkgs, nil
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, error) {
	pkgs, err := loadPackages(pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	packages.Visit(pkgs, func(p *packages.Package) bool {
		if forbidden(p.PkgPath) {
			seen[p.PkgPath] = struct{}{}
		}
		return true
	}, nil)
	viols := make([]string, 0, len(seen))
	for path := range seen {
		viols = append(viols, path)
	}
	sort.Strings(viols)
	return viols, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
