package domain

import (
	"testing"

	"fieldcore/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain package a leaf: no
// internal implementation packages and no database drivers.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".",
		testutil.AnyOf(testutil.InternalImportForbidden, testutil.DriverImportForbidden),
		"domain must not depend on implementation packages")
}

func TestDomainHasNoDriverDependency(t *testing.T) {
	testutil.AssertNoTransitiveDependency(t, "fieldcore/pkg/domain", testutil.DriverImportForbidden, "domain is storage agnostic")
}
