package catalog

import (
	"testing"

	"fieldcore/testutil"
)

func TestCatalogUsesPersistenceThroughDomainOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.DriverImportForbidden, "catalog talks to domain.PersistentStore")
}
