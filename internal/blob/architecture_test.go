package blob

import (
	"testing"

	"fieldcore/testutil"
)

// Only this package wraps the infra sinks; everything else depends on Store.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertImportedOnlyBy(t, "fieldcore/...", "fieldcore/internal/infra/blob", "fieldcore/internal/blob")
}
