package recordtest

import (
	"testing"

	"recordcore/testutil"
)

// TestStaysImportableByApplications keeps the reference model free of
// internal packages so applications embedding the record core can use it.
func TestStaysImportableByApplications(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"recordtest is public API surface")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.InternalImportForbidden,
		"recordtest is public API surface")
}
