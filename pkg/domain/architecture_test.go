package domain

import (
	"testing"

	"labbench/testutil"
)

// TestDomainImportsStdlibOnly keeps the data model free of internal packages
// and third-party modules so definitions can be shared by any frontend.
func TestDomainImportsStdlibOnly(t *testing.T) {
	testutil.AssertDirectImports(t, ".", testutil.Any(testutil.Internal, testutil.ThirdParty), "pkg/domain is stdlib only")
}

func TestDomainHasNoInternalDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("shells out to go list")
	}
	testutil.AssertTransitiveImports(t, ".", testutil.Internal, "pkg/domain must not reach internal packages")
}
