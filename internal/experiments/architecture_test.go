package experiments_test

import (
	"testing"

	"labbench/testutil"
)

// Experiment definitions are pure data over pkg/domain; the engine only
// appears in tests.
func TestDefinitionsDependOnDomainOnly(t *testing.T) {
	testutil.AssertDirectImports(t, ".", testutil.Any(testutil.Internal, testutil.ThirdParty), "experiments build on pkg/domain only")
}
