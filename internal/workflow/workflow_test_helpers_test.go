package workflow

import (
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/deliverability/internal/activity"
)

// registerActivities registers activity structs with the test workflow
// environment so parameter and return types deserialize correctly. All
// activities are mocked via OnActivity in unit tests.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Reputation{})
}

// forDomain matches RecomputeReputationParams for a single domain.
func forDomain(domainID string) interface{} {
	return mock.MatchedBy(func(p activity.RecomputeReputationParams) bool {
		return p.DomainID == domainID && !p.At.IsZero()
	})
}
