package model

import "fmt"

// RecomputeSignalName is the signal that asks a domain's reputation workflow
// for another pass. Its payload is the domain ID.
const RecomputeSignalName = "recompute"

// RecomputeWorkflowName is the registered name of the per-domain
// reputation workflow.
const RecomputeWorkflowName = "RecomputeReputationWorkflow"

// RecomputeWorkflowID returns the workflow ID that serializes recomputes for
// a single domain.
func RecomputeWorkflowID(domainID string) string {
	return fmt.Sprintf("reputation-%s", domainID)
}
