package workflow

import (
	"time"

	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/deliverability/internal/activity"
	"github.com/edvin/deliverability/internal/model"
)

const (
	// recomputeIdleTimeout is how long the per-domain workflow waits for
	// another signal before completing.
	recomputeIdleTimeout = 5 * time.Minute

	// sweepBatchSize caps concurrent recompute activities in the daily sweep.
	sweepBatchSize = 20
)

// maxRecomputeIterations bounds event history before ContinueAsNew.
var maxRecomputeIterations = 500

func recomputeActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    5,
			InitialInterval:    2 * time.Second,
			MaximumInterval:    time.Minute,
			BackoffCoefficient: 2.0,
		},
	}
}

// RecomputeReputationWorkflow is a long-running per-domain workflow that
// recomputes reputation metrics whenever a bounce, complaint or send signals
// it. Signals that are already buffered when a pass starts collapse into that
// pass, so a burst of events costs a single recompute.
//
// The workflow idles for up to 5 minutes between passes and then completes.
// SignalWithStartWorkflow starts a fresh run on the next event.
func RecomputeReputationWorkflow(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	signalCh := workflow.GetSignalChannel(ctx, model.RecomputeSignalName)
	ctx = workflow.WithActivityOptions(ctx, recomputeActivityOptions())

	iteration := 0
	for {
		var first string
		gotSignal := false

		selector := workflow.NewSelector(ctx)
		selector.AddReceive(signalCh, func(c workflow.ReceiveChannel, _ bool) {
			c.Receive(ctx, &first)
			gotSignal = true
		})
		selector.AddFuture(workflow.NewTimer(ctx, recomputeIdleTimeout), func(workflow.Future) {})
		selector.Select(ctx)

		if !gotSignal {
			return nil
		}

		iteration += recomputeDomains(ctx, logger, drainDomainIDs(signalCh, first))

		if iteration >= maxRecomputeIterations {
			// Signals delivered during the last pass would not survive the new run.
			for {
				pending := drainDomainIDs(signalCh, "")
				if len(pending) == 0 {
					break
				}
				recomputeDomains(ctx, logger, pending)
			}
			return workflow.NewContinueAsNewError(ctx, RecomputeReputationWorkflow)
		}
	}
}

// drainDomainIDs collects every buffered signal after first, dropping
// duplicates while keeping arrival order.
func drainDomainIDs(ch workflow.ReceiveChannel, first string) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	add(first)
	for {
		var id string
		if !ch.ReceiveAsync(&id) {
			break
		}
		add(id)
	}
	return ids
}

// recomputeDomains recomputes each domain in turn, logging failures, and
// returns how many passes ran.
func recomputeDomains(ctx workflow.Context, logger log.Logger, domainIDs []string) int {
	for _, domainID := range domainIDs {
		if err := recomputeDomain(ctx, domainID); err != nil {
			logger.Error("reputation recompute failed", "domain_id", domainID, "error", err)
		}
	}
	return len(domainIDs)
}

func recomputeDomain(ctx workflow.Context, domainID string) error {
	return workflow.ExecuteActivity(ctx, "RecomputeReputation", activity.RecomputeReputationParams{
		DomainID: domainID,
		At:       workflow.Now(ctx),
	}).Get(ctx, nil)
}

// RecomputeAllReputationsWorkflow runs on a schedule and recomputes every
// active domain, so blacklist status and scores stay current on days without
// traffic. Individual failures are logged and do not fail the sweep.
func RecomputeAllReputationsWorkflow(ctx workflow.Context) error {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, recomputeActivityOptions())

	var domainIDs []string
	if err := workflow.ExecuteActivity(ctx, "ListActiveDomainIDs").Get(ctx, &domainIDs); err != nil {
		return err
	}

	failed := 0
	for start := 0; start < len(domainIDs); start += sweepBatchSize {
		end := min(start+sweepBatchSize, len(domainIDs))

		futures := make([]workflow.Future, 0, end-start)
		for _, id := range domainIDs[start:end] {
			futures = append(futures, workflow.ExecuteActivity(ctx, "RecomputeReputation", activity.RecomputeReputationParams{
				DomainID: id,
				At:       workflow.Now(ctx),
			}))
		}
		for i, f := range futures {
			if err := f.Get(ctx, nil); err != nil {
				failed++
				logger.Error("reputation sweep recompute failed", "domain_id", domainIDs[start+i], "error", err)
			}
		}
	}

	logger.Info("reputation sweep finished", "domains", len(domainIDs), "failed", failed)
	return nil
}
