package core

import (
	"context"
	"fmt"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deliverability/internal/model"
)

// RecomputeTrigger schedules a reputation recompute for a domain after a
// counter-changing event.
type RecomputeTrigger interface {
	TriggerRecompute(ctx context.Context, domainID string) error
}

// SyncRecompute recomputes inline on the caller's goroutine.
type SyncRecompute struct {
	reputation *ReputationService
}

func NewSyncRecompute(reputation *ReputationService) *SyncRecompute {
	return &SyncRecompute{reputation: reputation}
}

func (s *SyncRecompute) TriggerRecompute(ctx context.Context, domainID string) error {
	_, err := s.reputation.Recompute(ctx, domainID, s.reputation.now())
	return err
}

// TemporalRecomputeTrigger hands recomputes to a per-domain workflow. Bursts
// of events for the same domain coalesce into the running workflow through
// SignalWithStart.
type TemporalRecomputeTrigger struct {
	tc        temporalclient.Client
	taskQueue string
}

func NewTemporalRecomputeTrigger(tc temporalclient.Client, taskQueue string) *TemporalRecomputeTrigger {
	return &TemporalRecomputeTrigger{tc: tc, taskQueue: taskQueue}
}

func (t *TemporalRecomputeTrigger) TriggerRecompute(ctx context.Context, domainID string) error {
	wfID := model.RecomputeWorkflowID(domainID)
	_, err := t.tc.SignalWithStartWorkflow(ctx, wfID, model.RecomputeSignalName, domainID,
		temporalclient.StartWorkflowOptions{
			ID:        wfID,
			TaskQueue: t.taskQueue,
		},
		model.RecomputeWorkflowName,
	)
	if err != nil {
		return fmt.Errorf("signal reputation workflow for domain %s: %w", domainID, err)
	}
	return nil
}
