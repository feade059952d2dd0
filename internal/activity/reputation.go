package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/model"
)

// Recomputer recomputes a domain's daily reputation metric.
// *core.ReputationService satisfies this interface.
type Recomputer interface {
	Recompute(ctx context.Context, domainID string, at time.Time) (*model.ReputationMetric, error)
}

// DomainLister lists the registered sending domains.
// *core.DomainService satisfies this interface.
type DomainLister interface {
	List(ctx context.Context) ([]model.EmailDomain, error)
}

// Reputation contains the activities behind the reputation workflows.
type Reputation struct {
	reputation Recomputer
	domains    DomainLister
	logger     zerolog.Logger
}

// NewReputation creates a new Reputation activity struct.
func NewReputation(reputation Recomputer, domains DomainLister, logger zerolog.Logger) *Reputation {
	return &Reputation{
		reputation: reputation,
		domains:    domains,
		logger:     logger.With().Str("component", "reputation-activity").Logger(),
	}
}

// RecomputeReputationParams identifies the domain and the instant whose UTC
// day is recomputed.
type RecomputeReputationParams struct {
	DomainID string    `json:"domain_id"`
	At       time.Time `json:"at"`
}

// RecomputeReputationResult summarizes a recompute for workflow history.
type RecomputeReputationResult struct {
	DomainID    string `json:"domain_id"`
	MetricDate  string `json:"metric_date"`
	SenderScore int    `json:"sender_score"`
	Blacklisted bool   `json:"blacklisted"`
}

// RecomputeReputation recomputes one domain. A missing domain fails without
// retries since another attempt cannot succeed.
func (a *Reputation) RecomputeReputation(ctx context.Context, params RecomputeReputationParams) (*RecomputeReputationResult, error) {
	m, err := a.reputation.Recompute(ctx, params.DomainID, params.At)
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("domain %s not found", params.DomainID), "DomainNotFound", err)
		}
		return nil, fmt.Errorf("recompute reputation for domain %s: %w", params.DomainID, err)
	}

	res := &RecomputeReputationResult{
		DomainID:    params.DomainID,
		MetricDate:  m.MetricDate,
		Blacklisted: m.BlacklistStatus != nil && m.BlacklistStatus.Blacklisted,
	}
	if m.SenderScore != nil {
		res.SenderScore = *m.SenderScore
	}

	a.logger.Debug().
		Str("domain_id", res.DomainID).
		Str("metric_date", res.MetricDate).
		Int("sender_score", res.SenderScore).
		Bool("blacklisted", res.Blacklisted).
		Msg("reputation recomputed")

	return res, nil
}

// ListActiveDomainIDs returns the IDs of all active domains.
func (a *Reputation) ListActiveDomainIDs(ctx context.Context) ([]string, error) {
	domains, err := a.domains.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	ids := make([]string, 0, len(domains))
	for _, d := range domains {
		if d.Status == model.StatusActive {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}
