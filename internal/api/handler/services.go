package handler

import (
	"context"
	"time"

	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/model"
)

// The interfaces below are the slices of the core services each handler
// needs. *core.XService values satisfy them.

type DomainService interface {
	List(ctx context.Context) ([]model.EmailDomain, error)
	Create(ctx context.Context, in core.CreateDomainInput) (*model.EmailDomain, error)
	GetByID(ctx context.Context, id string) (*model.EmailDomain, error)
	GenerateDKIM(ctx context.Context, id string) (*model.DKIMSetup, error)
	DNSRecords(ctx context.Context, id string) (*model.DNSRecordSet, error)
	Verify(ctx context.Context, id string) (*model.DNSVerification, error)
}

type SuppressionService interface {
	IsSuppressed(ctx context.Context, domainID, address string) (bool, error)
	Add(ctx context.Context, domainID, address, suppressionType string, reason *string) (*model.Suppression, error)
	Remove(ctx context.Context, domainID, address string) error
	List(ctx context.Context, domainID string) ([]model.Suppression, error)
}

type RateLimitService interface {
	Status(ctx context.Context, domainID string, accountID *string, limitType string) (*model.RateLimitStatus, error)
	SetLimit(ctx context.Context, domainID string, accountID *string, limitType string, value int) (*model.RateLimit, error)
}

type BounceService interface {
	ProcessBounce(ctx context.Context, in core.BounceInput) (*model.Bounce, error)
	ListBounces(ctx context.Context, domainID string, limit int) ([]model.Bounce, error)
	CheckBounceRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error)
}

type ComplaintService interface {
	ProcessComplaint(ctx context.Context, in core.ComplaintInput) (*model.Complaint, error)
	ProcessAbuseReport(ctx context.Context, domainID, recipient string, details map[string]string) (*model.Complaint, error)
	ListComplaints(ctx context.Context, domainID string, limit int) ([]model.Complaint, error)
	CheckComplaintRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error)
}

type FeedbackService interface {
	ParseAndProcess(ctx context.Context, raw string) model.FeedbackResult
}

type ReputationService interface {
	Summary(ctx context.Context, domainID string) (*model.ReputationSummary, error)
	CheckThresholds(ctx context.Context, domainID string) (*model.ThresholdReport, error)
	Recompute(ctx context.Context, domainID string, at time.Time) (*model.ReputationMetric, error)
}

type BlacklistChecker interface {
	CheckBlacklist(ctx context.Context, ip string) (*model.BlacklistStatus, error)
}

type SendService interface {
	Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
	ProcessBounceAndUpdateLog(ctx context.Context, in core.BounceCallback) (*model.Bounce, error)
}

type SendLogService interface {
	ListByDomain(ctx context.Context, domainID string, limit int) ([]model.SendLogEntry, error)
}

type EmailAccountService interface {
	Create(ctx context.Context, in core.CreateMailboxInput) (*model.EmailAccount, error)
	GetByID(ctx context.Context, id string) (*model.EmailAccount, error)
	ListByDomain(ctx context.Context, domainID string) ([]model.EmailAccount, error)
	UpdatePassword(ctx context.Context, id, password string) error
	SetQuota(ctx context.Context, id string, quotaBytes int64) (*model.EmailAccount, error)
	AddAlias(ctx context.Context, id, alias string) error
	ConfigureForwarding(ctx context.Context, id string, targets []string, keepCopy bool) error
	Delete(ctx context.Context, id string) error
}

type APIKeyService interface {
	Create(ctx context.Context, name string) (*model.APIKey, string, error)
	List(ctx context.Context) ([]model.APIKey, error)
	Revoke(ctx context.Context, id string) error
}

var (
	_ DomainService       = (*core.DomainService)(nil)
	_ SuppressionService  = (*core.SuppressionService)(nil)
	_ RateLimitService    = (*core.RateLimitService)(nil)
	_ BounceService       = (*core.BounceService)(nil)
	_ ComplaintService    = (*core.ComplaintService)(nil)
	_ FeedbackService     = (*core.FeedbackService)(nil)
	_ ReputationService   = (*core.ReputationService)(nil)
	_ BlacklistChecker    = (*core.BlacklistChecker)(nil)
	_ SendService         = (*core.SendService)(nil)
	_ SendLogService      = (*core.SendLogService)(nil)
	_ EmailAccountService = (*core.EmailAccountService)(nil)
	_ APIKeyService       = (*core.APIKeyService)(nil)
)
