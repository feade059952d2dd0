package handler

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/model"
)

// result returns args.Get(0) as T, or the zero value when nil.
func result[T any](args mock.Arguments) T {
	var zero T
	if args.Get(0) == nil {
		return zero
	}
	return args.Get(0).(T)
}

// ---------- Domain ----------

type mockDomainService struct{ mock.Mock }

func (m *mockDomainService) List(ctx context.Context) ([]model.EmailDomain, error) {
	args := m.Called(ctx)
	return result[[]model.EmailDomain](args), args.Error(1)
}

func (m *mockDomainService) Create(ctx context.Context, in core.CreateDomainInput) (*model.EmailDomain, error) {
	args := m.Called(ctx, in)
	return result[*model.EmailDomain](args), args.Error(1)
}

func (m *mockDomainService) GetByID(ctx context.Context, id string) (*model.EmailDomain, error) {
	args := m.Called(ctx, id)
	return result[*model.EmailDomain](args), args.Error(1)
}

func (m *mockDomainService) GenerateDKIM(ctx context.Context, id string) (*model.DKIMSetup, error) {
	args := m.Called(ctx, id)
	return result[*model.DKIMSetup](args), args.Error(1)
}

func (m *mockDomainService) DNSRecords(ctx context.Context, id string) (*model.DNSRecordSet, error) {
	args := m.Called(ctx, id)
	return result[*model.DNSRecordSet](args), args.Error(1)
}

func (m *mockDomainService) Verify(ctx context.Context, id string) (*model.DNSVerification, error) {
	args := m.Called(ctx, id)
	return result[*model.DNSVerification](args), args.Error(1)
}

// ---------- Suppression ----------

type mockSuppressionService struct{ mock.Mock }

func (m *mockSuppressionService) IsSuppressed(ctx context.Context, domainID, address string) (bool, error) {
	args := m.Called(ctx, domainID, address)
	return args.Bool(0), args.Error(1)
}

func (m *mockSuppressionService) Add(ctx context.Context, domainID, address, typ string, reason *string) (*model.Suppression, error) {
	args := m.Called(ctx, domainID, address, typ, reason)
	return result[*model.Suppression](args), args.Error(1)
}

func (m *mockSuppressionService) Remove(ctx context.Context, domainID, address string) error {
	return m.Called(ctx, domainID, address).Error(0)
}

func (m *mockSuppressionService) List(ctx context.Context, domainID string) ([]model.Suppression, error) {
	args := m.Called(ctx, domainID)
	return result[[]model.Suppression](args), args.Error(1)
}

// ---------- RateLimit ----------

type mockRateLimitService struct{ mock.Mock }

func (m *mockRateLimitService) Status(ctx context.Context, domainID string, accountID *string, limitType string) (*model.RateLimitStatus, error) {
	args := m.Called(ctx, domainID, accountID, limitType)
	return result[*model.RateLimitStatus](args), args.Error(1)
}

func (m *mockRateLimitService) SetLimit(ctx context.Context, domainID string, accountID *string, limitType string, value int) (*model.RateLimit, error) {
	args := m.Called(ctx, domainID, accountID, limitType, value)
	return result[*model.RateLimit](args), args.Error(1)
}

// ---------- Bounce / Complaint / Feedback ----------

type mockBounceService struct{ mock.Mock }

func (m *mockBounceService) ProcessBounce(ctx context.Context, in core.BounceInput) (*model.Bounce, error) {
	args := m.Called(ctx, in)
	return result[*model.Bounce](args), args.Error(1)
}

func (m *mockBounceService) ListBounces(ctx context.Context, domainID string, limit int) ([]model.Bounce, error) {
	args := m.Called(ctx, domainID, limit)
	return result[[]model.Bounce](args), args.Error(1)
}

func (m *mockBounceService) CheckBounceRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error) {
	args := m.Called(ctx, domainID, threshold)
	return result[*model.ThresholdResult](args), args.Error(1)
}

type mockComplaintService struct{ mock.Mock }

func (m *mockComplaintService) ProcessComplaint(ctx context.Context, in core.ComplaintInput) (*model.Complaint, error) {
	args := m.Called(ctx, in)
	return result[*model.Complaint](args), args.Error(1)
}

func (m *mockComplaintService) ProcessAbuseReport(ctx context.Context, domainID, recipient string, details map[string]string) (*model.Complaint, error) {
	args := m.Called(ctx, domainID, recipient, details)
	return result[*model.Complaint](args), args.Error(1)
}

func (m *mockComplaintService) ListComplaints(ctx context.Context, domainID string, limit int) ([]model.Complaint, error) {
	args := m.Called(ctx, domainID, limit)
	return result[[]model.Complaint](args), args.Error(1)
}

func (m *mockComplaintService) CheckComplaintRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error) {
	args := m.Called(ctx, domainID, threshold)
	return result[*model.ThresholdResult](args), args.Error(1)
}

type mockFeedbackService struct{ mock.Mock }

func (m *mockFeedbackService) ParseAndProcess(ctx context.Context, raw string) model.FeedbackResult {
	return m.Called(ctx, raw).Get(0).(model.FeedbackResult)
}

// ---------- Reputation / Blacklist ----------

type mockReputationService struct{ mock.Mock }

func (m *mockReputationService) Summary(ctx context.Context, domainID string) (*model.ReputationSummary, error) {
	args := m.Called(ctx, domainID)
	return result[*model.ReputationSummary](args), args.Error(1)
}

func (m *mockReputationService) CheckThresholds(ctx context.Context, domainID string) (*model.ThresholdReport, error) {
	args := m.Called(ctx, domainID)
	return result[*model.ThresholdReport](args), args.Error(1)
}

func (m *mockReputationService) Recompute(ctx context.Context, domainID string, at time.Time) (*model.ReputationMetric, error) {
	args := m.Called(ctx, domainID, at)
	return result[*model.ReputationMetric](args), args.Error(1)
}

type mockBlacklistChecker struct{ mock.Mock }

func (m *mockBlacklistChecker) CheckBlacklist(ctx context.Context, ip string) (*model.BlacklistStatus, error) {
	args := m.Called(ctx, ip)
	return result[*model.BlacklistStatus](args), args.Error(1)
}

// ---------- Send ----------

type mockSendService struct{ mock.Mock }

func (m *mockSendService) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	args := m.Called(ctx, req)
	return result[*model.SendResult](args), args.Error(1)
}

func (m *mockSendService) ProcessBounceAndUpdateLog(ctx context.Context, in core.BounceCallback) (*model.Bounce, error) {
	args := m.Called(ctx, in)
	return result[*model.Bounce](args), args.Error(1)
}

type mockSendLogService struct{ mock.Mock }

func (m *mockSendLogService) ListByDomain(ctx context.Context, domainID string, limit int) ([]model.SendLogEntry, error) {
	args := m.Called(ctx, domainID, limit)
	return result[[]model.SendLogEntry](args), args.Error(1)
}

// ---------- EmailAccount ----------

type mockEmailAccountService struct{ mock.Mock }

func (m *mockEmailAccountService) Create(ctx context.Context, in core.CreateMailboxInput) (*model.EmailAccount, error) {
	args := m.Called(ctx, in)
	return result[*model.EmailAccount](args), args.Error(1)
}

func (m *mockEmailAccountService) GetByID(ctx context.Context, id string) (*model.EmailAccount, error) {
	args := m.Called(ctx, id)
	return result[*model.EmailAccount](args), args.Error(1)
}

func (m *mockEmailAccountService) ListByDomain(ctx context.Context, domainID string) ([]model.EmailAccount, error) {
	args := m.Called(ctx, domainID)
	return result[[]model.EmailAccount](args), args.Error(1)
}

func (m *mockEmailAccountService) UpdatePassword(ctx context.Context, id, password string) error {
	return m.Called(ctx, id, password).Error(0)
}

func (m *mockEmailAccountService) SetQuota(ctx context.Context, id string, quotaBytes int64) (*model.EmailAccount, error) {
	args := m.Called(ctx, id, quotaBytes)
	return result[*model.EmailAccount](args), args.Error(1)
}

func (m *mockEmailAccountService) AddAlias(ctx context.Context, id, alias string) error {
	return m.Called(ctx, id, alias).Error(0)
}

func (m *mockEmailAccountService) ConfigureForwarding(ctx context.Context, id string, targets []string, keepCopy bool) error {
	return m.Called(ctx, id, targets, keepCopy).Error(0)
}

func (m *mockEmailAccountService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// ---------- APIKey ----------

type mockAPIKeyService struct{ mock.Mock }

func (m *mockAPIKeyService) Create(ctx context.Context, name string) (*model.APIKey, string, error) {
	args := m.Called(ctx, name)
	return result[*model.APIKey](args), args.String(1), args.Error(2)
}

func (m *mockAPIKeyService) List(ctx context.Context) ([]model.APIKey, error) {
	args := m.Called(ctx)
	return result[[]model.APIKey](args), args.Error(1)
}

func (m *mockAPIKeyService) Revoke(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}
