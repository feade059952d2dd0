package core

import (
	"context"

	"github.com/edvin/deliverability/internal/compliance"
)

// HealthStatus is the mail server's self-reported state.
type HealthStatus struct {
	Running bool `json:"running"`
	Healthy bool `json:"healthy"`
}

// MailboxSpec describes a mailbox to create. PasswordHash is a bcrypt hash.
type MailboxSpec struct {
	Address      string
	DisplayName  string
	QuotaBytes   int64
	PasswordHash string
}

// Provisioner is the external mail server. Every call assumes the server is
// reachable; callers consult HealthCheck before mutating calls.
type Provisioner interface {
	CreateMailbox(ctx context.Context, domain string, spec MailboxSpec) error
	UpdateMailboxPassword(ctx context.Context, address, passwordHash string) error
	RemoveMailbox(ctx context.Context, address string) error
	SetQuota(ctx context.Context, address string, quotaBytes int64) error
	ConfigureForwarding(ctx context.Context, address string, targets []string, keepCopy bool) error
	AddAlias(ctx context.Context, address, alias string) error
	// GenerateDkimKeys creates a signing key and returns the DKIM TXT record value.
	GenerateDkimKeys(ctx context.Context, domain, selector string) (string, error)
	// DispatchMessage submits a message and returns its Message-ID.
	DispatchMessage(ctx context.Context, headers *compliance.Headers, body string) (string, error)
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// requireHealthy fails with ProvisionerUnavailable unless the mail server
// reports itself running and healthy.
func requireHealthy(ctx context.Context, p Provisioner) error {
	status, err := p.HealthCheck(ctx)
	if err != nil {
		return newError(KindProvisionerUnavailable, err, "mail server health check failed")
	}
	if !status.Running || !status.Healthy {
		return newError(KindProvisionerUnavailable, nil, "mail server is not healthy (running=%t, healthy=%t)", status.Running, status.Healthy)
	}
	return nil
}
