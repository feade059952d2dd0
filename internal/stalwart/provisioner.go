package stalwart

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/compliance"
	"github.com/edvin/deliverability/internal/core"
)

// Provisioner is the core.Provisioner backed by a Stalwart server: mailbox
// and DKIM management over the admin API, forwarding through JMAP Sieve and
// outbound mail over SMTP submission.
type Provisioner struct {
	client *Client
	jmap   *JMAPClient
	smtp   *SMTPSender
	logger zerolog.Logger
}

var _ core.Provisioner = (*Provisioner)(nil)

func NewProvisioner(client *Client, jmap *JMAPClient, smtp *SMTPSender, logger zerolog.Logger) *Provisioner {
	return &Provisioner{client: client, jmap: jmap, smtp: smtp, logger: logger.With().Str("component", "stalwart").Logger()}
}

func (p *Provisioner) CreateMailbox(ctx context.Context, domain string, spec core.MailboxSpec) error {
	if err := p.client.EnsureDomain(ctx, domain); err != nil {
		return err
	}
	return p.client.CreateAccount(ctx, CreateAccountParams{
		Address:      spec.Address,
		DisplayName:  spec.DisplayName,
		QuotaBytes:   spec.QuotaBytes,
		PasswordHash: spec.PasswordHash,
	})
}

func (p *Provisioner) UpdateMailboxPassword(ctx context.Context, address, passwordHash string) error {
	return p.client.UpdateAccount(ctx, address, []PatchOp{
		{Action: "set", Field: "secrets", Value: []string{passwordHash}},
	})
}

// RemoveMailbox deletes the account. An account that is already gone is
// not an error.
func (p *Provisioner) RemoveMailbox(ctx context.Context, address string) error {
	err := p.client.DeleteAccount(ctx, address)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (p *Provisioner) SetQuota(ctx context.Context, address string, quotaBytes int64) error {
	return p.client.UpdateAccount(ctx, address, []PatchOp{
		{Action: "set", Field: "quota", Value: quotaBytes},
	})
}

func (p *Provisioner) AddAlias(ctx context.Context, address, alias string) error {
	return p.client.UpdateAccount(ctx, address, []PatchOp{
		{Action: "addItem", Field: "emails", Value: alias},
	})
}

// ConfigureForwarding replaces the account's forwarding script. No targets
// removes it.
func (p *Provisioner) ConfigureForwarding(ctx context.Context, address string, targets []string, keepCopy bool) error {
	acct, err := p.client.GetAccount(ctx, address)
	if err != nil {
		return err
	}
	accountID := JMAPAccountID(acct.PrincipalID)

	if len(targets) == 0 {
		return p.jmap.DeleteSieveScript(ctx, accountID, ForwardingScriptName)
	}
	rules := make([]ForwardRule, 0, len(targets))
	for _, t := range targets {
		rules = append(rules, ForwardRule{Destination: t, KeepCopy: keepCopy})
	}
	return p.jmap.DeploySieveScript(ctx, accountID, ForwardingScriptName, GenerateForwardScript(rules))
}

// GenerateDkimKeys has the server create a key for domain and returns the
// TXT record value it publishes for the selector.
func (p *Provisioner) GenerateDkimKeys(ctx context.Context, domain, selector string) (string, error) {
	if err := p.client.EnsureDomain(ctx, domain); err != nil {
		return "", err
	}
	if err := p.client.GenerateDKIM(ctx, domain, selector); err != nil {
		return "", err
	}
	records, err := p.client.DNSRecords(ctx, domain)
	if err != nil {
		return "", err
	}

	want := selector + "._domainkey." + domain
	for _, r := range records {
		if strings.EqualFold(r.Type, "TXT") && strings.EqualFold(strings.TrimSuffix(r.Name, "."), want) {
			return r.Content, nil
		}
	}
	return "", fmt.Errorf("no DKIM record for %s in server DNS records", want)
}

// DispatchMessage submits the message and returns its Message-ID.
func (p *Provisioner) DispatchMessage(ctx context.Context, headers *compliance.Headers, body string) (string, error) {
	if p.smtp == nil {
		return "", errors.New("no SMTP submission server configured")
	}
	if err := p.smtp.Send(ctx, headers, body); err != nil {
		return "", classifySMTPError(err)
	}
	return headers.Get("Message-ID"), nil
}

// classifySMTPError marks 5xx replies as permanent so the send pipeline stops
// retrying them. Everything else stays retryable.
func classifySMTPError(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 && reply.Code < 600 {
		return &core.Error{Kind: core.KindPermanentSendFailure, Message: "submission server rejected message", Err: err}
	}
	return err
}

func (p *Provisioner) HealthCheck(ctx context.Context) (core.HealthStatus, error) {
	live, ready, err := p.client.Health(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("health probe failed")
		return core.HealthStatus{}, err
	}
	return core.HealthStatus{Running: live, Healthy: ready}, nil
}
