package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const accountColumns = `id, email_domain_id, address, display_name, quota_bytes, status, created_at, updated_at`

const (
	// DefaultQuotaBytes is applied when a mailbox is created without a quota.
	DefaultQuotaBytes int64 = 1 << 30
	// MaxQuotaBytes is the largest quota a mailbox may have (100 GiB).
	MaxQuotaBytes int64 = 100 << 30

	minPasswordLength = 8
	bcryptCost        = 10
)

// CreateMailboxInput creates a mailbox under a verified domain.
type CreateMailboxInput struct {
	EmailDomainID string `json:"email_domain_id"`
	LocalPart     string `json:"local_part"`
	DisplayName   string `json:"display_name"`
	QuotaBytes    int64  `json:"quota_bytes"`
	Password      string `json:"password"`
}

// EmailAccountService fronts the mail server for mailbox changes. Mailboxes
// can only be created once their domain has passed DNS verification, and
// every mutating call checks the mail server's health first.
type EmailAccountService struct {
	db          DB
	domains     DomainLookup
	provisioner Provisioner
	logger      zerolog.Logger
	now         func() time.Time
}

func NewEmailAccountService(db DB, domains DomainLookup, provisioner Provisioner, logger zerolog.Logger) *EmailAccountService {
	return &EmailAccountService{
		db:          db,
		domains:     domains,
		provisioner: provisioner,
		logger:      logger.With().Str("component", "mailboxes").Logger(),
		now:         time.Now,
	}
}

func validateQuota(q int64) error {
	if q < 0 {
		return newError(KindValidation, nil, "Quota cannot be negative")
	}
	if q > MaxQuotaBytes {
		return newError(KindValidation, nil, "Quota cannot exceed 100GB")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", newError(KindValidation, nil, "password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *EmailAccountService) Create(ctx context.Context, in CreateMailboxInput) (*model.EmailAccount, error) {
	local := strings.ToLower(strings.TrimSpace(in.LocalPart))
	if local == "" || strings.ContainsAny(local, "@ \t") {
		return nil, newError(KindValidation, nil, "invalid mailbox name %q", in.LocalPart)
	}
	if err := validateQuota(in.QuotaBytes); err != nil {
		return nil, err
	}
	quota := in.QuotaBytes
	if quota == 0 {
		quota = DefaultQuotaBytes
	}

	domain, err := s.domains.GetByID(ctx, in.EmailDomainID)
	if err != nil {
		return nil, err
	}
	if !domain.DNSVerified {
		return nil, newError(KindPreconditionFailed, nil,
			"DNS records must be verified before creating email accounts. Please verify DNS records first.")
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	address := local + "@" + domain.Name
	now := s.now().UTC()
	a, err := scanAccount(s.db.QueryRow(ctx,
		`INSERT INTO email_accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 RETURNING `+accountColumns,
		platform.NewID(), domain.ID, address, in.DisplayName, quota, model.StatusPending, now,
	))
	if err != nil {
		return nil, fmt.Errorf("insert email account %s: %w", address, err)
	}

	spec := MailboxSpec{Address: address, DisplayName: in.DisplayName, QuotaBytes: quota, PasswordHash: hash}
	if err := s.provisioner.CreateMailbox(ctx, domain.Name, spec); err != nil {
		if _, delErr := s.db.Exec(ctx, `DELETE FROM email_accounts WHERE id = $1`, a.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("address", address).Msg("rolling back email account row failed")
		}
		return nil, newError(KindProvisionerUnavailable, err, "Failed to create mailbox in mail server")
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE email_accounts SET status = $2, updated_at = $3 WHERE id = $1`,
		a.ID, model.StatusActive, s.now().UTC(),
	); err != nil {
		return nil, fmt.Errorf("activate email account %s: %w", address, err)
	}
	a.Status = model.StatusActive
	return a, nil
}

func (s *EmailAccountService) GetByID(ctx context.Context, id string) (*model.EmailAccount, error) {
	a, err := scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM email_accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, nil, "email account %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get email account %s: %w", id, err)
	}
	return a, nil
}

func (s *EmailAccountService) ListByDomain(ctx context.Context, domainID string) ([]model.EmailAccount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM email_accounts WHERE email_domain_id = $1 ORDER BY address`, domainID)
	if err != nil {
		return nil, fmt.Errorf("list email accounts for domain %s: %w", domainID, err)
	}
	defer rows.Close()

	var out []model.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email account: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email accounts: %w", err)
	}
	return out, nil
}

func (s *EmailAccountService) UpdatePassword(ctx context.Context, id, password string) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return err
	}
	if err := s.provisioner.UpdateMailboxPassword(ctx, a.Address, hash); err != nil {
		return newError(KindProvisionerUnavailable, err, "Failed to update mailbox password")
	}
	return nil
}

func (s *EmailAccountService) SetQuota(ctx context.Context, id string, quotaBytes int64) (*model.EmailAccount, error) {
	if err := validateQuota(quotaBytes); err != nil {
		return nil, err
	}
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return nil, err
	}
	if err := s.provisioner.SetQuota(ctx, a.Address, quotaBytes); err != nil {
		return nil, newError(KindProvisionerUnavailable, err, "Failed to set mailbox quota")
	}
	updated, err := scanAccount(s.db.QueryRow(ctx,
		`UPDATE email_accounts SET quota_bytes = $2, updated_at = $3 WHERE id = $1 RETURNING `+accountColumns,
		a.ID, quotaBytes, s.now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("update quota for %s: %w", a.Address, err)
	}
	return updated, nil
}

func (s *EmailAccountService) AddAlias(ctx context.Context, id, alias string) error {
	alias = NormalizeAddress(alias)
	if !ValidAddress(alias) {
		return newError(KindValidation, nil, "invalid alias %q", alias)
	}
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return err
	}
	if err := s.provisioner.AddAlias(ctx, a.Address, alias); err != nil {
		return newError(KindProvisionerUnavailable, err, "Failed to add alias")
	}
	return nil
}

// ConfigureForwarding replaces the mailbox's forwarding targets. An empty
// target list turns forwarding off.
func (s *EmailAccountService) ConfigureForwarding(ctx context.Context, id string, targets []string, keepCopy bool) error {
	normalized := make([]string, 0, len(targets))
	for _, t := range targets {
		addr := NormalizeAddress(t)
		if !ValidAddress(addr) {
			return newError(KindValidation, nil, "invalid forwarding target %q", t)
		}
		normalized = append(normalized, addr)
	}
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return err
	}
	if err := s.provisioner.ConfigureForwarding(ctx, a.Address, normalized, keepCopy); err != nil {
		return newError(KindProvisionerUnavailable, err, "Failed to configure forwarding")
	}
	return nil
}

// Delete removes the account row, then the mailbox. Mail server trouble
// does not block the deletion; it is logged instead.
func (s *EmailAccountService) Delete(ctx context.Context, id string) error {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM email_accounts WHERE id = $1`, a.ID)
	if err != nil {
		return fmt.Errorf("delete email account %s: %w", a.Address, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, nil, "email account %s not found", id)
	}

	if err := requireHealthy(ctx, s.provisioner); err != nil {
		s.logger.Warn().Err(err).Str("address", a.Address).Msg("mail server unhealthy, removing mailbox anyway")
	}
	if err := s.provisioner.RemoveMailbox(ctx, a.Address); err != nil {
		s.logger.Warn().Err(err).Str("address", a.Address).Msg("mailbox removal failed, mail server may need manual cleanup")
	}
	return nil
}

func scanAccount(row pgx.Row) (*model.EmailAccount, error) {
	var a model.EmailAccount
	if err := row.Scan(&a.ID, &a.EmailDomainID, &a.Address, &a.DisplayName, &a.QuotaBytes, &a.Status,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
