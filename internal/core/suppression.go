package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jackc/pgx/v5"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const suppressionColumns = `id, email_domain_id, email_address, suppression_type, reason, suppressed_at`

// SuppressionService is the per-domain do-not-send list.
type SuppressionService struct {
	db  DB
	now func() time.Time
}

func NewSuppressionService(db DB) *SuppressionService {
	return &SuppressionService{db: db, now: time.Now}
}

// NormalizeAddress lowercases and trims an email address.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress reports whether address is a syntactically valid mailbox
// with both a local part and a domain.
func ValidAddress(address string) bool {
	v := mailvalidate.ValidateEmailSyntax(address)
	return v.IsValid && v.User != "" && v.Domain != ""
}

func (s *SuppressionService) IsSuppressed(ctx context.Context, domainID, address string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM email_suppressions WHERE email_domain_id = $1 AND email_address = $2)`,
		domainID, NormalizeAddress(address),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check suppression for %s: %w", address, err)
	}
	return exists, nil
}

// Add upserts a suppression. An existing entry has its type, reason and
// timestamp overwritten.
func (s *SuppressionService) Add(ctx context.Context, domainID, address, suppressionType string, reason *string) (*model.Suppression, error) {
	addr := NormalizeAddress(address)
	if !ValidAddress(addr) {
		return nil, newError(KindValidation, nil, "invalid email address %q", address)
	}
	if !model.ValidSuppressionType(suppressionType) {
		return nil, newError(KindValidation, nil, "invalid suppression type %q", suppressionType)
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO email_suppressions (`+suppressionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT email_suppressions_domain_address_key DO UPDATE
		 SET suppression_type = EXCLUDED.suppression_type, reason = EXCLUDED.reason, suppressed_at = EXCLUDED.suppressed_at
		 RETURNING `+suppressionColumns,
		platform.NewID(), domainID, addr, suppressionType, reason, s.now().UTC(),
	)
	sup, err := scanSuppression(row)
	if err != nil {
		return nil, domainInsertError(err, domainID, "upsert suppression for %s", addr)
	}

	metrics.SuppressionsTotal.WithLabelValues(suppressionType).Inc()
	return sup, nil
}

func (s *SuppressionService) Remove(ctx context.Context, domainID, address string) error {
	addr := NormalizeAddress(address)
	tag, err := s.db.Exec(ctx,
		`DELETE FROM email_suppressions WHERE email_domain_id = $1 AND email_address = $2`,
		domainID, addr,
	)
	if err != nil {
		return fmt.Errorf("delete suppression for %s: %w", addr, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, nil, "suppression for %s not found", addr)
	}
	return nil
}

// List returns a domain's suppressions, newest first.
func (s *SuppressionService) List(ctx context.Context, domainID string) ([]model.Suppression, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+suppressionColumns+` FROM email_suppressions
		 WHERE email_domain_id = $1 ORDER BY suppressed_at DESC`, domainID,
	)
	if err != nil {
		return nil, fmt.Errorf("list suppressions for domain %s: %w", domainID, err)
	}
	defer rows.Close()

	var out []model.Suppression
	for rows.Next() {
		sup, err := scanSuppression(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		out = append(out, *sup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suppressions: %w", err)
	}
	return out, nil
}

func scanSuppression(row pgx.Row) (*model.Suppression, error) {
	var sup model.Suppression
	if err := row.Scan(&sup.ID, &sup.EmailDomainID, &sup.EmailAddress, &sup.SuppressionType, &sup.Reason, &sup.SuppressedAt); err != nil {
		return nil, err
	}
	return &sup, nil
}
