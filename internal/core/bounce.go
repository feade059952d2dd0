package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const bounceColumns = `id, email_domain_id, email_account_id, recipient_email, bounce_type, bounce_code, bounce_message, processed, bounced_at`

// DefaultListLimit caps bounce and complaint listings when no limit is given.
const DefaultListLimit = 100

// BounceInput is a delivery failure reported by the mail server or a DSN.
type BounceInput struct {
	EmailDomainID  string  `json:"email_domain_id"`
	EmailAccountID *string `json:"email_account_id,omitempty"`
	RecipientEmail string  `json:"recipient_email"`
	BounceType     string  `json:"bounce_type"`
	BounceCode     *string `json:"bounce_code,omitempty"`
	BounceMessage  *string `json:"bounce_message,omitempty"`
}

type BounceService struct {
	db           DB
	suppressions *SuppressionService
	recompute    RecomputeTrigger
	logger       zerolog.Logger
	now          func() time.Time
}

func NewBounceService(db DB, suppressions *SuppressionService, recompute RecomputeTrigger, logger zerolog.Logger) *BounceService {
	return &BounceService{
		db:           db,
		suppressions: suppressions,
		recompute:    recompute,
		logger:       logger.With().Str("component", "bounces").Logger(),
		now:          time.Now,
	}
}

// ProcessBounce records a bounce. A hard bounce also suppresses the
// recipient. The bounce is marked processed once the domain's reputation has
// been recomputed; a failed recompute leaves it unprocessed.
func (s *BounceService) ProcessBounce(ctx context.Context, in BounceInput) (*model.Bounce, error) {
	recipient := NormalizeAddress(in.RecipientEmail)
	if !ValidAddress(recipient) {
		return nil, newError(KindValidation, nil, "invalid recipient address %q", in.RecipientEmail)
	}
	if !model.ValidBounceType(in.BounceType) {
		return nil, newError(KindValidation, nil, "invalid bounce type %q", in.BounceType)
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO email_bounces (`+bounceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
		 RETURNING `+bounceColumns,
		platform.NewID(), in.EmailDomainID, nullableID(in.EmailAccountID), recipient,
		in.BounceType, in.BounceCode, in.BounceMessage, s.now().UTC(),
	)
	b, err := scanBounce(row)
	if err != nil {
		return nil, domainInsertError(err, in.EmailDomainID, "insert bounce for %s", recipient)
	}
	metrics.BouncesTotal.WithLabelValues(in.BounceType).Inc()

	if in.BounceType == model.BounceHard {
		reason := hardBounceReason(in.BounceCode, in.BounceMessage)
		if _, err := s.suppressions.Add(ctx, in.EmailDomainID, recipient, model.SuppressionBounce, &reason); err != nil {
			return nil, fmt.Errorf("suppress hard-bounced %s: %w", recipient, err)
		}
	}

	if err := s.recompute.TriggerRecompute(ctx, in.EmailDomainID); err != nil {
		s.logger.Warn().Err(err).Str("bounce_id", b.ID).Str("domain_id", in.EmailDomainID).
			Msg("reputation recompute failed, bounce left unprocessed")
		return b, nil
	}

	if _, err := s.db.Exec(ctx, `UPDATE email_bounces SET processed = true WHERE id = $1`, b.ID); err != nil {
		return nil, fmt.Errorf("mark bounce %s processed: %w", b.ID, err)
	}
	b.Processed = true
	return b, nil
}

func hardBounceReason(code, message *string) string {
	if message != nil && *message != "" {
		return *message
	}
	c := "unknown"
	if code != nil && *code != "" {
		c = *code
	}
	return "Hard bounce: " + c
}

// ListBounces returns the newest bounces for a domain.
func (s *BounceService) ListBounces(ctx context.Context, domainID string, limit int) ([]model.Bounce, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+bounceColumns+` FROM email_bounces
		 WHERE email_domain_id = $1 ORDER BY bounced_at DESC LIMIT $2`,
		domainID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list bounces for domain %s: %w", domainID, err)
	}
	defer rows.Close()

	var out []model.Bounce
	for rows.Next() {
		b, err := scanBounce(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bounce: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bounces: %w", err)
	}
	return out, nil
}

// CheckBounceRateThreshold compares today's bounce rate with threshold.
func (s *BounceService) CheckBounceRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error) {
	r, err := dailyRate(ctx, s.db, domainID, "bounce_rate", metricDate(s.now()))
	if err != nil {
		return nil, err
	}
	return &model.ThresholdResult{Exceeded: r > threshold, Rate: r}, nil
}

// dailyRate reads one stored rate from the domain's metric for date as a
// fraction. A missing row or a day with nothing sent yields 0.
func dailyRate(ctx context.Context, db DB, domainID, column, date string) (float64, error) {
	var sent, scaled int
	err := db.QueryRow(ctx,
		`SELECT total_sent, `+column+` FROM email_reputation_metrics
		 WHERE email_domain_id = $1 AND metric_date = $2::date`,
		domainID, date,
	).Scan(&sent, &scaled)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s for domain %s: %w", column, domainID, err)
	}
	if sent == 0 {
		return 0, nil
	}
	return float64(scaled) / model.RateScale, nil
}

func scanBounce(row pgx.Row) (*model.Bounce, error) {
	var b model.Bounce
	if err := row.Scan(&b.ID, &b.EmailDomainID, &b.EmailAccountID, &b.RecipientEmail, &b.BounceType,
		&b.BounceCode, &b.BounceMessage, &b.Processed, &b.BouncedAt); err != nil {
		return nil, err
	}
	return &b, nil
}
