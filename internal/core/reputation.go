package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const metricDateLayout = "2006-01-02"

const reputationColumns = `id, email_domain_id, metric_date::text, total_sent, total_delivered, total_bounced, total_complained,
	bounce_rate, complaint_rate, delivery_rate, sender_score, blacklist_status, created_at, updated_at`

// BlacklistLookup reports the DNSBL status of a sending IP.
type BlacklistLookup interface {
	CheckBlacklist(ctx context.Context, ip string) (*model.BlacklistStatus, error)
}

// ReputationService keeps one metric row per domain per UTC day and derives
// the sender score from it.
type ReputationService struct {
	db        DB
	blacklist BlacklistLookup
	logger    zerolog.Logger
	now       func() time.Time
}

func NewReputationService(db DB, blacklist BlacklistLookup, logger zerolog.Logger) *ReputationService {
	return &ReputationService{
		db:        db,
		blacklist: blacklist,
		logger:    logger.With().Str("component", "reputation").Logger(),
		now:       time.Now,
	}
}

// metricDate normalizes t to the UTC calendar date.
func metricDate(t time.Time) string {
	return t.UTC().Format(metricDateLayout)
}

func (s *ReputationService) today() string {
	return metricDate(s.now())
}

// GetOrCreateDailyMetric returns the zero-initialized metric row for the
// domain and date (YYYY-MM-DD), creating it if needed. An empty date means today.
func (s *ReputationService) GetOrCreateDailyMetric(ctx context.Context, domainID, date string) (*model.ReputationMetric, error) {
	if date == "" {
		date = s.today()
	}
	if _, err := time.Parse(metricDateLayout, date); err != nil {
		return nil, newError(KindValidation, err, "invalid metric date %q", date)
	}

	now := s.now().UTC()
	row := s.db.QueryRow(ctx,
		`INSERT INTO email_reputation_metrics (id, email_domain_id, metric_date, created_at, updated_at)
		 VALUES ($1, $2, $3::date, $4, $4)
		 ON CONFLICT ON CONSTRAINT email_reputation_metrics_domain_date_key DO UPDATE
		 SET updated_at = email_reputation_metrics.updated_at
		 RETURNING `+reputationColumns,
		platform.NewID(), domainID, date, now,
	)
	m, err := scanReputationMetric(row)
	if err != nil {
		return nil, domainInsertError(err, domainID, "get or create reputation metric for domain %s on %s", domainID, date)
	}
	return m, nil
}

// rate returns n/total scaled by RateScale, or 0 when nothing was sent.
func rate(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * model.RateScale))
}

// Recompute recounts the day's bounces and complaints, derives the three
// rates, consults the DNSBLs for the domain's mail server IP, and stores the
// resulting sender score.
func (s *ReputationService) Recompute(ctx context.Context, domainID string, at time.Time) (*model.ReputationMetric, error) {
	date := metricDate(at)
	m, err := s.GetOrCreateDailyMetric(ctx, domainID, date)
	if err != nil {
		return nil, err
	}

	var mailServerIP *string
	err = s.db.QueryRow(ctx, `SELECT mail_server_ip FROM email_domains WHERE id = $1`, domainID).Scan(&mailServerIP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, nil, "domain %s not found", domainID)
	}
	if err != nil {
		return nil, fmt.Errorf("get mail server ip for domain %s: %w", domainID, err)
	}

	var bounced, complained int
	err = s.db.QueryRow(ctx,
		`SELECT
		   (SELECT count(*) FROM email_bounces WHERE email_domain_id = $1 AND (bounced_at AT TIME ZONE 'UTC')::date = $2::date),
		   (SELECT count(*) FROM email_complaints WHERE email_domain_id = $1 AND (complained_at AT TIME ZONE 'UTC')::date = $2::date)`,
		domainID, date,
	).Scan(&bounced, &complained)
	if err != nil {
		return nil, fmt.Errorf("count bounces and complaints for domain %s on %s: %w", domainID, date, err)
	}

	bounceRate := rate(bounced, m.TotalSent)
	complaintRate := rate(complained, m.TotalSent)
	deliveryRate := rate(m.TotalDelivered, m.TotalSent)

	var status *model.BlacklistStatus
	if mailServerIP != nil && *mailServerIP != "" && s.blacklist != nil {
		status, err = s.blacklist.CheckBlacklist(ctx, *mailServerIP)
		if err != nil {
			s.logger.Warn().Err(err).Str("domain_id", domainID).Str("ip", *mailServerIP).
				Msg("blacklist check failed, treating as not blacklisted")
			status = nil
		}
	}

	score := ComputeScore(model.ScoreInput{
		BounceRate:    float64(bounceRate) / model.RateScale,
		ComplaintRate: float64(complaintRate) / model.RateScale,
		DeliveryRate:  float64(deliveryRate) / model.RateScale,
		Blacklisted:   status != nil && status.Blacklisted,
	})

	row := s.db.QueryRow(ctx,
		`UPDATE email_reputation_metrics SET
		   total_bounced = $2, total_complained = $3,
		   bounce_rate = $4, complaint_rate = $5, delivery_rate = $6,
		   sender_score = $7, blacklist_status = $8, updated_at = $9
		 WHERE id = $1
		 RETURNING `+reputationColumns,
		m.ID, bounced, complained, bounceRate, complaintRate, deliveryRate, score, status, s.now().UTC(),
	)
	updated, err := scanReputationMetric(row)
	if err != nil {
		return nil, fmt.Errorf("update reputation metric %s: %w", m.ID, err)
	}

	metrics.SenderScore.WithLabelValues(domainID).Set(float64(score))
	return updated, nil
}

// ComputeScore deducts from 100 per metric tier. Within one metric only the
// highest matching tier applies. The result is clamped to [0, 100].
func ComputeScore(in model.ScoreInput) int {
	score := 100

	switch {
	case in.BounceRate > 0.05:
		score -= 50
	case in.BounceRate > 0.02:
		score -= 30
	case in.BounceRate > 0.01:
		score -= 15
	case in.BounceRate > 0.005:
		score -= 5
	}

	switch {
	case in.ComplaintRate > 0.001:
		score -= 30
	case in.ComplaintRate > 0.0005:
		score -= 20
	case in.ComplaintRate > 0.0001:
		score -= 10
	}

	switch {
	case in.DeliveryRate < 0.95:
		score -= 20
	case in.DeliveryRate < 0.98:
		score -= 10
	}

	if in.Blacklisted {
		score -= 50
	}

	return max(0, min(100, score))
}

func (s *ReputationService) IncrementSent(ctx context.Context, domainID string, amount int) error {
	return s.increment(ctx, domainID, "total_sent", amount)
}

func (s *ReputationService) IncrementDelivered(ctx context.Context, domainID string, amount int) error {
	return s.increment(ctx, domainID, "total_delivered", amount)
}

func (s *ReputationService) increment(ctx context.Context, domainID, column string, amount int) error {
	if amount <= 0 {
		amount = 1
	}
	now := s.now()
	m, err := s.GetOrCreateDailyMetric(ctx, domainID, metricDate(now))
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE email_reputation_metrics SET `+column+` = `+column+` + $2, updated_at = $3 WHERE id = $1`,
		m.ID, amount, now.UTC(),
	)
	if err != nil {
		return fmt.Errorf("increment %s for domain %s: %w", column, domainID, err)
	}
	if _, err := s.Recompute(ctx, domainID, now); err != nil {
		return fmt.Errorf("recompute after %s increment: %w", column, err)
	}
	return nil
}

// Summary returns today's metric as fractional rates.
func (s *ReputationService) Summary(ctx context.Context, domainID string) (*model.ReputationSummary, error) {
	m, err := s.GetOrCreateDailyMetric(ctx, domainID, s.today())
	if err != nil {
		return nil, err
	}
	out := &model.ReputationSummary{
		BounceRate:      float64(m.BounceRate) / model.RateScale,
		ComplaintRate:   float64(m.ComplaintRate) / model.RateScale,
		DeliveryRate:    float64(m.DeliveryRate) / model.RateScale,
		TotalSent:       m.TotalSent,
		TotalDelivered:  m.TotalDelivered,
		TotalBounced:    m.TotalBounced,
		TotalComplained: m.TotalComplained,
		BlacklistStatus: m.BlacklistStatus,
	}
	if m.SenderScore != nil {
		out.SenderScore = *m.SenderScore
	}
	return out, nil
}

// CheckThresholds reports every reputation problem in today's metric.
func (s *ReputationService) CheckThresholds(ctx context.Context, domainID string) (*model.ThresholdReport, error) {
	sum, err := s.Summary(ctx, domainID)
	if err != nil {
		return nil, err
	}

	issues := []string{}
	if sum.SenderScore < 50 {
		issues = append(issues, fmt.Sprintf("Low sender score: %d/100", sum.SenderScore))
	}
	if sum.BounceRate > 0.05 {
		issues = append(issues, fmt.Sprintf("High bounce rate: %.2f%%", sum.BounceRate*100))
	}
	if sum.ComplaintRate > 0.001 {
		issues = append(issues, fmt.Sprintf("High complaint rate: %.3f%%", sum.ComplaintRate*100))
	}
	if sum.DeliveryRate < 0.95 {
		issues = append(issues, fmt.Sprintf("Low delivery rate: %.2f%%", sum.DeliveryRate*100))
	}
	if sum.BlacklistStatus != nil && sum.BlacklistStatus.Blacklisted {
		issues = append(issues, "IP blacklisted: "+strings.Join(sum.BlacklistStatus.Blacklists, ", "))
	}

	return &model.ThresholdReport{
		Poor:        len(issues) > 0,
		Issues:      issues,
		SenderScore: sum.SenderScore,
	}, nil
}

func scanReputationMetric(row pgx.Row) (*model.ReputationMetric, error) {
	var m model.ReputationMetric
	if err := row.Scan(&m.ID, &m.EmailDomainID, &m.MetricDate, &m.TotalSent, &m.TotalDelivered,
		&m.TotalBounced, &m.TotalComplained, &m.BounceRate, &m.ComplaintRate, &m.DeliveryRate,
		&m.SenderScore, &m.BlacklistStatus, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}
