package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const complaintColumns = `id, email_domain_id, recipient_email, complaint_type, message_id, details, complained_at`

// ComplaintInput is a recipient's report that a message was unwanted.
type ComplaintInput struct {
	EmailDomainID  string                  `json:"email_domain_id"`
	RecipientEmail string                  `json:"recipient_email"`
	Source         string                  `json:"source,omitempty"`
	MessageID      *string                 `json:"message_id,omitempty"`
	Details        *model.ComplaintDetails `json:"details,omitempty"`
}

type ComplaintService struct {
	db           DB
	suppressions *SuppressionService
	recompute    RecomputeTrigger
	logger       zerolog.Logger
	now          func() time.Time
}

func NewComplaintService(db DB, suppressions *SuppressionService, recompute RecomputeTrigger, logger zerolog.Logger) *ComplaintService {
	return &ComplaintService{
		db:           db,
		suppressions: suppressions,
		recompute:    recompute,
		logger:       logger.With().Str("component", "complaints").Logger(),
		now:          time.Now,
	}
}

// ProcessComplaint records a complaint and always suppresses the recipient,
// whatever the source.
func (s *ComplaintService) ProcessComplaint(ctx context.Context, in ComplaintInput) (*model.Complaint, error) {
	recipient := NormalizeAddress(in.RecipientEmail)
	if !ValidAddress(recipient) {
		return nil, newError(KindValidation, nil, "invalid recipient address %q", in.RecipientEmail)
	}
	source := in.Source
	if source == "" {
		source = model.ComplaintManual
	}
	if !model.ValidComplaintSource(source) {
		return nil, newError(KindValidation, nil, "invalid complaint source %q", in.Source)
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO email_complaints (`+complaintColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+complaintColumns,
		platform.NewID(), in.EmailDomainID, recipient, source, in.MessageID, in.Details, s.now().UTC(),
	)
	c, err := scanComplaint(row)
	if err != nil {
		return nil, domainInsertError(err, in.EmailDomainID, "insert complaint for %s", recipient)
	}
	metrics.ComplaintsTotal.WithLabelValues(source).Inc()

	reason := "Complaint from " + source
	if _, err := s.suppressions.Add(ctx, in.EmailDomainID, recipient, model.SuppressionComplaint, &reason); err != nil {
		return nil, fmt.Errorf("suppress complaining recipient %s: %w", recipient, err)
	}

	if err := s.recompute.TriggerRecompute(ctx, in.EmailDomainID); err != nil {
		s.logger.Warn().Err(err).Str("complaint_id", c.ID).Str("domain_id", in.EmailDomainID).
			Msg("reputation recompute after complaint failed")
	}
	return c, nil
}

// ProcessAbuseReport records a manually filed abuse report as a complaint.
func (s *ComplaintService) ProcessAbuseReport(ctx context.Context, domainID, recipient string, details map[string]string) (*model.Complaint, error) {
	var d *model.ComplaintDetails
	if len(details) > 0 {
		d = &model.ComplaintDetails{Extra: details}
	}
	return s.ProcessComplaint(ctx, ComplaintInput{
		EmailDomainID:  domainID,
		RecipientEmail: recipient,
		Source:         model.ComplaintAbuseReport,
		Details:        d,
	})
}

// ListComplaints returns the newest complaints for a domain.
func (s *ComplaintService) ListComplaints(ctx context.Context, domainID string, limit int) ([]model.Complaint, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+complaintColumns+` FROM email_complaints
		 WHERE email_domain_id = $1 ORDER BY complained_at DESC LIMIT $2`,
		domainID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list complaints for domain %s: %w", domainID, err)
	}
	defer rows.Close()

	var out []model.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate complaints: %w", err)
	}
	return out, nil
}

// CheckComplaintRateThreshold compares today's complaint rate with threshold.
func (s *ComplaintService) CheckComplaintRateThreshold(ctx context.Context, domainID string, threshold float64) (*model.ThresholdResult, error) {
	r, err := dailyRate(ctx, s.db, domainID, "complaint_rate", metricDate(s.now()))
	if err != nil {
		return nil, err
	}
	return &model.ThresholdResult{Exceeded: r > threshold, Rate: r}, nil
}

func scanComplaint(row pgx.Row) (*model.Complaint, error) {
	var c model.Complaint
	if err := row.Scan(&c.ID, &c.EmailDomainID, &c.RecipientEmail, &c.ComplaintType, &c.MessageID,
		&c.Details, &c.ComplainedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
