package core

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/arf"
	"github.com/edvin/deliverability/internal/model"
)

// DomainLookup resolves email domains.
type DomainLookup interface {
	GetByID(ctx context.Context, id string) (*model.EmailDomain, error)
	GetByName(ctx context.Context, name string) (*model.EmailDomain, error)
}

// ComplaintProcessor records complaints.
type ComplaintProcessor interface {
	ProcessComplaint(ctx context.Context, in ComplaintInput) (*model.Complaint, error)
}

// FeedbackService ingests ISP feedback-loop reports.
type FeedbackService struct {
	domains    DomainLookup
	complaints ComplaintProcessor
	logger     zerolog.Logger
}

func NewFeedbackService(domains DomainLookup, complaints ComplaintProcessor, logger zerolog.Logger) *FeedbackService {
	return &FeedbackService{
		domains:    domains,
		complaints: complaints,
		logger:     logger.With().Str("component", "feedback").Logger(),
	}
}

// ParseAndProcess turns an ARF report into a feedback-loop complaint against
// the domain the complaining recipient belongs to. Every failure is reported
// in the result; none is returned as an error.
func (s *FeedbackService) ParseAndProcess(ctx context.Context, raw string) model.FeedbackResult {
	report := arf.Parse(raw)

	recipient := strings.TrimSpace(report.Recipient())
	if recipient == "" {
		return model.FeedbackResult{Error: "Could not extract recipient email from ARF message"}
	}
	domainName := arf.Domain(recipient)
	if domainName == "" {
		return model.FeedbackResult{Error: "Could not extract domain from recipient email"}
	}

	domain, err := s.domains.GetByName(ctx, domainName)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return model.FeedbackResult{Error: "Domain not found: " + domainName}
		}
		s.logger.Error().Err(err).Str("domain", domainName).Msg("domain lookup for feedback report failed")
		return model.FeedbackResult{Error: err.Error()}
	}

	in := ComplaintInput{
		EmailDomainID:  domain.ID,
		RecipientEmail: recipient,
		Source:         model.ComplaintFeedbackLoop,
		Details: &model.ComplaintDetails{
			FeedbackType: report.FeedbackType,
			UserAgent:    report.UserAgent,
			OriginalFrom: report.OriginalMailFrom,
			ReceivedDate: report.ReceivedDate,
		},
	}
	if report.MessageID != "" {
		in.MessageID = &report.MessageID
	}

	c, err := s.complaints.ProcessComplaint(ctx, in)
	if err != nil {
		s.logger.Error().Err(err).Str("recipient", recipient).Msg("recording feedback complaint failed")
		return model.FeedbackResult{Error: MessageOf(err)}
	}
	return model.FeedbackResult{Processed: true, ComplaintID: c.ID}
}
