package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/compliance"
	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
)

const (
	DefaultMaxRetries = 3

	initialRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

type Suppressor interface {
	IsSuppressed(ctx context.Context, domainID, address string) (bool, error)
}

type QuotaReserver interface {
	Reserve(ctx context.Context, domainID string, accountID *string, limitType string, amount int) (*Reservation, error)
	Release(ctx context.Context, r *Reservation) error
}

type SendRecorder interface {
	IncrementSent(ctx context.Context, domainID string, amount int) error
	IncrementDelivered(ctx context.Context, domainID string, amount int) error
}

type BounceProcessor interface {
	ProcessBounce(ctx context.Context, in BounceInput) (*model.Bounce, error)
}

type SendLog interface {
	Insert(ctx context.Context, in SendLogInput) (*model.SendLogEntry, error)
	UpdateStatus(ctx context.Context, id, status string, code, message *string) error
	MarkBouncedByMessageID(ctx context.Context, domainID, messageID string, code, message *string) (bool, error)
}

type Dispatcher interface {
	DispatchMessage(ctx context.Context, headers *compliance.Headers, body string) (string, error)
}

// SendDeps are the collaborators of the send pipeline.
type SendDeps struct {
	Domains      DomainLookup
	Suppressions Suppressor
	RateLimits   QuotaReserver
	Reputation   SendRecorder
	Bounces      BounceProcessor
	Log          SendLog
	Dispatcher   Dispatcher
}

// SendService runs outbound mail through suppression, rate limiting and
// header compliance before handing it to the mail server with retries.
type SendService struct {
	SendDeps
	dispatchTimeout time.Duration
	logger          zerolog.Logger
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
}

func NewSendService(deps SendDeps, dispatchTimeout time.Duration, logger zerolog.Logger) *SendService {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 30 * time.Second
	}
	return &SendService{
		SendDeps:        deps,
		dispatchTimeout: dispatchTimeout,
		logger:          logger.With().Str("component", "send").Logger(),
		now:             time.Now,
		sleep:           sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func strPtr(s string) *string { return &s }

// Send delivers one message. Rate-limit quota is taken once per message, not
// per attempt, and is handed back if the message never leaves.
func (s *SendService) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	recipient := NormalizeAddress(req.Recipient)
	if !ValidAddress(recipient) {
		return nil, newError(KindValidation, nil, "invalid recipient address %q", req.Recipient)
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	accountID := nullableID(req.EmailAccountID)
	var subject *string
	if req.Subject != "" {
		subject = strPtr(req.Subject)
	}

	suppressed, err := s.Suppressions.IsSuppressed(ctx, req.EmailDomainID, recipient)
	if err != nil {
		return nil, err
	}
	if suppressed {
		const msg = "Email address is on suppression list"
		if _, err := s.Log.Insert(ctx, SendLogInput{
			EmailDomainID: req.EmailDomainID, EmailAccountID: accountID, RecipientEmail: recipient,
			Subject: subject, Status: model.SendStatusFailed, StatusMessage: strPtr(msg),
		}); err != nil {
			s.logger.Warn().Err(err).Str("recipient", recipient).Msg("logging suppressed send failed")
		}
		metrics.SendTotal.WithLabelValues("suppressed").Inc()
		return nil, newError(KindSuppressed, nil, msg)
	}

	domain, err := s.Domains.GetByID(ctx, req.EmailDomainID)
	if err != nil {
		return nil, err
	}

	reservations, err := s.reserve(ctx, req.EmailDomainID, accountID)
	if err != nil {
		metrics.SendTotal.WithLabelValues("rate_limited").Inc()
		return nil, err
	}

	fields := map[string]string{
		"From":    "noreply@" + domain.Name,
		"To":      recipient,
		"Subject": req.Subject,
	}
	for k, v := range req.Headers {
		fields[k] = v
	}
	headers := compliance.AddDefaults(compliance.FromMap(fields), domain.Name, s.now())
	if v := compliance.Validate(headers); !v.Valid {
		s.release(ctx, reservations)
		metrics.SendTotal.WithLabelValues("invalid_headers").Inc()
		return nil, newError(KindValidation, nil, "Invalid email headers: %s", strings.Join(v.Errors, ", "))
	}
	messageID := headers.Get("Message-ID")

	delay := initialRetryDelay
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxRetries; attempt++ {
		attempts = attempt
		entry, err := s.Log.Insert(ctx, SendLogInput{
			EmailDomainID: req.EmailDomainID, EmailAccountID: accountID, RecipientEmail: recipient,
			Subject: subject, MessageID: &messageID, Status: model.SendStatusSent,
			StatusMessage: strPtr(fmt.Sprintf("Attempt %d/%d", attempt, maxRetries)),
		})
		if err != nil {
			s.release(ctx, reservations)
			return nil, err
		}

		metrics.SendAttemptsTotal.Inc()
		id, err := s.dispatch(ctx, headers, req.Body)
		if err == nil {
			if id == "" {
				id = messageID
			}
			s.recordDelivery(ctx, req.EmailDomainID, entry.ID)
			metrics.SendTotal.WithLabelValues("delivered").Inc()
			return &model.SendResult{Success: true, MessageID: id}, nil
		}

		permanent := errors.Is(err, ErrPermanentSendFailure)
		if permanent {
			lastErr = err
		} else {
			lastErr = newError(KindTransientSendFailure, err, "dispatch attempt %d/%d failed", attempt, maxRetries)
		}
		s.logger.Warn().Err(err).Str("recipient", recipient).Int("attempt", attempt).Int("max_retries", maxRetries).
			Bool("permanent", permanent).Msg("dispatch failed")
		if uerr := s.Log.UpdateStatus(ctx, entry.ID, model.SendStatusDeferred, nil, strPtr(err.Error())); uerr != nil {
			s.logger.Warn().Err(uerr).Str("log_id", entry.ID).Msg("marking attempt deferred failed")
		}
		if permanent || attempt == maxRetries {
			break
		}

		delay = min(delay*2, maxRetryDelay)
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	// Cleanup must still happen when the caller gave up mid-backoff.
	cleanupCtx := context.WithoutCancel(ctx)
	s.release(cleanupCtx, reservations)
	cause := lastErr
	var sendErr *Error
	if errors.As(lastErr, &sendErr) && sendErr.Err != nil {
		cause = sendErr.Err
	}
	if _, err := s.Log.Insert(cleanupCtx, SendLogInput{
		EmailDomainID: req.EmailDomainID, EmailAccountID: accountID, RecipientEmail: recipient,
		Subject: subject, MessageID: &messageID, Status: model.SendStatusFailed,
		StatusCode: strPtr("500"), StatusMessage: strPtr(cause.Error()),
	}); err != nil {
		s.logger.Warn().Err(err).Str("recipient", recipient).Msg("logging failed send failed")
	}
	metrics.SendTotal.WithLabelValues("failed").Inc()
	return nil, newError(KindPermanentSendFailure, lastErr, "Failed to send email after %d attempts: %s", attempts, cause.Error())
}

func (s *SendService) dispatch(ctx context.Context, headers *compliance.Headers, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	return s.Dispatcher.DispatchMessage(ctx, headers, body)
}

// reserve takes one unit from every window in order. If a window is full,
// the units already taken are returned.
func (s *SendService) reserve(ctx context.Context, domainID string, accountID *string) ([]*Reservation, error) {
	var taken []*Reservation
	for _, lt := range model.LimitTypes {
		r, err := s.RateLimits.Reserve(ctx, domainID, accountID, lt, 1)
		if err != nil {
			s.release(ctx, taken)
			return nil, err
		}
		taken = append(taken, r)
	}
	return taken, nil
}

func (s *SendService) release(ctx context.Context, rs []*Reservation) {
	for _, r := range rs {
		if err := s.RateLimits.Release(ctx, r); err != nil {
			s.logger.Warn().Err(err).Str("limit_type", r.LimitType).Msg("releasing rate limit reservation failed")
		}
	}
}

// recordDelivery does the bookkeeping after a successful dispatch. The
// message is already out, so failures here are logged and not retried.
func (s *SendService) recordDelivery(ctx context.Context, domainID, logID string) {
	if err := s.Reputation.IncrementSent(ctx, domainID, 1); err != nil {
		s.logger.Warn().Err(err).Str("domain_id", domainID).Msg("incrementing sent count failed")
	}
	if err := s.Reputation.IncrementDelivered(ctx, domainID, 1); err != nil {
		s.logger.Warn().Err(err).Str("domain_id", domainID).Msg("incrementing delivered count failed")
	}
	if err := s.Log.UpdateStatus(ctx, logID, model.SendStatusDelivered, nil, nil); err != nil {
		s.logger.Warn().Err(err).Str("log_id", logID).Msg("marking send delivered failed")
	}
}

// BounceCallback is a bounce reported for a message sent through Send.
type BounceCallback struct {
	BounceInput
	MessageID *string `json:"message_id,omitempty"`
}

// ProcessBounceAndUpdateLog records the bounce and, when the message can be
// found in the sending log, marks it bounced.
func (s *SendService) ProcessBounceAndUpdateLog(ctx context.Context, in BounceCallback) (*model.Bounce, error) {
	b, err := s.Bounces.ProcessBounce(ctx, in.BounceInput)
	if err != nil {
		return nil, err
	}
	if in.MessageID == nil || *in.MessageID == "" {
		return b, nil
	}
	found, err := s.Log.MarkBouncedByMessageID(ctx, in.EmailDomainID, *in.MessageID, in.BounceCode, in.BounceMessage)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Debug().Str("message_id", *in.MessageID).Msg("bounced message not in sending log")
	}
	return b, nil
}
