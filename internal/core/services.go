package core

import (
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
)

// Options configures the collaborators shared by the services.
type Options struct {
	Resolver        Resolver
	Provisioner     Provisioner
	DNSBLProviders  []DNSBLProvider
	Location        *time.Location
	DNSTimeout      time.Duration
	DispatchTimeout time.Duration

	// With a Temporal client, reputation recomputes run in the worker;
	// without one they run inline.
	TemporalClient temporalclient.Client
	TaskQueue      string
}

type Services struct {
	APIKey       *APIKeyService
	Suppression  *SuppressionService
	RateLimit    *RateLimitService
	Reputation   *ReputationService
	Blacklist    *BlacklistChecker
	Bounce       *BounceService
	Complaint    *ComplaintService
	Feedback     *FeedbackService
	Domain       *DomainService
	EmailAccount *EmailAccountService
	SendLog      *SendLogService
	Send         *SendService
}

func NewServices(db DB, opts Options, logger zerolog.Logger) *Services {
	blacklist := NewBlacklistChecker(opts.Resolver, opts.DNSBLProviders, opts.DNSTimeout, logger)
	reputation := NewReputationService(db, blacklist, logger)

	var recompute RecomputeTrigger = NewSyncRecompute(reputation)
	if opts.TemporalClient != nil {
		recompute = NewTemporalRecomputeTrigger(opts.TemporalClient, opts.TaskQueue)
	}

	suppression := NewSuppressionService(db)
	rateLimit := NewRateLimitService(db, opts.Location)
	bounce := NewBounceService(db, suppression, recompute, logger)
	complaint := NewComplaintService(db, suppression, recompute, logger)
	domain := NewDomainService(db, opts.Resolver, opts.Provisioner, opts.DNSTimeout, logger)
	sendLog := NewSendLogService(db)

	return &Services{
		APIKey:       NewAPIKeyService(db),
		Suppression:  suppression,
		RateLimit:    rateLimit,
		Reputation:   reputation,
		Blacklist:    blacklist,
		Bounce:       bounce,
		Complaint:    complaint,
		Feedback:     NewFeedbackService(domain, complaint, logger),
		Domain:       domain,
		EmailAccount: NewEmailAccountService(db, domain, opts.Provisioner, logger),
		SendLog:      sendLog,
		Send: NewSendService(SendDeps{
			Domains:      domain,
			Suppressions: suppression,
			RateLimits:   rateLimit,
			Reputation:   reputation,
			Bounces:      bounce,
			Log:          sendLog,
			Dispatcher:   opts.Provisioner,
		}, opts.DispatchTimeout, logger),
	}
}
