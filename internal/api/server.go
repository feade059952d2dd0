package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deliverability/internal/api/handler"
	mw "github.com/edvin/deliverability/internal/api/middleware"
	"github.com/edvin/deliverability/internal/core"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	services       *core.Services
	db             Pinger
	temporalClient temporalclient.Client
	provisioner    core.Provisioner
}

// NewServer wires the HTTP surface over services. temporalClient may be nil
// when reputation recomputes run inline.
func NewServer(logger zerolog.Logger, db Pinger, services *core.Services, provisioner core.Provisioner, temporalClient temporalclient.Client) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		services:       services,
		db:             db,
		temporalClient: temporalClient,
		provisioner:    provisioner,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.services.APIKey))

		// Domains
		domain := handler.NewDomain(s.services.Domain)
		r.Get("/domains", domain.List)
		r.Post("/domains", domain.Create)
		r.Get("/domains/{domainID}", domain.Get)
		r.Post("/domains/{domainID}/dkim", domain.GenerateDKIM)
		r.Get("/domains/{domainID}/dns-records", domain.DNSRecords)
		r.Post("/domains/{domainID}/verify", domain.Verify)

		// Suppressions
		suppression := handler.NewSuppression(s.services.Suppression)
		r.Get("/domains/{domainID}/suppressions", suppression.List)
		r.Post("/domains/{domainID}/suppressions", suppression.Add)
		r.Get("/domains/{domainID}/suppressions/check", suppression.Check)
		r.Delete("/domains/{domainID}/suppressions/{email}", suppression.Remove)

		// Rate limits
		rateLimit := handler.NewRateLimit(s.services.RateLimit)
		r.Put("/domains/{domainID}/rate-limits", rateLimit.Set)
		r.Get("/domains/{domainID}/rate-limits/{limitType}", rateLimit.Status)

		// Bounces
		bounce := handler.NewBounce(s.services.Bounce, s.services.Send)
		r.Get("/domains/{domainID}/bounces", bounce.List)
		r.Post("/domains/{domainID}/bounces", bounce.Create)
		r.Post("/domains/{domainID}/bounces/callback", bounce.Callback)
		r.Get("/domains/{domainID}/bounces/threshold", bounce.Threshold)

		// Complaints
		complaint := handler.NewComplaint(s.services.Complaint)
		r.Get("/domains/{domainID}/complaints", complaint.List)
		r.Post("/domains/{domainID}/complaints", complaint.Create)
		r.Get("/domains/{domainID}/complaints/threshold", complaint.Threshold)
		r.Post("/domains/{domainID}/abuse-reports", complaint.AbuseReport)

		feedback := handler.NewFeedback(s.services.Feedback)
		r.Post("/feedback/arf", feedback.ARF)

		// Reputation
		reputation := handler.NewReputation(s.services.Reputation)
		r.Get("/domains/{domainID}/reputation", reputation.Summary)
		r.Get("/domains/{domainID}/reputation/thresholds", reputation.Thresholds)
		r.Post("/domains/{domainID}/reputation/recompute", reputation.Recompute)

		blacklist := handler.NewBlacklist(s.services.Blacklist)
		r.Get("/blacklist/{ip}", blacklist.Check)

		// Sending
		send := handler.NewSend(s.services.Send, s.services.SendLog)
		r.Post("/domains/{domainID}/send", send.Send)
		r.Get("/domains/{domainID}/send-log", send.SendLog)
		r.Post("/headers/validate", send.ValidateHeaders)

		// Mailboxes
		account := handler.NewEmailAccount(s.services.EmailAccount)
		r.Get("/domains/{domainID}/mailboxes", account.ListByDomain)
		r.Post("/domains/{domainID}/mailboxes", account.Create)
		r.Get("/mailboxes/{accountID}", account.Get)
		r.Delete("/mailboxes/{accountID}", account.Delete)
		r.Put("/mailboxes/{accountID}/password", account.UpdatePassword)
		r.Put("/mailboxes/{accountID}/quota", account.SetQuota)
		r.Post("/mailboxes/{accountID}/aliases", account.AddAlias)
		r.Put("/mailboxes/{accountID}/forwarding", account.ConfigureForwarding)

		// API keys
		apiKey := handler.NewAPIKey(s.services.APIKey)
		r.Get("/api-keys", apiKey.List)
		r.Post("/api-keys", apiKey.Create)
		r.Delete("/api-keys/{keyID}", apiKey.Revoke)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz fails when the database or Temporal is unreachable. The mail
// server's state is reported but does not fail readiness: suppression,
// bounce and reputation endpoints work without it.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.db.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if s.temporalClient != nil {
		if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
			checks["temporal"] = err.Error()
			healthy = false
		} else {
			checks["temporal"] = "ok"
		}
	}

	if s.provisioner != nil {
		st, err := s.provisioner.HealthCheck(ctx)
		switch {
		case err != nil:
			checks["mail_server"] = err.Error()
		case !st.Running || !st.Healthy:
			checks["mail_server"] = "degraded"
		default:
			checks["mail_server"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
