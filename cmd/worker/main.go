package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/deliverability/internal/activity"
	"github.com/edvin/deliverability/internal/config"
	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/db"
	"github.com/edvin/deliverability/internal/dnsresolver"
	"github.com/edvin/deliverability/internal/logging"
	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	resolver, err := dnsresolver.New(cfg.DNSServer, cfg.DNSTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure DNS resolver")
	}
	dnsbl, err := dnsblProviders(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load DNSBL providers")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid rate limit timezone")
	}

	// Recomputes run inline here: the worker is where the workflow lands.
	services := core.NewServices(pool, core.Options{
		Resolver:       resolver,
		DNSBLProviders: dnsbl,
		Location:       loc,
		DNSTimeout:     cfg.DNSTimeout,
	}, logger)

	tlsConfig, err := cfg.TemporalTLS.Load("temporal")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, cfg.TemporalTaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}},
	})

	w.RegisterActivity(activity.NewReputation(services.Reputation, services.Domain, logger))

	w.RegisterWorkflow(workflow.RecomputeReputationWorkflow)
	w.RegisterWorkflow(workflow.RecomputeAllReputationsWorkflow)

	if cfg.MetricsListenAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsListenAddr, pool.Ping)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	// Already-existing schedules are left alone so re-deploys do not fail.
	registerCronSchedules(ctx, tc, cfg.TemporalTaskQueue, logger)

	logger.Info().Str("taskQueue", cfg.TemporalTaskQueue).Msg("starting temporal worker")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
	logger.Info().Msg("worker stopped")
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

func registerCronSchedules(ctx context.Context, tc temporalclient.Client, taskQueue string, logger zerolog.Logger) {
	schedules := []cronSchedule{
		{
			// Shortly after the UTC metric day rolls over, and again mid-day
			// so blacklist listings surface without waiting for traffic.
			id:       "reputation-sweep-cron",
			cron:     "15 0,12 * * *",
			workflow: workflow.RecomputeAllReputationsWorkflow,
		},
	}

	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: taskQueue,
			},
		})
		switch {
		case err == nil:
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		case isAlreadyExists(err):
			logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
		default:
			logger.Fatal().Err(err).Str("id", s.id).Msg("failed to create cron schedule")
		}
	}
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "AlreadyExists") || strings.Contains(msg, "already registered")
}

// dnsblProviders returns nil, selecting the built-in zones, when no providers
// file is configured.
func dnsblProviders(cfg *config.Config) ([]core.DNSBLProvider, error) {
	zones, err := config.LoadDNSBLZones(cfg.DNSBLProvidersFile)
	if err != nil || zones == nil {
		return nil, err
	}
	providers := make([]core.DNSBLProvider, len(zones))
	for i, z := range zones {
		providers[i] = core.DNSBLProvider{Name: z.Name, Zone: z.Zone}
	}
	return providers, nil
}
