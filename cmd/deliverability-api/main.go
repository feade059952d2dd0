package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/deliverability/internal/api"
	"github.com/edvin/deliverability/internal/config"
	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/db"
	"github.com/edvin/deliverability/internal/dnsresolver"
	"github.com/edvin/deliverability/internal/logging"
	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/stalwart"
)

const mailServerTimeout = 30 * time.Second

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "create-api-key" {
		createAPIKey(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("deliverability-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "api")

	if *migrateFlag {
		logger.Info().Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

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
	logger.Info().Str("server", resolver.Server()).Msg("using DNS resolver")

	dnsbl, err := dnsblProviders(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load DNSBL providers")
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid rate limit timezone")
	}

	provisioner, err := newProvisioner(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mail server")
	}

	opts := core.Options{
		Resolver:        resolver,
		Provisioner:     provisioner,
		DNSBLProviders:  dnsbl,
		Location:        loc,
		DNSTimeout:      cfg.DNSTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
	}

	var tc temporalclient.Client
	if cfg.RecomputeMode == config.RecomputeTemporal {
		tc, err = dialTemporal(cfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to temporal")
		}
		defer tc.Close()
		opts.TemporalClient = tc
		opts.TaskQueue = cfg.TemporalTaskQueue
	}
	logger.Info().Str("mode", cfg.RecomputeMode).Msg("reputation recompute mode")

	services := core.NewServices(pool, opts, logger)
	srv := api.NewServer(logger, pool, services, provisioner, tc)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DispatchTimeout*4 + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting deliverability API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newProvisioner(cfg *config.Config, logger zerolog.Logger) (*stalwart.Provisioner, error) {
	smtpTLS, err := cfg.SMTPTLS.Load("smtp")
	if err != nil {
		return nil, err
	}
	sender, err := stalwart.NewSMTPSender(cfg.SMTPSubmissionAddr, cfg.SMTPUsername, cfg.SMTPPassword, smtpTLS)
	if err != nil {
		return nil, err
	}
	return stalwart.NewProvisioner(
		stalwart.NewClient(cfg.StalwartURL, cfg.StalwartAdminToken, mailServerTimeout),
		stalwart.NewJMAPClient(cfg.StalwartURL, cfg.StalwartAdminToken, mailServerTimeout),
		sender,
		logger,
	), nil
}

func dialTemporal(cfg *config.Config, logger zerolog.Logger) (temporalclient.Client, error) {
	tlsConfig, err := cfg.TemporalTLS.Load("temporal")
	if err != nil {
		return nil, err
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	return temporalclient.Dial(dialOpts)
}

func createAPIKey(args []string) {
	fs := flag.NewFlagSet("create-api-key", flag.ExitOnError)
	name := fs.String("name", "", "Name for the API key (required)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fmt.Fprintln(os.Stderr, "usage: deliverability-api create-api-key --name <name>")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := core.NewAPIKeyService(pool)
	key, rawKey, err := svc.Create(ctx, *name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to create API key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key created successfully.\n\n")
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  ID:     %s\n", key.ID)
	fmt.Printf("  Key:    %s\n\n", rawKey)
	fmt.Printf("Save this key, it will not be shown again.\n")
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
