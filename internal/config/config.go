package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	ServiceName       string
	DatabaseURL       string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string

	TemporalAddress   string
	TemporalTaskQueue string
	TemporalTLS       TLSFiles

	// RecomputeMode selects how reputation recomputes triggered by bounces,
	// complaints and sends are executed: "sync" or "temporal".
	RecomputeMode string

	StalwartURL        string
	StalwartAdminToken string

	SMTPSubmissionAddr string
	SMTPUsername       string
	SMTPPassword       string
	SMTPTLS            TLSFiles

	// DNSServer is host:port of the resolver used for DNS verification and
	// DNSBL lookups. Empty means the first nameserver in /etc/resolv.conf.
	DNSServer  string
	DNSTimeout time.Duration

	// DNSBLProvidersFile is an optional YAML list replacing the built-in
	// DNSBL zones.
	DNSBLProvidersFile string

	DispatchTimeout   time.Duration
	RateLimitTimezone string
}

const (
	RecomputeSync     = "sync"
	RecomputeTemporal = "temporal"
)

func Load() (*Config, error) {
	dnsTimeout, err := time.ParseDuration(getEnv("DNS_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("parse DNS_TIMEOUT: %w", err)
	}
	dispatchTimeout, err := time.ParseDuration(getEnv("DISPATCH_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("parse DISPATCH_TIMEOUT: %w", err)
	}

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "deliverability"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "deliverability-tasks"),
		TemporalTLS: TLSFiles{
			Cert:       getEnv("TEMPORAL_TLS_CERT", ""),
			Key:        getEnv("TEMPORAL_TLS_KEY", ""),
			CACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
			ServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
		},
		RecomputeMode:      getEnv("RECOMPUTE_MODE", RecomputeSync),
		StalwartURL:        getEnv("STALWART_URL", ""),
		StalwartAdminToken: getEnv("STALWART_ADMIN_TOKEN", ""),
		SMTPSubmissionAddr: getEnv("SMTP_SUBMISSION_ADDR", ""),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),
		SMTPTLS: TLSFiles{
			CACert:     getEnv("SMTP_TLS_CA_CERT", ""),
			ServerName: getEnv("SMTP_TLS_SERVER_NAME", ""),
		},
		DNSServer:          getEnv("DNS_SERVER", ""),
		DNSTimeout:         dnsTimeout,
		DNSBLProvidersFile: getEnv("DNSBL_PROVIDERS_FILE", ""),
		DispatchTimeout:    dispatchTimeout,
		RateLimitTimezone:  getEnv("RATE_LIMIT_TIMEZONE", "Local"),
	}

	return cfg, nil
}

// Validate checks that the variables required by the given component are set.
func (c *Config) Validate(component string) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch component {
	case "deliverability-api":
		require("DATABASE_URL", c.DatabaseURL)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		require("STALWART_URL", c.StalwartURL)
		require("STALWART_ADMIN_TOKEN", c.StalwartAdminToken)
		require("SMTP_SUBMISSION_ADDR", c.SMTPSubmissionAddr)
		if c.RecomputeMode == RecomputeTemporal {
			require("TEMPORAL_ADDRESS", c.TemporalAddress)
		}
	case "worker":
		require("DATABASE_URL", c.DatabaseURL)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("TEMPORAL_TASK_QUEUE", c.TemporalTaskQueue)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables for %s: %s", component, strings.Join(missing, ", "))
	}

	if c.RecomputeMode != RecomputeSync && c.RecomputeMode != RecomputeTemporal {
		return fmt.Errorf("RECOMPUTE_MODE must be %q or %q, got %q", RecomputeSync, RecomputeTemporal, c.RecomputeMode)
	}

	if (c.TemporalTLS.Cert == "") != (c.TemporalTLS.Key == "") {
		return fmt.Errorf("TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location returns the timezone used for daily rate-limit boundaries.
func (c *Config) Location() (*time.Location, error) {
	if c.RateLimitTimezone == "" || c.RateLimitTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.RateLimitTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_TIMEZONE %q: %w", c.RateLimitTimezone, err)
	}
	return loc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
