package core

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
)

// DNSBLProvider is a DNS-based blocklist zone.
type DNSBLProvider struct {
	Name string
	Zone string
}

var DefaultDNSBLProviders = []DNSBLProvider{
	{Name: "Spamhaus ZEN", Zone: "zen.spamhaus.org"},
	{Name: "SpamCop", Zone: "bl.spamcop.net"},
	{Name: "SORBS", Zone: "dnsbl.sorbs.net"},
	{Name: "Barracuda", Zone: "b.barracudacentral.org"},
}

// notListedSentinel is the answer some zones return for a clean address.
const notListedSentinel = "127.0.0.1"

// Spamhaus answers 127.255.255.0/24 for refused or malformed queries.
var dnsblErrorNet = &net.IPNet{IP: net.IPv4(127, 255, 255, 0), Mask: net.CIDRMask(24, 32)}

// BlacklistChecker queries DNSBL zones for a sending IP.
type BlacklistChecker struct {
	resolver  Resolver
	providers []DNSBLProvider
	timeout   time.Duration
	logger    zerolog.Logger
}

func NewBlacklistChecker(resolver Resolver, providers []DNSBLProvider, timeout time.Duration, logger zerolog.Logger) *BlacklistChecker {
	if len(providers) == 0 {
		providers = DefaultDNSBLProviders
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BlacklistChecker{
		resolver:  resolver,
		providers: providers,
		timeout:   timeout,
		logger:    logger.With().Str("component", "dnsbl").Logger(),
	}
}

// dnsblQueryName builds the reversed-octet (or reversed-nibble for IPv6)
// lookup name for ip under zone.
func dnsblQueryName(ip net.IP, zone string) string {
	rev, _ := dns.ReverseAddr(ip.String())
	rev = strings.TrimSuffix(rev, "in-addr.arpa.")
	rev = strings.TrimSuffix(rev, "ip6.arpa.")
	return rev + zone
}

// CheckBlacklist queries every provider concurrently. A provider whose lookup
// fails is reported as not listed.
func (c *BlacklistChecker) CheckBlacklist(ctx context.Context, ip string) (*model.BlacklistStatus, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, newError(KindValidation, nil, "invalid IP address %q", ip)
	}

	details := make([]model.BlacklistEntry, len(c.providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range c.providers {
		g.Go(func() error {
			details[i] = model.BlacklistEntry{Name: p.Name, Zone: p.Zone, Listed: c.lookup(gctx, parsed, p)}
			return nil
		})
	}
	_ = g.Wait()

	status := &model.BlacklistStatus{Blacklists: []string{}, Details: details}
	for _, d := range details {
		if d.Listed {
			status.Blacklisted = true
			status.Blacklists = append(status.Blacklists, d.Name)
		}
	}
	return status, nil
}

func (c *BlacklistChecker) lookup(ctx context.Context, ip net.IP, p DNSBLProvider) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	name := dnsblQueryName(ip, p.Zone)
	addrs, err := c.resolver.LookupHost(ctx, name)
	if err != nil {
		if isNotFound(err) {
			metrics.DNSBLLookupsTotal.WithLabelValues(p.Zone, "clean").Inc()
			return false
		}
		c.logger.Warn().Err(err).Str("zone", p.Zone).Str("query", name).Msg("DNSBL lookup failed, treating as not listed")
		metrics.DNSBLLookupsTotal.WithLabelValues(p.Zone, "error").Inc()
		return false
	}

	for _, a := range addrs {
		if a == notListedSentinel {
			continue
		}
		if answer := net.ParseIP(a); answer != nil && dnsblErrorNet.Contains(answer) {
			c.logger.Warn().Str("zone", p.Zone).Str("answer", a).Msg("DNSBL refused query")
			metrics.DNSBLLookupsTotal.WithLabelValues(p.Zone, "error").Inc()
			return false
		}
		metrics.DNSBLLookupsTotal.WithLabelValues(p.Zone, "listed").Inc()
		return true
	}
	metrics.DNSBLLookupsTotal.WithLabelValues(p.Zone, "clean").Inc()
	return false
}
