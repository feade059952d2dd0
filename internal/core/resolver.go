package core

import (
	"context"
	"errors"
	"net"
)

// Resolver is the subset of *net.Resolver the deliverability checks use.
// Implementations report NXDOMAIN as a *net.DNSError with IsNotFound set.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
