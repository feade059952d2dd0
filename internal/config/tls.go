package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSFiles points at PEM files for a TLS client connection.
type TLSFiles struct {
	Cert       string
	Key        string
	CACert     string
	ServerName string
}

// IsZero reports whether no TLS material is configured.
func (f TLSFiles) IsZero() bool {
	return f.Cert == "" && f.Key == "" && f.CACert == "" && f.ServerName == ""
}

// Load builds a *tls.Config from the configured files. Returns nil, nil if
// nothing is configured so callers fall back to their defaults.
func (f TLSFiles) Load(name string) (*tls.Config, error) {
	if f.IsZero() {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if f.Cert != "" || f.Key != "" {
		cert, err := tls.LoadX509KeyPair(f.Cert, f.Key)
		if err != nil {
			return nil, fmt.Errorf("load %s client cert: %w", name, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if f.CACert != "" {
		caPEM, err := os.ReadFile(f.CACert)
		if err != nil {
			return nil, fmt.Errorf("read %s CA cert: %w", name, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse %s CA cert", name)
		}
		tlsConfig.RootCAs = pool
	}

	tlsConfig.ServerName = f.ServerName

	return tlsConfig, nil
}
