package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDNSBLZones(t *testing.T) {
	zones, err := ParseDNSBLZones([]byte(`
providers:
  - name: Spamhaus ZEN
    zone: zen.spamhaus.org.
  - zone: " B.Barracudacentral.org "
`))
	require.NoError(t, err)
	assert.Equal(t, []DNSBLZone{
		{Name: "Spamhaus ZEN", Zone: "zen.spamhaus.org"},
		{Name: "b.barracudacentral.org", Zone: "b.barracudacentral.org"},
	}, zones)
}

func TestParseDNSBLZones_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "providers: []", "lists no providers"},
		{"missing zone", "providers:\n  - name: x\n", "zone is required"},
		{"duplicate", "providers:\n  - zone: a.example\n  - zone: A.example.\n", "duplicate zone"},
		{"bad yaml", "providers: [", "parse dnsbl providers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDNSBLZones([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadDNSBLZones(t *testing.T) {
	zones, err := LoadDNSBLZones("")
	require.NoError(t, err)
	assert.Nil(t, zones)

	path := filepath.Join(t.TempDir(), "dnsbl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  - name: SpamCop\n    zone: bl.spamcop.net\n"), 0o600))
	zones, err = LoadDNSBLZones(path)
	require.NoError(t, err)
	assert.Equal(t, []DNSBLZone{{Name: "SpamCop", Zone: "bl.spamcop.net"}}, zones)

	_, err = LoadDNSBLZones(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read dnsbl providers")
}
