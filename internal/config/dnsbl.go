package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DNSBLZone is one blocklist entry from the DNSBL providers file.
type DNSBLZone struct {
	Name string `yaml:"name"`
	Zone string `yaml:"zone"`
}

type dnsblFile struct {
	Providers []DNSBLZone `yaml:"providers"`
}

// LoadDNSBLZones reads the DNSBL providers file. An empty path returns nil so
// callers fall back to the built-in provider list.
func LoadDNSBLZones(path string) ([]DNSBLZone, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dnsbl providers %s: %w", path, err)
	}
	return ParseDNSBLZones(data)
}

// ParseDNSBLZones parses a providers document:
//
//	providers:
//	  - name: Spamhaus ZEN
//	    zone: zen.spamhaus.org
func ParseDNSBLZones(data []byte) ([]DNSBLZone, error) {
	var f dnsblFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dnsbl providers: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, fmt.Errorf("dnsbl providers file lists no providers")
	}

	seen := map[string]bool{}
	zones := make([]DNSBLZone, 0, len(f.Providers))
	for i, p := range f.Providers {
		zone := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(p.Zone), "."))
		if zone == "" {
			return nil, fmt.Errorf("dnsbl provider %d: zone is required", i)
		}
		if seen[zone] {
			return nil, fmt.Errorf("dnsbl provider %d: duplicate zone %s", i, zone)
		}
		seen[zone] = true
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = zone
		}
		zones = append(zones, DNSBLZone{Name: name, Zone: zone})
	}
	return zones, nil
}
