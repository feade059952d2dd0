package model

import "time"

// DefaultDKIMSelector is used when a domain has no selector configured.
const DefaultDKIMSelector = "mail"

// DefaultMXPriority is published when a domain has no MX priority set.
const DefaultMXPriority = 10

type EmailDomain struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Status        string    `json:"status" db:"status"`
	DNSVerified   bool      `json:"dns_verified" db:"dns_verified"`
	DKIMSelector  *string   `json:"dkim_selector,omitempty" db:"dkim_selector"`
	DKIMPublicKey *string   `json:"dkim_public_key,omitempty" db:"dkim_public_key"`
	MailServerIP  *string   `json:"mail_server_ip,omitempty" db:"mail_server_ip"`
	MXPriority    int       `json:"mx_priority" db:"mx_priority"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Selector returns the configured DKIM selector or the default.
func (d *EmailDomain) Selector() string {
	if d.DKIMSelector != nil && *d.DKIMSelector != "" {
		return *d.DKIMSelector
	}
	return DefaultDKIMSelector
}

// DNSVerification holds the outcome of the four independent DNS checks.
type DNSVerification struct {
	MX    bool `json:"mx"`
	SPF   bool `json:"spf"`
	DKIM  bool `json:"dkim"`
	DMARC bool `json:"dmarc"`
}

// AllPassed reports whether every check succeeded.
func (v DNSVerification) AllPassed() bool {
	return v.MX && v.SPF && v.DKIM && v.DMARC
}

// DKIMSetup is returned after generating DKIM keys for a domain.
type DKIMSetup struct {
	Selector    string `json:"selector"`
	PublicKey   string `json:"public_key"`
	DKIMRecord  string `json:"dkim_record"`
	SPFRecord   string `json:"spf_record"`
	DMARCRecord string `json:"dmarc_record"`
}

// DNSRecord is a record the domain owner must publish.
type DNSRecord struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Value    string `json:"value"`
	Priority *int   `json:"priority,omitempty"`
}

// DNSRecordSet is every record a domain needs published to pass verification.
type DNSRecordSet struct {
	MX    DNSRecord `json:"mx"`
	SPF   DNSRecord `json:"spf"`
	DKIM  DNSRecord `json:"dkim"`
	DMARC DNSRecord `json:"dmarc"`
}
