package core

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mjl-/mox/dkim"
	"github.com/mjl-/mox/dmarc"
	"github.com/mjl-/mox/spf"
	"github.com/rs/zerolog"

	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const domainColumns = `id, name, status, dns_verified, dkim_selector, dkim_public_key, mail_server_ip, mx_priority, created_at, updated_at`

var dkimKeyPattern = regexp.MustCompile(`p=([^;]+)`)

// CreateDomainInput registers a sending domain.
type CreateDomainInput struct {
	Name         string  `json:"name"`
	MailServerIP *string `json:"mail_server_ip,omitempty"`
	MXPriority   *int    `json:"mx_priority,omitempty"`
	DKIMSelector *string `json:"dkim_selector,omitempty"`
}

// DomainService owns the domain lifecycle: DKIM key setup and DNS
// verification that gates the pending to active transition.
type DomainService struct {
	db          DB
	resolver    Resolver
	provisioner Provisioner
	dnsTimeout  time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

func NewDomainService(db DB, resolver Resolver, provisioner Provisioner, dnsTimeout time.Duration, logger zerolog.Logger) *DomainService {
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}
	return &DomainService{
		db:          db,
		resolver:    resolver,
		provisioner: provisioner,
		dnsTimeout:  dnsTimeout,
		logger:      logger.With().Str("component", "domains").Logger(),
		now:         time.Now,
	}
}

// normalizeDomain lowercases a domain name and strips a trailing root dot.
func normalizeDomain(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

func (s *DomainService) GetByID(ctx context.Context, id string) (*model.EmailDomain, error) {
	d, err := scanDomain(s.db.QueryRow(ctx, `SELECT `+domainColumns+` FROM email_domains WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, nil, "domain %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", id, err)
	}
	return d, nil
}

func (s *DomainService) GetByName(ctx context.Context, name string) (*model.EmailDomain, error) {
	name = normalizeDomain(name)
	d, err := scanDomain(s.db.QueryRow(ctx, `SELECT `+domainColumns+` FROM email_domains WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, newError(KindNotFound, nil, "Domain not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain %s: %w", name, err)
	}
	return d, nil
}

func (s *DomainService) List(ctx context.Context) ([]model.EmailDomain, error) {
	rows, err := s.db.Query(ctx, `SELECT `+domainColumns+` FROM email_domains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []model.EmailDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domains: %w", err)
	}
	return out, nil
}

// Create registers a domain in the pending state and tries to set up its
// DKIM key. A failed key setup is logged and can be retried with GenerateDKIM.
func (s *DomainService) Create(ctx context.Context, in CreateDomainInput) (*model.EmailDomain, error) {
	name := normalizeDomain(in.Name)
	if !strings.Contains(name, ".") || strings.ContainsAny(name, " @/") {
		return nil, newError(KindValidation, nil, "invalid domain name %q", in.Name)
	}
	if in.MailServerIP != nil && *in.MailServerIP != "" && net.ParseIP(*in.MailServerIP) == nil {
		return nil, newError(KindValidation, nil, "invalid mail server IP %q", *in.MailServerIP)
	}
	priority := model.DefaultMXPriority
	if in.MXPriority != nil {
		if *in.MXPriority < 0 || *in.MXPriority > 65535 {
			return nil, newError(KindValidation, nil, "MX priority must be between 0 and 65535")
		}
		priority = *in.MXPriority
	}

	now := s.now().UTC()
	d, err := scanDomain(s.db.QueryRow(ctx,
		`INSERT INTO email_domains (`+domainColumns+`)
		 VALUES ($1, $2, $3, false, $4, NULL, $5, $6, $7, $7)
		 RETURNING `+domainColumns,
		platform.NewID(), name, model.StatusPending, in.DKIMSelector, in.MailServerIP, priority, now,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, newError(KindValidation, err, "domain %s already exists", name)
		}
		return nil, fmt.Errorf("insert domain %s: %w", name, err)
	}

	if _, err := s.GenerateDKIM(ctx, d.ID); err != nil {
		s.logger.Warn().Err(err).Str("domain", name).Msg("DKIM setup after domain creation failed")
		return d, nil
	}
	return s.GetByID(ctx, d.ID)
}

// GenerateDKIM asks the mail server for a signing key, stores the selector
// and public key, and returns the records to publish.
func (s *DomainService) GenerateDKIM(ctx context.Context, id string) (*model.DKIMSetup, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireHealthy(ctx, s.provisioner); err != nil {
		return nil, err
	}

	selector := d.Selector()
	record, err := s.provisioner.GenerateDkimKeys(ctx, d.Name, selector)
	if err != nil {
		return nil, newError(KindProvisionerUnavailable, err, "Failed to generate DKIM keys")
	}
	publicKey := extractDKIMPublicKey(record)

	_, err = s.db.Exec(ctx,
		`UPDATE email_domains SET dkim_selector = $2, dkim_public_key = $3, updated_at = $4 WHERE id = $1`,
		d.ID, selector, publicKey, s.now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("store DKIM key for domain %s: %w", d.Name, err)
	}

	return &model.DKIMSetup{
		Selector:    selector,
		PublicKey:   publicKey,
		DKIMRecord:  record,
		SPFRecord:   spfRecord(d),
		DMARCRecord: dmarcRecord(d.Name),
	}, nil
}

// extractDKIMPublicKey returns the base64 p= tag of a DKIM TXT value.
func extractDKIMPublicKey(record string) string {
	if r, isDKIM, err := dkim.ParseRecord(record); err == nil && isDKIM && len(r.Pubkey) > 0 {
		return base64.StdEncoding.EncodeToString(r.Pubkey)
	}
	if m := dkimKeyPattern.FindStringSubmatch(record); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func mailHost(domain string) string {
	return "mail." + domain
}

func spfRecord(d *model.EmailDomain) string {
	parts := []string{"v=spf1", "mx", "a:" + mailHost(d.Name)}
	if d.MailServerIP != nil && *d.MailServerIP != "" {
		mech := "ip4:"
		if ip := net.ParseIP(*d.MailServerIP); ip != nil && ip.To4() == nil {
			mech = "ip6:"
		}
		parts = append(parts, mech+*d.MailServerIP)
	}
	parts = append(parts, "-all")
	return strings.Join(parts, " ")
}

func dmarcRecord(domain string) string {
	return fmt.Sprintf("v=DMARC1; p=quarantine; rua=mailto:dmarc@%s; ruf=mailto:dmarc@%s; pct=100; sp=quarantine; aspf=r; adkim=r", domain, domain)
}

// DNSRecords returns the MX, SPF, DKIM and DMARC records the domain owner
// must publish.
func (s *DomainService) DNSRecords(ctx context.Context, id string) (*model.DNSRecordSet, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	priority := d.MXPriority
	key := ""
	if d.DKIMPublicKey != nil {
		key = *d.DKIMPublicKey
	}
	return &model.DNSRecordSet{
		MX: model.DNSRecord{
			Type:     "MX",
			Host:     "@",
			Value:    strconv.Itoa(priority) + " " + mailHost(d.Name),
			Priority: &priority,
		},
		SPF:   model.DNSRecord{Type: "TXT", Host: "@", Value: spfRecord(d)},
		DKIM:  model.DNSRecord{Type: "TXT", Host: d.Selector() + "._domainkey", Value: "v=DKIM1; k=rsa; p=" + key},
		DMARC: model.DNSRecord{Type: "TXT", Host: "_dmarc", Value: dmarcRecord(d.Name)},
	}, nil
}

// Verify runs the four DNS checks independently. Only when all pass does the
// domain become active; otherwise it is marked unverified and its status is
// left alone.
func (s *DomainService) Verify(ctx context.Context, id string) (*model.DNSVerification, error) {
	d, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &model.DNSVerification{
		MX:    s.checkMX(ctx, d),
		SPF:   s.checkSPF(ctx, d),
		DKIM:  s.checkDKIM(ctx, d),
		DMARC: s.checkDMARC(ctx, d),
	}

	now := s.now().UTC()
	if v.AllPassed() {
		_, err = s.db.Exec(ctx,
			`UPDATE email_domains SET status = $2, dns_verified = true, updated_at = $3 WHERE id = $1`,
			d.ID, model.StatusActive, now)
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE email_domains SET dns_verified = false, updated_at = $2 WHERE id = $1`,
			d.ID, now)
	}
	if err != nil {
		return nil, fmt.Errorf("store verification result for domain %s: %w", d.Name, err)
	}

	s.logger.Info().Str("domain", d.Name).Bool("mx", v.MX).Bool("spf", v.SPF).
		Bool("dkim", v.DKIM).Bool("dmarc", v.DMARC).Msg("DNS verification finished")
	return v, nil
}

func (s *DomainService) checkMX(ctx context.Context, d *model.EmailDomain) bool {
	ctx, cancel := context.WithTimeout(ctx, s.dnsTimeout)
	defer cancel()

	mxs, err := s.resolver.LookupMX(ctx, d.Name)
	if err != nil {
		s.logger.Warn().Err(err).Str("domain", d.Name).Msg("MX lookup failed")
		return false
	}

	target := mailHost(d.Name)
	var want net.IP
	if d.MailServerIP != nil && *d.MailServerIP != "" {
		target = *d.MailServerIP
		want = net.ParseIP(target)
	}
	target = strings.ToLower(target)

	for _, mx := range mxs {
		host := strings.ToLower(strings.TrimSuffix(mx.Host, "."))
		if strings.Contains(host, target) {
			return true
		}
		if want == nil {
			continue
		}
		addrs, err := s.resolver.LookupHost(ctx, host)
		if err != nil {
			s.logger.Warn().Err(err).Str("mx", host).Msg("MX host lookup failed")
			continue
		}
		for _, a := range addrs {
			if want.Equal(net.ParseIP(a)) {
				return true
			}
		}
	}
	return false
}

func (s *DomainService) checkSPF(ctx context.Context, d *model.EmailDomain) bool {
	txts, ok := s.lookupTXT(ctx, d.Name, "SPF")
	if !ok {
		return false
	}
	found := false
	for _, txt := range txts {
		if !strings.Contains(txt, "v=spf1") {
			continue
		}
		found = true
		if _, _, err := spf.ParseRecord(txt); err != nil {
			s.logger.Warn().Err(err).Str("domain", d.Name).Str("record", txt).Msg("published SPF record does not parse")
		}
	}
	return found
}

func (s *DomainService) checkDKIM(ctx context.Context, d *model.EmailDomain) bool {
	if d.DKIMSelector == nil || *d.DKIMSelector == "" {
		return false
	}
	name := *d.DKIMSelector + "._domainkey." + d.Name
	txts, ok := s.lookupTXT(ctx, name, "DKIM")
	if !ok {
		return false
	}
	record := strings.TrimSpace(strings.Join(txts, ""))
	if record == "" {
		return false
	}
	if _, _, err := dkim.ParseRecord(record); err != nil {
		s.logger.Warn().Err(err).Str("name", name).Msg("published DKIM record does not parse")
	}
	return true
}

func (s *DomainService) checkDMARC(ctx context.Context, d *model.EmailDomain) bool {
	txts, ok := s.lookupTXT(ctx, "_dmarc."+d.Name, "DMARC")
	if !ok {
		return false
	}
	found := false
	for _, txt := range txts {
		if !strings.Contains(txt, "v=DMARC1") {
			continue
		}
		found = true
		if _, _, err := dmarc.ParseRecord(txt); err != nil {
			s.logger.Warn().Err(err).Str("domain", d.Name).Str("record", txt).Msg("published DMARC record does not parse")
		}
	}
	return found
}

func (s *DomainService) lookupTXT(ctx context.Context, name, check string) ([]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.dnsTimeout)
	defer cancel()

	txts, err := s.resolver.LookupTXT(ctx, name)
	if err != nil {
		s.logger.Warn().Err(err).Str("name", name).Str("check", check).Msg("TXT lookup failed")
		return nil, false
	}
	return txts, true
}

func scanDomain(row pgx.Row) (*model.EmailDomain, error) {
	var d model.EmailDomain
	if err := row.Scan(&d.ID, &d.Name, &d.Status, &d.DNSVerified, &d.DKIMSelector, &d.DKIMPublicKey,
		&d.MailServerIP, &d.MXPriority, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
