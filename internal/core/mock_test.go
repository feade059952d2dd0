package core

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/deliverability/internal/compliance"
	"github.com/edvin/deliverability/internal/model"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return err }}
}

// fkViolation is the error pgx returns when a referenced row is missing.
func fkViolation(constraint string) error {
	return &pgconn.PgError{
		Code:           "23503",
		Message:        "insert or update violates foreign key constraint",
		ConstraintName: constraint,
	}
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

// newEmptyMockRows returns a mockRows that yields zero rows.
func newEmptyMockRows() *mockRows {
	return &mockRows{}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

func sqlContaining(parts ...string) any {
	return mock.MatchedBy(func(sql string) bool { return containsAll(sql, parts...) })
}

// ---------- Suppression store ----------

// suppressionStore is an in-memory email_suppressions table that understands
// the statements SuppressionService issues.
type suppressionStore struct {
	mu   sync.Mutex
	rows map[string]model.Suppression
}

func newSuppressionStore() *suppressionStore {
	return &suppressionStore{rows: make(map[string]model.Suppression)}
}

func (s *suppressionStore) key(domainID, address any) string {
	return fmt.Sprintf("%v|%v", domainID, address)
}

// count returns how many suppressions of typ exist for the address.
func (s *suppressionStore) count(domainID, address, typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.EmailDomainID == domainID && r.EmailAddress == address && r.SuppressionType == typ {
			n++
		}
	}
	return n
}

func (s *suppressionStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.Contains(sql, "DELETE FROM email_suppressions") {
		return pgconn.CommandTag{}, fmt.Errorf("suppressionStore: unexpected exec %q", sql)
	}
	k := s.key(args[0], args[1])
	if _, ok := s.rows[k]; !ok {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	delete(s.rows, k)
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (s *suppressionStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("suppressionStore: unexpected query %q", sql)
}

func (s *suppressionStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(sql, "SELECT EXISTS"):
		_, ok := s.rows[s.key(args[0], args[1])]
		return &mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*bool)) = ok
			return nil
		}}
	case strings.Contains(sql, "INSERT INTO email_suppressions"):
		k := s.key(args[1], args[2])
		row, ok := s.rows[k]
		if !ok {
			row = model.Suppression{ID: args[0].(string), EmailDomainID: args[1].(string), EmailAddress: args[2].(string)}
		}
		row.SuppressionType = args[3].(string)
		row.Reason = args[4].(*string)
		row.SuppressedAt = args[5].(time.Time)
		s.rows[k] = row
		return &mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = row.ID
			*(dest[1].(*string)) = row.EmailDomainID
			*(dest[2].(*string)) = row.EmailAddress
			*(dest[3].(*string)) = row.SuppressionType
			*(dest[4].(**string)) = row.Reason
			*(dest[5].(*time.Time)) = row.SuppressedAt
			return nil
		}}
	}
	return errRow(fmt.Errorf("suppressionStore: unexpected query %q", sql))
}

// ---------- Fake resolver ----------

// fakeResolver answers from fixed tables. Unknown names are NXDOMAIN.
type fakeResolver struct {
	mu      sync.Mutex
	mx      map[string][]*net.MX
	txt     map[string][]string
	hosts   map[string][]string
	errs    map[string]error
	queries []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		mx:    make(map[string][]*net.MX),
		txt:   make(map[string][]string),
		hosts: make(map[string][]string),
		errs:  make(map[string]error),
	}
}

func nxdomain(name string) error {
	return &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r *fakeResolver) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, name)
	return r.errs[name]
}

func (r *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	if err := r.record(name); err != nil {
		return nil, err
	}
	if v, ok := r.mx[name]; ok {
		return v, nil
	}
	return nil, nxdomain(name)
}

func (r *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	if err := r.record(name); err != nil {
		return nil, err
	}
	if v, ok := r.txt[name]; ok {
		return v, nil
	}
	return nil, nxdomain(name)
}

func (r *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if err := r.record(host); err != nil {
		return nil, err
	}
	if v, ok := r.hosts[host]; ok {
		return v, nil
	}
	return nil, nxdomain(host)
}

// ---------- Mock provisioner ----------

type mockProvisioner struct {
	mock.Mock
}

func (m *mockProvisioner) CreateMailbox(ctx context.Context, domain string, spec MailboxSpec) error {
	return m.Called(ctx, domain, spec).Error(0)
}

func (m *mockProvisioner) UpdateMailboxPassword(ctx context.Context, address, passwordHash string) error {
	return m.Called(ctx, address, passwordHash).Error(0)
}

func (m *mockProvisioner) RemoveMailbox(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func (m *mockProvisioner) SetQuota(ctx context.Context, address string, quotaBytes int64) error {
	return m.Called(ctx, address, quotaBytes).Error(0)
}

func (m *mockProvisioner) ConfigureForwarding(ctx context.Context, address string, targets []string, keepCopy bool) error {
	return m.Called(ctx, address, targets, keepCopy).Error(0)
}

func (m *mockProvisioner) AddAlias(ctx context.Context, address, alias string) error {
	return m.Called(ctx, address, alias).Error(0)
}

func (m *mockProvisioner) GenerateDkimKeys(ctx context.Context, domain, selector string) (string, error) {
	args := m.Called(ctx, domain, selector)
	return args.String(0), args.Error(1)
}

func (m *mockProvisioner) DispatchMessage(ctx context.Context, headers *compliance.Headers, body string) (string, error) {
	args := m.Called(ctx, headers, body)
	return args.String(0), args.Error(1)
}

func (m *mockProvisioner) HealthCheck(ctx context.Context) (HealthStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(HealthStatus), args.Error(1)
}

var healthy = HealthStatus{Running: true, Healthy: true}

// ---------- Recompute recorder ----------

type recordingRecompute struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recordingRecompute) TriggerRecompute(ctx context.Context, domainID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, domainID)
	return r.err
}
