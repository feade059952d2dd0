package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/deliverability/internal/model"
)

// rateLimitStore is an in-memory email_rate_limits table that understands
// the statements RateLimitService issues.
type rateLimitStore struct {
	mu   sync.Mutex
	rows map[string]*model.RateLimit
	byID map[string]*model.RateLimit
}

func newRateLimitStore() *rateLimitStore {
	return &rateLimitStore{rows: make(map[string]*model.RateLimit), byID: make(map[string]*model.RateLimit)}
}

func (s *rateLimitStore) get(domainID string, accountID *string, limitType string) *model.RateLimit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[rlKey(domainID, accountID, limitType)]
}

func rlKey(domainID string, accountID *string, limitType string) string {
	acct := ""
	if accountID != nil {
		acct = *accountID
	}
	return domainID + "|" + acct + "|" + limitType
}

func rateLimitScan(rl model.RateLimit) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = rl.ID
		*(dest[1].(*string)) = rl.EmailDomainID
		*(dest[2].(**string)) = rl.EmailAccountID
		*(dest[3].(*string)) = rl.LimitType
		*(dest[4].(*int)) = rl.LimitValue
		*(dest[5].(*int)) = rl.CurrentCount
		*(dest[6].(*time.Time)) = rl.ResetAt
		*(dest[7].(*time.Time)) = rl.CreatedAt
		*(dest[8].(*time.Time)) = rl.UpdatedAt
		return nil
	}}
}

func (s *rateLimitStore) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.byID[args[0].(string)]
	if !ok {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	switch {
	case strings.Contains(sql, "GREATEST"):
		if !rl.ResetAt.Equal(args[3].(time.Time)) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		rl.CurrentCount = max(rl.CurrentCount-args[1].(int), 0)
	case strings.Contains(sql, "current_count = current_count + $2"):
		rl.CurrentCount += args[1].(int)
	default:
		return pgconn.CommandTag{}, fmt.Errorf("rateLimitStore: unexpected exec %q", sql)
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *rateLimitStore) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("rateLimitStore: unexpected query %q", sql)
}

func (s *rateLimitStore) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case strings.Contains(sql, "INSERT INTO email_rate_limits"):
		accountID, _ := args[2].(*string)
		k := rlKey(args[1].(string), accountID, args[3].(string))
		resetAt := args[5].(time.Time)
		now := args[6].(time.Time)
		rl, ok := s.rows[k]
		if !ok {
			rl = &model.RateLimit{
				ID: args[0].(string), EmailDomainID: args[1].(string), EmailAccountID: accountID,
				LimitType: args[3].(string), LimitValue: args[4].(int), ResetAt: resetAt,
				CreatedAt: now, UpdatedAt: now,
			}
			s.rows[k] = rl
			s.byID[rl.ID] = rl
		} else if !now.Before(rl.ResetAt) {
			rl.CurrentCount = 0
			rl.ResetAt = resetAt
			rl.UpdatedAt = now
		}
		return rateLimitScan(*rl)
	case strings.Contains(sql, "current_count + $2 <= limit_value"):
		rl, ok := s.byID[args[0].(string)]
		if !ok || rl.CurrentCount+args[1].(int) > rl.LimitValue {
			return errRow(pgx.ErrNoRows)
		}
		rl.CurrentCount += args[1].(int)
		resetAt := rl.ResetAt
		return &mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*time.Time)) = resetAt
			return nil
		}}
	case strings.Contains(sql, "SET limit_value"):
		rl := s.byID[args[0].(string)]
		rl.LimitValue = args[1].(int)
		return rateLimitScan(*rl)
	}
	return errRow(fmt.Errorf("rateLimitStore: unexpected query %q", sql))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRateLimitService(store DB, clock *fakeClock) *RateLimitService {
	svc := NewRateLimitService(store, time.UTC)
	svc.now = clock.Now
	return svc
}

// ---------- nextReset ----------

func TestNextReset(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 37, 22, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), nextReset(now, model.LimitDaily, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC), nextReset(now, model.LimitHourly, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 10, 14, 38, 0, 0, time.UTC), nextReset(now, model.LimitPerMinute, time.UTC))
}

func TestNextReset_LocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	now := time.Date(2026, 5, 10, 20, 0, 0, 0, time.UTC) // 01:30 on May 11 in loc

	assert.Equal(t, time.Date(2026, 5, 12, 0, 0, 0, 0, loc), nextReset(now, model.LimitDaily, loc))
	assert.Equal(t, time.Date(2026, 5, 11, 2, 0, 0, 0, loc), nextReset(now, model.LimitHourly, loc))
}

func TestNextReset_EndOfMonth(t *testing.T) {
	now := time.Date(2026, 12, 31, 23, 59, 30, 0, time.UTC)

	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), nextReset(now, model.LimitDaily, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), nextReset(now, model.LimitHourly, time.UTC))
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), nextReset(now, model.LimitPerMinute, time.UTC))
}

// ---------- GetOrCreate ----------

func TestRateLimitService_GetOrCreate_Defaults(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 10, 14, 37, 0, 0, time.UTC)}
	svc := newTestRateLimitService(newRateLimitStore(), clock)
	ctx := context.Background()

	for limitType, want := range model.DefaultLimits {
		rl, err := svc.GetOrCreate(ctx, "dom-1", nil, limitType)
		require.NoError(t, err)
		assert.Equal(t, want, rl.LimitValue, limitType)
		assert.Equal(t, 0, rl.CurrentCount)
		assert.Nil(t, rl.EmailAccountID)
	}
}

func TestRateLimitService_GetOrCreate_InvalidType(t *testing.T) {
	svc := NewRateLimitService(&mockDB{}, time.UTC)

	_, err := svc.GetOrCreate(context.Background(), "dom-1", nil, "weekly")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestRateLimitService_GetOrCreate_EmptyAccountIsDomainWide(t *testing.T) {
	db := &mockDB{}
	svc := NewRateLimitService(db, time.UTC)
	ctx := context.Background()
	empty := ""

	db.On("QueryRow", ctx, sqlContaining("ON CONFLICT ON CONSTRAINT email_rate_limits_key"), mock.MatchedBy(func(args []any) bool {
		return args[2] == (*string)(nil)
	})).Return(rateLimitScan(model.RateLimit{ID: "rl-1", LimitType: model.LimitDaily, LimitValue: 1000}))

	_, err := svc.GetOrCreate(ctx, "dom-1", &empty, model.LimitDaily)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestRateLimitService_GetOrCreate_DBError(t *testing.T) {
	db := &mockDB{}
	svc := NewRateLimitService(db, time.UTC)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(errRow(fmt.Errorf("timeout")))

	_, err := svc.GetOrCreate(ctx, "dom-1", nil, model.LimitHourly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get or create hourly rate limit")
}

func TestRateLimitService_GetOrCreate_UnknownDomain(t *testing.T) {
	db := &mockDB{}
	svc := NewRateLimitService(db, time.UTC)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContaining("INSERT INTO email_rate_limits"), mock.Anything).
		Return(errRow(fkViolation("email_rate_limits_email_domain_id_fkey")))

	_, err := svc.GetOrCreate(ctx, "dom-404", nil, model.LimitDaily)
	assert.Equal(t, KindNotFound, KindOf(err))
}

// ---------- Check / Increment / reset ----------

func TestRateLimitService_LimitReachedThenReset(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Date(2026, 5, 10, 14, 37, 0, 0, time.UTC)}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	_, err := svc.SetLimit(ctx, "dom-1", nil, model.LimitDaily, 2)
	require.NoError(t, err)

	require.NoError(t, svc.Check(ctx, "dom-1", nil, model.LimitDaily))
	require.NoError(t, svc.Increment(ctx, "dom-1", nil, model.LimitDaily, 1))
	require.NoError(t, svc.Increment(ctx, "dom-1", nil, model.LimitDaily, 1))

	err = svc.Check(ctx, "dom-1", nil, model.LimitDaily)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, "Rate limit exceeded. Limit: 2 emails per day", MessageOf(err))

	// Past midnight the counter resets and the limit is kept.
	clock.Advance(10 * time.Hour)
	require.NoError(t, svc.Check(ctx, "dom-1", nil, model.LimitDaily))

	rl := store.get("dom-1", nil, model.LimitDaily)
	assert.Equal(t, 0, rl.CurrentCount)
	assert.Equal(t, 2, rl.LimitValue)
	assert.Equal(t, time.Date(2026, 5, 12, 0, 0, 0, 0, time.UTC), rl.ResetAt)
}

func TestRateLimitService_ResetAlignsToBoundaryAfterSkippedWindows(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Date(2026, 5, 10, 14, 37, 10, 0, time.UTC)}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, "dom-1", nil, model.LimitHourly, 5))

	clock.Advance(3*time.Hour + 11*time.Minute)
	st, err := svc.Status(ctx, "dom-1", nil, model.LimitHourly)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
	assert.Equal(t, time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC), st.ResetAt)
}

func TestRateLimitService_Check_DoesNotIncrement(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Now()}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.Check(ctx, "dom-1", nil, model.LimitPerMinute))
	}
	assert.Equal(t, 0, store.get("dom-1", nil, model.LimitPerMinute).CurrentCount)
}

func TestRateLimitService_AccountCountersAreIndependent(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Now()}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()
	acct := "acct-1"

	require.NoError(t, svc.Increment(ctx, "dom-1", &acct, model.LimitDaily, 3))
	assert.Equal(t, 3, store.get("dom-1", &acct, model.LimitDaily).CurrentCount)

	st, err := svc.Status(ctx, "dom-1", nil, model.LimitDaily)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
}

// ---------- SetLimit ----------

func TestRateLimitService_SetLimit_KeepsCount(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Now()}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	require.NoError(t, svc.Increment(ctx, "dom-1", nil, model.LimitHourly, 7))
	rl, err := svc.SetLimit(ctx, "dom-1", nil, model.LimitHourly, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, rl.LimitValue)
	assert.Equal(t, 7, rl.CurrentCount)
}

func TestRateLimitService_SetLimit_Negative(t *testing.T) {
	svc := NewRateLimitService(&mockDB{}, time.UTC)

	_, err := svc.SetLimit(context.Background(), "dom-1", nil, model.LimitHourly, -1)
	assert.Equal(t, KindValidation, KindOf(err))
}

// ---------- Reserve / Release ----------

func TestRateLimitService_Reserve_NeverExceedsLimit(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Now()}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	_, err := svc.SetLimit(ctx, "dom-1", nil, model.LimitPerMinute, 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted, rejected := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(ctx, "dom-1", nil, model.LimitPerMinute, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrRateLimitExceeded)
				rejected++
				return
			}
			granted++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, granted)
	assert.Equal(t, 7, rejected)
	assert.Equal(t, 3, store.get("dom-1", nil, model.LimitPerMinute).CurrentCount)
}

func TestRateLimitService_Release(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Date(2026, 5, 10, 14, 37, 0, 0, time.UTC)}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "dom-1", nil, model.LimitHourly, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.get("dom-1", nil, model.LimitHourly).CurrentCount)

	require.NoError(t, svc.Release(ctx, r))
	assert.Equal(t, 0, store.get("dom-1", nil, model.LimitHourly).CurrentCount)
	require.NoError(t, svc.Release(ctx, nil))
}

func TestRateLimitService_Release_AfterWindowRolledOver(t *testing.T) {
	store := newRateLimitStore()
	clock := &fakeClock{t: time.Date(2026, 5, 10, 14, 59, 50, 0, time.UTC)}
	svc := newTestRateLimitService(store, clock)
	ctx := context.Background()

	r, err := svc.Reserve(ctx, "dom-1", nil, model.LimitHourly, 1)
	require.NoError(t, err)

	clock.Advance(20 * time.Second)
	_, err = svc.Reserve(ctx, "dom-1", nil, model.LimitHourly, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, r))
	assert.Equal(t, 1, store.get("dom-1", nil, model.LimitHourly).CurrentCount)
}
