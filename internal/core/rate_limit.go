package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/deliverability/internal/metrics"
	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const rateLimitColumns = `id, email_domain_id, email_account_id, limit_type, limit_value, current_count, reset_at, created_at, updated_at`

// RateLimitService maintains the daily, hourly and per-minute send quotas for
// a domain or a single account within it.
type RateLimitService struct {
	db  DB
	loc *time.Location
	now func() time.Time
}

func NewRateLimitService(db DB, loc *time.Location) *RateLimitService {
	if loc == nil {
		loc = time.Local
	}
	return &RateLimitService{db: db, loc: loc, now: time.Now}
}

// Reservation is a quota slot taken by Reserve. It can be handed back with
// Release as long as the window it was taken from has not rolled over.
type Reservation struct {
	RateLimitID string
	LimitType   string
	Amount      int
	ResetAt     time.Time
}

// nextReset returns the first window boundary strictly after now.
func nextReset(now time.Time, limitType string, loc *time.Location) time.Time {
	t := now.In(loc)
	y, mo, d := t.Date()
	switch limitType {
	case model.LimitDaily:
		return time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
	case model.LimitHourly:
		return time.Date(y, mo, d, t.Hour()+1, 0, 0, 0, loc)
	default:
		return time.Date(y, mo, d, t.Hour(), t.Minute()+1, 0, 0, loc)
	}
}

func windowName(limitType string) string {
	switch limitType {
	case model.LimitDaily:
		return "day"
	case model.LimitHourly:
		return "hour"
	default:
		return "minute"
	}
}

func nullableID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

// GetOrCreate returns the counter for the key, creating it with the default
// limit if absent and resetting it if its window has elapsed.
func (s *RateLimitService) GetOrCreate(ctx context.Context, domainID string, accountID *string, limitType string) (*model.RateLimit, error) {
	if !model.ValidLimitType(limitType) {
		return nil, newError(KindValidation, nil, "invalid limit type %q", limitType)
	}

	now := s.now()
	row := s.db.QueryRow(ctx,
		`INSERT INTO email_rate_limits (`+rateLimitColumns+`)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)
		 ON CONFLICT ON CONSTRAINT email_rate_limits_key DO UPDATE SET
		   current_count = CASE WHEN $7 >= email_rate_limits.reset_at THEN 0 ELSE email_rate_limits.current_count END,
		   reset_at = CASE WHEN $7 >= email_rate_limits.reset_at THEN $6 ELSE email_rate_limits.reset_at END,
		   updated_at = CASE WHEN $7 >= email_rate_limits.reset_at THEN $7 ELSE email_rate_limits.updated_at END
		 RETURNING `+rateLimitColumns,
		platform.NewID(), domainID, nullableID(accountID), limitType,
		model.DefaultLimits[limitType], nextReset(now, limitType, s.loc), now,
	)
	rl, err := scanRateLimit(row)
	if err != nil {
		return nil, domainInsertError(err, domainID, "get or create %s rate limit for domain %s", limitType, domainID)
	}
	return rl, nil
}

// Check fails with RateLimitExceeded if the window is at capacity. It does
// not consume quota.
func (s *RateLimitService) Check(ctx context.Context, domainID string, accountID *string, limitType string) error {
	rl, err := s.GetOrCreate(ctx, domainID, accountID, limitType)
	if err != nil {
		return err
	}
	if rl.CurrentCount >= rl.LimitValue {
		metrics.RateLimitRejectionsTotal.WithLabelValues(limitType).Inc()
		return exceeded(rl)
	}
	return nil
}

// Increment adds amount to the counter unconditionally.
func (s *RateLimitService) Increment(ctx context.Context, domainID string, accountID *string, limitType string, amount int) error {
	rl, err := s.GetOrCreate(ctx, domainID, accountID, limitType)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx,
		`UPDATE email_rate_limits SET current_count = current_count + $2, updated_at = $3 WHERE id = $1`,
		rl.ID, amount, s.now(),
	)
	if err != nil {
		return fmt.Errorf("increment %s rate limit %s: %w", limitType, rl.ID, err)
	}
	return nil
}

// Reserve atomically consumes amount from the window if it fits under the
// limit, failing with RateLimitExceeded otherwise.
func (s *RateLimitService) Reserve(ctx context.Context, domainID string, accountID *string, limitType string, amount int) (*Reservation, error) {
	rl, err := s.GetOrCreate(ctx, domainID, accountID, limitType)
	if err != nil {
		return nil, err
	}

	var resetAt time.Time
	err = s.db.QueryRow(ctx,
		`UPDATE email_rate_limits SET current_count = current_count + $2, updated_at = $3
		 WHERE id = $1 AND current_count + $2 <= limit_value
		 RETURNING reset_at`,
		rl.ID, amount, s.now(),
	).Scan(&resetAt)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RateLimitRejectionsTotal.WithLabelValues(limitType).Inc()
		return nil, exceeded(rl)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve %s rate limit %s: %w", limitType, rl.ID, err)
	}

	return &Reservation{RateLimitID: rl.ID, LimitType: limitType, Amount: amount, ResetAt: resetAt}, nil
}

// Release returns a reservation's quota. It is a no-op once the window has
// been reset.
func (s *RateLimitService) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE email_rate_limits SET current_count = GREATEST(current_count - $2, 0), updated_at = $3
		 WHERE id = $1 AND reset_at = $4`,
		r.RateLimitID, r.Amount, s.now(), r.ResetAt,
	)
	if err != nil {
		return fmt.Errorf("release %s rate limit %s: %w", r.LimitType, r.RateLimitID, err)
	}
	return nil
}

// SetLimit overwrites the limit without touching the current count.
func (s *RateLimitService) SetLimit(ctx context.Context, domainID string, accountID *string, limitType string, value int) (*model.RateLimit, error) {
	if value < 0 {
		return nil, newError(KindValidation, nil, "limit value must not be negative")
	}
	rl, err := s.GetOrCreate(ctx, domainID, accountID, limitType)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx,
		`UPDATE email_rate_limits SET limit_value = $2, updated_at = $3 WHERE id = $1
		 RETURNING `+rateLimitColumns,
		rl.ID, value, s.now(),
	)
	updated, err := scanRateLimit(row)
	if err != nil {
		return nil, fmt.Errorf("set %s rate limit %s: %w", limitType, rl.ID, err)
	}
	return updated, nil
}

func (s *RateLimitService) Status(ctx context.Context, domainID string, accountID *string, limitType string) (*model.RateLimitStatus, error) {
	rl, err := s.GetOrCreate(ctx, domainID, accountID, limitType)
	if err != nil {
		return nil, err
	}
	return &model.RateLimitStatus{
		LimitType: rl.LimitType,
		Current:   rl.CurrentCount,
		Limit:     rl.LimitValue,
		ResetAt:   rl.ResetAt,
	}, nil
}

func exceeded(rl *model.RateLimit) error {
	return newError(KindRateLimitExceeded, nil, "Rate limit exceeded. Limit: %d emails per %s", rl.LimitValue, windowName(rl.LimitType))
}

func scanRateLimit(row pgx.Row) (*model.RateLimit, error) {
	var rl model.RateLimit
	if err := row.Scan(&rl.ID, &rl.EmailDomainID, &rl.EmailAccountID, &rl.LimitType, &rl.LimitValue,
		&rl.CurrentCount, &rl.ResetAt, &rl.CreatedAt, &rl.UpdatedAt); err != nil {
		return nil, err
	}
	return &rl, nil
}
