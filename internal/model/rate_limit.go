package model

import "time"

// Rate limit window types.
const (
	LimitDaily     = "daily"
	LimitHourly    = "hourly"
	LimitPerMinute = "per_minute"
)

// LimitTypes lists the windows in the order a send checks them.
var LimitTypes = []string{LimitDaily, LimitHourly, LimitPerMinute}

// DefaultLimits are applied when a counter row is created lazily.
var DefaultLimits = map[string]int{
	LimitDaily:     1000,
	LimitHourly:    100,
	LimitPerMinute: 10,
}

type RateLimit struct {
	ID             string    `json:"id" db:"id"`
	EmailDomainID  string    `json:"email_domain_id" db:"email_domain_id"`
	EmailAccountID *string   `json:"email_account_id,omitempty" db:"email_account_id"`
	LimitType      string    `json:"limit_type" db:"limit_type"`
	LimitValue     int       `json:"limit_value" db:"limit_value"`
	CurrentCount   int       `json:"current_count" db:"current_count"`
	ResetAt        time.Time `json:"reset_at" db:"reset_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// RateLimitStatus is the read-only view of a counter.
type RateLimitStatus struct {
	LimitType string    `json:"limit_type"`
	Current   int       `json:"current"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
}

// ValidLimitType reports whether t is a known window.
func ValidLimitType(t string) bool {
	_, ok := DefaultLimits[t]
	return ok
}
