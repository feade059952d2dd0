package model

import "time"

// Bounce types.
const (
	BounceHard      = "hard"
	BounceSoft      = "soft"
	BounceTransient = "transient"
)

type Bounce struct {
	ID             string    `json:"id" db:"id"`
	EmailDomainID  string    `json:"email_domain_id" db:"email_domain_id"`
	EmailAccountID *string   `json:"email_account_id,omitempty" db:"email_account_id"`
	RecipientEmail string    `json:"recipient_email" db:"recipient_email"`
	BounceType     string    `json:"bounce_type" db:"bounce_type"`
	BounceCode     *string   `json:"bounce_code,omitempty" db:"bounce_code"`
	BounceMessage  *string   `json:"bounce_message,omitempty" db:"bounce_message"`
	Processed      bool      `json:"processed" db:"processed"`
	BouncedAt      time.Time `json:"bounced_at" db:"bounced_at"`
}

// ValidBounceType reports whether t is a known bounce type.
func ValidBounceType(t string) bool {
	switch t {
	case BounceHard, BounceSoft, BounceTransient:
		return true
	}
	return false
}

// ThresholdResult reports a daily rate against a threshold.
type ThresholdResult struct {
	Exceeded bool    `json:"exceeded"`
	Rate     float64 `json:"rate"`
}
