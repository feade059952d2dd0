package model

import "time"

// Suppression types.
const (
	SuppressionBounce      = "bounce"
	SuppressionComplaint   = "complaint"
	SuppressionUnsubscribe = "unsubscribe"
	SuppressionManual      = "manual"
)

type Suppression struct {
	ID              string    `json:"id" db:"id"`
	EmailDomainID   string    `json:"email_domain_id" db:"email_domain_id"`
	EmailAddress    string    `json:"email_address" db:"email_address"`
	SuppressionType string    `json:"suppression_type" db:"suppression_type"`
	Reason          *string   `json:"reason,omitempty" db:"reason"`
	SuppressedAt    time.Time `json:"suppressed_at" db:"suppressed_at"`
}

// ValidSuppressionType reports whether t is a known suppression type.
func ValidSuppressionType(t string) bool {
	switch t {
	case SuppressionBounce, SuppressionComplaint, SuppressionUnsubscribe, SuppressionManual:
		return true
	}
	return false
}
