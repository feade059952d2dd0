package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Complaint sources.
const (
	ComplaintFeedbackLoop = "feedback-loop"
	ComplaintAbuseReport  = "abuse-report"
	ComplaintManual       = "manual"
)

type Complaint struct {
	ID             string            `json:"id" db:"id"`
	EmailDomainID  string            `json:"email_domain_id" db:"email_domain_id"`
	RecipientEmail string            `json:"recipient_email" db:"recipient_email"`
	ComplaintType  string            `json:"complaint_type" db:"complaint_type"`
	MessageID      *string           `json:"message_id,omitempty" db:"message_id"`
	Details        *ComplaintDetails `json:"details,omitempty" db:"details"`
	ComplainedAt   time.Time         `json:"complained_at" db:"complained_at"`
}

// ComplaintDetails is the structured payload stored alongside a complaint.
// Feedback-loop reports fill the ARF fields; manual and abuse reports use
// Extra for free-form attributes.
type ComplaintDetails struct {
	FeedbackType string            `json:"feedbackType,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	OriginalFrom string            `json:"originalFrom,omitempty"`
	ReceivedDate string            `json:"receivedDate,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Value implements driver.Valuer.
func (d ComplaintDetails) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal complaint details: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner.
func (d *ComplaintDetails) Scan(src any) error {
	return scanJSON(src, d)
}

// ValidComplaintSource reports whether s is a known complaint source.
func ValidComplaintSource(s string) bool {
	switch s {
	case ComplaintFeedbackLoop, ComplaintAbuseReport, ComplaintManual:
		return true
	}
	return false
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON source type %T", src)
	}
}

// FeedbackResult is the outcome of ingesting one ARF report. Failures are
// reported in Error rather than as a Go error.
type FeedbackResult struct {
	Processed   bool   `json:"processed"`
	ComplaintID string `json:"complaint_id,omitempty"`
	Error       string `json:"error,omitempty"`
}
