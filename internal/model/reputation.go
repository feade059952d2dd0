package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RateScale is the fixed-point multiplier for stored rates.
const RateScale = 10000

type ReputationMetric struct {
	ID              string           `json:"id" db:"id"`
	EmailDomainID   string           `json:"email_domain_id" db:"email_domain_id"`
	MetricDate      string           `json:"metric_date" db:"metric_date"`
	TotalSent       int              `json:"total_sent" db:"total_sent"`
	TotalDelivered  int              `json:"total_delivered" db:"total_delivered"`
	TotalBounced    int              `json:"total_bounced" db:"total_bounced"`
	TotalComplained int              `json:"total_complained" db:"total_complained"`
	BounceRate      int              `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate   int              `json:"complaint_rate" db:"complaint_rate"`
	DeliveryRate    int              `json:"delivery_rate" db:"delivery_rate"`
	SenderScore     *int             `json:"sender_score,omitempty" db:"sender_score"`
	BlacklistStatus *BlacklistStatus `json:"blacklist_status,omitempty" db:"blacklist_status"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// BlacklistEntry is the result for a single DNSBL provider.
type BlacklistEntry struct {
	Name   string `json:"name"`
	Zone   string `json:"zone"`
	Listed bool   `json:"listed"`
}

// BlacklistStatus is the aggregated DNSBL result for an IP.
type BlacklistStatus struct {
	Blacklisted bool             `json:"blacklisted"`
	Blacklists  []string         `json:"blacklists"`
	Details     []BlacklistEntry `json:"details"`
}

// Value implements driver.Valuer.
func (b BlacklistStatus) Value() (driver.Value, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("marshal blacklist status: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner.
func (b *BlacklistStatus) Scan(src any) error {
	return scanJSON(src, b)
}

// ScoreInput are the fractional rates used to compute a sender score.
type ScoreInput struct {
	BounceRate    float64
	ComplaintRate float64
	DeliveryRate  float64
	Blacklisted   bool
}

// ReputationSummary is the caller-facing view of today's metric.
type ReputationSummary struct {
	SenderScore     int              `json:"sender_score"`
	BounceRate      float64          `json:"bounce_rate"`
	ComplaintRate   float64          `json:"complaint_rate"`
	DeliveryRate    float64          `json:"delivery_rate"`
	TotalSent       int              `json:"total_sent"`
	TotalDelivered  int              `json:"total_delivered"`
	TotalBounced    int              `json:"total_bounced"`
	TotalComplained int              `json:"total_complained"`
	BlacklistStatus *BlacklistStatus `json:"blacklist_status"`
}

// ThresholdReport lists the reputation problems found for a domain.
type ThresholdReport struct {
	Poor        bool     `json:"poor"`
	Issues      []string `json:"issues"`
	SenderScore int      `json:"sender_score"`
}
