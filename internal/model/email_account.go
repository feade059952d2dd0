package model

import "time"

type EmailAccount struct {
	ID            string    `json:"id" db:"id"`
	EmailDomainID string    `json:"email_domain_id" db:"email_domain_id"`
	Address       string    `json:"address" db:"address"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	QuotaBytes    int64     `json:"quota_bytes" db:"quota_bytes"`
	Status        string    `json:"status" db:"status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
