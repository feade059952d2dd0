package model

import "time"

type SendLogEntry struct {
	ID             string     `json:"id" db:"id"`
	EmailDomainID  string     `json:"email_domain_id" db:"email_domain_id"`
	EmailAccountID *string    `json:"email_account_id,omitempty" db:"email_account_id"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	Subject        *string    `json:"subject,omitempty" db:"subject"`
	MessageID      *string    `json:"message_id,omitempty" db:"message_id"`
	Status         string     `json:"status" db:"status"`
	StatusCode     *string    `json:"status_code,omitempty" db:"status_code"`
	StatusMessage  *string    `json:"status_message,omitempty" db:"status_message"`
	SentAt         time.Time  `json:"sent_at" db:"sent_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	BouncedAt      *time.Time `json:"bounced_at,omitempty" db:"bounced_at"`
}

// SendRequest is a single outbound message.
type SendRequest struct {
	EmailDomainID  string            `json:"email_domain_id"`
	EmailAccountID *string           `json:"email_account_id,omitempty"`
	Recipient      string            `json:"recipient"`
	Subject        string            `json:"subject"`
	Body           string            `json:"body"`
	Headers        map[string]string `json:"headers,omitempty"`
	MaxRetries     int               `json:"max_retries,omitempty"`
}

// SendResult is returned by the send pipeline.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}
