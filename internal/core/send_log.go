package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/deliverability/internal/model"
	"github.com/edvin/deliverability/internal/platform"
)

const sendLogColumns = `id, email_domain_id, email_account_id, recipient_email, subject, message_id, status,
	status_code, status_message, sent_at, delivered_at, bounced_at`

// SendLogInput is one row appended to the sending log.
type SendLogInput struct {
	EmailDomainID  string
	EmailAccountID *string
	RecipientEmail string
	Subject        *string
	MessageID      *string
	Status         string
	StatusCode     *string
	StatusMessage  *string
}

// SendLogService appends to and updates email_sending_log.
type SendLogService struct {
	db  DB
	now func() time.Time
}

func NewSendLogService(db DB) *SendLogService {
	return &SendLogService{db: db, now: time.Now}
}

func (s *SendLogService) Insert(ctx context.Context, in SendLogInput) (*model.SendLogEntry, error) {
	e, err := scanSendLog(s.db.QueryRow(ctx,
		`INSERT INTO email_sending_log (id, email_domain_id, email_account_id, recipient_email, subject, message_id,
		   status, status_code, status_message, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+sendLogColumns,
		platform.NewID(), in.EmailDomainID, nullableID(in.EmailAccountID), NormalizeAddress(in.RecipientEmail),
		in.Subject, in.MessageID, in.Status, in.StatusCode, in.StatusMessage, s.now().UTC(),
	))
	if err != nil {
		return nil, domainInsertError(err, in.EmailDomainID, "insert send log entry")
	}
	return e, nil
}

// UpdateStatus moves an entry to status, stamping delivered_at or bounced_at
// when entering those states.
func (s *SendLogService) UpdateStatus(ctx context.Context, id, status string, code, message *string) error {
	now := s.now().UTC()
	_, err := s.db.Exec(ctx,
		`UPDATE email_sending_log SET status = $2, status_code = $3, status_message = $4,
		   delivered_at = CASE WHEN $2 = 'delivered' THEN $5 ELSE delivered_at END,
		   bounced_at = CASE WHEN $2 = 'bounced' THEN $5 ELSE bounced_at END
		 WHERE id = $1`,
		id, status, code, message, now,
	)
	if err != nil {
		return fmt.Errorf("update send log entry %s to %s: %w", id, status, err)
	}
	return nil
}

// MarkBouncedByMessageID marks the domain's entry for messageID bounced,
// preferring the delivered attempt when a message was logged more than once.
// It reports whether an entry was found.
func (s *SendLogService) MarkBouncedByMessageID(ctx context.Context, domainID, messageID string, code, message *string) (bool, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM email_sending_log WHERE message_id = $1 AND email_domain_id = $2
		 ORDER BY (status = 'delivered') DESC, sent_at DESC LIMIT 1`, messageID, domainID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find send log entry for message %s: %w", messageID, err)
	}
	if err := s.UpdateStatus(ctx, id, model.SendStatusBounced, code, message); err != nil {
		return false, err
	}
	return true, nil
}

// ListByDomain returns the newest log entries for a domain.
func (s *SendLogService) ListByDomain(ctx context.Context, domainID string, limit int) ([]model.SendLogEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+sendLogColumns+` FROM email_sending_log
		 WHERE email_domain_id = $1 ORDER BY sent_at DESC LIMIT $2`, domainID, limit)
	if err != nil {
		return nil, fmt.Errorf("list send log for domain %s: %w", domainID, err)
	}
	defer rows.Close()

	var out []model.SendLogEntry
	for rows.Next() {
		e, err := scanSendLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan send log entry: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate send log: %w", err)
	}
	return out, nil
}

func scanSendLog(row pgx.Row) (*model.SendLogEntry, error) {
	var e model.SendLogEntry
	if err := row.Scan(&e.ID, &e.EmailDomainID, &e.EmailAccountID, &e.RecipientEmail, &e.Subject, &e.MessageID,
		&e.Status, &e.StatusCode, &e.StatusMessage, &e.SentAt, &e.DeliveredAt, &e.BouncedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
