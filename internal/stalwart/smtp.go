package stalwart

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/edvin/deliverability/internal/compliance"
)

// SMTPSender submits messages to the mail server's submission port.
type SMTPSender struct {
	addr      string
	host      string
	username  string
	password  string
	tlsConfig *tls.Config
	dialer    net.Dialer
}

// NewSMTPSender returns a sender for addr (host:port). STARTTLS is used when
// the server offers it; tlsConfig may be nil for the system roots.
func NewSMTPSender(addr, username, password string, tlsConfig *tls.Config) (*SMTPSender, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse submission address %q: %w", addr, err)
	}
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if tlsConfig.ServerName == "" {
		tlsConfig = tlsConfig.Clone()
		tlsConfig.ServerName = host
	}
	return &SMTPSender{
		addr: addr, host: host, username: username, password: password,
		tlsConfig: tlsConfig, dialer: net.Dialer{Timeout: 30 * time.Second},
	}, nil
}

func envelopeAddress(header string) (string, error) {
	a, err := mail.ParseAddress(header)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}

// Send delivers one message. The envelope sender and recipient come from the
// From and To headers.
func (s *SMTPSender) Send(ctx context.Context, headers *compliance.Headers, body string) error {
	from, err := envelopeAddress(headers.Get("From"))
	if err != nil {
		return fmt.Errorf("parse From header: %w", err)
	}
	to, err := envelopeAddress(headers.Get("To"))
	if err != nil {
		return fmt.Errorf("parse To header: %w", err)
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// net/smtp ignores contexts; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}
	if s.username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not offer AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	msg := compliance.FormatForWire(headers) + "\r\n\r\n" + normalizeNewlines(body)
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end DATA: %w", err)
	}
	return c.Quit()
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
