// Package arf extracts the fields of an Abuse Reporting Format (RFC 5965)
// feedback report.
package arf

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
)

// Report holds the fields read from a feedback report.
type Report struct {
	FeedbackType     string `json:"feedback_type"`
	UserAgent        string `json:"user_agent"`
	OriginalMailFrom string `json:"original_mail_from"`
	OriginalRcptTo   string `json:"original_rcpt_to"`
	ReceivedDate     string `json:"received_date"`
	MessageID        string `json:"message_id"`
}

var (
	angleAddr  = regexp.MustCompile(`<(.+?)>`)
	domainPart = regexp.MustCompile(`@(.+)$`)
)

// Parse reads a feedback report. A full multipart/report message is
// unwrapped first; anything else is scanned line by line as-is.
func Parse(raw string) *Report {
	if body, ok := unwrapMIME(raw); ok {
		return scan(body)
	}
	return scan(raw)
}

// scan reads report fields until the first line starting with "---".
// Later occurrences of a field overwrite earlier ones.
func scan(text string) *Report {
	r := &Report{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "---") {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(name) {
		case "feedback-type":
			r.FeedbackType = value
		case "user-agent":
			r.UserAgent = value
		case "original-mail-from":
			r.OriginalMailFrom = value
		case "original-rcpt-to":
			r.OriginalRcptTo = value
		case "received-date", "arrival-date":
			r.ReceivedDate = value
		case "message-id":
			r.MessageID = value
		}
	}
	return r
}

// unwrapMIME returns the machine-readable part of a multipart/report message
// followed by the Message-ID of the embedded original, if any.
func unwrapMIME(raw string) (string, bool) {
	if !strings.Contains(strings.ToLower(raw), "multipart/report") {
		return "", false
	}
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil || env.Root == nil {
		return "", false
	}

	report := env.Root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return strings.EqualFold(p.ContentType, "message/feedback-report")
	})
	if report == nil {
		return "", false
	}

	var b strings.Builder
	b.Write(report.Content)

	original := env.Root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return strings.EqualFold(p.ContentType, "message/rfc822") ||
			strings.EqualFold(p.ContentType, "text/rfc822-headers")
	})
	if original != nil {
		if id := originalMessageID(original.Content); id != "" {
			b.WriteString("\nMessage-ID: ")
			b.WriteString(id)
		}
	}
	return b.String(), true
}

func originalMessageID(content []byte) string {
	// text/rfc822-headers carries no body separator; add one so it parses.
	if !bytes.Contains(content, []byte("\r\n\r\n")) && !bytes.Contains(content, []byte("\n\n")) {
		content = append(append([]byte{}, content...), '\n', '\n')
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(content))
	if err != nil {
		return ""
	}
	return env.GetHeader("Message-ID")
}

// Recipient returns the address in Original-Rcpt-To, taken from inside
// angle brackets when present.
func (r *Report) Recipient() string {
	if m := angleAddr.FindStringSubmatch(r.OriginalRcptTo); m != nil {
		return m[1]
	}
	return r.OriginalRcptTo
}

// Domain returns everything after the @ in address, or "" if there is none.
func Domain(address string) string {
	if m := domainPart.FindStringSubmatch(address); m != nil {
		return m[1]
	}
	return ""
}
