// Package compliance validates and completes outbound message headers so
// that every message carries the fields mailbox providers expect from bulk
// senders.
package compliance

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/edvin/deliverability/internal/platform"
)

// Mailer is the X-Mailer value stamped on outbound messages.
const Mailer = "Hosting Platform Mail"

// dateLayout matches the UTC form used in Date headers.
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// RequiredHeaders must be present and non-empty.
var RequiredHeaders = []string{"From", "To", "Subject", "Message-ID", "Date", "MIME-Version"}

// RecommendedHeaders only produce warnings when missing.
var RecommendedHeaders = []string{"List-Unsubscribe", "List-Unsubscribe-Post", "Precedence", "X-Mailer", "X-Auto-Response-Suppress"}

var (
	messageIDPattern = regexp.MustCompile(`^<.+@.+>$`)
	addressPattern   = regexp.MustCompile(`^(.+?)\s*<(.+?)>|^(.+?)$`)
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Headers is an ordered header set with case-insensitive lookup.
type Headers struct {
	fields []Field
}

// FromMap builds Headers from a map, ordering fields by name.
func FromMap(m map[string]string) *Headers {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	h := &Headers{}
	for _, k := range names {
		h.Set(k, m[k])
	}
	return h
}

func (h *Headers) index(name string) int {
	for i, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}

// Get returns the value of name, or "" if absent.
func (h *Headers) Get(name string) string {
	if i := h.index(name); i >= 0 {
		return h.fields[i].Value
	}
	return ""
}

// Set replaces the value of name, appending it if absent.
func (h *Headers) Set(name, value string) {
	if i := h.index(name); i >= 0 {
		h.fields[i].Value = value
		return
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// SetDefault sets name only if it is absent or empty.
func (h *Headers) SetDefault(name, value string) {
	if h.Get(name) == "" {
		h.Set(name, value)
	}
}

// Fields returns the headers in order.
func (h *Headers) Fields() []Field {
	out := make([]Field, len(h.fields))
	copy(out, h.fields)
	return out
}

// Map returns the headers as a map.
func (h *Headers) Map() map[string]string {
	m := make(map[string]string, len(h.fields))
	for _, f := range h.fields {
		m[f.Name] = f.Value
	}
	return m
}

// Clone returns an independent copy.
func (h *Headers) Clone() *Headers {
	return &Headers{fields: h.Fields()}
}

// ValidationResult lists blocking errors and advisory warnings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks required fields and the format of Message-ID, From and To.
func Validate(h *Headers) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	for _, name := range RequiredHeaders {
		if strings.TrimSpace(h.Get(name)) == "" {
			res.Errors = append(res.Errors, "Missing required header: "+name)
		}
	}

	if id := h.Get("Message-ID"); id != "" && !messageIDPattern.MatchString(id) {
		res.Errors = append(res.Errors, fmt.Sprintf("Invalid Message-ID format. Expected: <local@domain>, got: %s", id))
	}
	if from := h.Get("From"); from != "" && !addressPattern.MatchString(from) {
		res.Errors = append(res.Errors, "Invalid From format: "+from)
	}
	if to := h.Get("To"); to != "" && !addressPattern.MatchString(to) {
		res.Errors = append(res.Errors, "Invalid To format: "+to)
	}

	for _, name := range RecommendedHeaders {
		if h.Get(name) == "" {
			res.Warnings = append(res.Warnings, "Missing recommended header: "+name)
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// AddDefaults returns a copy of h with every missing required or
// recommended header filled in for domain. Caller-supplied values are kept.
func AddDefaults(h *Headers, domain string, now time.Time) *Headers {
	out := h.Clone()
	out.SetDefault("Message-ID", NewMessageID(domain, now))
	out.SetDefault("Date", now.UTC().Format(dateLayout))
	out.SetDefault("MIME-Version", "1.0")
	out.SetDefault("List-Unsubscribe", fmt.Sprintf("<mailto:unsubscribe@%s>", domain))
	out.SetDefault("List-Unsubscribe-Post", "List-Unsubscribe=One-Click")
	out.SetDefault("Precedence", "bulk")
	out.SetDefault("X-Mailer", Mailer)
	out.SetDefault("X-Auto-Response-Suppress", "All")
	return out
}

// NewMessageID returns <millis.random@domain>.
func NewMessageID(domain string, now time.Time) string {
	return fmt.Sprintf("<%d.%s@%s>", now.UnixMilli(), platform.NewToken(""), domain)
}

// FormatForWire renders non-empty headers as CRLF-separated lines, folding
// embedded line breaks (CRLF, LF or bare CR) into continuation lines.
func FormatForWire(h *Headers) string {
	lines := make([]string, 0, len(h.fields))
	for _, f := range h.fields {
		if f.Value == "" {
			continue
		}
		lines = append(lines, f.Name+": "+foldValue(f.Value))
	}
	return strings.Join(lines, "\r\n")
}

func foldValue(v string) string {
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\r", "\n")
	parts := strings.Split(v, "\n")
	out := []string{parts[0]}
	for _, p := range parts[1:] {
		p = strings.TrimLeft(p, " \t")
		if p == "" {
			continue
		}
		out = append(out, " "+p)
	}
	return strings.Join(out, "\r\n")
}
