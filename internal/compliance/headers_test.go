package compliance

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completeHeaders() *Headers {
	h := &Headers{}
	h.Set("From", "Sender <sender@example.com>")
	h.Set("To", "rcpt@example.org")
	h.Set("Subject", "Hello")
	h.Set("Message-ID", "<123.abc@example.com>")
	h.Set("Date", "Sun, 10 May 2026 14:37:00 GMT")
	h.Set("MIME-Version", "1.0")
	return h
}

// ---------- Headers ----------

func TestHeaders_CaseInsensitive(t *testing.T) {
	h := &Headers{}
	h.Set("Message-ID", "<a@b>")
	assert.Equal(t, "<a@b>", h.Get("message-id"))

	h.Set("MESSAGE-ID", "<c@d>")
	require.Len(t, h.Fields(), 1)
	assert.Equal(t, "Message-ID", h.Fields()[0].Name)
	assert.Equal(t, "<c@d>", h.Get("Message-ID"))
}

func TestFromMap_SortedOrder(t *testing.T) {
	h := FromMap(map[string]string{"To": "a@b.c", "From": "x@y.z", "Subject": "s"})
	fields := h.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "From", fields[0].Name)
	assert.Equal(t, "Subject", fields[1].Name)
	assert.Equal(t, "To", fields[2].Name)
}

// ---------- Validate ----------

func TestValidate_Complete(t *testing.T) {
	res := Validate(completeHeaders())
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
	assert.Len(t, res.Warnings, len(RecommendedHeaders))
}

func TestValidate_MissingRequired(t *testing.T) {
	h := &Headers{}
	h.Set("From", "sender@example.com")
	h.Set("Subject", "   ")

	res := Validate(h)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "Missing required header: To")
	assert.Contains(t, res.Errors, "Missing required header: Subject")
	assert.Contains(t, res.Errors, "Missing required header: Message-ID")
	assert.Contains(t, res.Errors, "Missing required header: Date")
	assert.Contains(t, res.Errors, "Missing required header: MIME-Version")
	assert.NotContains(t, res.Errors, "Missing required header: From")
}

func TestValidate_BadMessageID(t *testing.T) {
	h := completeHeaders()
	h.Set("Message-ID", "123.abc@example.com")

	res := Validate(h)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "Invalid Message-ID format. Expected: <local@domain>, got: 123.abc@example.com")
}

func TestValidate_RecommendedOnlyWarn(t *testing.T) {
	h := AddDefaults(completeHeaders(), "example.com", time.Now())
	res := Validate(h)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
}

// ---------- AddDefaults ----------

func TestAddDefaults_FillsMissing(t *testing.T) {
	now := time.Date(2026, 5, 10, 14, 37, 0, 0, time.FixedZone("CEST", 2*3600))
	h := &Headers{}
	h.Set("From", "noreply@example.com")

	out := AddDefaults(h, "example.com", now)

	assert.Regexp(t, regexp.MustCompile(`^<\d+\.[a-z0-9]+@example\.com>$`), out.Get("Message-ID"))
	assert.True(t, strings.HasPrefix(out.Get("Message-ID"), "<1778416620000."))
	assert.Equal(t, "Sun, 10 May 2026 12:37:00 GMT", out.Get("Date"))
	assert.Equal(t, "1.0", out.Get("MIME-Version"))
	assert.Equal(t, "<mailto:unsubscribe@example.com>", out.Get("List-Unsubscribe"))
	assert.Equal(t, "List-Unsubscribe=One-Click", out.Get("List-Unsubscribe-Post"))
	assert.Equal(t, "bulk", out.Get("Precedence"))
	assert.Equal(t, Mailer, out.Get("X-Mailer"))
	assert.Equal(t, "All", out.Get("X-Auto-Response-Suppress"))

	// Input is not modified.
	assert.Len(t, h.Fields(), 1)
}

func TestAddDefaults_KeepsCallerValues(t *testing.T) {
	h := completeHeaders()
	h.Set("Precedence", "list")
	h.Set("List-Unsubscribe", "<https://example.com/u/1>")

	out := AddDefaults(h, "example.com", time.Now())
	assert.Equal(t, "<123.abc@example.com>", out.Get("Message-ID"))
	assert.Equal(t, "Sun, 10 May 2026 14:37:00 GMT", out.Get("Date"))
	assert.Equal(t, "list", out.Get("Precedence"))
	assert.Equal(t, "<https://example.com/u/1>", out.Get("List-Unsubscribe"))
}

func TestNewMessageID_Unique(t *testing.T) {
	now := time.Now()
	assert.NotEqual(t, NewMessageID("example.com", now), NewMessageID("example.com", now))
}

// ---------- FormatForWire ----------

func TestFormatForWire(t *testing.T) {
	h := &Headers{}
	h.Set("From", "a@example.com")
	h.Set("X-Empty", "")
	h.Set("X-Long", "first\nsecond")
	h.Set("Subject", "Hi")

	assert.Equal(t, "From: a@example.com\r\nX-Long: first\r\n second\r\nSubject: Hi", FormatForWire(h))
}

func TestFormatForWire_NormalizesLineBreaks(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"crlf", "line one\r\nline two", "Subject: line one\r\n line two"},
		{"bare cr", "line one\rline two", "Subject: line one\r\n line two"},
		{"already folded", "line one\r\n\tline two", "Subject: line one\r\n line two"},
		{"blank line dropped", "line one\n\nline two\n", "Subject: line one\r\n line two"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatForWire(FromMap(map[string]string{"Subject": tt.value}))
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, strings.ReplaceAll(got, "\r\n", ""), "\r")
		})
	}
}

func TestFormatForWire_Empty(t *testing.T) {
	assert.Equal(t, "", FormatForWire(&Headers{}))
}
