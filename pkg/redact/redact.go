package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe  = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe  = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	digitsRe = regexp.MustCompile(`\b\d{6,}\b`)
)

// SetEnabled toggles PII redaction of logged transcripts.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers and long digit runs when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	out = digitsRe.ReplaceAllString(out, "[REDACTED_NUMBER]")
	return out
}

// Transcript prepares recognized text for a log line: redacted when enabled
// and truncated so hypotheses never flood the logs.
func Transcript(in string) string {
	const maxLogged = 120
	out := Text(in)
	if len(out) > maxLogged {
		out = out[:maxLogged] + "..."
	}
	return out
}
