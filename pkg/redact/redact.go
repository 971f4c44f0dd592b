// Package redact masks caller details before they reach logs and traces.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

type rule struct {
	re   *regexp.Regexp
	mask string
}

// Cards go first so a card number is not reported as a phone number.
var rules = []rule{
	{regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d{4}[ \-]?){3}\d{4}(?:\d{1,3})?\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`), "[REDACTED_PHONE]"},
}

// sensitiveKeys are attribute names whose values are masked whole.
var sensitiveKeys = []string{"token", "secret", "password", "pin", "ssn", "card"}

// SetEnabled toggles redaction for the whole process.
func SetEnabled(v bool) { enabled.Store(v) }

// Text masks emails, card numbers and phone numbers when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	for _, r := range rules {
		in = r.re.ReplaceAllString(in, r.mask)
	}
	return in
}

// Attributes returns a redacted copy of session or request attributes. Values
// under sensitive-looking keys are replaced entirely; the rest go through Text.
func Attributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		if enabled.Load() && sensitiveKey(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = Text(v)
	}
	return out
}

func sensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
