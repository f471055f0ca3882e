package logging

import (
	"fmt"
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of compiled SQL to log
	MaxQueryLogLength = 200
	// MaxParamLogLength is the maximum length of a single bound parameter to log
	MaxParamLogLength = 64
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

// redaction is one pattern and its replacement.
type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// password=xxx, pwd=xxx, pass=xxx, including keyword/value DSN quoting
	// such as password='it\'s secret'
	passwordRedaction = redaction{
		pattern:     regexp.MustCompile(`(?i)\b(password|pwd|pass)=('(?:[^'\\]|\\.)*'|[^;&\s]+)`),
		replacement: "${1}=" + RedactedText,
	}

	// Bearer tokens, JWT or opaque
	bearerRedaction = redaction{
		pattern:     regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/]+=*`),
		replacement: "Bearer " + RedactedText,
	}

	// apikey=..., api_key=..., key=... with long values
	apiKeyRedaction = redaction{
		pattern:     regexp.MustCompile(`(?i)\b(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`),
		replacement: "${1}=" + RedactedText,
	}

	// user:pass@host in URLs
	userInfoRedaction = redaction{
		pattern:     regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`),
		replacement: "://" + RedactedText + "@" + RedactedText,
	}
)

func redact(s string, rs ...redaction) string {
	for _, r := range rs {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a PostgreSQL URL or
// keyword/value DSN. Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr, passwordRedaction, userInfoRedaction)
}

// SanitizeError redacts credentials and tokens from an error message.
// Use this before logging errors from the database or auth layers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), passwordRedaction, bearerRedaction, apiKeyRedaction, userInfoRedaction)
}

// SanitizeQuery truncates compiled SQL for logging. Values are bound as
// parameters so the text itself rarely carries data, but inlined
// statements can.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	return redact(TruncateString(query, MaxQueryLogLength), passwordRedaction, apiKeyRedaction)
}

// SanitizeParams renders bound parameters for debug logs. Values are
// truncated and credential-looking fragments are redacted; a nil value
// renders as NULL.
func SanitizeParams(params []any) []string {
	out := make([]string, len(params))
	for i, p := range params {
		if p == nil {
			out[i] = "NULL"
			continue
		}
		v := TruncateString(fmt.Sprint(p), MaxParamLogLength)
		out[i] = redact(v, passwordRedaction, bearerRedaction, apiKeyRedaction)
	}
	return out
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
