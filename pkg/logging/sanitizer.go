package logging

import (
	"regexp"
)

const (
	// MaxFieldLogLength is the maximum length of a field name or alias to log
	MaxFieldLogLength = 80
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match potential API keys
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match literal values that look like real PII leaking into
	// error messages: email addresses and long digit runs (card/SSN shapes).
	emailLiteralPattern = regexp.MustCompile(`[^@\s]+@[^@\s]+\.[^@\s]+`)
	digitRunPattern     = regexp.MustCompile(`\b\d{9,}\b`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Provider and store errors can echo back field content, so literal PII
// shapes are scrubbed along with credentials.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = emailLiteralPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = digitRunPattern.ReplaceAllString(sanitized, RedactedText)

	return sanitized
}

// SanitizeFieldName truncates a field name or alias for logging. Field
// names themselves are metadata, not data, but imported alias text can be
// arbitrarily long.
func SanitizeFieldName(name string) string {
	return TruncateString(name, MaxFieldLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
