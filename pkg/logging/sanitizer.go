// Package logging holds helpers for keeping connection credentials out of
// log output and error messages shown to non-administrators.
package logging

import "regexp"

// RedactedText replaces sensitive data in sanitized output.
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx in keyword/value connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style connection strings
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// bare host:port coordinates as reported by dial errors
	dialTargetPattern = regexp.MustCompile(`(dial tcp |lookup )\S+`)
)

// SanitizeConnectionString removes credential material from a connection
// string before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError redacts credentials and connection coordinates from an error
// before it is logged or surfaced to ordinary log readers. Driver errors for
// unreachable hosts embed the address they tried to reach; administrators get
// the full error through the configuration path instead.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = dialTargetPattern.ReplaceAllString(sanitized, "${1}"+RedactedText)

	return sanitized
}
