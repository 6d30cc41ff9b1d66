package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 100
	// RedactedText replaces sensitive values
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// user:pass@host in URL-style DSNs
	urlCredentialsPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)

	// user:pass@tcp(host) in go-sql-driver/mysql DSNs
	mysqlCredentialsPattern = regexp.MustCompile(`^[^:/@\s]+:[^@\s]+@(tcp|unix)\(`)
)

// SanitizeConnectionString hides passwords in a DSN before it is logged.
// It understands key=value, URL and MySQL driver formats.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = urlCredentialsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@")
	sanitized = mysqlCredentialsPattern.ReplaceAllString(sanitized, RedactedText+"@${1}(")
	return sanitized
}

// SanitizeError returns the error message with credentials removed.
// Driver errors often echo the DSN they failed on.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}

// SanitizeQuery truncates a SQL query for logging and hides password literals.
func SanitizeQuery(query string) string {
	return passwordPattern.ReplaceAllString(TruncateString(query, MaxQueryLogLength), "${1}="+RedactedText)
}

// TruncateString truncates a string to maxLen and adds an ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
