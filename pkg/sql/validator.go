// Package sql validates and prepares the queries of sql entities: single
// statement checks, {{param}} templating and injection screening.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyQuery indicates the query is blank.
	ErrEmptyQuery = errors.New("query is empty")
)

// ValidationResult contains the normalized SQL and any validation error.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the query, strips one trailing semicolon and
// rejects anything that still contains a statement separator.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := strings.TrimSpace(sqlQuery)
	if normalized == "" {
		return ValidationResult{Error: ErrEmptyQuery}
	}

	if strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}

	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

// hasSemicolonOutsideStrings reports a ';' that is not inside a single- or
// double-quoted literal. Doubled quotes ('') and backslash escapes stay inside
// the literal.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	var quote rune
	prev := rune(0)
	for _, ch := range sqlQuery {
		switch {
		case quote == 0 && ch == ';':
			return true
		case quote == 0 && (ch == '\'' || ch == '"'):
			quote = ch
		case quote != 0 && ch == quote && prev != '\\':
			quote = 0
		}
		prev = ch
	}
	return false
}
