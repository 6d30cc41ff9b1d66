package sql

import (
	"regexp"
	"strings"
)

var (
	aliasRegex    = regexp.MustCompile(`(?i)\s+as\s+["\x60\[]?(\w+)["\x60\]]?\s*$`)
	functionRegex = regexp.MustCompile(`^(\w+)\s*\(`)
	nonWordRegex  = regexp.MustCompile(`[^\w]`)
)

// selectListEnd are the keywords that end a SELECT list.
var selectListEnd = []string{" from ", " where ", " group ", " order ", " limit ", " union ", " intersect ", " except "}

// ParsedColumn is one output column of a SELECT statement.
type ParsedColumn struct {
	Name string // alias or column name, lowercased unless aliased implicitly
	Expr string
}

// ParseSelectColumns returns the output columns of a plain SELECT. It is a
// lexical parser for the common shapes (plain, qualified, aliased, function
// calls) and returns nil for SELECT * or non-SELECT statements.
func ParseSelectColumns(query string) []ParsedColumn {
	query = strings.TrimSpace(query)
	lower := strings.ToLower(query)

	start := strings.Index(lower, "select")
	if start < 0 {
		return nil
	}
	start += len("select")
	end := len(query)
	for _, kw := range selectListEnd {
		if i := strings.Index(lower[start:], kw); i >= 0 && start+i < end {
			end = start + i
		}
	}

	list := strings.TrimSpace(query[start:end])
	if strings.HasPrefix(strings.ToLower(list), "distinct ") {
		list = strings.TrimSpace(list[len("distinct "):])
	}
	if strings.HasPrefix(list, "*") {
		return nil
	}

	var result []ParsedColumn
	for _, expr := range splitTopLevel(list) {
		expr = strings.TrimSpace(expr)
		if expr != "" {
			result = append(result, ParsedColumn{Name: columnName(expr), Expr: expr})
		}
	}
	return result
}

// MissingSelectColumns returns the wanted columns that a plain SELECT does not
// produce. It returns nil when the select list cannot be determined.
func MissingSelectColumns(query string, wanted []string) []string {
	parsed := ParseSelectColumns(query)
	if len(parsed) == 0 {
		return nil
	}
	have := make(map[string]bool, len(parsed))
	for _, p := range parsed {
		have[strings.ToLower(p.Name)] = true
	}
	var missing []string
	for _, w := range wanted {
		if !have[strings.ToLower(w)] {
			missing = append(missing, w)
		}
	}
	return missing
}

// splitTopLevel splits on commas outside parentheses.
func splitTopLevel(list string) []string {
	var parts []string
	depth, last := 0, 0
	for i, ch := range list {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, list[last:i])
				last = i + 1
			}
		}
	}
	return append(parts, list[last:])
}

func columnName(expr string) string {
	if m := aliasRegex.FindStringSubmatch(expr); m != nil {
		return m[1]
	}

	// implicit alias: "count(*) total"
	if fields := strings.Fields(expr); len(fields) > 1 && strings.Count(expr, "(") == strings.Count(expr, ")") {
		last := fields[len(fields)-1]
		if !strings.ContainsAny(last, "()") && nonWordRegex.ReplaceAllString(last, "") == last {
			return last
		}
	}

	if i := strings.LastIndex(expr, "."); i >= 0 && !strings.Contains(expr, "(") {
		expr = expr[i+1:]
	}
	if m := functionRegex.FindStringSubmatch(expr); m != nil {
		return strings.ToLower(m[1])
	}
	if strings.HasPrefix(strings.ToLower(expr), "case") {
		return "case_result"
	}
	return strings.ToLower(nonWordRegex.ReplaceAllString(expr, ""))
}
