package sql

import (
	"fmt"
	"regexp"
	"sort"
)

// parameterRegex matches {{parameter_name}} placeholders in SQL templates.
// Names start with a letter or underscore followed by word characters.
var parameterRegex = regexp.MustCompile(`\{\{([a-zA-Z_]\w*)\}\}`)

// PlaceholderStyle is the positional parameter syntax of a database driver.
type PlaceholderStyle int

const (
	// PlaceholderDollar numbers parameters $1, $2 (PostgreSQL).
	PlaceholderDollar PlaceholderStyle = iota
	// PlaceholderAtP numbers parameters @p1, @p2 (SQL Server).
	PlaceholderAtP
	// PlaceholderQuestion uses ? for every occurrence (MySQL).
	PlaceholderQuestion
)

// ExtractParameters returns the {{param}} names used in a query, deduplicated,
// in order of first appearance.
//
//	ExtractParameters("SELECT * FROM sample WHERE site = {{site}} OR parent = {{site}}")
//	// []string{"site"}
func ExtractParameters(sqlQuery string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range parameterRegex.FindAllStringSubmatch(sqlQuery, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// ValidateParameterDefinitions checks that every placeholder has a value in
// params and every value in params is used by the query.
func ValidateParameterDefinitions(sqlQuery string, params map[string]any) error {
	used := ExtractParameters(sqlQuery)
	usedSet := make(map[string]bool, len(used))
	for _, name := range used {
		usedSet[name] = true
		if _, ok := params[name]; !ok {
			return fmt.Errorf("parameter {{%s}} used in SQL but not defined", name)
		}
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !usedSet[name] {
			return fmt.Errorf("parameter '%s' is defined but not used in SQL", name)
		}
	}
	return nil
}

// FindParametersInStringLiterals returns placeholders that sit inside single
// quoted literals, where a bound parameter would be read as literal text.
//
//	FindParametersInStringLiterals("SELECT 'site {{name}}' FROM site") // []string{"name"}
func FindParametersInStringLiterals(sqlQuery string) []string {
	var problems []string
	seen := make(map[string]bool)

	start := -1
	for i := 0; i < len(sqlQuery); i++ {
		if sqlQuery[i] != '\'' {
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		if i+1 < len(sqlQuery) && sqlQuery[i+1] == '\'' {
			i++
			continue
		}
		for _, m := range parameterRegex.FindAllStringSubmatch(sqlQuery[start+1:i], -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				problems = append(problems, m[1])
			}
		}
		start = -1
	}
	return problems
}

// SubstituteParameters replaces {{param}} placeholders with positional
// parameters in the given style and returns the values to bind in order.
// Numbered styles reuse the number of a repeated parameter; the ? style
// binds the value again for every occurrence.
//
//	SubstituteParameters("SELECT * FROM site WHERE id = {{id}}", map[string]any{"id": 7}, PlaceholderAtP)
//	// "SELECT * FROM site WHERE id = @p1", []any{7}
func SubstituteParameters(sqlQuery string, values map[string]any, style PlaceholderStyle) (string, []any, error) {
	var args []any
	positions := make(map[string]int)
	var missing error

	prepared := parameterRegex.ReplaceAllStringFunc(sqlQuery, func(match string) string {
		name := parameterRegex.FindStringSubmatch(match)[1]
		value, ok := values[name]
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("no value supplied for parameter {{%s}}", name)
			}
			return match
		}

		if style == PlaceholderQuestion {
			args = append(args, value)
			return "?"
		}
		pos, seen := positions[name]
		if !seen {
			args = append(args, value)
			pos = len(args)
			positions[name] = pos
		}
		if style == PlaceholderAtP {
			return fmt.Sprintf("@p%d", pos)
		}
		return fmt.Sprintf("$%d", pos)
	})

	if missing != nil {
		return "", nil, missing
	}
	return prepared, args, nil
}
