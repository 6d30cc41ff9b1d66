package sql

import (
	"fmt"
)

// PreparedQuery is a query ready to hand to database/sql.
type PreparedQuery struct {
	SQL  string
	Args []any
}

// Prepare validates a templated query and binds its parameters in the
// driver's placeholder style.
func Prepare(query string, params map[string]any, style PlaceholderStyle) (*PreparedQuery, error) {
	validated := ValidateAndNormalize(query)
	if validated.Error != nil {
		return nil, validated.Error
	}
	if inLiterals := FindParametersInStringLiterals(validated.NormalizedSQL); len(inLiterals) > 0 {
		return nil, fmt.Errorf("parameters inside string literals: %v", inLiterals)
	}
	if err := ValidateParameterDefinitions(validated.NormalizedSQL, params); err != nil {
		return nil, err
	}
	if flagged := CheckAllParameters(params); len(flagged) > 0 {
		return nil, fmt.Errorf("rejected query parameters: %s", flagged[0])
	}

	prepared, args, err := SubstituteParameters(validated.NormalizedSQL, params, style)
	if err != nil {
		return nil, err
	}
	return &PreparedQuery{SQL: prepared, Args: args}, nil
}
