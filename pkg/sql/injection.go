package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  any
	Fingerprint string
}

func (r *InjectionCheckResult) String() string {
	return fmt.Sprintf("parameter %q looks like SQL injection (fingerprint %s)", r.ParamName, r.Fingerprint)
}

// CheckParameterForInjection screens a string value with libinjection.
// Non-string values are never flagged.
//
//	CheckParameterForInjection("site", "'; DROP TABLE site--") // flagged
//	CheckParameterForInjection("limit", 100)                    // nil
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{
			ParamName:   paramName,
			ParamValue:  value,
			Fingerprint: string(fingerprint),
		}
	}
	return nil
}

// CheckAllParameters screens every value, returning flagged ones sorted by name.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if r := CheckParameterForInjection(name, params[name]); r != nil {
			results = append(results, r)
		}
	}
	return results
}
