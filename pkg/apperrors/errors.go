package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingColumns       = errors.New("missing columns")
	ErrInvalidKeys          = errors.New("invalid join keys")
	ErrFunctionalDependency = errors.New("functional dependency violated")
	ErrCycleDetected        = errors.New("dependency cycle detected")
	ErrRunNotActive         = errors.New("run is not active")
)

// ConfigProblem is a single configuration defect, addressed by entity and field.
type ConfigProblem struct {
	Entity  string
	Field   string
	Message string
}

func (p ConfigProblem) String() string {
	switch {
	case p.Entity != "" && p.Field != "":
		return fmt.Sprintf("%s.%s: %s", p.Entity, p.Field, p.Message)
	case p.Entity != "":
		return fmt.Sprintf("%s: %s", p.Entity, p.Message)
	default:
		return p.Message
	}
}

// ConfigError is returned when a configuration fails validation before any entity runs.
type ConfigError struct {
	Problems []ConfigProblem
}

func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(parts, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfiguration }

// MissingColumnsError names the requested columns absent from an entity's source.
type MissingColumnsError struct {
	Entity  string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("entity %q: columns not found in source: %s", e.Entity, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// KeyMismatchError is a hard failure of a join test whose key columns are not
// present in the materialized tables.
type KeyMismatchError struct {
	Entity          string
	RemoteEntity    string
	MissingLocal    []string
	MissingRemote   []string
	AvailableLocal  []string
	AvailableRemote []string
}

func (e *KeyMismatchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "foreign key %s -> %s: key columns missing", e.Entity, e.RemoteEntity)
	if len(e.MissingLocal) > 0 {
		fmt.Fprintf(&sb, "; local %v not in %s (available: %v)", e.MissingLocal, e.Entity, e.AvailableLocal)
	}
	if len(e.MissingRemote) > 0 {
		fmt.Fprintf(&sb, "; remote %v not in %s (available: %v)", e.MissingRemote, e.RemoteEntity, e.AvailableRemote)
	}
	return sb.String()
}

func (e *KeyMismatchError) Unwrap() error { return ErrInvalidKeys }

// FunctionalDependencyError lists key combinations whose non-key columns disagree.
type FunctionalDependencyError struct {
	Entity        string
	KeyColumns    []string
	OffendingKeys []string
}

func (e *FunctionalDependencyError) Error() string {
	shown := e.OffendingKeys
	suffix := ""
	if len(shown) > 10 {
		shown = shown[:10]
		suffix = fmt.Sprintf(", ... (%d more)", len(e.OffendingKeys)-10)
	}
	return fmt.Sprintf("entity %q: %d key groups on %v have conflicting values: %s%s",
		e.Entity, len(e.OffendingKeys), e.KeyColumns, strings.Join(shown, ", "), suffix)
}

func (e *FunctionalDependencyError) Unwrap() error { return ErrFunctionalDependency }
