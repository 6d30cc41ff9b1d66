package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ============================================================================
// Entity Types
// ============================================================================

// EntityType identifies how an entity's rows are produced.
type EntityType string

const (
	// EntityTypeData projects rows from another entity named by Source.
	EntityTypeData EntityType = "data"
	// EntityTypeSQL loads rows by running Query against a configured data source.
	EntityTypeSQL EntityType = "sql"
	// EntityTypeFixed takes its rows literally from Values.
	EntityTypeFixed EntityType = "fixed"
)

// ValidEntityTypes contains all valid entity type values.
var ValidEntityTypes = []EntityType{
	EntityTypeData,
	EntityTypeSQL,
	EntityTypeFixed,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(t EntityType) bool {
	for _, v := range ValidEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ============================================================================
// Polymorphic column options
// ============================================================================

// ColumnSelector captures options that accept either a boolean or a list of
// columns, e.g. `drop_duplicates: true` or `drop_duplicates: [id, name]`.
type ColumnSelector struct {
	Enabled bool
	Columns []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *ColumnSelector) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*c = ColumnSelector{}
			return nil
		}
		var enabled bool
		if err := value.Decode(&enabled); err != nil {
			return fmt.Errorf("line %d: expected boolean or list of columns: %w", value.Line, err)
		}
		*c = ColumnSelector{Enabled: enabled}
		return nil
	case yaml.SequenceNode:
		var columns []string
		if err := value.Decode(&columns); err != nil {
			return fmt.Errorf("line %d: expected list of column names: %w", value.Line, err)
		}
		*c = ColumnSelector{Enabled: len(columns) > 0, Columns: columns}
		return nil
	default:
		return fmt.Errorf("line %d: expected boolean or list of columns", value.Line)
	}
}

// HasSubset returns true if the option is restricted to a column subset.
func (c ColumnSelector) HasSubset() bool {
	return c.Enabled && len(c.Columns) > 0
}

// ExtraColumn is a column added during extraction. If Value names a source
// column that column is copied, otherwise Value is broadcast as a constant.
type ExtraColumn struct {
	Name  string
	Value any
}

// ExtraColumns keeps extra columns in declaration order.
type ExtraColumns []ExtraColumn

// UnmarshalYAML implements yaml.Unmarshaler, preserving mapping order.
func (e *ExtraColumns) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: extra_columns must be a mapping of column name to value", value.Line)
	}
	result := make(ExtraColumns, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var v any
		if err := value.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("line %d: extra column %q: %w", value.Content[i+1].Line, value.Content[i].Value, err)
		}
		result = append(result, ExtraColumn{Name: value.Content[i].Value, Value: v})
	}
	*e = result
	return nil
}

// Names returns the extra column names in declaration order.
func (e ExtraColumns) Names() []string {
	names := make([]string, len(e))
	for i, c := range e {
		names[i] = c.Name
	}
	return names
}

// ============================================================================
// Entity Specification
// ============================================================================

// EntitySpec declares how one target entity is produced.
type EntitySpec struct {
	// Name is the entity's key in the configuration; it is not part of the YAML body.
	Name string `yaml:"-" json:"name"`

	Type        EntityType       `yaml:"type" json:"type"`
	Source      string           `yaml:"source,omitempty" json:"source,omitempty"`
	Columns     []string         `yaml:"columns,omitempty" json:"columns,omitempty"`
	Keys        []string         `yaml:"keys,omitempty" json:"keys,omitempty"`
	SurrogateID string           `yaml:"surrogate_id,omitempty" json:"surrogate_id,omitempty"`
	ForeignKeys []ForeignKeySpec `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"`
	DependsOn   []string         `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`

	// Extraction options
	DropDuplicates             ColumnSelector `yaml:"drop_duplicates,omitempty" json:"drop_duplicates"`
	CheckFunctionalDependency  bool           `yaml:"check_functional_dependency,omitempty" json:"check_functional_dependency,omitempty"`
	StrictFunctionalDependency *bool          `yaml:"strict_functional_dependency,omitempty" json:"strict_functional_dependency,omitempty"`
	DropEmptyRows              ColumnSelector `yaml:"drop_empty_rows,omitempty" json:"drop_empty_rows"`
	RaiseIfMissing             *bool          `yaml:"raise_if_missing,omitempty" json:"raise_if_missing,omitempty"`
	ExtraColumns               ExtraColumns   `yaml:"extra_columns,omitempty" json:"extra_columns,omitempty"`

	// Fixed entities
	Values [][]any `yaml:"values,omitempty" json:"values,omitempty"`

	// SQL entities
	DataSource string         `yaml:"data_source,omitempty" json:"data_source,omitempty"`
	Query      string         `yaml:"query,omitempty" json:"query,omitempty"`
	Params     map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// ShouldRaiseIfMissing reports whether missing requested columns are fatal (default true).
func (e *EntitySpec) ShouldRaiseIfMissing() bool {
	return e.RaiseIfMissing == nil || *e.RaiseIfMissing
}

// IsStrictFunctionalDependency reports whether FD violations are fatal (default true).
func (e *EntitySpec) IsStrictFunctionalDependency() bool {
	return e.StrictFunctionalDependency == nil || *e.StrictFunctionalDependency
}

// RequestedColumns returns Columns followed by any Keys not already listed.
func (e *EntitySpec) RequestedColumns() []string {
	seen := make(map[string]bool, len(e.Columns)+len(e.Keys))
	result := make([]string, 0, len(e.Columns)+len(e.Keys))
	for _, c := range append(append([]string{}, e.Columns...), e.Keys...) {
		if !seen[c] {
			seen[c] = true
			result = append(result, c)
		}
	}
	return result
}

// ============================================================================
// Foreign Keys
// ============================================================================

// JoinType is the join strategy used when linking a foreign key.
type JoinType string

const (
	JoinTypeInner JoinType = "inner"
	JoinTypeLeft  JoinType = "left"
	JoinTypeRight JoinType = "right"
)

// IsValidJoinType checks if the given join type is valid.
func IsValidJoinType(j JoinType) bool {
	return j == JoinTypeInner || j == JoinTypeLeft || j == JoinTypeRight
}

// Cardinality is the expected or observed shape of a foreign-key relationship.
type Cardinality string

const (
	CardinalityOneToOne  Cardinality = "one_to_one"
	CardinalityOneToMany Cardinality = "one_to_many"
	CardinalityManyToOne Cardinality = "many_to_one"
)

// IsValidCardinality checks if the given cardinality is valid.
func IsValidCardinality(c Cardinality) bool {
	return c == CardinalityOneToOne || c == CardinalityOneToMany || c == CardinalityManyToOne
}

// ForeignKeySpec links an entity to a remote entity through equal-length key lists.
type ForeignKeySpec struct {
	Entity       string                 `yaml:"entity" json:"entity"`
	LocalKeys    []string               `yaml:"local_keys" json:"local_keys"`
	RemoteKeys   []string               `yaml:"remote_keys" json:"remote_keys"`
	How          JoinType               `yaml:"how,omitempty" json:"how,omitempty"`
	ExtraColumns []string               `yaml:"extra_columns,omitempty" json:"extra_columns,omitempty"`
	Constraints  *ForeignKeyConstraints `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}

// JoinType returns the configured join type, defaulting to left.
func (f ForeignKeySpec) JoinType() JoinType {
	if f.How == "" {
		return JoinTypeLeft
	}
	return f.How
}

// ExpectedCardinality returns the declared cardinality, defaulting to many_to_one.
func (f ForeignKeySpec) ExpectedCardinality() Cardinality {
	if f.Constraints == nil || f.Constraints.Cardinality == "" {
		return CardinalityManyToOne
	}
	return f.Constraints.Cardinality
}

// ForeignKeyConstraints bounds the quality of a foreign-key join.
// Every field is optional; an absent field disables that check.
type ForeignKeyConstraints struct {
	Cardinality            Cardinality `yaml:"cardinality,omitempty" json:"cardinality,omitempty"`
	MinMatchRate           *float64    `yaml:"min_match_rate,omitempty" json:"min_match_rate,omitempty"`
	MaxRowIncreasePct      *float64    `yaml:"max_row_increase_pct,omitempty" json:"max_row_increase_pct,omitempty"`
	MaxRowIncreaseAbs      *int        `yaml:"max_row_increase_abs,omitempty" json:"max_row_increase_abs,omitempty"`
	RequireAllLeftMatched  bool        `yaml:"require_all_left_matched,omitempty" json:"require_all_left_matched,omitempty"`
	RequireAllRightMatched bool        `yaml:"require_all_right_matched,omitempty" json:"require_all_right_matched,omitempty"`
	RequireUniqueLeft      bool        `yaml:"require_unique_left,omitempty" json:"require_unique_left,omitempty"`
	RequireUniqueRight     bool        `yaml:"require_unique_right,omitempty" json:"require_unique_right,omitempty"`
	AllowNullKeys          *bool       `yaml:"allow_null_keys,omitempty" json:"allow_null_keys,omitempty"`
}
