package services

import (
	"fmt"
	"slices"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/sql"
)

// ConfigurationValidator checks a configuration before any entity runs.
type ConfigurationValidator struct {
	logger *zap.Logger
}

// NewConfigurationValidator creates a configuration validator.
func NewConfigurationValidator(logger *zap.Logger) *ConfigurationValidator {
	return &ConfigurationValidator{logger: logger.Named("config-validator")}
}

// Validate returns every problem found. Error-severity issues make the
// configuration unusable; warnings are carried into the run result.
func (v *ConfigurationValidator) Validate(cfg *models.Configuration) []models.ValidationIssue {
	var issues []models.ValidationIssue
	add := func(entity, field string, severity models.IssueSeverity, code, format string, args ...any) {
		issues = append(issues, models.ValidationIssue{
			Entity:   entity,
			Field:    field,
			Severity: severity,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}
	checkRef := func(entity, field, ref string) {
		if ref == "" {
			add(entity, field, models.IssueSeverityError, models.IssueMissingField, "entity reference is empty")
			return
		}
		if !cfg.Has(ref) {
			add(entity, field, models.IssueSeverityError, models.IssueUnknownEntity, "unknown entity %q%s", ref, suggestEntity(cfg, ref))
		}
	}

	if len(cfg.Entities) == 0 {
		add("", "entities", models.IssueSeverityError, models.IssueMissingField, "configuration declares no entities")
	}

	for _, name := range cfg.Names() {
		spec := cfg.Entities[name]

		if !models.IsValidEntityType(spec.Type) {
			add(name, "type", models.IssueSeverityError, models.IssueInvalidField,
				"invalid type %q (expected one of %v)", spec.Type, models.ValidEntityTypes)
		}

		switch spec.Type {
		case models.EntityTypeData:
			if spec.Source == "" {
				add(name, "source", models.IssueSeverityError, models.IssueMissingField, "data entities require a source")
			}
		case models.EntityTypeFixed:
			v.validateFixed(spec, add)
		case models.EntityTypeSQL:
			v.validateSQL(cfg, spec, add)
		}

		if spec.Source != "" {
			checkRef(name, "source", spec.Source)
		}
		for _, dep := range spec.DependsOn {
			checkRef(name, "depends_on", dep)
		}
		for i, fk := range spec.ForeignKeys {
			field := fmt.Sprintf("foreign_keys[%d]", i)
			checkRef(name, field+".entity", fk.Entity)
			v.validateForeignKey(name, field, fk, add)
		}

		if spec.DropDuplicates.HasSubset() && spec.CheckFunctionalDependency && len(spec.Columns) > 0 {
			for _, c := range spec.DropDuplicates.Columns {
				if !slices.Contains(spec.RequestedColumns(), c) && !slices.Contains(spec.ExtraColumns.Names(), c) {
					add(name, "drop_duplicates", models.IssueSeverityWarning, models.IssueInvalidField,
						"deduplication column %q is not among the entity's columns", c)
				}
			}
		}
	}

	deps := BuildDependencyMap(cfg)
	for _, cycle := range FindCycles(deps) {
		add(cycle[0], "", models.IssueSeverityError, models.IssueDependencyCycle, "dependency cycle: %v", cycle)
	}

	if models.HasErrors(issues) {
		v.logger.Warn("Configuration is invalid", zap.Int("issues", len(issues)))
	}
	return issues
}

type addIssueFunc func(entity, field string, severity models.IssueSeverity, code, format string, args ...any)

func (v *ConfigurationValidator) validateFixed(spec *models.EntitySpec, add addIssueFunc) {
	if len(spec.Columns) == 0 {
		add(spec.Name, "columns", models.IssueSeverityError, models.IssueMissingField, "fixed entities require columns")
	}
	if len(spec.Values) == 0 {
		add(spec.Name, "values", models.IssueSeverityWarning, models.IssueMissingField, "fixed entity has no values")
	}
	for i, row := range spec.Values {
		if len(row) > len(spec.Columns) {
			add(spec.Name, fmt.Sprintf("values[%d]", i), models.IssueSeverityError, models.IssueInvalidField,
				"row has %d values but only %d columns are declared", len(row), len(spec.Columns))
		}
	}
}

func (v *ConfigurationValidator) validateSQL(cfg *models.Configuration, spec *models.EntitySpec, add addIssueFunc) {
	if spec.DataSource == "" {
		add(spec.Name, "data_source", models.IssueSeverityError, models.IssueMissingField, "sql entities require a data_source")
	} else if _, ok := cfg.Options.DataSources[spec.DataSource]; !ok {
		add(spec.Name, "data_source", models.IssueSeverityError, models.IssueInvalidField,
			"data source %q is not declared under options.data_sources", spec.DataSource)
	}

	if spec.Query == "" {
		add(spec.Name, "query", models.IssueSeverityError, models.IssueMissingField, "sql entities require a query")
		return
	}

	validated := sql.ValidateAndNormalize(spec.Query)
	if validated.Error != nil {
		add(spec.Name, "query", models.IssueSeverityError, models.IssueInvalidField, "%v", validated.Error)
		return
	}
	for _, p := range sql.FindParametersInStringLiterals(validated.NormalizedSQL) {
		add(spec.Name, "query", models.IssueSeverityError, models.IssueInvalidField,
			"parameter {{%s}} is inside a string literal and would not be bound", p)
	}
	if err := sql.ValidateParameterDefinitions(validated.NormalizedSQL, spec.Params); err != nil {
		add(spec.Name, "params", models.IssueSeverityError, models.IssueInvalidField, "%v", err)
	}
	for _, r := range sql.CheckAllParameters(spec.Params) {
		add(spec.Name, "params."+r.ParamName, models.IssueSeverityError, models.IssueUnsafeQueryParameter, "%s", r)
	}
	if len(spec.Columns) > 0 {
		for _, c := range sql.MissingSelectColumns(validated.NormalizedSQL, spec.RequestedColumns()) {
			add(spec.Name, "columns", models.IssueSeverityWarning, models.IssueColumnNotInSelect,
				"column %q does not appear in the query's select list", c)
		}
	}
}

func (v *ConfigurationValidator) validateForeignKey(entity, field string, fk models.ForeignKeySpec, add addIssueFunc) {
	if len(fk.LocalKeys) == 0 || len(fk.RemoteKeys) == 0 {
		add(entity, field, models.IssueSeverityError, models.IssueMissingField, "local_keys and remote_keys are required")
	} else if len(fk.LocalKeys) != len(fk.RemoteKeys) {
		add(entity, field, models.IssueSeverityError, models.IssueInvalidField,
			"local_keys %v and remote_keys %v differ in length", fk.LocalKeys, fk.RemoteKeys)
	}
	if fk.How != "" && !models.IsValidJoinType(fk.How) {
		add(entity, field+".how", models.IssueSeverityError, models.IssueInvalidField, "invalid join type %q", fk.How)
	}

	c := fk.Constraints
	if c == nil {
		return
	}
	if c.Cardinality != "" && !models.IsValidCardinality(c.Cardinality) {
		add(entity, field+".constraints.cardinality", models.IssueSeverityError, models.IssueInvalidField,
			"invalid cardinality %q", c.Cardinality)
	}
	if c.MinMatchRate != nil && (*c.MinMatchRate < 0 || *c.MinMatchRate > 1) {
		add(entity, field+".constraints.min_match_rate", models.IssueSeverityError, models.IssueInvalidField,
			"min_match_rate %v must be between 0 and 1", *c.MinMatchRate)
	}
	if c.MaxRowIncreasePct != nil && *c.MaxRowIncreasePct < 0 {
		add(entity, field+".constraints.max_row_increase_pct", models.IssueSeverityError, models.IssueInvalidField,
			"max_row_increase_pct must not be negative")
	}
	if c.MaxRowIncreaseAbs != nil && *c.MaxRowIncreaseAbs < 0 {
		add(entity, field+".constraints.max_row_increase_abs", models.IssueSeverityError, models.IssueInvalidField,
			"max_row_increase_abs must not be negative")
	}
}

// suggestEntity proposes the singular or plural form of ref when the
// configuration declares it.
func suggestEntity(cfg *models.Configuration, ref string) string {
	for _, candidate := range []string{inflection.Plural(ref), inflection.Singular(ref)} {
		if candidate != ref && cfg.Has(candidate) {
			return fmt.Sprintf(" (did you mean %q?)", candidate)
		}
	}
	return ""
}

// ConfigErrorFromIssues returns a *apperrors.ConfigError holding the
// error-severity issues, or nil when there are none.
func ConfigErrorFromIssues(issues []models.ValidationIssue) error {
	var problems []apperrors.ConfigProblem
	for _, issue := range issues {
		if issue.Severity == models.IssueSeverityError {
			problems = append(problems, apperrors.ConfigProblem{
				Entity:  issue.Entity,
				Field:   issue.Field,
				Message: issue.Message,
			})
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &apperrors.ConfigError{Problems: problems}
}
