package services

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// SubsetOptions are the extraction rules applied by GetSubset.
type SubsetOptions struct {
	EntityName     string
	RaiseIfMissing bool
	ExtraColumns   models.ExtraColumns
	DropDuplicates models.ColumnSelector

	// CheckFunctionalDependency verifies, when deduplicating on a column
	// subset, that each key group agrees on all other columns.
	CheckFunctionalDependency  bool
	StrictFunctionalDependency bool

	DropEmptyRows models.ColumnSelector
	SurrogateID   string
}

// SubsetOptionsFromSpec reads the extraction rules of an entity.
func SubsetOptionsFromSpec(spec *models.EntitySpec) SubsetOptions {
	return SubsetOptions{
		EntityName:                 spec.Name,
		RaiseIfMissing:             spec.ShouldRaiseIfMissing(),
		ExtraColumns:               spec.ExtraColumns,
		DropDuplicates:             spec.DropDuplicates,
		CheckFunctionalDependency:  spec.CheckFunctionalDependency,
		StrictFunctionalDependency: spec.IsStrictFunctionalDependency(),
		DropEmptyRows:              spec.DropEmptyRows,
		SurrogateID:                spec.SurrogateID,
	}
}

// SubsetResult is an extracted table plus the non-fatal problems met on the way.
type SubsetResult struct {
	Table    *table.Table
	Warnings []string
}

// SubsetExtractor produces column-projected, deduplicated, surrogate-keyed
// views of a source table.
type SubsetExtractor struct {
	logger *zap.Logger
}

// NewSubsetExtractor creates a subset extractor.
func NewSubsetExtractor(logger *zap.Logger) *SubsetExtractor {
	return &SubsetExtractor{logger: logger.Named("subset")}
}

// GetSubset extracts the requested columns from source. The source table is
// never modified.
func (s *SubsetExtractor) GetSubset(source *table.Table, columns []string, opts SubsetOptions) (*SubsetResult, error) {
	res := &SubsetResult{}
	warn := func(msg string, fields ...zap.Field) {
		res.Warnings = append(res.Warnings, msg)
		s.logger.Warn(msg, append([]zap.Field{zap.String("entity", opts.EntityName)}, fields...)...)
	}

	// Missing columns
	requested := dedupe(columns)
	if missing := source.MissingColumns(requested); len(missing) > 0 {
		if opts.RaiseIfMissing {
			return nil, &apperrors.MissingColumnsError{Entity: opts.EntityName, Columns: missing}
		}
		warn(fmt.Sprintf("dropping columns not found in source: %v", missing))
		requested = slices.DeleteFunc(requested, func(c string) bool { return slices.Contains(missing, c) })
	}

	// Projection in source column order
	var projected []string
	for _, c := range source.Columns {
		if slices.Contains(requested, c) {
			projected = append(projected, c)
		}
	}
	out, err := source.Select(projected)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", opts.EntityName, err)
	}

	// Extra columns
	var added []string
	for _, extra := range opts.ExtraColumns {
		values := make([]any, out.Len())
		if ref, ok := extra.Value.(string); ok && source.HasColumn(ref) {
			col, _ := source.Column(ref)
			copy(values, col)
		} else {
			for i := range values {
				values[i] = extra.Value
			}
		}
		if err := out.SetColumn(extra.Name, values); err != nil {
			return nil, fmt.Errorf("extra column %s.%s: %w", opts.EntityName, extra.Name, err)
		}
		if !slices.Contains(requested, extra.Name) && !slices.Contains(added, extra.Name) {
			added = append(added, extra.Name)
		}
	}

	// Deduplication
	if opts.DropDuplicates.Enabled {
		out, err = s.dropDuplicates(out, opts, warn)
		if err != nil {
			return nil, err
		}
	}

	// Requested order first, added columns appended
	out, err = out.Select(append(slices.Clone(requested), added...))
	if err != nil {
		return nil, fmt.Errorf("reorder %s: %w", opts.EntityName, err)
	}

	// Empty rows
	if opts.DropEmptyRows.Enabled {
		out = dropEmptyRows(out, opts.DropEmptyRows, warn)
	}

	// Surrogate id
	if opts.SurrogateID != "" && !out.HasColumn(opts.SurrogateID) {
		ids := make([]any, out.Len())
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		if err := out.SetColumn(opts.SurrogateID, ids); err != nil {
			return nil, fmt.Errorf("surrogate id %s.%s: %w", opts.EntityName, opts.SurrogateID, err)
		}
	}

	res.Table = out
	return res, nil
}

func (s *SubsetExtractor) dropDuplicates(t *table.Table, opts SubsetOptions, warn func(string, ...zap.Field)) (*table.Table, error) {
	keyColumns := t.Columns
	if opts.DropDuplicates.HasSubset() {
		if missing := t.MissingColumns(opts.DropDuplicates.Columns); len(missing) > 0 {
			warn(fmt.Sprintf("drop_duplicates columns not found, skipping deduplication: %v", missing))
			return t, nil
		}
		keyColumns = opts.DropDuplicates.Columns

		if opts.CheckFunctionalDependency {
			offending := functionalDependencyViolations(t, keyColumns)
			if len(offending) > 0 {
				fdErr := &apperrors.FunctionalDependencyError{
					Entity:        opts.EntityName,
					KeyColumns:    keyColumns,
					OffendingKeys: offending,
				}
				if opts.StrictFunctionalDependency {
					return nil, fdErr
				}
				warn(fdErr.Error(), zap.Int("offending_groups", len(offending)))
			}
		}
	}

	idx, _ := t.ColumnIndexes(keyColumns)
	seen := make(map[string]bool, t.Len())
	before := t.Len()
	out := t.Filter(func(row []any) bool {
		key, _ := table.RowKey(row, idx)
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})
	if dropped := before - out.Len(); dropped > 0 {
		s.logger.Debug("Dropped duplicate rows",
			zap.String("entity", opts.EntityName),
			zap.Int("dropped", dropped),
			zap.Strings("key_columns", keyColumns))
	}
	return out, nil
}

// functionalDependencyViolations returns the formatted keys whose group has
// more than one distinct combination of non-key values, in first-seen order.
func functionalDependencyViolations(t *table.Table, keyColumns []string) []string {
	keyIdx, _ := t.ColumnIndexes(keyColumns)
	var valueIdx []int
	for i, c := range t.Columns {
		if !slices.Contains(keyColumns, c) {
			valueIdx = append(valueIdx, i)
		}
	}
	if len(valueIdx) == 0 {
		return nil
	}

	firstValues := make(map[string]string)
	flagged := make(map[string]bool)
	var offending []string
	for _, row := range t.Rows {
		key, _ := table.RowKey(row, keyIdx)
		values, _ := table.RowKey(row, valueIdx)
		prev, ok := firstValues[key]
		if !ok {
			firstValues[key] = values
			continue
		}
		if prev != values && !flagged[key] {
			flagged[key] = true
			offending = append(offending, table.FormatKey(row, keyIdx))
		}
	}
	return offending
}

func dropEmptyRows(t *table.Table, sel models.ColumnSelector, warn func(string, ...zap.Field)) *table.Table {
	columns := t.Columns
	if sel.HasSubset() {
		if missing := t.MissingColumns(sel.Columns); len(missing) > 0 {
			warn(fmt.Sprintf("drop_empty_rows columns not found, skipping: %v", missing))
			return t
		}
		columns = sel.Columns
	}
	idx, _ := t.ColumnIndexes(columns)
	return t.Filter(func(row []any) bool {
		for _, c := range idx {
			if !table.IsBlank(row[c]) {
				return true
			}
		}
		return false
	})
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
