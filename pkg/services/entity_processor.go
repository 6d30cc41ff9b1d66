package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// Materializer produces an entity's raw rows before extraction. Tables of
// already processed entities are available in store.
type Materializer interface {
	Materialize(ctx context.Context, spec *models.EntitySpec, store *table.Store, maxRows int) (*table.Table, error)
}

// EntityProcessor turns one entity spec into its stored table: materialize,
// extract, then test and link each foreign key in declaration order.
type EntityProcessor struct {
	extractor *SubsetExtractor
	tester    *ForeignKeyTester
	logger    *zap.Logger
}

// NewEntityProcessor creates an entity processor.
func NewEntityProcessor(logger *zap.Logger) *EntityProcessor {
	return &EntityProcessor{
		extractor: NewSubsetExtractor(logger),
		tester:    NewForeignKeyTester(logger),
		logger:    logger.Named("entity-processor"),
	}
}

// Process runs a single entity and stores its table on success. The returned
// result is always non-nil; a non-nil error means the entity failed.
func (p *EntityProcessor) Process(
	ctx context.Context,
	cfg *models.Configuration,
	name string,
	materializer Materializer,
	store *table.Store,
	opts models.RunOptions,
) (*models.EntityResult, error) {
	start := time.Now()
	result := &models.EntityResult{Name: name, Status: models.EntityStatusFailed}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
	}()

	fail := func(err error) (*models.EntityResult, error) {
		result.Status = models.EntityStatusFailed
		result.Error = err.Error()
		return result, err
	}

	spec, ok := cfg.Get(name)
	if !ok {
		return fail(fmt.Errorf("entity %q: %w", name, apperrors.ErrNotFound))
	}

	subset, rowsIn, err := p.Extract(ctx, spec, materializer, store, opts.MaxRowsPerEntity)
	result.RowsIn = rowsIn
	if err != nil {
		return fail(err)
	}
	result.Warnings = append(result.Warnings, subset.Warnings...)

	// Each foreign key sees the columns linked by the ones before it, so a
	// key may use an earlier link's surrogate id or extra columns.
	current := subset.Table
	for _, fk := range spec.ForeignKeys {
		remote, ok := store.Get(fk.Entity)
		if !ok {
			return fail(fmt.Errorf("foreign key %s -> %s: remote entity has not been processed", name, fk.Entity))
		}

		if opts.ValidateForeignKeys {
			test := p.tester.Evaluate(current, remote, name, fk, opts.JoinSampleSize)
			result.JoinTests = append(result.JoinTests, test)
			if !test.Success {
				message := test.Cardinality.Explanation
				if test.Error != "" {
					message = test.Error
				}
				result.Issues = append(result.Issues, models.ValidationIssue{
					Entity:   name,
					Field:    fmt.Sprintf("foreign_keys[%s]", fk.Entity),
					Severity: models.IssueSeverityWarning,
					Code:     models.IssueJoinTestFailed,
					Message:  message,
				})
			}
		}

		linked, issues, err := p.link(cfg, name, fk, current, remote, result)
		if err != nil {
			return fail(err)
		}
		if opts.ValidateConstraints {
			result.Issues = append(result.Issues, issues...)
		}
		current = linked
	}

	if models.HasErrors(result.Issues) {
		return fail(fmt.Errorf("entity %s: foreign key constraints violated", name))
	}

	store.Put(name, current)
	result.RowsOut = current.Len()
	result.Status = models.EntityStatusSuccess

	p.logger.Info("Entity processed",
		zap.String("entity", name),
		zap.Int("rows_in", result.RowsIn),
		zap.Int("rows_out", result.RowsOut),
		zap.Int("foreign_keys", len(spec.ForeignKeys)),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// Extract materializes an entity and runs the subset pipeline over it
// without linking foreign keys. It also returns the materialized row count.
func (p *EntityProcessor) Extract(
	ctx context.Context,
	spec *models.EntitySpec,
	materializer Materializer,
	store *table.Store,
	maxRows int,
) (*SubsetResult, int, error) {
	raw, err := materializer.Materialize(ctx, spec, store, maxRows)
	if err != nil {
		return nil, 0, fmt.Errorf("materialize %s: %w", spec.Name, err)
	}
	if maxRows > 0 && raw.Len() > maxRows {
		raw = raw.Head(maxRows)
	}

	columns := spec.RequestedColumns()
	if len(spec.Columns) == 0 {
		columns = raw.Columns
	}
	subset, err := p.extractor.GetSubset(raw, columns, SubsetOptionsFromSpec(spec))
	if err != nil {
		return nil, raw.Len(), err
	}
	return subset, raw.Len(), nil
}

// link joins the remote entity's surrogate id and the foreign key's extra
// columns into local. Constraint issues are always computed; the caller
// decides whether to keep them.
func (p *EntityProcessor) link(
	cfg *models.Configuration,
	name string,
	fk models.ForeignKeySpec,
	local, remote *table.Table,
	result *models.EntityResult,
) (*table.Table, []models.ValidationIssue, error) {
	missingLocal := local.MissingColumns(fk.LocalKeys)
	missingRemote := remote.MissingColumns(fk.RemoteKeys)
	if len(missingLocal) > 0 || len(missingRemote) > 0 {
		return nil, nil, &apperrors.KeyMismatchError{
			Entity:          name,
			RemoteEntity:    fk.Entity,
			MissingLocal:    missingLocal,
			MissingRemote:   missingRemote,
			AvailableLocal:  slices.Clone(local.Columns),
			AvailableRemote: slices.Clone(remote.Columns),
		}
	}

	var carry []string
	if remoteSpec, ok := cfg.Get(fk.Entity); ok && remoteSpec.SurrogateID != "" && remote.HasColumn(remoteSpec.SurrogateID) {
		carry = append(carry, remoteSpec.SurrogateID)
	}
	for _, c := range fk.ExtraColumns {
		if !slices.Contains(carry, c) {
			carry = append(carry, c)
		}
	}

	var kept []string
	for _, c := range carry {
		switch {
		case !remote.HasColumn(c):
			result.Warnings = append(result.Warnings, fmt.Sprintf("foreign key %s: column %q not found in %s", fk.Entity, c, fk.Entity))
		case local.HasColumn(c):
			result.Warnings = append(result.Warnings, fmt.Sprintf("foreign key %s: column %q already present, not linked", fk.Entity, c))
		default:
			kept = append(kept, c)
		}
	}

	joined, err := table.Join(local, remote, fk.LocalKeys, fk.RemoteKeys, fk.JoinType(), kept)
	if err != nil {
		return nil, nil, fmt.Errorf("link %s -> %s: %w", name, fk.Entity, err)
	}

	p.logger.Debug("Linked foreign key",
		zap.String("entity", name),
		zap.String("remote_entity", fk.Entity),
		zap.String("how", string(fk.JoinType())),
		zap.Int("rows_before", local.Len()),
		zap.Int("rows_after", joined.Table.Len()),
		zap.Strings("columns", kept))

	return joined.Table, ValidateForeignKeyConstraints(name, fk, local, remote, joined), nil
}
