package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// ForeignKeyTestService tests the foreign keys of a single entity without a
// tracked run: its dependencies are processed in order, then the entity is
// extracted and each foreign key is join-tested against its remote table.
type ForeignKeyTestService struct {
	validator       *ConfigurationValidator
	processor       *EntityProcessor
	tester          *ForeignKeyTester
	newMaterializer MaterializerFactory
	logger          *zap.Logger
}

// NewForeignKeyTestService creates a foreign key test service.
func NewForeignKeyTestService(newMaterializer MaterializerFactory, logger *zap.Logger) *ForeignKeyTestService {
	return &ForeignKeyTestService{
		validator:       NewConfigurationValidator(logger),
		processor:       NewEntityProcessor(logger),
		tester:          NewForeignKeyTester(logger),
		newMaterializer: newMaterializer,
		logger:          logger.Named("fk-test"),
	}
}

// TestEntityForeignKeys returns one join test result per foreign key of
// entity, in declaration order. A key that cannot be tested gets a result
// with Error set; a dependency that fails to process aborts the test.
func (s *ForeignKeyTestService) TestEntityForeignKeys(ctx context.Context, cfg *models.Configuration, entity string, opts models.RunOptions) ([]*models.JoinTestResult, error) {
	if err := ConfigErrorFromIssues(s.validator.Validate(cfg)); err != nil {
		return nil, err
	}
	spec, ok := cfg.Get(entity)
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", entity, apperrors.ErrNotFound)
	}

	order, err := planRun(cfg, []string{entity})
	if err != nil {
		return nil, err
	}
	if opts.JoinSampleSize == 0 {
		opts.JoinSampleSize = DefaultJoinSampleSize
	}

	materializer, cleanup, err := s.newMaterializer(cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare materializer: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Dependencies are only linked; their own join tests are not needed here.
	depOpts := opts
	depOpts.ValidateForeignKeys = false

	store := table.NewStore()
	for _, name := range order {
		if name == entity {
			continue
		}
		if _, err := s.processor.Process(ctx, cfg, name, materializer, store, depOpts); err != nil {
			return nil, fmt.Errorf("process dependency %s: %w", name, err)
		}
	}

	subset, _, err := s.processor.Extract(ctx, spec, materializer, store, opts.MaxRowsPerEntity)
	if err != nil {
		return nil, err
	}

	results := make([]*models.JoinTestResult, 0, len(spec.ForeignKeys))
	current := subset.Table
	scratch := &models.EntityResult{Name: entity}
	for _, fk := range spec.ForeignKeys {
		remote, ok := store.Get(fk.Entity)
		if !ok {
			return nil, fmt.Errorf("foreign key %s -> %s: remote entity has not been processed", entity, fk.Entity)
		}
		results = append(results, s.tester.Evaluate(current, remote, entity, fk, opts.JoinSampleSize))

		// Later keys may join on columns this link adds.
		linked, _, err := s.processor.link(cfg, entity, fk, current, remote, scratch)
		if err != nil {
			s.logger.Debug("Foreign key not linked", zap.String("entity", entity), zap.String("remote_entity", fk.Entity), zap.Error(err))
			continue
		}
		current = linked
	}

	s.logger.Info("Tested foreign keys",
		zap.String("entity", entity),
		zap.Int("foreign_keys", len(results)),
		zap.Int("dependencies", len(order)-1))
	return results, nil
}
