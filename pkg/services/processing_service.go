package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// MaterializerFactory builds the materializer for one run. The returned
// cleanup releases its resources (loader connections) when the run ends.
type MaterializerFactory func(cfg *models.Configuration) (Materializer, func(), error)

// ProcessingService runs configurations in the background and tracks them by run id.
type ProcessingService interface {
	// Start validates cfg, registers a pending run and processes it in the
	// background. Configuration errors are returned before anything is registered.
	Start(ctx context.Context, cfg *models.Configuration, opts models.RunOptions) (uuid.UUID, error)

	// Run starts a run and waits for it to finish.
	Run(ctx context.Context, cfg *models.Configuration, opts models.RunOptions) (*models.RunResult, error)

	// GetStatus returns a snapshot of the run.
	GetStatus(runID uuid.UUID) (*models.RunResult, error)

	// Cancel requests cooperative cancellation; the entity in progress finishes first.
	Cancel(runID uuid.UUID) error

	// PruneFinished drops terminal runs that completed more than retention ago.
	PruneFinished(retention time.Duration) int

	// Shutdown cancels every active run and waits for the workers to exit.
	Shutdown(ctx context.Context) error
}

type processingService struct {
	registry        *RunRegistry
	validator       *ConfigurationValidator
	processor       *EntityProcessor
	newMaterializer MaterializerFactory
	logger          *zap.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

var _ ProcessingService = (*processingService)(nil)

// NewProcessingService creates a processing service backed by registry.
func NewProcessingService(registry *RunRegistry, newMaterializer MaterializerFactory, logger *zap.Logger) ProcessingService {
	return &processingService{
		registry:        registry,
		validator:       NewConfigurationValidator(logger),
		processor:       NewEntityProcessor(logger),
		newMaterializer: newMaterializer,
		logger:          logger.Named("processing"),
		now:             time.Now,
	}
}

func (s *processingService) Start(ctx context.Context, cfg *models.Configuration, opts models.RunOptions) (uuid.UUID, error) {
	issues := s.validator.Validate(cfg)
	if err := ConfigErrorFromIssues(issues); err != nil {
		return uuid.Nil, err
	}

	order, err := planRun(cfg, opts.Entities)
	if err != nil {
		return uuid.Nil, err
	}
	if opts.JoinSampleSize == 0 {
		opts.JoinSampleSize = DefaultJoinSampleSize
	}

	result := &models.RunResult{
		RunID:             uuid.New(),
		Status:            models.RunStatusPending,
		EntitiesTotal:     len(order),
		EntitiesProcessed: []string{},
		EntityResults:     []models.EntityResult{},
		ValidationIssues:  issues,
		CreatedAt:         s.now(),
	}
	token, err := s.registry.Register(result)
	if err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("Starting run",
		zap.String("run_id", result.RunID.String()),
		zap.Int("entities", len(order)),
		zap.Bool("stop_on_error", opts.StopOnError))

	s.wg.Add(1)
	go s.execute(result.RunID, cfg, order, opts, token)

	return result.RunID, nil
}

func (s *processingService) Run(ctx context.Context, cfg *models.Configuration, opts models.RunOptions) (*models.RunResult, error) {
	runID, err := s.Start(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Wait(ctx, runID); err != nil {
		_ = s.registry.Cancel(runID)
		return nil, fmt.Errorf("wait for run %s: %w", runID, err)
	}
	return s.registry.Snapshot(runID)
}

func (s *processingService) GetStatus(runID uuid.UUID) (*models.RunResult, error) {
	return s.registry.Snapshot(runID)
}

func (s *processingService) Cancel(runID uuid.UUID) error {
	if err := s.registry.Cancel(runID); err != nil {
		return err
	}
	s.logger.Info("Cancellation requested", zap.String("run_id", runID.String()))
	return nil
}

func (s *processingService) PruneFinished(retention time.Duration) int {
	n := s.registry.Prune(s.now().Add(-retention))
	if n > 0 {
		s.logger.Debug("Pruned finished runs", zap.Int("count", n))
	}
	return n
}

func (s *processingService) Shutdown(ctx context.Context) error {
	if n := s.registry.CancelAll(); n > 0 {
		s.logger.Info("Cancelling active runs for shutdown", zap.Int("count", n))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// execute is the background body of a run. Entity work uses its own context,
// so cancellation only takes effect between entities.
func (s *processingService) execute(runID uuid.UUID, cfg *models.Configuration, order []string, opts models.RunOptions, token *CancellationToken) {
	defer s.wg.Done()
	defer s.registry.MarkDone(runID)

	logger := s.logger.With(zap.String("run_id", runID.String()))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Run panicked",
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.finish(runID, models.RunStatusFailed, fmt.Sprintf("panic during execution: %v", r))
		}
	}()

	started := s.now()
	_ = s.registry.Update(runID, func(r *models.RunResult) {
		r.Status = models.RunStatusRunning
		r.StartedAt = &started
	})

	ctx := context.Background()
	materializer, cleanup, err := s.newMaterializer(cfg)
	if err != nil {
		logger.Error("Failed to prepare materializer", zap.Error(err))
		s.finish(runID, models.RunStatusFailed, fmt.Sprintf("prepare materializer: %v", err))
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	store := table.NewStore()
	deps := BuildDependencyMap(cfg)
	unavailable := make(map[string]bool)

	for _, name := range order {
		if token.IsCancelled() {
			logger.Info("Run cancelled", zap.Int("entities_remaining", len(order)-s.processedCount(runID)))
			s.finish(runID, models.RunStatusCancelled, "")
			return
		}

		if blocker := firstUnavailable(deps[name], unavailable); blocker != "" {
			unavailable[name] = true
			s.record(runID, models.EntityResult{
				Name:   name,
				Status: models.EntityStatusSkipped,
				Error:  fmt.Sprintf("dependency %s did not complete", blocker),
			})
			logger.Warn("Skipping entity", zap.String("entity", name), zap.String("blocked_by", blocker))
			continue
		}

		current := name
		_ = s.registry.Update(runID, func(r *models.RunResult) { r.CurrentEntity = &current })

		result, err := s.processor.Process(ctx, cfg, name, materializer, store, opts)
		s.record(runID, *result)
		if err != nil {
			unavailable[name] = true
			logger.Error("Entity failed", zap.String("entity", name), zap.Error(err))
			if opts.StopOnError {
				s.finish(runID, models.RunStatusFailed, fmt.Sprintf("entity %s failed: %v", name, err))
				return
			}
		}
	}

	s.finish(runID, models.RunStatusCompleted, "")
	logger.Info("Run completed", zap.Int("entities", len(order)))
}

func (s *processingService) record(runID uuid.UUID, result models.EntityResult) {
	_ = s.registry.Update(runID, func(r *models.RunResult) {
		r.EntityResults = append(r.EntityResults, result)
		r.EntitiesProcessed = append(r.EntitiesProcessed, result.Name)
	})
}

func (s *processingService) processedCount(runID uuid.UUID) int {
	n := 0
	_ = s.registry.Update(runID, func(r *models.RunResult) { n = len(r.EntitiesProcessed) })
	return n
}

// finish moves the run to a terminal status once; later calls are ignored.
func (s *processingService) finish(runID uuid.UUID, status models.RunStatus, errMsg string) {
	completed := s.now()
	_ = s.registry.Update(runID, func(r *models.RunResult) {
		if r.Status.IsTerminal() {
			return
		}
		r.Status = status
		r.Error = errMsg
		r.CurrentEntity = nil
		r.CompletedAt = &completed
		if r.StartedAt != nil {
			r.ElapsedMs = completed.Sub(*r.StartedAt).Milliseconds()
		}
	})
}

// planRun returns the processing order for the requested entities and
// everything they depend on. An empty filter selects every entity.
func planRun(cfg *models.Configuration, entities []string) ([]string, error) {
	deps := BuildDependencyMap(cfg)

	if len(entities) > 0 {
		var issues []models.ValidationIssue
		for _, name := range entities {
			if !cfg.Has(name) {
				issues = append(issues, models.ValidationIssue{
					Entity:   name,
					Severity: models.IssueSeverityError,
					Code:     models.IssueUnknownEntity,
					Message:  fmt.Sprintf("requested entity %q is not declared%s", name, suggestEntity(cfg, name)),
				})
			}
		}
		if err := ConfigErrorFromIssues(issues); err != nil {
			return nil, err
		}
		deps = deps.Restrict(deps.TransitiveDependencies(entities))
	}

	return ProcessingOrder(deps)
}

func firstUnavailable(deps []string, unavailable map[string]bool) string {
	if i := slices.IndexFunc(deps, func(d string) bool { return unavailable[d] }); i >= 0 {
		return deps[i]
	}
	return ""
}
