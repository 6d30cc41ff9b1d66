package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// CancellationToken is a cooperative cancel flag polled at entity boundaries.
type CancellationToken struct {
	cancelled atomic.Bool
}

// Cancel requests cancellation. It is safe to call more than once.
func (t *CancellationToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reports whether cancellation has been requested.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

type runEntry struct {
	mu     sync.Mutex // guards result
	result *models.RunResult
	token  *CancellationToken
	done   chan struct{}
}

// RunRegistry tracks processing runs by id. One registry is shared by the
// runs of a ProcessingService; each run's result has its own lock so polling
// never blocks other runs.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*runEntry
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[uuid.UUID]*runEntry)}
}

// Register adds a run and returns its cancellation token.
func (r *RunRegistry) Register(result *models.RunResult) (*CancellationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[result.RunID]; exists {
		return nil, fmt.Errorf("run %s already registered", result.RunID)
	}
	entry := &runEntry{
		result: result,
		token:  &CancellationToken{},
		done:   make(chan struct{}),
	}
	r.runs[result.RunID] = entry
	return entry.token, nil
}

func (r *RunRegistry) get(runID uuid.UUID) (*runEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrNotFound)
	}
	return entry, nil
}

// Snapshot returns a copy of the run's current result.
func (r *RunRegistry) Snapshot(runID uuid.UUID) (*models.RunResult, error) {
	entry, err := r.get(runID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.result.Clone(), nil
}

// Update applies fn to the run's result under the run lock.
func (r *RunRegistry) Update(runID uuid.UUID, fn func(result *models.RunResult)) error {
	entry, err := r.get(runID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(entry.result)
	return nil
}

// Cancel sets the run's cancellation token. Runs that already finished
// return ErrRunNotActive.
func (r *RunRegistry) Cancel(runID uuid.UUID) error {
	entry, err := r.get(runID)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	status := entry.result.Status
	entry.mu.Unlock()

	if !status.IsActive() {
		return fmt.Errorf("run %s is %s: %w", runID, status, apperrors.ErrRunNotActive)
	}
	entry.token.Cancel()
	return nil
}

// CancelAll cancels every active run and returns how many were cancelled.
func (r *RunRegistry) CancelAll() int {
	r.mu.Lock()
	entries := make([]*runEntry, 0, len(r.runs))
	for _, e := range r.runs {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		active := e.result.Status.IsActive()
		e.mu.Unlock()
		if active {
			e.token.Cancel()
			n++
		}
	}
	return n
}

func (e *runEntry) isDone() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// MarkDone signals that the run's worker has exited.
func (r *RunRegistry) MarkDone(runID uuid.UUID) {
	if entry, err := r.get(runID); err == nil {
		close(entry.done)
	}
}

// Wait blocks until the run's worker has exited or ctx is done.
func (r *RunRegistry) Wait(ctx context.Context, runID uuid.UUID) error {
	entry, err := r.get(runID)
	if err != nil {
		return err
	}
	select {
	case <-entry.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the ids of runs that are pending or running.
func (r *RunRegistry) Active() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []uuid.UUID
	for id, e := range r.runs {
		e.mu.Lock()
		if e.result.Status.IsActive() {
			ids = append(ids, id)
		}
		e.mu.Unlock()
	}
	return ids
}

// Remove deletes a run from the registry.
func (r *RunRegistry) Remove(runID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, runID)
}

// Prune removes terminal runs that completed before cutoff and returns how
// many were removed. Runs whose worker has not called MarkDone yet are kept,
// so Wait callers holding the entry are always released.
func (r *RunRegistry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.runs {
		if !e.isDone() {
			continue
		}
		e.mu.Lock()
		expired := e.result.Status.IsTerminal() && e.result.CompletedAt != nil && e.result.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.runs, id)
			n++
		}
	}
	return n
}
