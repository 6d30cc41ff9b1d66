package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Run Status
// ============================================================================

// RunStatus represents the execution status of a processing run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status is terminal (completed, failed, or cancelled).
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// ============================================================================
// Entity Status
// ============================================================================

// EntityStatus is the outcome of processing one entity.
type EntityStatus string

const (
	EntityStatusSuccess EntityStatus = "success"
	EntityStatusFailed  EntityStatus = "failed"
	EntityStatusSkipped EntityStatus = "skipped"
)

// ============================================================================
// Validation Issues
// ============================================================================

// IssueSeverity grades a validation issue.
type IssueSeverity string

const (
	IssueSeverityError   IssueSeverity = "error"
	IssueSeverityWarning IssueSeverity = "warning"
)

// Issue codes.
const (
	IssueUnknownEntity        = "unknown_entity"
	IssueInvalidField         = "invalid_field"
	IssueMissingField         = "missing_field"
	IssueDependencyCycle      = "dependency_cycle"
	IssueCardinalityMismatch  = "cardinality_mismatch"
	IssueMatchRateBelowMin    = "match_rate_below_minimum"
	IssueRowIncreaseExceeded  = "row_increase_exceeded"
	IssueUnmatchedLeftRows    = "unmatched_left_rows"
	IssueUnmatchedRightRows   = "unmatched_right_rows"
	IssueDuplicateLeftKeys    = "duplicate_left_keys"
	IssueDuplicateRightKeys   = "duplicate_right_keys"
	IssueNullKeys             = "null_keys"
	IssueJoinTestFailed       = "join_test_failed"
	IssueColumnNotInSelect    = "column_not_in_select"
	IssueUnsafeQueryParameter = "unsafe_query_parameter"
)

// ValidationIssue is a structured, inspectable problem found in configuration or data.
type ValidationIssue struct {
	Entity   string        `json:"entity,omitempty"`
	Field    string        `json:"field,omitempty"`
	Severity IssueSeverity `json:"severity"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == IssueSeverityError {
			return true
		}
	}
	return false
}

// ============================================================================
// Run Options & Results
// ============================================================================

// RunOptions controls one processing run.
type RunOptions struct {
	// Entities restricts the run to these entities and their transitive dependencies.
	// Empty means all entities.
	Entities            []string `json:"entities,omitempty"`
	MaxRowsPerEntity    int      `json:"max_rows_per_entity,omitempty"`
	ValidateForeignKeys bool     `json:"validate_foreign_keys"`
	ValidateConstraints bool     `json:"validate_constraints"`
	StopOnError         bool     `json:"stop_on_error"`
	JoinSampleSize      int      `json:"join_sample_size,omitempty"`
}

// EntityResult is the per-entity outcome of a run.
type EntityResult struct {
	Name       string            `json:"name"`
	Status     EntityStatus      `json:"status"`
	RowsIn     int               `json:"rows_in"`
	RowsOut    int               `json:"rows_out"`
	DurationMs int64             `json:"duration_ms"`
	Warnings   []string          `json:"warnings,omitempty"`
	Issues     []ValidationIssue `json:"issues,omitempty"`
	JoinTests  []*JoinTestResult `json:"join_tests,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RunResult is the structured outcome of a processing run.
type RunResult struct {
	RunID             uuid.UUID         `json:"run_id"`
	Status            RunStatus         `json:"status"`
	EntitiesTotal     int               `json:"entities_total"`
	EntitiesProcessed []string          `json:"entities_processed"`
	EntityResults     []EntityResult    `json:"entity_results"`
	ValidationIssues  []ValidationIssue `json:"validation_issues,omitempty"`
	Error             string            `json:"error,omitempty"`
	CurrentEntity     *string           `json:"current_entity,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms"`
}

// EntityResult returns the result recorded for the named entity.
func (r *RunResult) EntityResult(name string) (*EntityResult, bool) {
	for i := range r.EntityResults {
		if r.EntityResults[i].Name == name {
			return &r.EntityResults[i], true
		}
	}
	return nil, false
}

// Clone returns a copy that shares no mutable slices with r.
// JoinTestResults are immutable once produced and are shared.
func (r *RunResult) Clone() *RunResult {
	if r == nil {
		return nil
	}
	c := *r
	c.EntitiesProcessed = append([]string{}, r.EntitiesProcessed...)
	c.ValidationIssues = append([]ValidationIssue(nil), r.ValidationIssues...)
	c.EntityResults = make([]EntityResult, len(r.EntityResults))
	for i, er := range r.EntityResults {
		er.Warnings = append([]string(nil), er.Warnings...)
		er.Issues = append([]ValidationIssue(nil), er.Issues...)
		er.JoinTests = append([]*JoinTestResult(nil), er.JoinTests...)
		c.EntityResults[i] = er
	}
	if r.CurrentEntity != nil {
		name := *r.CurrentEntity
		c.CurrentEntity = &name
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
