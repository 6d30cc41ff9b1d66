package services

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/apperrors"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

const (
	// MinSuccessfulMatchPercentage is the match rate a join test needs to pass.
	MinSuccessfulMatchPercentage = 95.0

	// DefaultJoinSampleSize bounds the local rows a join test looks at.
	DefaultJoinSampleSize = 10000

	unmatchedReason = "no matching row in remote entity"
)

// ForeignKeyTester evaluates foreign-key joins between materialized entities.
type ForeignKeyTester struct {
	logger *zap.Logger
}

// NewForeignKeyTester creates a join tester.
func NewForeignKeyTester(logger *zap.Logger) *ForeignKeyTester {
	return &ForeignKeyTester{logger: logger.Named("join-tester")}
}

// TestForeignKey left-joins the first sampleSize rows of local to remote on
// the foreign key's key pairs and grades the result. sampleSize <= 0 uses
// every local row.
//
// Missing key columns on either side return a *apperrors.KeyMismatchError.
// Everything else, including a failed verdict, is reported in the result.
func (t *ForeignKeyTester) TestForeignKey(local, remote *table.Table, entityName string, fk models.ForeignKeySpec, sampleSize int) (*models.JoinTestResult, error) {
	start := time.Now()

	missingLocal := local.MissingColumns(fk.LocalKeys)
	missingRemote := remote.MissingColumns(fk.RemoteKeys)
	if len(missingLocal) > 0 || len(missingRemote) > 0 {
		return nil, &apperrors.KeyMismatchError{
			Entity:          entityName,
			RemoteEntity:    fk.Entity,
			MissingLocal:    missingLocal,
			MissingRemote:   missingRemote,
			AvailableLocal:  append([]string(nil), local.Columns...),
			AvailableRemote: append([]string(nil), remote.Columns...),
		}
	}
	if len(fk.LocalKeys) == 0 || len(fk.LocalKeys) != len(fk.RemoteKeys) {
		return nil, &apperrors.KeyMismatchError{
			Entity:          entityName,
			RemoteEntity:    fk.Entity,
			AvailableLocal:  append([]string(nil), local.Columns...),
			AvailableRemote: append([]string(nil), remote.Columns...),
		}
	}

	sample := local.Head(sampleSize)
	joined, err := table.Join(sample, remote, fk.LocalKeys, fk.RemoteKeys, models.JoinTypeLeft, nil)
	if err != nil {
		return nil, fmt.Errorf("join %s -> %s: %w", entityName, fk.Entity, err)
	}

	stats := models.JoinStatistics{
		TotalRows:   sample.Len(),
		MatchedRows: joined.MatchedLeftRows(),
		NullKeyRows: joined.LeftNullKeys,
	}
	stats.UnmatchedRows = stats.TotalRows - stats.MatchedRows
	if stats.TotalRows > 0 {
		stats.MatchPercentage = float64(stats.MatchedRows) / float64(stats.TotalRows) * 100
	}
	stats.DuplicateMatches = joined.LeftJoinRowCount() - stats.TotalRows

	result := &models.JoinTestResult{
		EntityName:      entityName,
		RemoteEntity:    fk.Entity,
		LocalKeys:       append([]string(nil), fk.LocalKeys...),
		RemoteKeys:      append([]string(nil), fk.RemoteKeys...),
		JoinType:        fk.JoinType(),
		Statistics:      stats,
		Cardinality:     inferCardinality(stats, fk.ExpectedCardinality()),
		UnmatchedSample: unmatchedSample(sample, joined, fk.LocalKeys),
		Warnings:        []string{},
		Recommendations: []string{},
	}
	addFindings(result, fk)

	result.Success = stats.MatchPercentage >= MinSuccessfulMatchPercentage && result.Cardinality.Matches
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	t.logger.Debug("Join test complete",
		zap.String("entity", entityName),
		zap.String("remote_entity", fk.Entity),
		zap.Int("total_rows", stats.TotalRows),
		zap.Int("matched_rows", stats.MatchedRows),
		zap.Float64("match_percentage", stats.MatchPercentage),
		zap.Int("duplicate_matches", stats.DuplicateMatches),
		zap.String("actual_cardinality", string(result.Cardinality.Actual)),
		zap.Bool("success", result.Success))

	return result, nil
}

// Evaluate runs TestForeignKey for callers that test several foreign keys in
// a row. An error that stops the test is reported on the returned result, so
// one bad key never hides the verdicts of the others.
func (t *ForeignKeyTester) Evaluate(local, remote *table.Table, entityName string, fk models.ForeignKeySpec, sampleSize int) *models.JoinTestResult {
	result, err := t.TestForeignKey(local, remote, entityName, fk, sampleSize)
	if err == nil {
		return result
	}

	t.logger.Warn("Join test could not run",
		zap.String("entity", entityName),
		zap.String("remote_entity", fk.Entity),
		zap.Error(err))

	return &models.JoinTestResult{
		EntityName:      entityName,
		RemoteEntity:    fk.Entity,
		LocalKeys:       append([]string(nil), fk.LocalKeys...),
		RemoteKeys:      append([]string(nil), fk.RemoteKeys...),
		JoinType:        fk.JoinType(),
		Cardinality:     models.CardinalityInfo{Expected: fk.ExpectedCardinality()},
		UnmatchedSample: []models.UnmatchedRow{},
		Warnings:        []string{},
		Recommendations: []string{},
		Error:           err.Error(),
	}
}

// inferCardinality checks duplication before match counts, so a join with
// both duplicates and unmatched rows reads as one_to_many.
func inferCardinality(stats models.JoinStatistics, expected models.Cardinality) models.CardinalityInfo {
	info := models.CardinalityInfo{Expected: expected}
	var observed string
	switch {
	case stats.DuplicateMatches > 0:
		info.Actual = models.CardinalityOneToMany
		observed = fmt.Sprintf("%d extra rows from local rows matching several remote rows", stats.DuplicateMatches)
	case stats.TotalRows > 0 && stats.MatchedRows == stats.TotalRows:
		info.Actual = models.CardinalityOneToOne
		observed = "every local row matched exactly one remote row"
	default:
		info.Actual = models.CardinalityManyToOne
		observed = fmt.Sprintf("%d of %d local rows matched at most one remote row", stats.MatchedRows, stats.TotalRows)
	}
	info.Matches = info.Actual == expected
	if info.Matches {
		info.Explanation = fmt.Sprintf("Observed %s as declared: %s", info.Actual, observed)
	} else {
		info.Explanation = fmt.Sprintf("Declared %s but observed %s: %s", expected, info.Actual, observed)
	}
	return info
}

func unmatchedSample(sample *table.Table, joined *table.JoinResult, localKeys []string) []models.UnmatchedRow {
	rows := make([]models.UnmatchedRow, 0, models.MaxUnmatchedSample)
	for i, count := range joined.LeftMatchCounts {
		if count > 0 {
			continue
		}
		if len(rows) == models.MaxUnmatchedSample {
			break
		}
		rec := sample.Record(i)
		keys := make(map[string]any, len(localKeys))
		for _, k := range localKeys {
			keys[k] = rec[k]
		}
		rows = append(rows, models.UnmatchedRow{
			RowData:        rec,
			LocalKeyValues: keys,
			Reason:         unmatchedReason,
		})
	}
	return rows
}

func addFindings(r *models.JoinTestResult, fk models.ForeignKeySpec) {
	stats := r.Statistics
	warn := func(format string, args ...any) { r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...)) }
	recommend := func(format string, args ...any) {
		r.Recommendations = append(r.Recommendations, fmt.Sprintf(format, args...))
	}

	if stats.MatchPercentage < 100 {
		// An empty sample has nothing unmatched: 0 of 0 rows (0.0%).
		unmatchedPct := 0.0
		if stats.TotalRows > 0 {
			unmatchedPct = 100 - stats.MatchPercentage
		}
		warn("%d of %d rows (%.1f%%) in %s have no match in %s",
			stats.UnmatchedRows, stats.TotalRows, unmatchedPct, r.EntityName, r.RemoteEntity)
	}
	if stats.UnmatchedRows > 0 {
		recommend("Review data quality of %s keys %v: unmatched values may point to missing %s rows",
			r.EntityName, r.LocalKeys, r.RemoteEntity)
	}

	if stats.NullKeyRows > 0 {
		warn("%d rows in %s have null values in keys %v", stats.NullKeyRows, r.EntityName, r.LocalKeys)
		recommend("Decide on a null key policy: set allow_null_keys or filter null keys before linking")
	}

	if stats.DuplicateMatches > 0 {
		warn("%d duplicate rows produced by local rows matching several %s rows", stats.DuplicateMatches, r.RemoteEntity)
		if fk.ExpectedCardinality() != models.CardinalityOneToMany {
			recommend("Set cardinality to %s or remove duplicate keys %v from %s",
				models.CardinalityOneToMany, r.RemoteKeys, r.RemoteEntity)
		}
	}

	if !r.Cardinality.Matches {
		recommend("Update the declared cardinality from %s to %s", r.Cardinality.Expected, r.Cardinality.Actual)
	}
}
