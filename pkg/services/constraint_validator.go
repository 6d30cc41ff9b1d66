package services

import (
	"fmt"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// ValidateForeignKeyConstraints checks a completed foreign-key link against
// its declared constraints. left and right are the tables before linking and
// joined is the link result. Only dimensions that are set are checked; every
// violation is an error-severity issue.
func ValidateForeignKeyConstraints(entity string, fk models.ForeignKeySpec, left, right *table.Table, joined *table.JoinResult) []models.ValidationIssue {
	c := fk.Constraints
	if c == nil {
		return nil
	}

	var issues []models.ValidationIssue
	fail := func(code, format string, args ...any) {
		issues = append(issues, models.ValidationIssue{
			Entity:   entity,
			Field:    fmt.Sprintf("foreign_keys[%s]", fk.Entity),
			Severity: models.IssueSeverityError,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	leftDups, _ := table.DuplicateKeyCount(left, fk.LocalKeys)
	rightDups, _ := table.DuplicateKeyCount(right, fk.RemoteKeys)

	if c.Cardinality != "" {
		var ok bool
		switch c.Cardinality {
		case models.CardinalityOneToOne:
			ok = leftDups == 0 && rightDups == 0
		case models.CardinalityManyToOne:
			ok = rightDups == 0
		case models.CardinalityOneToMany:
			ok = leftDups == 0
		}
		if !ok {
			fail(models.IssueCardinalityMismatch,
				"expected %s link to %s: %d duplicate local keys, %d duplicate remote keys",
				c.Cardinality, fk.Entity, leftDups, rightDups)
		}
	}

	if c.MinMatchRate != nil && left.Len() > 0 {
		rate := float64(joined.MatchedLeftRows()) / float64(left.Len())
		if rate < *c.MinMatchRate {
			fail(models.IssueMatchRateBelowMin, "match rate %.3f is below minimum %.3f", rate, *c.MinMatchRate)
		}
	}

	increase := joined.Table.Len() - left.Len()
	if c.MaxRowIncreasePct != nil && left.Len() > 0 {
		pct := float64(increase) / float64(left.Len()) * 100
		if pct > *c.MaxRowIncreasePct {
			fail(models.IssueRowIncreaseExceeded, "row count grew by %.1f%% (max %.1f%%)", pct, *c.MaxRowIncreasePct)
		}
	}
	if c.MaxRowIncreaseAbs != nil && increase > *c.MaxRowIncreaseAbs {
		fail(models.IssueRowIncreaseExceeded, "row count grew by %d rows (max %d)", increase, *c.MaxRowIncreaseAbs)
	}

	if c.RequireAllLeftMatched {
		if n := joined.UnmatchedLeftRows(); n > 0 {
			fail(models.IssueUnmatchedLeftRows, "%d rows have no match in %s", n, fk.Entity)
		}
	}
	if c.RequireAllRightMatched {
		if n := joined.UnmatchedRightRows(); n > 0 {
			fail(models.IssueUnmatchedRightRows, "%d rows of %s are not referenced", n, fk.Entity)
		}
	}
	if c.RequireUniqueLeft && leftDups > 0 {
		fail(models.IssueDuplicateLeftKeys, "%d duplicate values in local keys %v", leftDups, fk.LocalKeys)
	}
	if c.RequireUniqueRight && rightDups > 0 {
		fail(models.IssueDuplicateRightKeys, "%d duplicate values in remote keys %v of %s", rightDups, fk.RemoteKeys, fk.Entity)
	}
	if c.AllowNullKeys != nil && !*c.AllowNullKeys && joined.LeftNullKeys > 0 {
		fail(models.IssueNullKeys, "%d rows have null local keys %v", joined.LeftNullKeys, fk.LocalKeys)
	}

	return issues
}
