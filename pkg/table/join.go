package table

import (
	"fmt"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// RightSuffix is appended to right-side columns whose names already exist on the left.
const RightSuffix = "_right"

// JoinResult is a joined table plus per-row match bookkeeping.
type JoinResult struct {
	Table *Table

	// LeftMatchCounts[i] is the number of right rows matching left row i.
	// Left rows with a null key never match.
	LeftMatchCounts []int
	// LeftNullKeys counts left rows with at least one null key value.
	LeftNullKeys int
	// RightMatched[j] reports whether right row j matched any left row.
	RightMatched []bool
	// RightNullKeys counts right rows with at least one null key value.
	RightNullKeys int
}

// MatchedLeftRows returns the number of distinct left rows with at least one match.
func (r *JoinResult) MatchedLeftRows() int {
	n := 0
	for _, c := range r.LeftMatchCounts {
		if c > 0 {
			n++
		}
	}
	return n
}

// UnmatchedLeftRows returns the number of left rows without a match.
func (r *JoinResult) UnmatchedLeftRows() int {
	return len(r.LeftMatchCounts) - r.MatchedLeftRows()
}

// UnmatchedRightRows returns the number of right rows without a match.
func (r *JoinResult) UnmatchedRightRows() int {
	n := 0
	for _, m := range r.RightMatched {
		if !m {
			n++
		}
	}
	return n
}

// LeftJoinRowCount is the number of rows a left join produces: every left
// row once, or once per match.
func (r *JoinResult) LeftJoinRowCount() int {
	n := 0
	for _, c := range r.LeftMatchCounts {
		if c > 1 {
			n += c
		} else {
			n++
		}
	}
	return n
}

// Join performs a hash join of left and right on the paired key columns.
// Output columns are all left columns followed by rightColumns; a right
// column whose name is already taken gets RightSuffix. Rows follow left
// order with matches in right order; for right joins, unmatched right rows
// are appended with null left columns.
func Join(left, right *Table, leftKeys, rightKeys []string, how models.JoinType, rightColumns []string) (*JoinResult, error) {
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return nil, fmt.Errorf("join requires equal, non-empty key lists (got %d local, %d remote)", len(leftKeys), len(rightKeys))
	}
	if !models.IsValidJoinType(how) {
		return nil, fmt.Errorf("unsupported join type %q", how)
	}
	leftIdx, err := left.ColumnIndexes(leftKeys)
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	rightIdx, err := right.ColumnIndexes(rightKeys)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	carryIdx, err := right.ColumnIndexes(rightColumns)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}

	res := &JoinResult{
		LeftMatchCounts: make([]int, len(left.Rows)),
		RightMatched:    make([]bool, len(right.Rows)),
	}

	index := make(map[string][]int, len(right.Rows))
	for j, row := range right.Rows {
		key, hasNull := RowKey(row, rightIdx)
		if hasNull {
			res.RightNullKeys++
			continue
		}
		index[key] = append(index[key], j)
	}

	columns := append([]string(nil), left.Columns...)
	taken := make(map[string]bool, len(columns)+len(rightColumns))
	for _, c := range columns {
		taken[c] = true
	}
	for _, c := range rightColumns {
		name := c
		if taken[name] {
			name += RightSuffix
		}
		taken[name] = true
		columns = append(columns, name)
	}
	out := &Table{Columns: columns}
	width := len(left.Columns)

	emit := func(leftRow []any, rightRow []any) {
		row := make([]any, len(columns))
		if leftRow != nil {
			copy(row, leftRow)
		}
		if rightRow != nil {
			for k, c := range carryIdx {
				row[width+k] = rightRow[c]
			}
		}
		out.Rows = append(out.Rows, row)
	}

	for i, row := range left.Rows {
		key, hasNull := RowKey(row, leftIdx)
		var matches []int
		if hasNull {
			res.LeftNullKeys++
		} else {
			matches = index[key]
		}
		res.LeftMatchCounts[i] = len(matches)
		for _, j := range matches {
			res.RightMatched[j] = true
			emit(row, right.Rows[j])
		}
		if len(matches) == 0 && how == models.JoinTypeLeft {
			emit(row, nil)
		}
	}

	if how == models.JoinTypeRight {
		for j, matched := range res.RightMatched {
			if !matched {
				emit(nil, right.Rows[j])
			}
		}
	}

	res.Table = out
	return res, nil
}
