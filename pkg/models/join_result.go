package models

// MaxUnmatchedSample bounds the number of unmatched rows kept in a JoinTestResult.
const MaxUnmatchedSample = 10

// JoinStatistics summarizes a sampled left join from a local entity to a remote one.
type JoinStatistics struct {
	TotalRows        int     `json:"total_rows"`
	MatchedRows      int     `json:"matched_rows"`
	UnmatchedRows    int     `json:"unmatched_rows"`
	MatchPercentage  float64 `json:"match_percentage"`
	NullKeyRows      int     `json:"null_key_rows"`
	DuplicateMatches int     `json:"duplicate_matches"`
}

// CardinalityInfo compares the declared cardinality with the one observed in the data.
type CardinalityInfo struct {
	Expected    Cardinality `json:"expected"`
	Actual      Cardinality `json:"actual"`
	Matches     bool        `json:"matches"`
	Explanation string      `json:"explanation"`
}

// UnmatchedRow is a local row that found no partner in the remote entity.
type UnmatchedRow struct {
	RowData        map[string]any `json:"row_data"`
	LocalKeyValues map[string]any `json:"local_key_values"`
	Reason         string         `json:"reason"`
}

// JoinTestResult is the verdict of one foreign-key join test.
// A result is never modified after it has been returned.
type JoinTestResult struct {
	EntityName      string          `json:"entity_name"`
	RemoteEntity    string          `json:"remote_entity"`
	LocalKeys       []string        `json:"local_keys"`
	RemoteKeys      []string        `json:"remote_keys"`
	JoinType        JoinType        `json:"join_type"`
	Statistics      JoinStatistics  `json:"statistics"`
	Cardinality     CardinalityInfo `json:"cardinality"`
	UnmatchedSample []UnmatchedRow  `json:"unmatched_sample"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	Success         bool            `json:"success"`
	Warnings        []string        `json:"warnings"`
	Recommendations []string        `json:"recommendations"`

	// Error is set when the test could not run, e.g. on missing key columns.
	Error string `json:"error,omitempty"`
}
