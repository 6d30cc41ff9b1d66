package datasource

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sqlutil "github.com/ekaya-inc/shapeshift-engine/pkg/sql"
)

var testDialect = Dialect{
	Name:        "test",
	Placeholder: sqlutil.PlaceholderDollar,
	Limit:       SubqueryLimit,
}

func newMockLoader(t *testing.T) (*SQLLoader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewSQLLoader(db, testDialect, zap.NewNop()), mock
}

func TestSQLLoader_Load(t *testing.T) {
	loader, mock := newMockLoader(t)
	defer loader.Close()

	query := "SELECT * FROM (SELECT sample_id, sample_name FROM sample WHERE site_id = $1) AS _limited LIMIT 5"
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"sample_id", "sample_name"}).
			AddRow(int64(1), []byte("A-1")).
			AddRow(int64(2), nil))

	got, err := loader.Load(context.Background(),
		"SELECT sample_id, sample_name FROM sample WHERE site_id = {{site}};",
		map[string]any{"site": 7}, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"sample_id", "sample_name"}, got.Columns)
	assert.Equal(t, [][]any{{int64(1), "A-1"}, {int64(2), nil}}, got.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLoader_Load_NoLimit(t *testing.T) {
	loader, mock := newMockLoader(t)
	defer loader.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT site_id FROM site")).
		WillReturnRows(sqlmock.NewRows([]string{"site_id"}))

	got, err := loader.Load(context.Background(), "SELECT site_id FROM site", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"site_id"}, got.Columns)
	assert.Equal(t, 0, got.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLoader_Load_RejectsBeforeQuerying(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		params map[string]any
	}{
		{"multiple statements", "SELECT 1; DROP TABLE site", nil},
		{"missing parameter", "SELECT * FROM site WHERE site_id = {{id}}", nil},
		{"injection", "SELECT * FROM site WHERE site_name = {{name}}", map[string]any{"name": "x' OR '1'='1' --"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, mock := newMockLoader(t)
			defer loader.Close()

			_, err := loader.Load(context.Background(), tt.query, tt.params, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "prepare query")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLLoader_Load_QueryError(t *testing.T) {
	loader, mock := newMockLoader(t)
	defer loader.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New(`relation "site" does not exist`))

	_, err := loader.Load(context.Background(), "SELECT * FROM site", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestSQLLoader_Close(t *testing.T) {
	loader, mock := newMockLoader(t)
	mock.ExpectClose()

	require.NoError(t, loader.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTopLimit(t *testing.T) {
	assert.Equal(t, "SELECT TOP (3) * FROM (SELECT 1 AS x) AS _limited", TopLimit("SELECT 1 AS x", 3))
}
