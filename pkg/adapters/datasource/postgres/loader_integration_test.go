//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/shapeshift-engine/pkg/testhelpers"
)

func TestLoader_Integration(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	factory := datasource.NewLoaderFactory(datasource.LoaderConfig{}, zap.NewNop())
	loader, err := factory.NewLoader(ctx, "postgres", testDB.Options())
	require.NoError(t, err)
	defer loader.Close()

	got, err := loader.Load(ctx,
		"SELECT sample_id, sample_name FROM sample WHERE site_id = {{site}} ORDER BY sample_id",
		map[string]any{"site": 1}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"sample_id", "sample_name"}, got.Columns)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "A-1", got.Rows[0][1])
	assert.Equal(t, "A-2", got.Rows[1][1])

	limited, err := loader.Load(ctx, "SELECT * FROM sample ORDER BY sample_id", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, limited.Len())
}
