package datasource

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

type mockLoader struct {
	closed   bool
	closeErr error
}

func (m *mockLoader) Load(ctx context.Context, query string, params map[string]any, limit int) (*table.Table, error) {
	return table.New([]string{"x"}, nil), nil
}

func (m *mockLoader) Close() error {
	m.closed = true
	return m.closeErr
}

type mockFactory struct {
	opened  map[string]int
	loaders []*mockLoader
	err     error
}

func (f *mockFactory) NewLoader(ctx context.Context, driver string, options map[string]any) (TableLoader, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.opened == nil {
		f.opened = make(map[string]int)
	}
	f.opened[driver]++
	l := &mockLoader{}
	if options["fail_close"] == true {
		l.closeErr = errors.New("close failed")
	}
	f.loaders = append(f.loaders, l)
	return l, nil
}

func (f *mockFactory) ListTypes() []LoaderInfo { return nil }

func TestLoaderPool_ReusesLoaderPerSource(t *testing.T) {
	factory := &mockFactory{}
	pool := NewLoaderPool(factory, map[string]models.DataSourceConfig{
		"sead":  {Driver: "postgres"},
		"arch":  {Driver: "mssql"},
		"other": {Driver: "postgres"},
	}, zap.NewNop())

	ctx := context.Background()
	first, err := pool.Get(ctx, "sead")
	require.NoError(t, err)
	second, err := pool.Get(ctx, "sead")
	require.NoError(t, err)
	_, err = pool.Get(ctx, "other")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, factory.opened["postgres"])
	assert.Zero(t, factory.opened["mssql"])
}

func TestLoaderPool_UnknownSource(t *testing.T) {
	pool := NewLoaderPool(&mockFactory{}, nil, zap.NewNop())

	_, err := pool.Get(context.Background(), "missing")
	assert.EqualError(t, err, `data source "missing" is not configured`)
}

func TestLoaderPool_FactoryError(t *testing.T) {
	pool := NewLoaderPool(&mockFactory{err: errors.New("host is required")}, map[string]models.DataSourceConfig{
		"sead": {Driver: "postgres"},
	}, zap.NewNop())

	_, err := pool.Get(context.Background(), "sead")
	assert.EqualError(t, err, `open data source "sead": host is required`)
}

func TestLoaderPool_Close(t *testing.T) {
	factory := &mockFactory{}
	pool := NewLoaderPool(factory, map[string]models.DataSourceConfig{
		"a": {Driver: "postgres"},
		"b": {Driver: "postgres", Options: map[string]any{"fail_close": true}},
	}, zap.NewNop())

	ctx := context.Background()
	_, err := pool.Get(ctx, "a")
	require.NoError(t, err)
	_, err = pool.Get(ctx, "b")
	require.NoError(t, err)

	err = pool.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `close data source "b"`)
	for _, l := range factory.loaders {
		assert.True(t, l.closed)
	}

	assert.NoError(t, pool.Close())
	_, err = pool.Get(ctx, "a")
	assert.EqualError(t, err, "loader pool is closed")
}
