package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

type recordingLoader struct {
	query  string
	params map[string]any
	limit  int
	closed bool
}

func (l *recordingLoader) Load(ctx context.Context, query string, params map[string]any, limit int) (*table.Table, error) {
	l.query, l.params, l.limit = query, params, limit
	return table.New([]string{"site_id"}, [][]any{{int64(1)}}), nil
}

func (l *recordingLoader) Close() error {
	l.closed = true
	return nil
}

type stubLoaderProvider map[string]datasource.TableLoader

func (p stubLoaderProvider) Get(ctx context.Context, name string) (datasource.TableLoader, error) {
	if l, ok := p[name]; ok {
		return l, nil
	}
	return nil, errors.New("data source not configured")
}

type stubLoaderFactory struct {
	loader *recordingLoader
}

func (f *stubLoaderFactory) NewLoader(ctx context.Context, driver string, options map[string]any) (datasource.TableLoader, error) {
	return f.loader, nil
}

func (f *stubLoaderFactory) ListTypes() []datasource.LoaderInfo { return nil }

func TestEntityMaterializer_Data(t *testing.T) {
	store := table.NewStore()
	store.Put("raw", table.New([]string{"x"}, [][]any{{1}, {2}, {3}}))
	m := NewEntityMaterializer(nil, zap.NewNop())

	got, err := m.Materialize(context.Background(), &models.EntitySpec{Name: "e", Type: models.EntityTypeData, Source: "raw"}, store, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())

	_, err = m.Materialize(context.Background(), &models.EntitySpec{Name: "e", Type: models.EntityTypeData, Source: "later"}, store, 0)
	assert.EqualError(t, err, `source entity "later" has not been processed`)
}

func TestEntityMaterializer_Fixed(t *testing.T) {
	m := NewEntityMaterializer(nil, zap.NewNop())

	got, err := m.Materialize(context.Background(), &models.EntitySpec{
		Name:    "kinds",
		Type:    models.EntityTypeFixed,
		Columns: []string{"kind_id", "label"},
		Values:  [][]any{{1, "pollen"}, {2}},
	}, table.NewStore(), 0)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{1, "pollen"}, {2, nil}}, got.Rows)
}

func TestEntityMaterializer_SQL(t *testing.T) {
	loader := &recordingLoader{}
	m := NewEntityMaterializer(stubLoaderProvider{"sead": loader}, zap.NewNop())
	spec := &models.EntitySpec{
		Name:       "sites",
		Type:       models.EntityTypeSQL,
		DataSource: "sead",
		Query:      "SELECT site_id FROM site WHERE country = {{country}}",
		Params:     map[string]any{"country": "SE"},
	}

	got, err := m.Materialize(context.Background(), spec, table.NewStore(), 50)
	require.NoError(t, err)

	assert.Equal(t, 1, got.Len())
	assert.Equal(t, spec.Query, loader.query)
	assert.Equal(t, spec.Params, loader.params)
	assert.Equal(t, 50, loader.limit)

	spec.DataSource = "other"
	_, err = m.Materialize(context.Background(), spec, table.NewStore(), 0)
	assert.EqualError(t, err, "data source not configured")

	_, err = NewEntityMaterializer(nil, zap.NewNop()).Materialize(context.Background(), spec, table.NewStore(), 0)
	assert.Error(t, err)
}

func TestNewMaterializerFactory_ClosesLoadersOnCleanup(t *testing.T) {
	loader := &recordingLoader{}
	newMaterializer := NewMaterializerFactory(&stubLoaderFactory{loader: loader}, zap.NewNop())

	cfg := models.NewConfiguration()
	cfg.Options.DataSources = map[string]models.DataSourceConfig{"sead": {Driver: "postgres"}}

	m, cleanup, err := newMaterializer(cfg)
	require.NoError(t, err)

	_, err = m.Materialize(context.Background(), &models.EntitySpec{
		Name: "sites", Type: models.EntityTypeSQL, DataSource: "sead", Query: "SELECT site_id FROM site",
	}, table.NewStore(), 0)
	require.NoError(t, err)

	cleanup()
	assert.True(t, loader.closed)
}
