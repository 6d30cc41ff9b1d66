package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// LoaderProvider hands out the loader for a named data source.
type LoaderProvider interface {
	Get(ctx context.Context, name string) (datasource.TableLoader, error)
}

type entityMaterializer struct {
	loaders LoaderProvider
	logger  *zap.Logger
}

var _ Materializer = (*entityMaterializer)(nil)

// NewEntityMaterializer returns a materializer that reads data entities from
// the store, builds fixed entities from their literal rows and runs the query
// of sql entities through loaders. loaders may be nil when no sql entity is used.
func NewEntityMaterializer(loaders LoaderProvider, logger *zap.Logger) Materializer {
	return &entityMaterializer{
		loaders: loaders,
		logger:  logger.Named("materializer"),
	}
}

// NewMaterializerFactory returns a factory that gives each run its own
// loader pool over the configuration's data sources.
func NewMaterializerFactory(factory datasource.LoaderFactory, logger *zap.Logger) MaterializerFactory {
	return func(cfg *models.Configuration) (Materializer, func(), error) {
		if factory == nil {
			return nil, nil, fmt.Errorf("no loader factory configured")
		}
		pool := datasource.NewLoaderPool(factory, cfg.Options.DataSources, logger)
		cleanup := func() {
			if err := pool.Close(); err != nil {
				logger.Warn("Failed to release data sources", zap.Error(err))
			}
		}
		return NewEntityMaterializer(pool, logger), cleanup, nil
	}
}

func (m *entityMaterializer) Materialize(ctx context.Context, spec *models.EntitySpec, store *table.Store, maxRows int) (*table.Table, error) {
	switch spec.Type {
	case models.EntityTypeData, "":
		source, ok := store.Get(spec.Source)
		if !ok {
			return nil, fmt.Errorf("source entity %q has not been processed", spec.Source)
		}
		return source.Head(maxRows), nil

	case models.EntityTypeFixed:
		return table.New(spec.Columns, spec.Values), nil

	case models.EntityTypeSQL:
		if m.loaders == nil {
			return nil, fmt.Errorf("entity %s: no data sources available", spec.Name)
		}
		loader, err := m.loaders.Get(ctx, spec.DataSource)
		if err != nil {
			return nil, err
		}
		loaded, err := loader.Load(ctx, spec.Query, spec.Params, maxRows)
		if err != nil {
			return nil, fmt.Errorf("load %s from %s: %w", spec.Name, spec.DataSource, err)
		}
		m.logger.Debug("Loaded sql entity",
			zap.String("entity", spec.Name),
			zap.String("data_source", spec.DataSource),
			zap.Int("rows", loaded.Len()))
		return loaded, nil

	default:
		return nil, fmt.Errorf("entity %s: unsupported type %q", spec.Name, spec.Type)
	}
}
