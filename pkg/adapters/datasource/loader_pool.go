package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// LoaderPool opens one loader per named data source on first use and keeps
// it for the rest of a run. A pool belongs to a single run.
type LoaderPool struct {
	mu      sync.Mutex
	factory LoaderFactory
	sources map[string]models.DataSourceConfig
	loaders map[string]TableLoader
	closed  bool
	logger  *zap.Logger
}

// NewLoaderPool creates a pool over the configured data sources.
func NewLoaderPool(factory LoaderFactory, sources map[string]models.DataSourceConfig, logger *zap.Logger) *LoaderPool {
	return &LoaderPool{
		factory: factory,
		sources: sources,
		loaders: make(map[string]TableLoader),
		logger:  logger.Named("loader-pool"),
	}
}

// Get returns the loader for a data source, opening it if needed.
func (p *LoaderPool) Get(ctx context.Context, name string) (TableLoader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("loader pool is closed")
	}
	if loader, ok := p.loaders[name]; ok {
		return loader, nil
	}

	source, ok := p.sources[name]
	if !ok {
		return nil, fmt.Errorf("data source %q is not configured", name)
	}

	loader, err := p.factory.NewLoader(ctx, source.Driver, source.Options)
	if err != nil {
		return nil, fmt.Errorf("open data source %q: %w", name, err)
	}
	p.loaders[name] = loader

	p.logger.Info("Opened data source",
		zap.String("data_source", name),
		zap.String("driver", source.Driver),
	)
	return loader, nil
}

// Close closes every opened loader. The pool cannot be used afterwards.
func (p *LoaderPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	names := make([]string, 0, len(p.loaders))
	for name := range p.loaders {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := p.loaders[name].Close(); err != nil {
			p.logger.Warn("Failed to close data source",
				zap.String("data_source", name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("close data source %q: %w", name, err))
		}
	}
	p.loaders = nil
	return errors.Join(errs...)
}
