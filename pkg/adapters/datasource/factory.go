package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// LoaderFactory creates loaders from the registry.
type LoaderFactory interface {
	// NewLoader opens a loader for the given driver type.
	NewLoader(ctx context.Context, driver string, options map[string]any) (TableLoader, error)

	// ListTypes returns info for all registered driver types.
	ListTypes() []LoaderInfo
}

type registryFactory struct {
	cfg    LoaderConfig
	logger *zap.Logger
}

// NewLoaderFactory returns a factory that uses the global registry.
func NewLoaderFactory(cfg LoaderConfig, logger *zap.Logger) LoaderFactory {
	return &registryFactory{
		cfg:    cfg.withDefaults(),
		logger: logger.Named("datasource"),
	}
}

func (f *registryFactory) NewLoader(ctx context.Context, driver string, options map[string]any) (TableLoader, error) {
	factory := GetFactory(driver)
	if factory == nil {
		return nil, fmt.Errorf("unsupported data source driver: %s (not compiled in)", driver)
	}
	return factory(ctx, options, f.cfg, f.logger.With(zap.String("driver", driver)))
}

func (f *registryFactory) ListTypes() []LoaderInfo {
	return RegisteredLoaders()
}

// Ensure registryFactory implements LoaderFactory at compile time.
var _ LoaderFactory = (*registryFactory)(nil)
