package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// LoaderInfo describes a registered driver.
type LoaderInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "mysql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// LoaderFactoryFunc opens a loader from the driver options of a data source.
type LoaderFactoryFunc func(ctx context.Context, options map[string]any, cfg LoaderConfig, logger *zap.Logger) (TableLoader, error)

// LoaderRegistration contains info + factory for creating loaders.
type LoaderRegistration struct {
	Info    LoaderInfo
	Factory LoaderFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]LoaderRegistration)
)

// Register is called by each driver package's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg LoaderRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredLoaders returns info for all registered drivers, sorted by type.
func RegisteredLoaders() []LoaderInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]LoaderInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a driver type.
// Returns nil if type is not registered.
func GetFactory(driver string) LoaderFactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[driver]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a driver type is available.
func IsRegistered(driver string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[driver]
	return ok
}
