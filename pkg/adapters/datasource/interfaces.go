package datasource

import (
	"context"

	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// TableLoader materializes the rows of a query as a table.
// Each implementation owns its connection and must be closed when done.
type TableLoader interface {
	// Load runs query with its {{param}} placeholders bound from params.
	// A positive limit caps the number of rows returned.
	Load(ctx context.Context, query string, params map[string]any, limit int) (*table.Table, error)

	// Close releases the database connection.
	Close() error
}

// LoaderConfig holds connection settings shared by every driver.
type LoaderConfig struct {
	MaxOpenConns   int
	ConnectRetries int
}

const (
	DefaultMaxOpenConns   = 4
	DefaultConnectRetries = 3
)

// withDefaults fills unset fields.
func (c LoaderConfig) withDefaults() LoaderConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.ConnectRetries < 0 {
		c.ConnectRetries = 0
	}
	return c
}
