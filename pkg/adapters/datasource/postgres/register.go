package postgres

import (
	"context"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	sqlutil "github.com/ekaya-inc/shapeshift-engine/pkg/sql"
)

// Dialect runs entity queries against PostgreSQL.
var Dialect = datasource.Dialect{
	Name:        "postgres",
	Placeholder: sqlutil.PlaceholderDollar,
	Limit:       datasource.SubqueryLimit,
}

// NewLoader opens a loader for cfg.
func NewLoader(ctx context.Context, cfg *Config, loaderCfg datasource.LoaderConfig, logger *zap.Logger) (*datasource.SQLLoader, error) {
	return datasource.OpenSQLLoader(ctx, "pgx", cfg.ConnectionString(), Dialect, loaderCfg, logger)
}

func init() {
	datasource.Register(datasource.LoaderRegistration{
		Info: datasource.LoaderInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Load entities from PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Factory: func(ctx context.Context, options map[string]any, cfg datasource.LoaderConfig, logger *zap.Logger) (datasource.TableLoader, error) {
			pgCfg, err := FromMap(options)
			if err != nil {
				return nil, err
			}
			return NewLoader(ctx, pgCfg, cfg, logger)
		},
	})
}
