package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	sqlutil "github.com/ekaya-inc/shapeshift-engine/pkg/sql"
)

// Dialect runs entity queries against MySQL and TiDB.
var Dialect = datasource.Dialect{
	Name:        "mysql",
	Placeholder: sqlutil.PlaceholderQuestion,
	Limit:       datasource.SubqueryLimit,
}

// NewLoader opens a loader for cfg. The driver itself is registered by the
// go-sql-driver import in config.go.
func NewLoader(ctx context.Context, cfg *Config, loaderCfg datasource.LoaderConfig, logger *zap.Logger) (*datasource.SQLLoader, error) {
	return datasource.OpenSQLLoader(ctx, "mysql", cfg.DSN(), Dialect, loaderCfg, logger)
}

func init() {
	datasource.Register(datasource.LoaderRegistration{
		Info: datasource.LoaderInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Load entities from MySQL 8+ and TiDB",
		},
		Factory: func(ctx context.Context, options map[string]any, cfg datasource.LoaderConfig, logger *zap.Logger) (datasource.TableLoader, error) {
			myCfg, err := FromMap(options)
			if err != nil {
				return nil, err
			}
			return NewLoader(ctx, myCfg, cfg, logger)
		},
	})
}
