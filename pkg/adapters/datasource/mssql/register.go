package mssql

import (
	"context"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/adapters/datasource"
	sqlutil "github.com/ekaya-inc/shapeshift-engine/pkg/sql"
)

// Dialect runs entity queries against SQL Server.
var Dialect = datasource.Dialect{
	Name:        "mssql",
	Placeholder: sqlutil.PlaceholderAtP,
	Limit:       datasource.TopLimit,
}

// NewLoader opens a loader for cfg.
func NewLoader(ctx context.Context, cfg *Config, loaderCfg datasource.LoaderConfig, logger *zap.Logger) (*datasource.SQLLoader, error) {
	return datasource.OpenSQLLoader(ctx, cfg.DriverName(), cfg.ConnectionString(), Dialect, loaderCfg, logger)
}

func init() {
	datasource.Register(datasource.LoaderRegistration{
		Info: datasource.LoaderInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Load entities from SQL Server 2016+ and Azure SQL",
		},
		Factory: func(ctx context.Context, options map[string]any, cfg datasource.LoaderConfig, logger *zap.Logger) (datasource.TableLoader, error) {
			msCfg, err := FromMap(options)
			if err != nil {
				return nil, err
			}
			return NewLoader(ctx, msCfg, cfg, logger)
		},
	})
}
