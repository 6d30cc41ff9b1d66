package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/shapeshift-engine/pkg/logging"
	"github.com/ekaya-inc/shapeshift-engine/pkg/retry"
	sqlutil "github.com/ekaya-inc/shapeshift-engine/pkg/sql"
	"github.com/ekaya-inc/shapeshift-engine/pkg/table"
)

// Dialect captures the driver-specific parts of running an entity query.
type Dialect struct {
	Name        string
	Placeholder sqlutil.PlaceholderStyle
	// Limit wraps query so that it returns at most n rows.
	Limit func(query string, n int) string
}

// SubqueryLimit wraps a query in a derived table with a trailing LIMIT.
// Works for PostgreSQL and MySQL.
func SubqueryLimit(query string, n int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", query, n)
}

// TopLimit wraps a query in a derived table with SELECT TOP (SQL Server).
func TopLimit(query string, n int) string {
	return fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", n, query)
}

// SQLLoader loads tables through database/sql.
type SQLLoader struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewSQLLoader wraps an open database handle. The loader takes ownership of db.
func NewSQLLoader(db *sql.DB, dialect Dialect, logger *zap.Logger) *SQLLoader {
	return &SQLLoader{db: db, dialect: dialect, logger: logger}
}

// OpenSQLLoader opens driverName with dsn and pings it, retrying transient
// connection failures.
func OpenSQLLoader(ctx context.Context, driverName, dsn string, dialect Dialect, cfg LoaderConfig, logger *zap.Logger) (*SQLLoader, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %s", dialect.Name, logging.SanitizeError(err))
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	retryCfg := retry.DefaultConfig().WithMaxRetries(cfg.ConnectRetries)
	err = retry.DoIfRetryable(ctx, retryCfg, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		_ = db.Close()
		logger.Error("Failed to connect to data source",
			zap.String("dsn", logging.SanitizeConnectionString(dsn)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("connect to %s: %s", dialect.Name, logging.SanitizeError(err))
	}

	logger.Debug("Connected to data source", zap.String("dsn", logging.SanitizeConnectionString(dsn)))
	return NewSQLLoader(db, dialect, logger), nil
}

// Load implements TableLoader.
func (l *SQLLoader) Load(ctx context.Context, query string, params map[string]any, limit int) (*table.Table, error) {
	prepared, err := sqlutil.Prepare(query, params, l.dialect.Placeholder)
	if err != nil {
		return nil, fmt.Errorf("prepare query: %w", err)
	}

	queryToRun := prepared.SQL
	if limit > 0 && l.dialect.Limit != nil {
		queryToRun = l.dialect.Limit(queryToRun, limit)
	}

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, queryToRun, prepared.Args...)
	if err != nil {
		l.logger.Error("Query failed",
			zap.String("query", logging.SanitizeQuery(queryToRun)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	result, err := scanTable(rows)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Loaded table",
		zap.String("query", logging.SanitizeQuery(queryToRun)),
		zap.Int("rows", result.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// Close implements TableLoader.
func (l *SQLLoader) Close() error {
	return l.db.Close()
}

func scanTable(rows *sql.Rows) (*table.Table, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var data [][]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			// Text columns come back as []byte from most drivers.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return table.New(columns, data), nil
}

var _ TableLoader = (*SQLLoader)(nil)
