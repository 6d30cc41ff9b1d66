package mysql

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/shapeshift-engine/pkg/config"
)

// Config contains MySQL and TiDB connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      string // "", "true", "skip-verify", "preferred" or a registered name
}

// DefaultPort returns the default MySQL port.
func DefaultPort() int {
	return 3306
}

// FromMap creates a Config from the options of a data source.
func FromMap(options map[string]any) (*Config, error) {
	cfg := &Config{Port: DefaultPort()}

	if host, ok := options["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	switch port := options["port"].(type) {
	case int:
		cfg.Port = port
	case float64:
		cfg.Port = int(port)
	}

	if user, ok := options["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}
	cfg.Password, _ = options["password"].(string)

	if database, ok := options["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	switch tls := options["tls"].(type) {
	case string:
		cfg.TLS = tls
	case bool:
		cfg.TLS = strconv.FormatBool(tls)
	}

	return cfg, nil
}

// DSN formats the go-sql-driver DSN. Time columns are parsed into time.Time.
func (c *Config) DSN() string {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(config.ResolveHostForDocker(c.Host), strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	if c.TLS != "" && c.TLS != "false" {
		dc.TLSConfig = c.TLS
	}
	return dc.FormatDSN()
}
