package mssql

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/shapeshift-engine/pkg/config"
)

// Auth methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod is "sql" or "service_principal".
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from data source options and auto-detects the
// auth method when it is not given.
func FromMap(options map[string]any) (*Config, error) {
	cfg := &Config{
		Port:              DefaultPort(),
		Encrypt:           true,
		ConnectionTimeout: DefaultConnectionTimeout(),
	}

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

	if database, ok := options["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	switch encrypt := options["encrypt"].(type) {
	case bool:
		cfg.Encrypt = encrypt
	case string:
		cfg.Encrypt = encrypt == "true" || encrypt == "strict"
	}

	if trust, ok := options["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}

	switch timeout := options["connection_timeout"].(type) {
	case int:
		cfg.ConnectionTimeout = timeout
	case float64:
		cfg.ConnectionTimeout = int(timeout)
	}

	if authMethod, ok := options["auth_method"].(string); ok && authMethod != "" {
		cfg.AuthMethod = authMethod
	} else if _, hasClientID := options["client_id"].(string); hasClientID {
		cfg.AuthMethod = AuthServicePrincipal
	} else {
		cfg.AuthMethod = AuthSQL
	}

	switch cfg.AuthMethod {
	case AuthSQL:
		if username, ok := options["username"].(string); ok && username != "" {
			cfg.Username = username
		} else if user, ok := options["user"].(string); ok && user != "" {
			cfg.Username = user
		} else {
			return nil, fmt.Errorf("username is required for SQL authentication")
		}
		cfg.Password, _ = options["password"].(string)

	case AuthServicePrincipal:
		var ok bool
		if cfg.TenantID, ok = options["tenant_id"].(string); !ok || cfg.TenantID == "" {
			return nil, fmt.Errorf("tenant_id is required for service principal authentication")
		}
		if cfg.ClientID, ok = options["client_id"].(string); !ok || cfg.ClientID == "" {
			return nil, fmt.Errorf("client_id is required for service principal authentication")
		}
		if cfg.ClientSecret, ok = options["client_secret"].(string); !ok || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("client_secret is required for service principal authentication")
		}

	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	return cfg, nil
}

// DriverName returns the database/sql driver that understands ConnectionString.
func (c *Config) DriverName() string {
	if c.AuthMethod == AuthServicePrincipal {
		return "azuresql"
	}
	return "sqlserver"
}

// ConnectionString builds a sqlserver:// URL for the configured auth method.
func (c *Config) ConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", config.ResolveHostForDocker(c.Host), c.Port),
	}
	switch c.AuthMethod {
	case AuthServicePrincipal:
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		u.User = url.UserPassword(c.ClientID+"@"+c.TenantID, c.ClientSecret)
	default:
		u.User = url.UserPassword(c.Username, c.Password)
	}
	u.RawQuery = query.Encode()
	return u.String()
}
