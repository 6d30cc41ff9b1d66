package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/shapeshift-engine/pkg/models"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for shapeshift-engine.
// Configuration can come from a YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values.
// Data source secrets belong in the project file as ${VAR} references, not here.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ProjectConfig is the path of the entity configuration to run.
	ProjectConfig string `yaml:"project_config" env:"PROJECT_CONFIG" env-default:""`

	// Defaults for every run
	Run RunConfig `yaml:"run"`

	// Data source connection settings
	Datasource DatasourceConfig `yaml:"datasource"`

	// Run registry housekeeping
	Runs RunsConfig `yaml:"runs"`
}

// RunConfig holds the default options of a run.
type RunConfig struct {
	JoinSampleSize      int  `yaml:"join_sample_size" env:"JOIN_SAMPLE_SIZE" env-default:"10000"`
	MaxRowsPerEntity    int  `yaml:"max_rows_per_entity" env:"MAX_ROWS_PER_ENTITY" env-default:"0"`
	StopOnError         bool `yaml:"stop_on_error" env:"STOP_ON_ERROR" env-default:"false"`
	ValidateForeignKeys bool `yaml:"validate_foreign_keys" env:"VALIDATE_FOREIGN_KEYS" env-default:"true"`
	ValidateConstraints bool `yaml:"validate_constraints" env:"VALIDATE_CONSTRAINTS" env-default:"true"`
}

// DatasourceConfig holds data source connection settings.
type DatasourceConfig struct {
	// MaxOpenConns caps the connections each data source may open.
	MaxOpenConns int `yaml:"max_open_conns" env:"DATASOURCE_MAX_OPEN_CONNS" env-default:"4"`
	// ConnectRetries is how often a failed connect is retried with backoff.
	ConnectRetries int `yaml:"connect_retries" env:"DATASOURCE_CONNECT_RETRIES" env-default:"3"`
}

// RunsConfig holds run registry settings.
type RunsConfig struct {
	// RetentionMinutes is how long finished runs stay queryable.
	RetentionMinutes int `yaml:"retention_minutes" env:"RUNS_RETENTION_MINUTES" env-default:"60"`
}

// Load reads configuration from path with environment variable overrides.
// An empty path means config.yaml; a missing default file is not an error
// and leaves the environment and defaults in charge.
// The version parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, os.ErrNotExist) && !explicit:
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, statErr)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Run.JoinSampleSize <= 0 {
		return fmt.Errorf("run.join_sample_size must be positive, got %d", c.Run.JoinSampleSize)
	}
	if c.Run.MaxRowsPerEntity < 0 {
		return fmt.Errorf("run.max_rows_per_entity must not be negative, got %d", c.Run.MaxRowsPerEntity)
	}
	if c.Datasource.MaxOpenConns <= 0 {
		return fmt.Errorf("datasource.max_open_conns must be positive, got %d", c.Datasource.MaxOpenConns)
	}
	if c.Datasource.ConnectRetries < 0 {
		return fmt.Errorf("datasource.connect_retries must not be negative, got %d", c.Datasource.ConnectRetries)
	}
	return nil
}

// RunOptions returns the configured run defaults.
func (c *Config) RunOptions() models.RunOptions {
	return models.RunOptions{
		MaxRowsPerEntity:    c.Run.MaxRowsPerEntity,
		ValidateForeignKeys: c.Run.ValidateForeignKeys,
		ValidateConstraints: c.Run.ValidateConstraints,
		StopOnError:         c.Run.StopOnError,
		JoinSampleSize:      c.Run.JoinSampleSize,
	}
}

// Retention returns how long finished runs are kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Runs.RetentionMinutes) * time.Minute
}
