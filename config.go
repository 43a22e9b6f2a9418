package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Connection and execution defaults. Host/port/database/user/password match
// the conventional local PostgreSQL development setup.
const (
	DefaultHost     = "localhost"
	DefaultPort     = "5433"
	DefaultDatabase = "postgres"
	DefaultUser     = "postgres"
	DefaultPassword = "postgres"
	DefaultSSLMode  = "prefer"

	DefaultQueryTimeoutSeconds = 30
	DefaultMaxRows             = 10000

	ConnectionTimeout  = 10 * time.Second
	MaxConnectionsIdle = 5
	MaxConnectionsOpen = 10
)

// Config holds every setting the server reads. It is resolved once at
// startup (file, then environment, then flags) and never mutated afterwards.
type Config struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	QueryTimeoutSeconds int `yaml:"query_timeout_seconds"`
	MaxRows             int `yaml:"max_rows"`
}

// DefaultConfig returns a Config populated with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                DefaultHost,
		Port:                DefaultPort,
		Database:            DefaultDatabase,
		User:                DefaultUser,
		Password:            DefaultPassword,
		SSLMode:             DefaultSSLMode,
		QueryTimeoutSeconds: DefaultQueryTimeoutSeconds,
		MaxRows:             DefaultMaxRows,
	}
}

// ConfigDir returns the pginspect configuration directory, typically
// ~/.config/pginspect/.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "config dir")
	}
	return filepath.Join(base, "pginspect"), nil
}

// LoadConfig builds the effective Config: defaults, overlaid by the YAML
// file at path (or the default location when path is empty; a missing file
// is not an error), overlaid by POSTGRES_* / MCP_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if dir, err := ConfigDir(); err == nil {
			path = filepath.Join(dir, "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, &ConfigError{Err: errors.Wrapf(err, "parse config %s", path)}
			}
		case !os.IsNotExist(err):
			return nil, &ConfigError{Err: errors.Wrap(err, "read config")}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Host = envString("POSTGRES_HOST", c.Host)
	c.Port = envString("POSTGRES_PORT", c.Port)
	c.Database = envString("POSTGRES_DB", c.Database)
	c.User = envString("POSTGRES_USER", c.User)
	c.Password = envString("POSTGRES_PASSWORD", c.Password)
	c.SSLMode = envString("POSTGRES_SSLMODE", c.SSLMode)

	if v := os.Getenv("MCP_QUERY_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.QueryTimeoutSeconds = n
		} else {
			logError("Ignoring invalid MCP_QUERY_TIMEOUT value %q", v)
		}
	}
	if v := os.Getenv("MCP_MAX_ROWS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxRows = n
		} else {
			logError("Ignoring invalid MCP_MAX_ROWS value %q", v)
		}
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks that every connection parameter is resolved and usable.
func (c *Config) Validate() error {
	var missing []string
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port == "" {
		missing = append(missing, "port")
	}
	if c.Database == "" {
		missing = append(missing, "database")
	}
	if c.User == "" {
		missing = append(missing, "user")
	}
	if len(missing) > 0 {
		return &ConfigError{Err: errors.Errorf("missing connection parameters: %v", missing)}
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return &ConfigError{Err: errors.Errorf("port %q is not a number", c.Port)}
	}
	return nil
}

// DSN renders the config as a lib/pq connection URL.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.PathEscape(c.User), url.PathEscape(c.Password), c.Host, c.Port, c.Database, c.SSLMode)
}

// QueryTimeout is the per-call deadline applied by the handler layer.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}
