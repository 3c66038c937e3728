// Package config provides configuration management for xsslab.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Security  SecurityConfig  `toml:"security"`
	Storage   StorageConfig   `toml:"storage"`
	Database  DatabaseConfig  `toml:"database"`
	Lab       LabConfig       `toml:"lab"`
}

// ServerConfig contains server settings
type ServerConfig struct {
	HTTPPort        int           `toml:"http_port"`
	BindAddress     string        `toml:"bind_address"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	MaxRequestSize  int64         `toml:"max_request_size"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.HTTPPort)
}

// TelemetryConfig contains logging and metrics settings
type TelemetryConfig struct {
	ServiceName       string `toml:"service_name"`
	PrometheusEnabled bool   `toml:"prometheus_enabled"`
	LogFormat         string `toml:"log_format"` // "json" or "text"
	LogLevel          string `toml:"log_level"`
}

// SecurityConfig contains the mitigation layer settings
type SecurityConfig struct {
	// Mode is the SECURITY_MODE value: "off", "log" or "block".
	Mode              string `toml:"mode"`
	SecretKey         string `toml:"secret_key"`
	EncryptionKey     string `toml:"encryption_key"` // base64 AES key for collected cookies
	AdminUser         string `toml:"admin_user"`
	AdminPasswordHash string `toml:"admin_password_hash"` // bcrypt; empty leaves admin panels open
	EventBufferSize   int    `toml:"event_buffer_size"`
}

// StorageConfig selects where lab records live
type StorageConfig struct {
	Driver  string `toml:"driver"` // "file", "memory", "postgres"
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	DSN        string        `toml:"dsn"`
	Host       string        `toml:"host"`
	Port       int           `toml:"port"`
	User       string        `toml:"user"`
	Password   string        `toml:"password"`
	Database   string        `toml:"database"`
	SSLMode    string        `toml:"ssl_mode"`
	MaxConns   int           `toml:"max_conns"`
	MaxIdle    int           `toml:"max_idle"`
	ConnMaxAge time.Duration `toml:"conn_max_age"`

	ConnectRetries int           `toml:"connect_retries"`
	RetryBackoff   time.Duration `toml:"retry_backoff"`

	// Queries fail fast after BreakerThreshold consecutive connection
	// failures, for BreakerCooldown.
	BreakerThreshold int           `toml:"breaker_threshold"`
	BreakerCooldown  time.Duration `toml:"breaker_cooldown"`
}

// GetDSN returns the DSN for the database
func (d *DatabaseConfig) GetDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// LabConfig contains settings for the demo pages
type LabConfig struct {
	// CollectorURL overrides the /steal URL used in sample payloads.
	CollectorURL     string        `toml:"collector_url"`
	EmulationTimeout time.Duration `toml:"emulation_timeout"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        5000,
			BindAddress:     "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxRequestSize:  1 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName:       "xsslab",
			PrometheusEnabled: true,
			LogFormat:         "json",
			LogLevel:          "info",
		},
		Security: SecurityConfig{
			Mode:            "off",
			SecretKey:       "dev-secret-key",
			AdminUser:       "admin",
			EventBufferSize: 200,
		},
		Storage: StorageConfig{
			Driver:  DriverFile,
			DataDir: "data",
			LogDir:  "logs",
		},
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			User:             "postgres",
			Password:         "postgres",
			Database:         "xsslab",
			SSLMode:          "disable",
			MaxConns:         10,
			MaxIdle:          2,
			ConnMaxAge:       30 * time.Minute,
			ConnectRetries:   5,
			RetryBackoff:     500 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Lab: LabConfig{
			EmulationTimeout: 250 * time.Millisecond,
		},
	}
}

// Load loads configuration from a TOML file. A missing file yields the
// defaults. When envFile exists it is loaded into the process environment
// before overrides are applied; variables already set are kept.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
		}
	}

	// Start with defaults
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	cfg.substituteEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// substituteEnvVars expands ${VAR} patterns and applies direct environment
// overrides
func (c *Config) substituteEnvVars() {
	c.Security.SecretKey = expandEnv(c.Security.SecretKey)
	c.Security.EncryptionKey = expandEnv(c.Security.EncryptionKey)
	c.Database.DSN = expandEnv(c.Database.DSN)
	c.Database.Host = expandEnv(c.Database.Host)
	c.Database.User = expandEnv(c.Database.User)
	c.Database.Password = expandEnv(c.Database.Password)

	// Unprefixed names are accepted for compatibility
	if v := os.Getenv("SECURITY_MODE"); v != "" {
		c.Security.Mode = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.Security.SecretKey = v
	}

	if v := os.Getenv("XSSLAB_SECURITY_MODE"); v != "" {
		c.Security.Mode = v
	}
	if v := os.Getenv("XSSLAB_ENCRYPTION_KEY"); v != "" {
		c.Security.EncryptionKey = v
	}
	if v := os.Getenv("XSSLAB_ADMIN_USER"); v != "" {
		c.Security.AdminUser = v
	}
	if v := os.Getenv("XSSLAB_ADMIN_PASSWORD_HASH"); v != "" {
		c.Security.AdminPasswordHash = v
	}

	// Server configuration
	if v := os.Getenv("XSSLAB_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("XSSLAB_BIND_ADDRESS"); v != "" {
		c.Server.BindAddress = v
	}

	// Storage configuration
	if v := os.Getenv("XSSLAB_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("XSSLAB_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("XSSLAB_LOG_DIR"); v != "" {
		c.Storage.LogDir = v
	}

	// Database configuration
	if v := os.Getenv("XSSLAB_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("XSSLAB_DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("XSSLAB_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("XSSLAB_DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("XSSLAB_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("XSSLAB_DB_NAME"); v != "" {
		c.Database.Database = v
	}
	if v := os.Getenv("XSSLAB_DB_SSL_MODE"); v != "" {
		c.Database.SSLMode = v
	}

	// Logging
	if v := os.Getenv("XSSLAB_LOG_LEVEL"); v != "" {
		c.Telemetry.LogLevel = v
	}
	if v := os.Getenv("XSSLAB_LOG_FORMAT"); v != "" {
		c.Telemetry.LogFormat = v
	}
}

// Validate checks settings that would otherwise fail later at runtime.
// The security mode is not validated: unknown values fall back to off.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port %d", c.Server.HTTPPort)
	}
	switch c.Storage.Driver {
	case DriverFile, DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Security.EventBufferSize < 0 {
		return fmt.Errorf("event_buffer_size must not be negative")
	}
	return nil
}

// SecurityMode returns the configured SECURITY_MODE value, lowercased.
func (c *Config) SecurityMode() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(c.Security.Mode)
}

// expandEnv expands ${VAR} or $VAR patterns
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}
