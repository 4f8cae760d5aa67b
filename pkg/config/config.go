// Package config provides configuration handling for gauntlet.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Session configuration
	Session SessionConfig `json:"session"`

	// Backends configuration
	Backends BackendsConfig `json:"backends"`

	// Catalog configuration
	Catalog CatalogConfig `json:"catalog"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "dynamodb", "postgres"

	// DynamoDB configuration
	DynamoDB DynamoDBConfig `json:"dynamodb"`

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres"`
}

// DynamoDBConfig contains DynamoDB settings
type DynamoDBConfig struct {
	// Region is the AWS region
	Region string `json:"region"`

	// Endpoint is the DynamoDB endpoint (for local development)
	Endpoint string `json:"endpoint"`

	// TablePrefix is the prefix for all tables
	TablePrefix string `json:"table_prefix"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`

	// EncryptionKey is the hex key for encrypting vault secrets
	EncryptionKey string `json:"encryption_key"`
}

// SessionConfig contains editing session settings
type SessionConfig struct {
	// Store selects the session backend
	Store string `json:"store"` // "memory", "redis"

	// TTLMinutes is how long an idle session survives
	TTLMinutes int `json:"ttl_minutes"`

	// Redis configuration
	Redis RedisConfig `json:"redis"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	// Addr is the Redis address
	Addr string `json:"addr"`

	// Password is the Redis password
	Password string `json:"password"`

	// DB is the Redis database number
	DB int `json:"db"`
}

// BackendsConfig contains plugin backend settings
type BackendsConfig struct {
	// ScorerURL is the base URL of the scoring service
	ScorerURL string `json:"scorer_url"`

	// DetectorURL is the base URL of the detection service
	DetectorURL string `json:"detector_url"`

	// TimeoutSeconds bounds a single plugin invocation
	TimeoutSeconds int `json:"timeout_seconds"`
}

// CatalogConfig contains plugin catalog settings
type CatalogConfig struct {
	// Path to a YAML catalog merged over the builtin types
	Path string `json:"path"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"

	// Output is the log output
	Output string `json:"output"` // "stdout", "file"

	// FilePath is the path to the log file
	FilePath string `json:"file_path"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			DynamoDB: DynamoDBConfig{
				Region:      "us-west-2",
				TablePrefix: "gauntlet_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "gauntlet",
				User:     "gauntlet",
				SSLMode:  "disable",
			},
		},
		Auth: AuthConfig{
			TokenExpiration: 24,
		},
		Session: SessionConfig{
			Store:      "memory",
			TTLMinutes: 30,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Backends: BackendsConfig{
			ScorerURL:      "http://localhost:8701",
			DetectorURL:    "http://localhost:8702",
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnvOverrides overrides configuration values from GAUNTLET_*
// environment variables.
func ApplyEnvOverrides(cfg *Config) {
	if host := os.Getenv("GAUNTLET_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("GAUNTLET_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if storageType := os.Getenv("GAUNTLET_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}
	if region := os.Getenv("GAUNTLET_DYNAMODB_REGION"); region != "" {
		cfg.Storage.DynamoDB.Region = region
	}
	if endpoint := os.Getenv("GAUNTLET_DYNAMODB_ENDPOINT"); endpoint != "" {
		cfg.Storage.DynamoDB.Endpoint = endpoint
	}
	if tablePrefix := os.Getenv("GAUNTLET_DYNAMODB_TABLE_PREFIX"); tablePrefix != "" {
		cfg.Storage.DynamoDB.TablePrefix = tablePrefix
	}
	if host := os.Getenv("GAUNTLET_POSTGRES_HOST"); host != "" {
		cfg.Storage.Postgres.Host = host
	}
	if port := os.Getenv("GAUNTLET_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.Postgres.Port = p
		}
	}
	if database := os.Getenv("GAUNTLET_POSTGRES_DATABASE"); database != "" {
		cfg.Storage.Postgres.Database = database
	}
	if user := os.Getenv("GAUNTLET_POSTGRES_USER"); user != "" {
		cfg.Storage.Postgres.User = user
	}
	if password := os.Getenv("GAUNTLET_POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
	if sslMode := os.Getenv("GAUNTLET_POSTGRES_SSL_MODE"); sslMode != "" {
		cfg.Storage.Postgres.SSLMode = sslMode
	}

	if jwtSecret := os.Getenv("GAUNTLET_JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if tokenExpiration := os.Getenv("GAUNTLET_TOKEN_EXPIRATION"); tokenExpiration != "" {
		if hours, err := strconv.Atoi(tokenExpiration); err == nil {
			cfg.Auth.TokenExpiration = hours
		}
	}
	if encryptionKey := os.Getenv("GAUNTLET_ENCRYPTION_KEY"); encryptionKey != "" {
		cfg.Auth.EncryptionKey = encryptionKey
	}

	if store := os.Getenv("GAUNTLET_SESSION_STORE"); store != "" {
		cfg.Session.Store = store
	}
	if ttl := os.Getenv("GAUNTLET_SESSION_TTL_MINUTES"); ttl != "" {
		if minutes, err := strconv.Atoi(ttl); err == nil {
			cfg.Session.TTLMinutes = minutes
		}
	}
	if addr := os.Getenv("GAUNTLET_REDIS_ADDR"); addr != "" {
		cfg.Session.Redis.Addr = addr
	}
	if password := os.Getenv("GAUNTLET_REDIS_PASSWORD"); password != "" {
		cfg.Session.Redis.Password = password
	}
	if db := os.Getenv("GAUNTLET_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			cfg.Session.Redis.DB = n
		}
	}

	if scorerURL := os.Getenv("GAUNTLET_SCORER_URL"); scorerURL != "" {
		cfg.Backends.ScorerURL = scorerURL
	}
	if detectorURL := os.Getenv("GAUNTLET_DETECTOR_URL"); detectorURL != "" {
		cfg.Backends.DetectorURL = detectorURL
	}
	if timeout := os.Getenv("GAUNTLET_PLUGIN_TIMEOUT_SECONDS"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil {
			cfg.Backends.TimeoutSeconds = seconds
		}
	}

	if catalogPath := os.Getenv("GAUNTLET_CATALOG_PATH"); catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}

	if level := os.Getenv("GAUNTLET_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
