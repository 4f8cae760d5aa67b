package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected default host to be localhost, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port to be 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type to be memory, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.DynamoDB.TablePrefix != "gauntlet_" {
		t.Errorf("Expected default table prefix to be gauntlet_, got %s", cfg.Storage.DynamoDB.TablePrefix)
	}
	if cfg.Session.Store != "memory" {
		t.Errorf("Expected default session store to be memory, got %s", cfg.Session.Store)
	}
	if cfg.Session.TTLMinutes != 30 {
		t.Errorf("Expected default session TTL to be 30 minutes, got %d", cfg.Session.TTLMinutes)
	}
	if cfg.Backends.TimeoutSeconds != 30 {
		t.Errorf("Expected default plugin timeout to be 30 seconds, got %d", cfg.Backends.TimeoutSeconds)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level to be info, got %s", cfg.Logging.Level)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
		"server": {
			"host": "0.0.0.0",
			"port": 9090
		},
		"storage": {
			"type": "postgres",
			"postgres": {
				"host": "db.internal",
				"port": 5432,
				"database": "gauntlet",
				"user": "app",
				"ssl_mode": "require"
			}
		},
		"session": {
			"store": "redis",
			"ttl_minutes": 15,
			"redis": {
				"addr": "redis.internal:6379"
			}
		},
		"backends": {
			"scorer_url": "http://scorer.internal:8701",
			"detector_url": "http://detector.internal:8702",
			"timeout_seconds": 60
		}
	}`

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host to be 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port to be 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "postgres" {
		t.Errorf("Expected storage type to be postgres, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("Expected postgres host to be db.internal, got %s", cfg.Storage.Postgres.Host)
	}
	if cfg.Session.Store != "redis" {
		t.Errorf("Expected session store to be redis, got %s", cfg.Session.Store)
	}
	if cfg.Session.TTLMinutes != 15 {
		t.Errorf("Expected session TTL to be 15 minutes, got %d", cfg.Session.TTLMinutes)
	}
	if cfg.Session.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Expected redis addr to be redis.internal:6379, got %s", cfg.Session.Redis.Addr)
	}
	if cfg.Backends.ScorerURL != "http://scorer.internal:8701" {
		t.Errorf("Expected scorer URL to be http://scorer.internal:8701, got %s", cfg.Backends.ScorerURL)
	}
	if cfg.Backends.TimeoutSeconds != 60 {
		t.Errorf("Expected plugin timeout to be 60 seconds, got %d", cfg.Backends.TimeoutSeconds)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	if err == nil {
		t.Error("Expected error when loading missing config file")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadConfig(path)
	if err == nil {
		t.Error("Expected error when loading invalid JSON")
	}
}

func TestSaveConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Server.Port = 9191
	cfg.Backends.DetectorURL = "http://detector.local:8702"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Server.Port != 9191 {
		t.Errorf("Expected port to be 9191, got %d", loaded.Server.Port)
	}
	if loaded.Backends.DetectorURL != "http://detector.local:8702" {
		t.Errorf("Expected detector URL to round-trip, got %s", loaded.Backends.DetectorURL)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GAUNTLET_SERVER_HOST", "0.0.0.0")
	t.Setenv("GAUNTLET_SERVER_PORT", "9999")
	t.Setenv("GAUNTLET_STORAGE_TYPE", "dynamodb")
	t.Setenv("GAUNTLET_DYNAMODB_REGION", "eu-west-1")
	t.Setenv("GAUNTLET_DYNAMODB_ENDPOINT", "http://localhost:8000")
	t.Setenv("GAUNTLET_JWT_SECRET", "env-secret")
	t.Setenv("GAUNTLET_SESSION_STORE", "redis")
	t.Setenv("GAUNTLET_SESSION_TTL_MINUTES", "45")
	t.Setenv("GAUNTLET_REDIS_ADDR", "cache:6379")
	t.Setenv("GAUNTLET_REDIS_DB", "3")
	t.Setenv("GAUNTLET_SCORER_URL", "http://scorer:8701")
	t.Setenv("GAUNTLET_DETECTOR_URL", "http://detector:8702")
	t.Setenv("GAUNTLET_PLUGIN_TIMEOUT_SECONDS", "120")
	t.Setenv("GAUNTLET_CATALOG_PATH", "/etc/gauntlet/catalog.yaml")
	t.Setenv("GAUNTLET_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host override, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "dynamodb" {
		t.Errorf("Expected storage type override, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.DynamoDB.Region != "eu-west-1" {
		t.Errorf("Expected region override, got %s", cfg.Storage.DynamoDB.Region)
	}
	if cfg.Storage.DynamoDB.Endpoint != "http://localhost:8000" {
		t.Errorf("Expected endpoint override, got %s", cfg.Storage.DynamoDB.Endpoint)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("Expected JWT secret override, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Session.Store != "redis" {
		t.Errorf("Expected session store override, got %s", cfg.Session.Store)
	}
	if cfg.Session.TTLMinutes != 45 {
		t.Errorf("Expected session TTL override, got %d", cfg.Session.TTLMinutes)
	}
	if cfg.Session.Redis.Addr != "cache:6379" {
		t.Errorf("Expected redis addr override, got %s", cfg.Session.Redis.Addr)
	}
	if cfg.Session.Redis.DB != 3 {
		t.Errorf("Expected redis db override, got %d", cfg.Session.Redis.DB)
	}
	if cfg.Backends.ScorerURL != "http://scorer:8701" {
		t.Errorf("Expected scorer URL override, got %s", cfg.Backends.ScorerURL)
	}
	if cfg.Backends.DetectorURL != "http://detector:8702" {
		t.Errorf("Expected detector URL override, got %s", cfg.Backends.DetectorURL)
	}
	if cfg.Backends.TimeoutSeconds != 120 {
		t.Errorf("Expected plugin timeout override, got %d", cfg.Backends.TimeoutSeconds)
	}
	if cfg.Catalog.Path != "/etc/gauntlet/catalog.yaml" {
		t.Errorf("Expected catalog path override, got %s", cfg.Catalog.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level override, got %s", cfg.Logging.Level)
	}
}

func TestApplyEnvOverridesIgnoresBadNumbers(t *testing.T) {
	t.Setenv("GAUNTLET_SERVER_PORT", "not-a-port")
	t.Setenv("GAUNTLET_SESSION_TTL_MINUTES", "soon")

	cfg := DefaultConfig()
	ApplyEnvOverrides(cfg)

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port to keep its default on bad override, got %d", cfg.Server.Port)
	}
	if cfg.Session.TTLMinutes != 30 {
		t.Errorf("Expected session TTL to keep its default on bad override, got %d", cfg.Session.TTLMinutes)
	}
}
