// Package main is the entry point for the gauntlet server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/gauntlethq/gauntlet/pkg/api"
	"github.com/gauntlethq/gauntlet/pkg/config"
	"github.com/gauntlethq/gauntlet/pkg/harness"
	"github.com/gauntlethq/gauntlet/pkg/logging"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
	"github.com/gauntlethq/gauntlet/pkg/registry"
	"github.com/gauntlethq/gauntlet/pkg/services"
	"github.com/gauntlethq/gauntlet/pkg/storage"
	"github.com/gauntlethq/gauntlet/pkg/workflow"
)

const (
	// AppVersion is the application version.
	AppVersion = "0.1.0"
	// AppName is the application name.
	AppName = "gauntlet"
)

// App represents the running application.
type App struct {
	config          *config.Config
	server          *api.Server
	storageProvider storage.StorageProvider
	reaper          *workflow.SessionReaper
}

func main() {
	// Load environment variables from a .env file when present.
	godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.ApplyEnvOverrides(cfg)

	// Generate ephemeral keys when none are configured. Sessions and
	// encrypted secrets will not survive a restart in that mode.
	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate JWT secret: %v\n", err)
			os.Exit(1)
		}
		cfg.Auth.JWTSecret = secret
		fmt.Println("Warning: no JWT secret configured, generated an ephemeral one")
	}
	if cfg.Auth.EncryptionKey == "" {
		key, err := generateRandomKey(32)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate encryption key: %v\n", err)
			os.Exit(1)
		}
		cfg.Auth.EncryptionKey = key
		fmt.Println("Warning: no encryption key configured, generated an ephemeral one")
	}

	logger, closeLogs, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()

	ctx := clog.WithLogger(context.Background(), logger)

	app, err := NewApp(ctx, cfg)
	if err != nil {
		clog.FatalContextf(ctx, "Failed to initialize application: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	clog.InfoContextf(ctx, "%s %s listening on %s:%d", AppName, AppVersion, cfg.Server.Host, cfg.Server.Port)

	select {
	case err := <-errCh:
		if err != nil {
			clog.FatalContextf(ctx, "Server error: %v", err)
		}
	case sig := <-stop:
		clog.InfoContextf(ctx, "Received signal %v, shutting down", sig)

		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := app.Stop(shutdownCtx); err != nil {
			clog.ErrorContextf(ctx, "Error during shutdown: %v", err)
			os.Exit(1)
		}
		clog.InfoContextf(ctx, "Shutdown complete")
	}
}

// NewApp wires storage, services, the plugin catalog, and the API server
// from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	provider, err := newStorageProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	accountService := services.NewAccountService(provider.GetAccountStore())
	jwtService := services.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)

	encryptionKey, err := services.EncryptionKeyFromHex(cfg.Auth.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	vault, err := services.NewSecretVaultService(provider.GetSecretStore(), encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret vault: %w", err)
	}

	types, err := plugins.NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build plugin catalog: %w", err)
	}
	if cfg.Catalog.Path != "" {
		if err := plugins.LoadCatalogFile(types, cfg.Catalog.Path); err != nil {
			return nil, fmt.Errorf("failed to load catalog %s: %w", cfg.Catalog.Path, err)
		}
		clog.InfoContextf(ctx, "Loaded plugin catalog from %s", cfg.Catalog.Path)
	}

	instances := registry.NewInstanceRegistry(provider.GetInstanceStore(), types)

	testHarness := harness.NewHarness(types, vault, harness.Backends{
		ScorerURL:   cfg.Backends.ScorerURL,
		DetectorURL: cfg.Backends.DetectorURL,
	}, time.Duration(cfg.Backends.TimeoutSeconds)*time.Second)

	sessions, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cfg.Session.TTLMinutes) * time.Minute
	controller := workflow.NewController(sessions, instances, types, testHarness, ttl)

	server := api.NewServer(cfg, api.Dependencies{
		AccountService: accountService,
		JWTService:     jwtService,
		SecretVault:    vault,
		Types:          types,
		Instances:      instances,
		Controller:     controller,
		Harness:        testHarness,
	})

	return &App{
		config:          cfg,
		server:          server,
		storageProvider: provider,
		reaper:          workflow.NewSessionReaper(sessions),
	}, nil
}

// Start runs the session reaper and the HTTP server. It blocks until the
// server exits.
func (a *App) Start() error {
	if err := a.reaper.Start(); err != nil {
		return fmt.Errorf("failed to start session reaper: %w", err)
	}
	return a.server.Start()
}

// Stop shuts the application down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	a.reaper.Stop()

	if err := a.server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.storageProvider != nil {
		if err := a.storageProvider.Close(); err != nil {
			clog.ErrorContextf(ctx, "Error closing storage provider: %v", err)
		}
	}
	return nil
}

// newStorageProvider builds the storage provider selected by configuration.
func newStorageProvider(ctx context.Context, cfg *config.Config) (storage.StorageProvider, error) {
	providerType, err := storage.ParseProviderType(cfg.Storage.Type)
	if err != nil {
		return nil, err
	}

	providerCfg := storage.ProviderConfig{Type: providerType}

	switch providerType {
	case storage.MemoryProviderType:
		clog.InfoContextf(ctx, "Using in-memory storage")
	case storage.DynamoDBProviderType:
		clog.InfoContextf(ctx, "Using DynamoDB storage in region %s", cfg.Storage.DynamoDB.Region)
		providerCfg.DynamoDB = &storage.DynamoDBProviderConfig{
			Region:      cfg.Storage.DynamoDB.Region,
			Endpoint:    cfg.Storage.DynamoDB.Endpoint,
			TablePrefix: cfg.Storage.DynamoDB.TablePrefix,
		}
	case storage.PostgreSQLProviderType:
		clog.InfoContextf(ctx, "Using PostgreSQL storage at %s:%d", cfg.Storage.Postgres.Host, cfg.Storage.Postgres.Port)
		providerCfg.PostgreSQL = &storage.PostgreSQLProviderConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		}
	}

	return storage.NewProvider(providerCfg)
}

// newSessionStore builds the session store selected by configuration.
func newSessionStore(ctx context.Context, cfg *config.Config) (workflow.SessionStore, error) {
	switch cfg.Session.Store {
	case "", "memory":
		clog.InfoContextf(ctx, "Using in-memory session store")
		return workflow.NewMemorySessionStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Session.Redis.Addr, err)
		}
		clog.InfoContextf(ctx, "Using redis session store at %s", cfg.Session.Redis.Addr)
		return workflow.NewRedisSessionStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Session.Store)
	}
}

// loadConfig resolves the configuration file. An explicit path wins;
// otherwise well-known locations are tried, and a default configuration is
// written to the home directory when nothing exists yet.
func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadConfig(explicitPath)
	}

	candidates := []string{
		"./config.json",
		"./configs/config.json",
	}
	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, "."+AppName, "config.json"))
	}
	candidates = append(candidates, "/etc/"+AppName+"/config.json")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return config.LoadConfig(path)
		}
	}

	cfg := config.DefaultConfig()
	if homeErr == nil {
		path := filepath.Join(home, "."+AppName, "config.json")
		if err := config.SaveConfig(cfg, path); err == nil {
			fmt.Printf("Created default configuration at %s\n", path)
		}
	}
	return cfg, nil
}

// generateRandomKey returns length random bytes hex-encoded.
func generateRandomKey(length int) (string, error) {
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}
