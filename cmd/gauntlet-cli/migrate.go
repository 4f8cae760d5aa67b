package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/gauntlethq/gauntlet/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and readiness checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migratePostgres(); err != nil {
			return err
		}
		if err := checkRedis(); err != nil {
			return err
		}
		fmt.Println("Migrations and checks completed successfully")
		return nil
	},
}

func attachMigrate(root *cobra.Command) {
	root.AddCommand(migrateCmd)
}

// migratePostgres connects to PostgreSQL and creates the schema.
func migratePostgres() error {
	host := getenvDefault("GAUNTLET_POSTGRES_HOST", "localhost")
	user := getenvDefault("GAUNTLET_POSTGRES_USER", "gauntlet")
	password := getenvDefault("GAUNTLET_POSTGRES_PASSWORD", "gauntlet")
	dbName := getenvDefault("GAUNTLET_POSTGRES_DATABASE", "gauntlet")
	portStr := getenvDefault("GAUNTLET_POSTGRES_PORT", "5432")
	sslMode := getenvDefault("GAUNTLET_POSTGRES_SSL_MODE", "disable")
	port, _ := strconv.Atoi(portStr)

	cfg := storage.PostgreSQLProviderConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: dbName,
		SSLMode:  sslMode,
	}
	provider, err := storage.NewPostgreSQLProvider(cfg)
	if err != nil {
		return fmt.Errorf("postgres connect failed: %w", err)
	}
	defer provider.Close()

	if err := provider.Initialize(); err != nil {
		return fmt.Errorf("postgres initialize failed: %w", err)
	}
	fmt.Printf("Postgres migrated (host=%s db=%s)\n", host, dbName)
	return nil
}

// checkRedis verifies the session store backend responds to a ping.
func checkRedis() error {
	addr := getenvDefault("GAUNTLET_REDIS_ADDR", "localhost:6379")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	fmt.Printf("Redis ready (addr=%s)\n", addr)
	return nil
}

func getenvDefault(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
