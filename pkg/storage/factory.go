package storage

import (
	"fmt"
)

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// MemoryProviderType keeps instances, secrets and accounts in process
	// memory. Suited to tests and single-node evaluation runs.
	MemoryProviderType ProviderType = "memory"

	// DynamoDBProviderType persists to DynamoDB tables
	DynamoDBProviderType ProviderType = "dynamodb"

	// PostgreSQLProviderType persists to PostgreSQL
	PostgreSQLProviderType ProviderType = "postgresql"
)

// ParseProviderType normalizes a configured backend name. An empty string
// selects the memory provider; "postgres" is accepted as an alias.
func ParseProviderType(s string) (ProviderType, error) {
	switch s {
	case "", "memory":
		return MemoryProviderType, nil
	case "dynamodb":
		return DynamoDBProviderType, nil
	case "postgres", "postgresql":
		return PostgreSQLProviderType, nil
	default:
		return "", fmt.Errorf("unsupported storage type: %s", s)
	}
}

// ProviderConfig selects and configures a storage backend.
type ProviderConfig struct {
	// Type of backend to create
	Type ProviderType

	// DynamoDB configuration, required when Type is dynamodb
	DynamoDB *DynamoDBProviderConfig

	// PostgreSQL configuration, required when Type is postgresql
	PostgreSQL *PostgreSQLProviderConfig
}

// NewProvider creates the storage provider the configuration selects.
func NewProvider(config ProviderConfig) (StorageProvider, error) {
	switch config.Type {
	case MemoryProviderType:
		return NewMemoryProvider(), nil

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("DynamoDB configuration is required for the dynamodb provider")
		}
		return NewDynamoDBProvider(*config.DynamoDB)

	case PostgreSQLProviderType:
		if config.PostgreSQL == nil {
			return nil, fmt.Errorf("PostgreSQL configuration is required for the postgresql provider")
		}
		return NewPostgreSQLProvider(*config.PostgreSQL)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}
