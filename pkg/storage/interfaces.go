// Package storage provides interfaces for persistent storage.
package storage

import (
	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetInstanceStore returns a store for plugin instances
	GetInstanceStore() InstanceStore

	// GetSecretStore returns a store for secrets
	GetSecretStore() SecretStore

	// GetAccountStore returns a store for account data
	GetAccountStore() AccountStore
}

// InstanceStore manages plugin instance persistence. Records are keyed by
// (owner, family, instance ID); instances of the two families never share a
// namespace even when their type names collide.
type InstanceStore interface {
	// SaveInstance persists a plugin instance, replacing any existing record
	// with the same key
	SaveInstance(instance plugins.PluginInstance) error

	// GetInstance retrieves a plugin instance
	GetInstance(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error)

	// ListInstances returns all instances of a family for an owner in
	// creation order
	ListInstances(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error)

	// DeleteInstance removes a plugin instance
	DeleteInstance(ownerID string, family plugins.Family, instanceID string) error

	// CountByName returns how many instances of a family carry the given
	// name for an owner
	CountByName(ownerID string, family plugins.Family, name string) (int, error)
}

// SecretStore manages secret persistence
type SecretStore interface {
	// SaveSecret persists a secret
	SaveSecret(secret auth.Secret) error

	// GetSecret retrieves a secret
	GetSecret(accountID, key string) (auth.Secret, error)

	// ListSecrets returns all secrets for an account
	ListSecrets(accountID string) ([]auth.Secret, error)

	// DeleteSecret removes a secret
	DeleteSecret(accountID, key string) error
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account
	GetAccount(accountID string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error
}
