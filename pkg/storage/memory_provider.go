package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// Errors returned by storage providers
var (
	ErrInstanceNotFound = errors.New("plugin instance not found")
	ErrSecretNotFound   = errors.New("secret not found")
	ErrAccountNotFound  = errors.New("account not found")
)

// MemoryProvider implements the StorageProvider interface using in-memory storage
type MemoryProvider struct {
	instanceStore *MemoryInstanceStore
	secretStore   *MemorySecretStore
	accountStore  *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		instanceStore: NewMemoryInstanceStore(),
		secretStore:   NewMemorySecretStore(),
		accountStore:  NewMemoryAccountStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetInstanceStore returns a store for plugin instances
func (p *MemoryProvider) GetInstanceStore() InstanceStore {
	return p.instanceStore
}

// GetSecretStore returns a store for secrets
func (p *MemoryProvider) GetSecretStore() SecretStore {
	return p.secretStore
}

// GetAccountStore returns a store for account data
func (p *MemoryProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// MemoryInstanceStore implements the InstanceStore interface using in-memory storage
type MemoryInstanceStore struct {
	// instances maps owner ID -> family -> instance ID -> instance
	instances map[string]map[plugins.Family]map[string]plugins.PluginInstance
	mu        sync.RWMutex
}

// NewMemoryInstanceStore creates a new in-memory instance store
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		instances: make(map[string]map[plugins.Family]map[string]plugins.PluginInstance),
	}
}

// SaveInstance persists a plugin instance
func (s *MemoryInstanceStore) SaveInstance(instance plugins.PluginInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Create owner and family maps if they don't exist
	if _, ok := s.instances[instance.OwnerID]; !ok {
		s.instances[instance.OwnerID] = make(map[plugins.Family]map[string]plugins.PluginInstance)
	}
	if _, ok := s.instances[instance.OwnerID][instance.Family]; !ok {
		s.instances[instance.OwnerID][instance.Family] = make(map[string]plugins.PluginInstance)
	}

	s.instances[instance.OwnerID][instance.Family][instance.ID] = copyInstance(instance)
	return nil
}

// GetInstance retrieves a plugin instance
func (s *MemoryInstanceStore) GetInstance(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instances[ownerID][family][instanceID]
	if !ok {
		return plugins.PluginInstance{}, ErrInstanceNotFound
	}
	return copyInstance(instance), nil
}

// ListInstances returns all instances of a family for an owner in creation order
func (s *MemoryInstanceStore) ListInstances(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.instances[ownerID][family]
	list := make([]plugins.PluginInstance, 0, len(stored))
	for _, instance := range stored {
		list = append(list, copyInstance(instance))
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// DeleteInstance removes a plugin instance
func (s *MemoryInstanceStore) DeleteInstance(ownerID string, family plugins.Family, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[ownerID][family][instanceID]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances[ownerID][family], instanceID)
	return nil
}

// CountByName returns how many instances of a family carry the given name
func (s *MemoryInstanceStore) CountByName(ownerID string, family plugins.Family, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, instance := range s.instances[ownerID][family] {
		if instance.Name == name {
			count++
		}
	}
	return count, nil
}

// copyInstance clones an instance so callers never share the stored
// parameter map.
func copyInstance(instance plugins.PluginInstance) plugins.PluginInstance {
	copied := instance
	copied.Parameters = make(map[string]interface{}, len(instance.Parameters))
	for k, v := range instance.Parameters {
		copied.Parameters[k] = v
	}
	return copied
}

// MemorySecretStore implements the SecretStore interface using in-memory storage
type MemorySecretStore struct {
	// secrets maps account ID -> secret key -> secret
	secrets map[string]map[string]auth.Secret
	mu      sync.RWMutex
}

// NewMemorySecretStore creates a new in-memory secret store
func NewMemorySecretStore() *MemorySecretStore {
	return &MemorySecretStore{
		secrets: make(map[string]map[string]auth.Secret),
	}
}

// SaveSecret persists a secret
func (s *MemorySecretStore) SaveSecret(secret auth.Secret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.secrets[secret.AccountID]; !ok {
		s.secrets[secret.AccountID] = make(map[string]auth.Secret)
	}
	s.secrets[secret.AccountID][secret.Key] = secret
	return nil
}

// GetSecret retrieves a secret
func (s *MemorySecretStore) GetSecret(accountID, key string) (auth.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	secret, ok := s.secrets[accountID][key]
	if !ok {
		return auth.Secret{}, ErrSecretNotFound
	}
	return secret, nil
}

// ListSecrets returns all secrets for an account
func (s *MemorySecretStore) ListSecrets(accountID string) ([]auth.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]auth.Secret, 0, len(s.secrets[accountID]))
	for _, secret := range s.secrets[accountID] {
		list = append(list, secret)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key < list[j].Key
	})
	return list, nil
}

// DeleteSecret removes a secret
func (s *MemorySecretStore) DeleteSecret(accountID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.secrets[accountID][key]; !ok {
		return ErrSecretNotFound
	}
	delete(s.secrets[accountID], key)
	return nil
}

// MemoryAccountStore implements the AccountStore interface using in-memory storage
type MemoryAccountStore struct {
	accounts map[string]auth.Account
	mu       sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts: make(map[string]auth.Account),
	}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	return nil
}

// GetAccount retrieves an account
func (s *MemoryAccountStore) GetAccount(accountID string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, account := range s.accounts {
		if account.APIToken == token {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// ListAccounts returns all accounts
func (s *MemoryAccountStore) ListAccounts() ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]auth.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		list = append(list, account)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Username < list[j].Username
	})
	return list, nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, accountID)
	return nil
}
