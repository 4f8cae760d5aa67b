package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

// PostgreSQLProvider implements the StorageProvider interface using PostgreSQL
type PostgreSQLProvider struct {
	db            *sql.DB
	instanceStore *PostgreSQLInstanceStore
	secretStore   *PostgreSQLSecretStore
	accountStore  *PostgreSQLAccountStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	// Set default port if not specified
	if config.Port == 0 {
		config.Port = 5432
	}

	// Set default SSL mode if not specified
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{
		db: db,
	}

	provider.instanceStore = NewPostgreSQLInstanceStore(db)
	provider.secretStore = NewPostgreSQLSecretStore(db)
	provider.accountStore = NewPostgreSQLAccountStore(db)

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	if err := p.instanceStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize instance store: %w", err)
	}

	if err := p.secretStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize secret store: %w", err)
	}

	if err := p.accountStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetInstanceStore returns a store for plugin instances
func (p *PostgreSQLProvider) GetInstanceStore() InstanceStore {
	return p.instanceStore
}

// GetSecretStore returns a store for secrets
func (p *PostgreSQLProvider) GetSecretStore() SecretStore {
	return p.secretStore
}

// GetAccountStore returns a store for account data
func (p *PostgreSQLProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// PostgreSQLInstanceStore implements the InstanceStore interface using PostgreSQL
type PostgreSQLInstanceStore struct {
	db *sql.DB
}

// NewPostgreSQLInstanceStore creates a new PostgreSQL instance store
func NewPostgreSQLInstanceStore(db *sql.DB) *PostgreSQLInstanceStore {
	return &PostgreSQLInstanceStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLInstanceStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS plugin_instances (
			instance_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			family TEXT NOT NULL,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			parameters JSONB NOT NULL,
			descriptor_version TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (owner_id, family, instance_id)
		);
		CREATE INDEX IF NOT EXISTS plugin_instances_owner_family_idx
			ON plugin_instances (owner_id, family, created_at);
		CREATE INDEX IF NOT EXISTS plugin_instances_name_idx
			ON plugin_instances (owner_id, family, name);
	`)

	if err != nil {
		return fmt.Errorf("failed to create plugin_instances table: %w", err)
	}

	return nil
}

// SaveInstance persists a plugin instance
func (s *PostgreSQLInstanceStore) SaveInstance(instance plugins.PluginInstance) error {
	parameters, err := json.Marshal(instance.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO plugin_instances (instance_id, owner_id, family, type, name, parameters, descriptor_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, family, instance_id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			parameters = EXCLUDED.parameters,
			descriptor_version = EXCLUDED.descriptor_version
	`,
		instance.ID,
		instance.OwnerID,
		string(instance.Family),
		instance.Type,
		instance.Name,
		parameters,
		instance.DescriptorVersion,
		instance.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save instance: %w", err)
	}

	return nil
}

// GetInstance retrieves a plugin instance
func (s *PostgreSQLInstanceStore) GetInstance(ownerID string, family plugins.Family, instanceID string) (plugins.PluginInstance, error) {
	row := s.db.QueryRow(`
		SELECT instance_id, owner_id, family, type, name, parameters, descriptor_version, created_at
		FROM plugin_instances
		WHERE owner_id = $1 AND family = $2 AND instance_id = $3
	`, ownerID, string(family), instanceID)

	instance, err := scanInstance(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return plugins.PluginInstance{}, ErrInstanceNotFound
		}
		return plugins.PluginInstance{}, fmt.Errorf("failed to get instance: %w", err)
	}

	return instance, nil
}

// ListInstances returns all instances of a family for an owner in creation order
func (s *PostgreSQLInstanceStore) ListInstances(ownerID string, family plugins.Family) ([]plugins.PluginInstance, error) {
	rows, err := s.db.Query(`
		SELECT instance_id, owner_id, family, type, name, parameters, descriptor_version, created_at
		FROM plugin_instances
		WHERE owner_id = $1 AND family = $2
		ORDER BY created_at, instance_id
	`, ownerID, string(family))

	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []plugins.PluginInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate instances: %w", err)
	}

	return instances, nil
}

// DeleteInstance removes a plugin instance
func (s *PostgreSQLInstanceStore) DeleteInstance(ownerID string, family plugins.Family, instanceID string) error {
	result, err := s.db.Exec(`
		DELETE FROM plugin_instances
		WHERE owner_id = $1 AND family = $2 AND instance_id = $3
	`, ownerID, string(family), instanceID)

	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrInstanceNotFound
	}

	return nil
}

// CountByName returns how many instances of a family carry the given name
func (s *PostgreSQLInstanceStore) CountByName(ownerID string, family plugins.Family, name string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM plugin_instances
		WHERE owner_id = $1 AND family = $2 AND name = $3
	`, ownerID, string(family), name).Scan(&count)

	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}

	return count, nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanInstance
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (plugins.PluginInstance, error) {
	var instance plugins.PluginInstance
	var family string
	var parameters []byte

	err := row.Scan(
		&instance.ID,
		&instance.OwnerID,
		&family,
		&instance.Type,
		&instance.Name,
		&parameters,
		&instance.DescriptorVersion,
		&instance.CreatedAt,
	)
	if err != nil {
		return plugins.PluginInstance{}, err
	}

	instance.Family = plugins.Family(family)
	if err := json.Unmarshal(parameters, &instance.Parameters); err != nil {
		return plugins.PluginInstance{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}

	return instance, nil
}

// PostgreSQLSecretStore implements the SecretStore interface using PostgreSQL
type PostgreSQLSecretStore struct {
	db *sql.DB
}

// NewPostgreSQLSecretStore creates a new PostgreSQL secret store
func NewPostgreSQLSecretStore(db *sql.DB) *PostgreSQLSecretStore {
	return &PostgreSQLSecretStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLSecretStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS secrets (
			account_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (account_id, key)
		);
	`)

	if err != nil {
		return fmt.Errorf("failed to create secrets table: %w", err)
	}

	return nil
}

// SaveSecret persists a secret
func (s *PostgreSQLSecretStore) SaveSecret(secret auth.Secret) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (account_id, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`,
		secret.AccountID,
		secret.Key,
		secret.Value,
		secret.CreatedAt,
		secret.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save secret: %w", err)
	}

	return nil
}

// GetSecret retrieves a secret
func (s *PostgreSQLSecretStore) GetSecret(accountID, key string) (auth.Secret, error) {
	var secret auth.Secret

	err := s.db.QueryRow(
		"SELECT account_id, key, value, created_at, updated_at FROM secrets WHERE account_id = $1 AND key = $2",
		accountID, key,
	).Scan(
		&secret.AccountID,
		&secret.Key,
		&secret.Value,
		&secret.CreatedAt,
		&secret.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Secret{}, ErrSecretNotFound
		}
		return auth.Secret{}, fmt.Errorf("failed to get secret: %w", err)
	}

	return secret, nil
}

// ListSecrets returns all secrets for an account
func (s *PostgreSQLSecretStore) ListSecrets(accountID string) ([]auth.Secret, error) {
	rows, err := s.db.Query(
		"SELECT account_id, key, value, created_at, updated_at FROM secrets WHERE account_id = $1 ORDER BY key",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []auth.Secret
	for rows.Next() {
		var secret auth.Secret
		err := rows.Scan(
			&secret.AccountID,
			&secret.Key,
			&secret.Value,
			&secret.CreatedAt,
			&secret.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		secrets = append(secrets, secret)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate secrets: %w", err)
	}

	return secrets, nil
}

// DeleteSecret removes a secret
func (s *PostgreSQLSecretStore) DeleteSecret(accountID, key string) error {
	result, err := s.db.Exec(
		"DELETE FROM secrets WHERE account_id = $1 AND key = $2",
		accountID, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrSecretNotFound
	}

	return nil
}

// PostgreSQLAccountStore implements the AccountStore interface using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// NewPostgreSQLAccountStore creates a new PostgreSQL account store
func NewPostgreSQLAccountStore(db *sql.DB) *PostgreSQLAccountStore {
	return &PostgreSQLAccountStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLAccountStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			api_token TEXT UNIQUE NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS accounts_username_idx ON accounts (username);
		CREATE INDEX IF NOT EXISTS accounts_api_token_idx ON accounts (api_token);
	`)

	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	return nil
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account auth.Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, username, password_hash, api_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			password_hash = EXCLUDED.password_hash,
			api_token = EXCLUDED.api_token,
			updated_at = EXCLUDED.updated_at
	`,
		account.ID,
		account.Username,
		account.PasswordHash,
		account.APIToken,
		account.CreatedAt,
		account.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account
func (s *PostgreSQLAccountStore) GetAccount(accountID string) (auth.Account, error) {
	var account auth.Account

	err := s.db.QueryRow(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE id = $1",
		accountID,
	).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.APIToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	var account auth.Account

	err := s.db.QueryRow(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE username = $1",
		username,
	).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.APIToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	var account auth.Account

	err := s.db.QueryRow(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts WHERE api_token = $1",
		token,
	).Scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.APIToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account by token: %w", err)
	}

	return account, nil
}

// ListAccounts returns all accounts
func (s *PostgreSQLAccountStore) ListAccounts() ([]auth.Account, error) {
	rows, err := s.db.Query(
		"SELECT id, username, password_hash, api_token, created_at, updated_at FROM accounts ORDER BY username",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		var account auth.Account
		err := rows.Scan(
			&account.ID,
			&account.Username,
			&account.PasswordHash,
			&account.APIToken,
			&account.CreatedAt,
			&account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(accountID string) error {
	result, err := s.db.Exec("DELETE FROM accounts WHERE id = $1", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}
