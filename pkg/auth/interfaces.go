// Package auth defines the account and secret contracts the rest of the
// system authenticates against.
package auth

import (
	"time"
)

// AccountService manages accounts and credential checks. The API layer and
// the auth middleware both speak to it.
type AccountService interface {
	// Authenticate verifies a username and password and returns the
	// account ID
	Authenticate(username, password string) (string, error)

	// ValidateToken verifies a static API token and returns the account
	// ID
	ValidateToken(token string) (string, error)

	// CreateAccount registers a new account and returns its ID
	CreateAccount(username, password string) (string, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error

	// GetAccount retrieves account information
	GetAccount(accountID string) (Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]Account, error)
}

// Account represents an owner of plugin configurations. Every stored
// instance, secret and editing session is scoped to exactly one account.
type Account struct {
	// ID of the account
	ID string `json:"id"`

	// Username for the account
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the password, never serialized
	PasswordHash string `json:"-"`

	// APIToken is the static bearer token, never serialized
	APIToken string `json:"-"`

	// CreatedAt is when the account was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// SecretVault manages per-account secrets. Plugin parameters of the secret
// kind store a vault key; the harness resolves the real credential through
// this interface at execution time.
type SecretVault interface {
	// Set stores an encrypted secret for an account
	Set(accountID string, key string, value string) error

	// Get retrieves and decrypts a secret for an account
	Get(accountID string, key string) (string, error)

	// Delete removes a secret
	Delete(accountID string, key string) error

	// List returns the secret keys of an account, never the values
	List(accountID string) ([]string, error)

	// RotateEncryptionKey re-encrypts the secrets of the given accounts
	// under a new key
	RotateEncryptionKey(oldKey, newKey []byte, accountIDs []string) error
}

// Secret is one stored credential. The value field holds ciphertext; only
// the vault ever sees plaintext.
type Secret struct {
	// AccountID of the owning account
	AccountID string `json:"-"`

	// Key is the name the secret is referenced by
	Key string `json:"key"`

	// Value is the encrypted secret, never serialized
	Value string `json:"-"`

	// CreatedAt is when the secret was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the secret was last updated
	UpdatedAt time.Time `json:"updated_at"`
}
