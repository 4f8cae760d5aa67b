// Package services contains the concrete service implementations behind the
// auth interfaces.
package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/storage"
)

// errAuthenticationFailed is deliberately uniform so login responses do not
// reveal whether the username or the password was wrong.
var errAuthenticationFailed = errors.New("authentication failed")

// AccountService manages the accounts that own plugin configurations and
// secrets. It implements auth.AccountService over a storage.AccountStore.
type AccountService struct {
	store storage.AccountStore
}

// NewAccountService creates an account service backed by the given store.
func NewAccountService(store storage.AccountStore) *AccountService {
	return &AccountService{store: store}
}

// Authenticate verifies credentials and returns the account ID.
func (s *AccountService) Authenticate(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.New("username and password are required")
	}

	account, err := s.store.GetAccountByUsername(username)
	if err != nil {
		return "", errAuthenticationFailed
	}

	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return "", errAuthenticationFailed
	}

	return account.ID, nil
}

// ValidateToken verifies a static API token and returns the account ID.
func (s *AccountService) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is required")
	}

	account, err := s.store.GetAccountByToken(token)
	if err != nil {
		return "", errors.New("invalid token")
	}

	return account.ID, nil
}

// CreateAccount registers a new account with a hashed password and a fresh
// API token, and returns the new account ID. Usernames are unique.
func (s *AccountService) CreateAccount(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.New("username and password are required")
	}

	switch _, err := s.store.GetAccountByUsername(username); {
	case err == nil:
		return "", errors.New("username already exists")
	case !errors.Is(err, storage.ErrAccountNotFound):
		return "", fmt.Errorf("failed to check username availability: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	apiToken, err := generateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate API token: %w", err)
	}

	now := time.Now()
	account := auth.Account{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(passwordHash),
		APIToken:     apiToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.SaveAccount(account); err != nil {
		return "", fmt.Errorf("failed to save account: %w", err)
	}

	return account.ID, nil
}

// DeleteAccount removes an account.
func (s *AccountService) DeleteAccount(accountID string) error {
	if accountID == "" {
		return errors.New("account ID is required")
	}

	if err := s.store.DeleteAccount(accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}

// GetAccount retrieves account information.
func (s *AccountService) GetAccount(accountID string) (auth.Account, error) {
	if accountID == "" {
		return auth.Account{}, errors.New("account ID is required")
	}

	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListAccounts returns all accounts.
func (s *AccountService) ListAccounts() ([]auth.Account, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// generateAPIToken returns 32 random bytes hex-encoded.
func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
