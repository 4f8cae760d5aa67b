package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/storage"
)

// SecretVaultService implements auth.SecretVault with AES-256-GCM. Plugin
// parameters of the secret kind store a key into this vault; the harness
// resolves the credential at execution time, so plaintext never reaches the
// instance store or the API.
type SecretVaultService struct {
	store  storage.SecretStore
	cipher *vaultCipher
}

// NewSecretVaultService creates a vault over the given store. The key must
// be 32 bytes.
func NewSecretVaultService(store storage.SecretStore, encryptionKey []byte) (*SecretVaultService, error) {
	c, err := newVaultCipher(encryptionKey)
	if err != nil {
		return nil, err
	}

	return &SecretVaultService{store: store, cipher: c}, nil
}

// scope validates the account and key arguments shared by every operation.
func scope(accountID, key string) error {
	if accountID == "" {
		return errors.New("account ID is required")
	}
	if key == "" {
		return errors.New("secret key is required")
	}
	return nil
}

// Set stores an encrypted secret for an account. Overwriting keeps the
// original creation time.
func (s *SecretVaultService) Set(accountID string, key string, value string) error {
	if err := scope(accountID, key); err != nil {
		return err
	}

	sealed, err := s.cipher.seal(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	now := time.Now()
	secret := auth.Secret{
		AccountID: accountID,
		Key:       key,
		Value:     sealed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := s.store.GetSecret(accountID, key); err == nil {
		secret.CreatedAt = existing.CreatedAt
	}

	return s.store.SaveSecret(secret)
}

// Get retrieves and decrypts a secret for an account. A missing secret
// surfaces the store's storage.ErrSecretNotFound.
func (s *SecretVaultService) Get(accountID string, key string) (string, error) {
	if err := scope(accountID, key); err != nil {
		return "", err
	}

	secret, err := s.store.GetSecret(accountID, key)
	if err != nil {
		return "", err
	}

	value, err := s.cipher.open(secret.Value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return value, nil
}

// Delete removes a secret.
func (s *SecretVaultService) Delete(accountID string, key string) error {
	if err := scope(accountID, key); err != nil {
		return err
	}

	return s.store.DeleteSecret(accountID, key)
}

// List returns the secret keys of an account, never the values.
func (s *SecretVaultService) List(accountID string) ([]string, error) {
	if accountID == "" {
		return nil, errors.New("account ID is required")
	}

	secrets, err := s.store.ListSecrets(accountID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, len(secrets))
	for i, secret := range secrets {
		keys[i] = secret.Key
	}

	return keys, nil
}

// ListWithMetadata returns an account's secrets with their timestamps. The
// values are blanked before the records leave the vault.
func (s *SecretVaultService) ListWithMetadata(accountID string) ([]auth.Secret, error) {
	if accountID == "" {
		return nil, errors.New("account ID is required")
	}

	secrets, err := s.store.ListSecrets(accountID)
	if err != nil {
		return nil, err
	}

	for i := range secrets {
		secrets[i].Value = ""
	}

	return secrets, nil
}

// RotateEncryptionKey re-encrypts the secrets of the given accounts under a
// new key and switches the vault over to it.
func (s *SecretVaultService) RotateEncryptionKey(oldKey, newKey []byte, accountIDs []string) error {
	oldCipher, err := newVaultCipher(oldKey)
	if err != nil {
		return fmt.Errorf("old key: %w", err)
	}

	newCipher, err := newVaultCipher(newKey)
	if err != nil {
		return fmt.Errorf("new key: %w", err)
	}

	for _, accountID := range accountIDs {
		if err := s.rotateAccount(accountID, oldCipher, newCipher); err != nil {
			return fmt.Errorf("failed to rotate secrets for account %s: %w", accountID, err)
		}
	}

	s.cipher = newCipher

	return nil
}

func (s *SecretVaultService) rotateAccount(accountID string, oldCipher, newCipher *vaultCipher) error {
	secrets, err := s.store.ListSecrets(accountID)
	if err != nil {
		return fmt.Errorf("failed to list secrets: %w", err)
	}

	for _, secret := range secrets {
		plaintext, err := oldCipher.open(secret.Value)
		if err != nil {
			return fmt.Errorf("failed to decrypt secret %s: %w", secret.Key, err)
		}

		secret.Value, err = newCipher.seal(plaintext)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt secret %s: %w", secret.Key, err)
		}
		secret.UpdatedAt = time.Now()

		if err := s.store.SaveSecret(secret); err != nil {
			return fmt.Errorf("failed to save re-encrypted secret %s: %w", secret.Key, err)
		}
	}

	return nil
}

// vaultCipher seals and opens secret values. Stored values are
// base64(nonce || ciphertext).
type vaultCipher struct {
	aead cipher.AEAD
}

func newVaultCipher(key []byte) (*vaultCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes (256 bits)")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &vaultCipher{aead: aead}, nil
}

func (c *vaultCipher) seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *vaultCipher) open(encoded string) (string, error) {
	sealed, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := c.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}

// GenerateEncryptionKey returns a fresh random 256-bit key.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// EncryptionKeyFromHex decodes the hex key format used in configuration.
func EncryptionKeyFromHex(hexKey string) ([]byte, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes (256 bits), got %d", len(key))
	}
	return key, nil
}

// EncryptionKeyToHex encodes a key for storage in configuration.
func EncryptionKeyToHex(key []byte) string {
	return hex.EncodeToString(key)
}
