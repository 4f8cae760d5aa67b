package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/storage"
)

func newTestVault(t *testing.T) (*SecretVaultService, storage.SecretStore, []byte) {
	t.Helper()

	key, err := GenerateEncryptionKey()
	require.NoError(t, err)

	store := storage.NewMemorySecretStore()
	vault, err := NewSecretVaultService(store, key)
	require.NoError(t, err)

	return vault, store, key
}

func TestSecretVaultService(t *testing.T) {
	t.Run("SetAndGet", func(t *testing.T) {
		vault, _, _ := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "sk-plaintext"))

		value, err := vault.Get("acct-1", "azure_key")
		require.NoError(t, err)
		assert.Equal(t, "sk-plaintext", value)
	})

	t.Run("StoredValueIsEncrypted", func(t *testing.T) {
		vault, store, _ := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "sk-plaintext"))

		raw, err := store.GetSecret("acct-1", "azure_key")
		require.NoError(t, err)
		assert.NotEqual(t, "sk-plaintext", raw.Value)
		assert.NotContains(t, raw.Value, "plaintext")
	})

	t.Run("AccountsIsolated", func(t *testing.T) {
		vault, _, _ := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "sk-plaintext"))

		_, err := vault.Get("acct-2", "azure_key")
		assert.ErrorIs(t, err, storage.ErrSecretNotFound)
	})

	t.Run("ListKeysOnly", func(t *testing.T) {
		vault, _, _ := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "v1"))
		require.NoError(t, vault.Set("acct-1", "hf_token", "v2"))

		keys, err := vault.List("acct-1")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"azure_key", "hf_token"}, keys)

		secrets, err := vault.ListWithMetadata("acct-1")
		require.NoError(t, err)
		for _, secret := range secrets {
			assert.Empty(t, secret.Value)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		vault, _, _ := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "v1"))
		require.NoError(t, vault.Delete("acct-1", "azure_key"))

		_, err := vault.Get("acct-1", "azure_key")
		assert.ErrorIs(t, err, storage.ErrSecretNotFound)
	})

	t.Run("RotateEncryptionKey", func(t *testing.T) {
		vault, _, oldKey := newTestVault(t)

		require.NoError(t, vault.Set("acct-1", "azure_key", "sk-plaintext"))

		newKey, err := GenerateEncryptionKey()
		require.NoError(t, err)

		require.NoError(t, vault.RotateEncryptionKey(oldKey, newKey, []string{"acct-1"}))

		// Secret remains readable through the rotated vault
		value, err := vault.Get("acct-1", "azure_key")
		require.NoError(t, err)
		assert.Equal(t, "sk-plaintext", value)
	})

	t.Run("ShortKeyRejected", func(t *testing.T) {
		_, err := NewSecretVaultService(storage.NewMemorySecretStore(), []byte("too short"))
		assert.Error(t, err)
	})

	t.Run("KeyHexRoundTrip", func(t *testing.T) {
		key, err := GenerateEncryptionKey()
		require.NoError(t, err)

		decoded, err := EncryptionKeyFromHex(EncryptionKeyToHex(key))
		require.NoError(t, err)
		assert.Equal(t, key, decoded)
	})
}
