package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

func testInstance(ownerID string, family plugins.Family, id, name string, createdAt time.Time) plugins.PluginInstance {
	return plugins.PluginInstance{
		ID:                id,
		OwnerID:           ownerID,
		Family:            family,
		Type:              "toxicity",
		Name:              name,
		Parameters:        map[string]interface{}{"threshold": 0.5},
		DescriptorVersion: "1",
		CreatedAt:         createdAt,
	}
}

func TestMemoryInstanceStore(t *testing.T) {
	t.Run("SaveAndGet", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		instance := testInstance("owner-1", plugins.FamilyDetector, "inst-1", "prod toxicity", time.Now())

		require.NoError(t, store.SaveInstance(instance))

		got, err := store.GetInstance("owner-1", plugins.FamilyDetector, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, instance.Name, got.Name)
		assert.Equal(t, instance.Parameters, got.Parameters)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := NewMemoryInstanceStore()

		_, err := store.GetInstance("owner-1", plugins.FamilyDetector, "nope")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("FamilyNamespacesSeparate", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		instance := testInstance("owner-1", plugins.FamilyDetector, "inst-1", "prod toxicity", time.Now())
		require.NoError(t, store.SaveInstance(instance))

		_, err := store.GetInstance("owner-1", plugins.FamilyScorer, "inst-1")
		assert.ErrorIs(t, err, ErrInstanceNotFound)

		scorers, err := store.ListInstances("owner-1", plugins.FamilyScorer)
		require.NoError(t, err)
		assert.Empty(t, scorers)
	})

	t.Run("OwnersIsolated", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		require.NoError(t, store.SaveInstance(testInstance("owner-1", plugins.FamilyDetector, "inst-1", "mine", time.Now())))

		_, err := store.GetInstance("owner-2", plugins.FamilyDetector, "inst-1")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("ListInCreationOrder", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		base := time.Now()
		for i := 3; i >= 1; i-- {
			instance := testInstance("owner-1", plugins.FamilyDetector,
				fmt.Sprintf("inst-%d", i), fmt.Sprintf("detector %d", i), base.Add(time.Duration(i)*time.Second))
			require.NoError(t, store.SaveInstance(instance))
		}

		list, err := store.ListInstances("owner-1", plugins.FamilyDetector)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "inst-1", list[0].ID)
		assert.Equal(t, "inst-2", list[1].ID)
		assert.Equal(t, "inst-3", list[2].ID)
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		require.NoError(t, store.SaveInstance(testInstance("owner-1", plugins.FamilyDetector, "inst-1", "gone soon", time.Now())))

		require.NoError(t, store.DeleteInstance("owner-1", plugins.FamilyDetector, "inst-1"))

		err := store.DeleteInstance("owner-1", plugins.FamilyDetector, "inst-1")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("CountByName", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		now := time.Now()
		require.NoError(t, store.SaveInstance(testInstance("owner-1", plugins.FamilyDetector, "inst-1", "shared", now)))
		require.NoError(t, store.SaveInstance(testInstance("owner-1", plugins.FamilyDetector, "inst-2", "unique", now)))
		// Same name in the other family must not count
		require.NoError(t, store.SaveInstance(testInstance("owner-1", plugins.FamilyScorer, "inst-3", "shared", now)))

		count, err := store.CountByName("owner-1", plugins.FamilyDetector, "shared")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = store.CountByName("owner-1", plugins.FamilyDetector, "absent")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("StoredParametersNotAliased", func(t *testing.T) {
		store := NewMemoryInstanceStore()
		instance := testInstance("owner-1", plugins.FamilyDetector, "inst-1", "prod toxicity", time.Now())
		require.NoError(t, store.SaveInstance(instance))

		// Mutating the caller's map must not affect the stored record
		instance.Parameters["threshold"] = 0.99

		got, err := store.GetInstance("owner-1", plugins.FamilyDetector, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, 0.5, got.Parameters["threshold"])

		// Mutating a read result must not affect the stored record either
		got.Parameters["threshold"] = 0.01
		again, err := store.GetInstance("owner-1", plugins.FamilyDetector, "inst-1")
		require.NoError(t, err)
		assert.Equal(t, 0.5, again.Parameters["threshold"])
	})
}

func TestMemorySecretStore(t *testing.T) {
	store := NewMemorySecretStore()
	now := time.Now()

	require.NoError(t, store.SaveSecret(auth.Secret{
		AccountID: "acct-1", Key: "azure_key", Value: "encrypted", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.SaveSecret(auth.Secret{
		AccountID: "acct-1", Key: "openai_key", Value: "encrypted2", CreatedAt: now, UpdatedAt: now,
	}))

	secret, err := store.GetSecret("acct-1", "azure_key")
	require.NoError(t, err)
	assert.Equal(t, "encrypted", secret.Value)

	_, err = store.GetSecret("acct-2", "azure_key")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	secrets, err := store.ListSecrets("acct-1")
	require.NoError(t, err)
	require.Len(t, secrets, 2)
	assert.Equal(t, "azure_key", secrets[0].Key)
	assert.Equal(t, "openai_key", secrets[1].Key)

	require.NoError(t, store.DeleteSecret("acct-1", "azure_key"))
	assert.ErrorIs(t, store.DeleteSecret("acct-1", "azure_key"), ErrSecretNotFound)
}

func TestMemoryAccountStore(t *testing.T) {
	store := NewMemoryAccountStore()
	now := time.Now()

	account := auth.Account{
		ID: "acct-1", Username: "red-team", PasswordHash: "hash", APIToken: "token-1",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveAccount(account))

	got, err := store.GetAccount("acct-1")
	require.NoError(t, err)
	assert.Equal(t, "red-team", got.Username)

	got, err = store.GetAccountByUsername("red-team")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)

	got, err = store.GetAccountByToken("token-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)

	_, err = store.GetAccountByUsername("blue-team")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, store.DeleteAccount("acct-1"))
	assert.ErrorIs(t, store.DeleteAccount("acct-1"), ErrAccountNotFound)
}

func TestMemoryProvider(t *testing.T) {
	provider := NewMemoryProvider()

	require.NoError(t, provider.Initialize())
	defer provider.Close()

	assert.NotNil(t, provider.GetInstanceStore())
	assert.NotNil(t, provider.GetSecretStore())
	assert.NotNil(t, provider.GetAccountStore())
}
