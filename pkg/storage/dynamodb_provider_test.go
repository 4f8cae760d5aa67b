package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/auth"
	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

func newMockDynamoProvider(t *testing.T) *DynamoDBProvider {
	t.Helper()

	provider := NewDynamoDBProviderWithClient(NewMockDynamoDBAPI(), "test_")
	require.NoError(t, provider.Initialize())
	return provider
}

func TestDynamoDBProviderInitialize(t *testing.T) {
	client := NewMockDynamoDBAPI()
	provider := NewDynamoDBProviderWithClient(client, "test_")

	require.NoError(t, provider.Initialize())

	// Initialize must be idempotent once tables exist
	require.NoError(t, provider.Initialize())

	assert.NotNil(t, provider.GetInstanceStore())
	assert.NotNil(t, provider.GetSecretStore())
	assert.NotNil(t, provider.GetAccountStore())
}

func TestDynamoDBInstanceStore(t *testing.T) {
	provider := newMockDynamoProvider(t)
	store := provider.GetInstanceStore()

	base := time.Now()
	first := testInstance("owner-1", plugins.FamilyDetector, "inst-b", "prod toxicity", base)
	second := testInstance("owner-1", plugins.FamilyDetector, "inst-a", "backup toxicity", base.Add(time.Second))

	require.NoError(t, store.SaveInstance(first))
	require.NoError(t, store.SaveInstance(second))

	t.Run("GetRoundTrip", func(t *testing.T) {
		got, err := store.GetInstance("owner-1", plugins.FamilyDetector, "inst-b")
		require.NoError(t, err)
		assert.Equal(t, "prod toxicity", got.Name)
		assert.Equal(t, "toxicity", got.Type)
		assert.Equal(t, 0.5, got.Parameters["threshold"])
		assert.Equal(t, "1", got.DescriptorVersion)
		assert.WithinDuration(t, first.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.GetInstance("owner-1", plugins.FamilyDetector, "nope")
		assert.ErrorIs(t, err, ErrInstanceNotFound)
	})

	t.Run("ListCreationOrder", func(t *testing.T) {
		list, err := store.ListInstances("owner-1", plugins.FamilyDetector)
		require.NoError(t, err)
		require.Len(t, list, 2)
		// Creation order, not sort-key order
		assert.Equal(t, "inst-b", list[0].ID)
		assert.Equal(t, "inst-a", list[1].ID)
	})

	t.Run("FamilyPartition", func(t *testing.T) {
		scorer := testInstance("owner-1", plugins.FamilyScorer, "inst-b", "prod toxicity", base)
		require.NoError(t, store.SaveInstance(scorer))

		detectors, err := store.ListInstances("owner-1", plugins.FamilyDetector)
		require.NoError(t, err)
		assert.Len(t, detectors, 2)

		scorers, err := store.ListInstances("owner-1", plugins.FamilyScorer)
		require.NoError(t, err)
		assert.Len(t, scorers, 1)
	})

	t.Run("CountByName", func(t *testing.T) {
		count, err := store.CountByName("owner-1", plugins.FamilyDetector, "prod toxicity")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		count, err = store.CountByName("owner-1", plugins.FamilyDetector, "no such name")
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.DeleteInstance("owner-1", plugins.FamilyDetector, "inst-a"))
		assert.ErrorIs(t, store.DeleteInstance("owner-1", plugins.FamilyDetector, "inst-a"), ErrInstanceNotFound)
	})
}

func TestDynamoDBSecretStore(t *testing.T) {
	provider := newMockDynamoProvider(t)
	store := provider.GetSecretStore()
	now := time.Now()

	require.NoError(t, store.SaveSecret(auth.Secret{
		AccountID: "acct-1", Key: "azure_key", Value: "ciphertext", CreatedAt: now, UpdatedAt: now,
	}))

	secret, err := store.GetSecret("acct-1", "azure_key")
	require.NoError(t, err)
	assert.Equal(t, "ciphertext", secret.Value)

	_, err = store.GetSecret("acct-1", "missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	secrets, err := store.ListSecrets("acct-1")
	require.NoError(t, err)
	assert.Len(t, secrets, 1)

	require.NoError(t, store.DeleteSecret("acct-1", "azure_key"))
	assert.ErrorIs(t, store.DeleteSecret("acct-1", "azure_key"), ErrSecretNotFound)
}

func TestDynamoDBAccountStore(t *testing.T) {
	provider := newMockDynamoProvider(t)
	store := provider.GetAccountStore()
	now := time.Now()

	require.NoError(t, store.SaveAccount(auth.Account{
		ID: "acct-1", Username: "red-team", PasswordHash: "hash", APIToken: "token-1",
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.SaveAccount(auth.Account{
		ID: "acct-2", Username: "blue-team", PasswordHash: "hash2", APIToken: "token-2",
		CreatedAt: now, UpdatedAt: now,
	}))

	got, err := store.GetAccount("acct-1")
	require.NoError(t, err)
	assert.Equal(t, "red-team", got.Username)

	got, err = store.GetAccountByUsername("blue-team")
	require.NoError(t, err)
	assert.Equal(t, "acct-2", got.ID)

	got, err = store.GetAccountByToken("token-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", got.ID)

	_, err = store.GetAccountByToken("token-9")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "blue-team", accounts[0].Username)

	require.NoError(t, store.DeleteAccount("acct-2"))
	assert.ErrorIs(t, store.DeleteAccount("acct-2"), ErrAccountNotFound)
}
