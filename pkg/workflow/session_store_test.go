package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauntlethq/gauntlet/pkg/plugins"
)

func testSession(ownerID, sessionID string, expiresIn time.Duration) Session {
	now := time.Now().UTC()
	return Session{
		ID:        sessionID,
		OwnerID:   ownerID,
		Pipeline:  plugins.PipelineGarak,
		Family:    plugins.FamilyDetector,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(expiresIn),
	}
}

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		store := NewMemorySessionStore()

		session := testSession("owner-1", "sess-1", time.Hour)
		require.NoError(t, store.Save(ctx, session))

		got, err := store.Get(ctx, "owner-1", "sess-1")
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, StateIdle, got.State)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := NewMemorySessionStore()

		_, err := store.Get(ctx, "owner-1", "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("OwnerScoped", func(t *testing.T) {
		store := NewMemorySessionStore()
		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Hour)))

		_, err := store.Get(ctx, "owner-2", "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("ExpiredSessionIsGone", func(t *testing.T) {
		store := NewMemorySessionStore()
		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", -time.Minute)))

		_, err := store.Get(ctx, "owner-1", "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewMemorySessionStore()
		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Hour)))

		require.NoError(t, store.Delete(ctx, "owner-1", "sess-1"))

		_, err := store.Get(ctx, "owner-1", "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		store := NewMemorySessionStore()
		require.NoError(t, store.Save(ctx, testSession("owner-1", "fresh", time.Hour)))
		require.NoError(t, store.Save(ctx, testSession("owner-1", "stale-1", -time.Minute)))
		require.NoError(t, store.Save(ctx, testSession("owner-2", "stale-2", -time.Hour)))

		swept, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, swept)

		_, err = store.Get(ctx, "owner-1", "fresh")
		assert.NoError(t, err)
	})
}

// newRedisStore spins up a miniredis instance and a store over it.
func newRedisStore(t *testing.T) (SessionStore, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisSessionStore(client), s
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		store, _ := newRedisStore(t)

		session := testSession("owner-1", "sess-1", time.Hour)
		session.State = StateConfiguringParams
		session.PendingType = "toxicity"
		require.NoError(t, store.Save(ctx, session))

		got, err := store.Get(ctx, "owner-1", "sess-1")
		require.NoError(t, err)
		assert.Equal(t, StateConfiguringParams, got.State)
		assert.Equal(t, "toxicity", got.PendingType)
		assert.Equal(t, plugins.FamilyDetector, got.Family)
	})

	t.Run("GetMissing", func(t *testing.T) {
		store, _ := newRedisStore(t)

		_, err := store.Get(ctx, "owner-1", "missing")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("KeyCarriesTTL", func(t *testing.T) {
		store, mr := newRedisStore(t)

		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Hour)))

		ttl := mr.TTL("session:owner-1:sess-1")
		assert.Greater(t, ttl, 55*time.Minute)
	})

	t.Run("ExpiresWithRedisClock", func(t *testing.T) {
		store, mr := newRedisStore(t)

		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Minute)))

		mr.FastForward(2 * time.Minute)

		_, err := store.Get(ctx, "owner-1", "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("SavingExpiredSessionDeletes", func(t *testing.T) {
		store, mr := newRedisStore(t)

		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Hour)))
		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", -time.Minute)))

		assert.False(t, mr.Exists("session:owner-1:sess-1"))
	})

	t.Run("Delete", func(t *testing.T) {
		store, _ := newRedisStore(t)

		require.NoError(t, store.Save(ctx, testSession("owner-1", "sess-1", time.Hour)))
		require.NoError(t, store.Delete(ctx, "owner-1", "sess-1"))

		_, err := store.Get(ctx, "owner-1", "sess-1")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("DeleteExpiredSweepsLingeringKeys", func(t *testing.T) {
		store, mr := newRedisStore(t)

		require.NoError(t, store.Save(ctx, testSession("owner-1", "fresh", time.Hour)))

		// A key written without a TTL whose logical expiry passed
		stale := testSession("owner-1", "stale", -time.Minute)
		data, err := json.Marshal(stale)
		require.NoError(t, err)
		mr.Set("session:owner-1:stale", string(data))

		swept, err := store.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, swept)

		_, err = store.Get(ctx, "owner-1", "fresh")
		assert.NoError(t, err)
	})
}

func TestSessionReaper(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	require.NoError(t, store.Save(ctx, testSession("owner-1", "fresh", time.Hour)))
	require.NoError(t, store.Save(ctx, testSession("owner-1", "stale", -time.Minute)))

	reaper := NewSessionReaper(store)
	reaper.sweep()

	_, err := store.Get(ctx, "owner-1", "fresh")
	assert.NoError(t, err)

	swept, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, swept, "sweep should have already removed the stale session")
}

func TestSessionReaperSchedule(t *testing.T) {
	reaper := NewSessionReaper(NewMemorySessionStore())

	require.NoError(t, reaper.Start())
	reaper.Stop()
}
