package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// memorySessionStore keeps sessions in process memory.
type memorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{
		sessions: make(map[string]Session),
	}
}

// sessionKey builds the composite map key for a session.
func sessionKey(ownerID, sessionID string) string {
	return ownerID + ":" + sessionID
}

// Save stores a session.
func (s *memorySessionStore) Save(ctx context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionKey(session.OwnerID, session.ID)] = session
	return nil
}

// Get retrieves a session by owner and ID.
func (s *memorySessionStore) Get(ctx context.Context, ownerID, sessionID string) (Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[sessionKey(ownerID, sessionID)]
	s.mu.RUnlock()

	if !exists {
		return Session{}, ErrSessionNotFound
	}
	if time.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, sessionKey(ownerID, sessionID))
		s.mu.Unlock()
		return Session{}, ErrSessionNotFound
	}

	return session, nil
}

// Delete removes a session.
func (s *memorySessionStore) Delete(ctx context.Context, ownerID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey(ownerID, sessionID))
	return nil
}

// DeleteExpired removes every expired session.
func (s *memorySessionStore) DeleteExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	swept := 0
	for key, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, key)
			swept++
		}
	}

	return swept, nil
}

// redisSessionStore keeps sessions in Redis as JSON values with a TTL
// matching the session expiry.
type redisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

// redisSessionKey builds the Redis key for a session.
func redisSessionKey(ownerID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", ownerID, sessionID)
}

// Save stores a session. An already expired session is deleted instead.
func (s *redisSessionStore) Save(ctx context.Context, session Session) error {
	key := redisSessionKey(session.OwnerID, session.ID)

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return s.client.Del(ctx, key).Err()
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// Get retrieves a session by owner and ID.
func (s *redisSessionStore) Get(ctx context.Context, ownerID, sessionID string) (Session, error) {
	data, err := s.client.Get(ctx, redisSessionKey(ownerID, sessionID)).Result()
	if err == redis.Nil {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	// The key may outlive the logical expiry if it was written without a
	// TTL by an older build
	if time.Now().After(session.ExpiresAt) {
		s.client.Del(ctx, redisSessionKey(ownerID, sessionID))
		return Session{}, ErrSessionNotFound
	}

	return session, nil
}

// Delete removes a session.
func (s *redisSessionStore) Delete(ctx context.Context, ownerID, sessionID string) error {
	if err := s.client.Del(ctx, redisSessionKey(ownerID, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions whose logical expiry passed but whose keys
// are still present. Redis TTLs cover the normal case.
func (s *redisSessionStore) DeleteExpired(ctx context.Context) (int, error) {
	keys, err := s.client.Keys(ctx, "session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	swept := 0
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}

		var session Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			continue
		}

		if now.After(session.ExpiresAt) {
			if err := s.client.Del(ctx, key).Err(); err == nil {
				swept++
			}
		}
	}

	return swept, nil
}
