package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// InMemoryStore is an in-memory implementation of the Store interface.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionData
}

type sessionData struct {
	userID  string
	expires time.Time
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]sessionData),
	}
}

// Create creates a new session for a user and returns the session ID.
func (s *InMemoryStore) Create(ctx context.Context, userID string, duration time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user ID cannot be empty")
	}

	sessionID := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = sessionData{
		userID:  userID,
		expires: time.Now().Add(duration),
	}
	return sessionID, nil
}

// Get retrieves the user ID for a given session ID.
func (s *InMemoryStore) Get(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrNotFound
	}

	// Expired sessions are deleted lazily on the next write path.
	if time.Now().After(data.expires) {
		return "", ErrNotFound
	}
	return data.userID, nil
}

// Delete removes a session.
func (s *InMemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
