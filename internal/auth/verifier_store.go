package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// defaultVerifierTTL is how long a pending authorization attempt may
	// sit between building the authorization URL and the provider redirect.
	defaultVerifierTTL = 10 * time.Minute

	// maxPendingVerifiers caps the number of in-flight authorization
	// attempts so an abandoned-popup storm cannot grow the map unbounded.
	maxPendingVerifiers = 1000
)

type verifierEntry struct {
	verifier  string
	expiresAt time.Time
}

// InMemoryPKCEStore provides an in-memory, TTL-expiring implementation of
// the PKCEStore interface. Entries are single-use: GetVerifier removes the
// entry it returns.
type InMemoryPKCEStore struct {
	mu        sync.Mutex
	verifiers map[string]verifierEntry
	generator *PKCEGenerator
	ttl       time.Duration
	now       func() time.Time
}

// NewInMemoryPKCEStore creates a new InMemoryPKCEStore.
func NewInMemoryPKCEStore() *InMemoryPKCEStore {
	return &InMemoryPKCEStore{
		verifiers: make(map[string]verifierEntry),
		generator: NewPKCEGenerator(),
		ttl:       defaultVerifierTTL,
		now:       time.Now,
	}
}

// StoreVerifier stores the code verifier for a given state.
func (s *InMemoryPKCEStore) StoreVerifier(state, verifier string) error {
	if state == "" || verifier == "" {
		return fmt.Errorf("state and verifier cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.verifiers) >= maxPendingVerifiers {
		s.evictExpiredLocked()
		if len(s.verifiers) >= maxPendingVerifiers {
			return fmt.Errorf("too many pending authorization attempts")
		}
	}

	s.verifiers[state] = verifierEntry{
		verifier:  verifier,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

// GetVerifier retrieves and deletes the code verifier for a given state.
func (s *InMemoryPKCEStore) GetVerifier(state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.verifiers[state]
	if !ok {
		return "", fmt.Errorf("no verifier found for state %q", state)
	}
	delete(s.verifiers, state)

	if s.now().After(entry.expiresAt) {
		return "", fmt.Errorf("verifier for state %q has expired", state)
	}
	return entry.verifier, nil
}

// GenerateCodeVerifier creates a new code verifier.
func (s *InMemoryPKCEStore) GenerateCodeVerifier(length int) (string, error) {
	return s.generator.GenerateCodeVerifier(length)
}

// GenerateCodeChallenge creates a code challenge from a verifier.
func (s *InMemoryPKCEStore) GenerateCodeChallenge(verifier string) (string, error) {
	return s.generator.GenerateCodeChallenge(verifier)
}

// ValidateChallenge validates a code challenge against a verifier.
func (s *InMemoryPKCEStore) ValidateChallenge(challenge, verifier string) bool {
	return s.generator.ValidateChallenge(challenge, verifier)
}

// StartCleanup runs a background loop that drops expired entries until the
// context is cancelled.
func (s *InMemoryPKCEStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				s.evictExpiredLocked()
				s.mu.Unlock()
			}
		}
	}()
}

func (s *InMemoryPKCEStore) evictExpiredLocked() {
	now := s.now()
	for state, entry := range s.verifiers {
		if now.After(entry.expiresAt) {
			delete(s.verifiers, state)
		}
	}
}
