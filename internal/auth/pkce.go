package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrCryptoUnavailable indicates the secure random source failed. The flow
// must stop here; there is no acceptable weaker substitute for generating
// PKCE material.
var ErrCryptoUnavailable = errors.New("secure random source unavailable")

// PKCEStore defines the interface for generating PKCE material and for
// storing and retrieving code verifiers keyed by the OAuth state parameter.
type PKCEStore interface {
	GenerateCodeVerifier(length int) (string, error)
	GenerateCodeChallenge(verifier string) (string, error)
	StoreVerifier(state, verifier string) error
	GetVerifier(state string) (string, error)
	ValidateChallenge(challenge, verifier string) bool
}

// PKCEGenerator produces code verifiers and S256 code challenges.
type PKCEGenerator struct{}

// NewPKCEGenerator creates a new PKCEGenerator.
func NewPKCEGenerator() *PKCEGenerator {
	return &PKCEGenerator{}
}

// GenerateCodeVerifier creates a random code verifier of the given length.
// RFC 7636 requires between 43 and 128 characters. Characters come from the
// base64url alphabet, a subset of the RFC's unreserved set, so every
// position is drawn uniformly.
func (g *PKCEGenerator) GenerateCodeVerifier(length int) (string, error) {
	if length < 43 || length > 128 {
		return "", fmt.Errorf("verifier length must be between 43 and 128, got %d", length)
	}

	// length random bytes encode to ceil(length*4/3) characters, always
	// enough to slice off the requested size.
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCryptoUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}

// GenerateCodeChallenge computes the S256 challenge for a verifier:
// base64url(SHA-256(verifier)) with padding stripped. The same verifier
// always yields the same challenge.
func (g *PKCEGenerator) GenerateCodeChallenge(verifier string) (string, error) {
	if verifier == "" {
		return "", errors.New("verifier cannot be empty")
	}
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// ValidateChallenge reports whether the challenge matches the verifier.
func (g *PKCEGenerator) ValidateChallenge(challenge, verifier string) bool {
	expected, err := g.GenerateCodeChallenge(verifier)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}
