package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mpconnect-go/internal/profile"
)

// ProfileStore handles the logic for reading and writing protected profile
// fragments, including encryption and decryption. It implements
// profile.Store.
type ProfileStore struct {
	db            Storage
	encryptionKey []byte
}

// NewProfileStore creates a new ProfileStore.
func NewProfileStore(db Storage, key []byte) *ProfileStore {
	return &ProfileStore{db: db, encryptionKey: key}
}

// GetProtectedData retrieves and decrypts a user's protected profile
// fragment. A user with no stored fragment gets an empty one, so the first
// connect merges into a clean slate instead of failing.
func (ps *ProfileStore) GetProtectedData(ctx context.Context, userID string) (profile.ProtectedData, error) {
	encrypted, nonce, err := ps.db.GetProfileData(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return profile.ProtectedData{}, nil
		}
		return nil, fmt.Errorf("failed to get encrypted profile data: %w", err)
	}

	aesgcm, err := ps.cipher()
	if err != nil {
		return nil, err
	}

	decrypted, err := aesgcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt profile data: %w", err)
	}

	var data profile.ProtectedData
	if err := json.Unmarshal(decrypted, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile data: %w", err)
	}
	return data, nil
}

// UpdateProtectedData encrypts and stores a user's protected profile
// fragment, replacing the previous one. Callers are expected to have merged
// the fragment already; this is the write half of read-modify-write.
func (ps *ProfileStore) UpdateProtectedData(ctx context.Context, userID string, data profile.ProtectedData) error {
	if data == nil {
		return errors.New("protected data cannot be nil")
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal profile data: %w", err)
	}

	aesgcm, err := ps.cipher()
	if err != nil {
		return err
	}

	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	encrypted := aesgcm.Seal(nil, nonce, plaintext, nil)

	if err := ps.db.StoreProfileData(ctx, userID, encrypted, nonce); err != nil {
		return fmt.Errorf("failed to store profile data: %w", err)
	}
	return nil
}

func (ps *ProfileStore) cipher() (cipher.AEAD, error) {
	block, err := aes.NewCipher(ps.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aesgcm, nil
}
