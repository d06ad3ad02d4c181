package storage

import (
	"context"
	"time"
)

// Storage defines the low-level database operations required by the
// higher-level ProfileStore.
type Storage interface {
	GetProfileData(ctx context.Context, userID string) ([]byte, []byte, error)
	StoreProfileData(ctx context.Context, userID string, data, nonce []byte) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, email string) (*User, error)
}

// User represents a marketplace user account.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
