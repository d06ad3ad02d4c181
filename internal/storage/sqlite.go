package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// SQLiteStorage handles all database operations.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLiteStorage instance.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new user and returns it.
func (s *SQLiteStorage) CreateUser(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
	}

	id := uuid.NewString()
	query := `INSERT INTO users (id, email) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, email); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by their ID.
func (s *SQLiteStorage) GetUserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, email, created_at, updated_at FROM users WHERE id = ?", id))
}

// GetUserByEmail retrieves a user by their email address.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
	}
	return s.scanUser(s.db.QueryRowContext(ctx,
		"SELECT id, email, created_at, updated_at FROM users WHERE email = ?", email))
}

func (s *SQLiteStorage) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// StoreProfileData stores or replaces a user's encrypted protected profile
// data and its nonce.
func (s *SQLiteStorage) StoreProfileData(ctx context.Context, userID string, data, nonce []byte) error {
	if userID == "" {
		return fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}
	if len(data) == 0 || len(nonce) == 0 {
		return fmt.Errorf("%w: data and nonce cannot be empty", ErrInvalidInput)
	}

	query := `
		INSERT INTO profiles (user_id, protected_data, nonce, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			protected_data = excluded.protected_data,
			nonce = excluded.nonce,
			updated_at = CURRENT_TIMESTAMP`
	_, err := s.db.ExecContext(ctx, query, userID, data, nonce)
	if err != nil {
		return fmt.Errorf("failed to store profile data: %w", err)
	}
	return nil
}

// GetProfileData retrieves a user's encrypted protected profile data and
// its nonce.
func (s *SQLiteStorage) GetProfileData(ctx context.Context, userID string) ([]byte, []byte, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user ID cannot be empty", ErrInvalidInput)
	}

	var data, nonce []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT protected_data, nonce FROM profiles WHERE user_id = ?",
		userID).Scan(&data, &nonce)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: profile data for user %s", ErrNotFound, userID)
		}
		return nil, nil, fmt.Errorf("failed to get profile data: %w", err)
	}
	return data, nonce, nil
}
