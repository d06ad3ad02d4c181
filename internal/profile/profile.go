// Package profile defines the protected profile fragment that carries a
// user's Mercado Pago credentials and the store interface through which
// fragments are read and written.
package profile

import (
	"context"

	"mpconnect-go/internal/mercadopago"
)

// Provider-prefixed keys under which credentials live in protected data.
// The connection badge in the marketplace UI keys off KeyAccessToken.
const (
	KeyAccessToken  = "mpAccessToken"
	KeyRefreshToken = "mpRefreshToken"
	KeyPublicKey    = "mpPublicKey"
	KeyUserID       = "mpUserId"
	KeyScope        = "mpScope"
	KeyExpiresIn    = "mpExpiresIn"
)

// ProtectedData is a user's protected profile fragment. Fields are only
// writable through the trusted server-side path.
type ProtectedData map[string]any

// Merge returns a new fragment containing all of d plus the fields of
// update, with update winning on key collisions. Neither input is mutated;
// unrelated pre-existing keys are always preserved.
func (d ProtectedData) Merge(update ProtectedData) ProtectedData {
	merged := make(ProtectedData, len(d)+len(update))
	for k, v := range d {
		merged[k] = v
	}
	for k, v := range update {
		merged[k] = v
	}
	return merged
}

// Connected reports whether the fragment holds a Mercado Pago access token.
func (d ProtectedData) Connected() bool {
	token, ok := d[KeyAccessToken].(string)
	return ok && token != ""
}

// CredentialFields maps a token response onto the provider-prefixed keys.
func CredentialFields(t *mercadopago.TokenResponse) ProtectedData {
	return ProtectedData{
		KeyAccessToken:  t.AccessToken,
		KeyRefreshToken: t.RefreshToken,
		KeyPublicKey:    t.PublicKey,
		KeyUserID:       t.UserID,
		KeyScope:        t.Scope,
		KeyExpiresIn:    t.ExpiresIn,
	}
}

// Store is the user-profile collaborator: it reads and writes the current
// protected fragment for a user. Implementations decide persistence and
// at-rest protection.
type Store interface {
	GetProtectedData(ctx context.Context, userID string) (ProtectedData, error)
	UpdateProtectedData(ctx context.Context, userID string, data ProtectedData) error
}
