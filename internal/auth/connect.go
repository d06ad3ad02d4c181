package auth

import (
	"fmt"
	"log"

	"golang.org/x/oauth2"
)

const (
	// codeVerifierLength is the verifier size used for every attempt.
	codeVerifierLength = 64

	// stateLength is how many leading verifier characters form the state
	// parameter. Each character carries ~6 bits of entropy, so 48 chars is
	// far beyond guessable.
	stateLength = 48
)

// ConnectManager builds Mercado Pago authorization URLs with PKCE and keeps
// the state-to-verifier mapping for the pending attempt. The verifier is
// stored before the URL is handed out, so by the time the popup navigates
// the later redirect can always be correlated back.
type ConnectManager struct {
	config    *oauth2.Config
	pkceStore PKCEStore
	logger    *log.Logger
}

// NewConnectManager creates a new ConnectManager. A missing client ID is
// tolerated so the rest of the flow stays exercisable, but it is reported
// loudly at build time.
func NewConnectManager(clientID, authEndpoint, redirectURI string, pkceStore PKCEStore, logger *log.Logger) *ConnectManager {
	return &ConnectManager{
		config: &oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL: authEndpoint,
			},
		},
		pkceStore: pkceStore,
		logger:    logger,
	}
}

// RedirectURI returns the callback redirect URI used in authorization URLs.
// The token exchange must present the identical value.
func (m *ConnectManager) RedirectURI() string {
	return m.config.RedirectURL
}

// BuildAuthorizationURL generates a PKCE pair, derives the state parameter
// from the verifier, caches the verifier under that state, and returns the
// full provider authorization URL along with the state.
func (m *ConnectManager) BuildAuthorizationURL() (string, string, error) {
	if m.config.ClientID == "" {
		// Degraded request: the URL is still produced so misconfiguration
		// shows up as a provider-side rejection, not a silent no-op.
		m.logger.Printf("WARNING: Mercado Pago client ID is not configured; authorization will be rejected by the provider")
	}

	verifier, err := m.pkceStore.GenerateCodeVerifier(codeVerifierLength)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code verifier: %w", err)
	}

	challenge, err := m.pkceStore.GenerateCodeChallenge(verifier)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate code challenge: %w", err)
	}

	// A short prefix of the verifier doubles as the state parameter; it is
	// unique per attempt and unguessable on its own.
	state := verifier[:stateLength]

	// The verifier must be retrievable before the popup navigates.
	if err := m.pkceStore.StoreVerifier(state, verifier); err != nil {
		return "", "", fmt.Errorf("failed to store verifier: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("platform_id", "mp"),
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}

	return m.config.AuthCodeURL(state, opts...), state, nil
}
