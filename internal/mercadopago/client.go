// Package mercadopago implements the server-to-server half of the Mercado
// Pago OAuth flow: exchanging an authorization code for account credentials
// at the token endpoint.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a token endpoint response is read.
const maxResponseBytes = 1 << 20

// ErrMisconfigured indicates the client credentials required for the token
// exchange are missing.
var ErrMisconfigured = errors.New("mercado pago client credentials are not configured")

// TokenResponse is the provider's answer to a successful code exchange. It
// is returned verbatim and never mutated after receipt.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	PublicKey    string `json:"public_key"`
	UserID       int64  `json:"user_id"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

// ExchangeError carries the raw provider response for diagnostics when a
// token exchange fails.
type ExchangeError struct {
	StatusCode int
	Body       string
	cause      error
}

func (e *ExchangeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("token exchange failed: %v", e.cause)
	}
	return fmt.Sprintf("token exchange failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *ExchangeError) Unwrap() error { return e.cause }

// Client talks to the Mercado Pago token endpoint. The client secret lives
// only here, server-side.
type Client struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
}

// NewClient creates a token exchange client for the given endpoint and
// application credentials.
func NewClient(tokenURL, clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Exchange swaps an authorization code for account credentials. The
// redirectURI must byte-match the one sent in the authorization request.
// codeVerifier is included when known so the provider can enforce PKCE; an
// empty verifier is simply omitted.
//
// The caller must not retry a failed exchange: authorization codes are
// single-use and a reissue requires a fresh user action.
func (c *Client) Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return nil, ErrMisconfigured
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body)), cause: err}
	}

	return &token, nil
}
