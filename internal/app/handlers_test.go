package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"mpconnect-go/internal/auth"
	"mpconnect-go/internal/mercadopago"
	"mpconnect-go/internal/profile"
	"mpconnect-go/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProfileStore is an in-memory profile.Store with switchable failures.
type fakeProfileStore struct {
	mu        sync.Mutex
	data      map[string]profile.ProtectedData
	failRead  bool
	failWrite bool
	writes    int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{data: make(map[string]profile.ProtectedData)}
}

func (f *fakeProfileStore) GetProtectedData(ctx context.Context, userID string) (profile.ProtectedData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return nil, assert.AnError
	}
	if d, ok := f.data[userID]; ok {
		return d, nil
	}
	return profile.ProtectedData{}, nil
}

func (f *fakeProfileStore) UpdateProtectedData(ctx context.Context, userID string, data profile.ProtectedData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return assert.AnError
	}
	f.writes++
	f.data[userID] = data
	return nil
}

// fakeExchanger records exchange calls and returns a canned response.
type fakeExchanger struct {
	mu           sync.Mutex
	calls        int
	lastCode     string
	lastRedirect string
	lastVerifier string
	token        *mercadopago.TokenResponse
	err          error
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, redirectURI, codeVerifier string) (*mercadopago.TokenResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastCode = code
	f.lastRedirect = redirectURI
	f.lastVerifier = codeVerifier
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

var sampleToken = &mercadopago.TokenResponse{
	AccessToken:  "A",
	RefreshToken: "R",
	PublicKey:    "P",
	UserID:       1,
	ExpiresIn:    3600,
	Scope:        "read",
}

type testApp struct {
	*Application
	profiles  *fakeProfileStore
	exchanger *fakeExchanger
	pkce      *auth.InMemoryPKCEStore
	cookie    *http.Cookie
	userID    string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := log.New(testWriter{t}, "", 0)
	profiles := newFakeProfileStore()
	exchanger := &fakeExchanger{token: sampleToken}
	sessions := session.NewInMemoryStore()
	pkce := auth.NewInMemoryPKCEStore()
	connect := auth.NewConnectManager(
		"app-123",
		"https://auth.mercadopago.com/authorization",
		"https://marketplace.example.com/api/mp/oauth/callback",
		pkce,
		logger,
	)

	a := &Application{
		Logger:    logger,
		Profiles:  profiles,
		Sessions:  sessions,
		PKCE:      pkce,
		Connect:   connect,
		Exchanger: exchanger,
	}

	userID := "user-1"
	sessionID, err := sessions.Create(context.Background(), userID, time.Hour)
	require.NoError(t, err)

	return &testApp{
		Application: a,
		profiles:    profiles,
		exchanger:   exchanger,
		pkce:        pkce,
		cookie:      &http.Cookie{Name: "session_id", Value: sessionID},
		userID:      userID,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (a *testApp) get(t *testing.T, target string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if authed {
		req.AddCookie(a.cookie)
	}
	rr := httptest.NewRecorder()
	a.routes().ServeHTTP(rr, req)
	return rr
}

func TestCallback_MissingCode(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/oauth/callback?state=whatever", true)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error": "Missing \"code\" query parameter."}`, rr.Body.String())

	// No side effects: no exchange attempted, no profile mutation.
	assert.Equal(t, 0, a.exchanger.calls)
	assert.Equal(t, 0, a.profiles.writes)
}

func TestCallback_Unauthenticated(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/oauth/callback?code=abc", false)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, a.exchanger.calls)
}

func TestCallback_Success(t *testing.T) {
	a := newTestApp(t)
	a.profiles.data[a.userID] = profile.ProtectedData{"phoneNumber": "+54 11 5555-0000"}

	rr := a.get(t, "/api/mp/oauth/callback?code=auth-code&state=the-state", true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")

	// The success page notifies the opener with the original state and
	// closes itself.
	body := rr.Body.String()
	assert.Contains(t, body, "mp-connect-success")
	assert.Contains(t, body, `state: "the-state"`)
	assert.Contains(t, body, "window.close()")

	// Credentials were merged under provider-prefixed keys; the unrelated
	// pre-existing field survived.
	stored := a.profiles.data[a.userID]
	assert.Equal(t, "A", stored[profile.KeyAccessToken])
	assert.Equal(t, "R", stored[profile.KeyRefreshToken])
	assert.Equal(t, "P", stored[profile.KeyPublicKey])
	assert.Equal(t, int64(1), stored[profile.KeyUserID])
	assert.Equal(t, "read", stored[profile.KeyScope])
	assert.Equal(t, int64(3600), stored[profile.KeyExpiresIn])
	assert.Equal(t, "+54 11 5555-0000", stored["phoneNumber"])

	// The exchange used the deployment's redirect URI.
	assert.Equal(t, "auth-code", a.exchanger.lastCode)
	assert.Equal(t, "https://marketplace.example.com/api/mp/oauth/callback", a.exchanger.lastRedirect)
}

func TestCallback_StateAbsent(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/oauth/callback?code=auth-code", true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "state: null")
}

func TestCallback_ThreadsCachedVerifier(t *testing.T) {
	a := newTestApp(t)

	_, state, err := a.Connect.BuildAuthorizationURL()
	require.NoError(t, err)

	rr := a.get(t, "/api/mp/oauth/callback?code=auth-code&state="+state, true)
	require.Equal(t, http.StatusOK, rr.Code)

	// The verifier cached at build time reached the token exchange.
	require.NotEmpty(t, a.exchanger.lastVerifier)
	assert.Equal(t, state, a.exchanger.lastVerifier[:len(state)])
}

func TestCallback_UnknownStateStillExchanges(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/oauth/callback?code=auth-code&state=foreign-state", true)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, a.exchanger.calls)
	assert.Empty(t, a.exchanger.lastVerifier)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	a := newTestApp(t)
	a.exchanger.err = &mercadopago.ExchangeError{StatusCode: http.StatusBadRequest, Body: `{"error":"invalid_grant"}`}

	rr := a.get(t, "/api/mp/oauth/callback?code=used-code&state=s", true)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	// No profile mutation and no success script after a failed exchange.
	assert.Equal(t, 0, a.profiles.writes)
	assert.NotContains(t, rr.Body.String(), "mp-connect-success")
}

func TestCallback_PersistenceFailure(t *testing.T) {
	a := newTestApp(t)
	a.profiles.failWrite = true

	rr := a.get(t, "/api/mp/oauth/callback?code=auth-code&state=s", true)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, rr.Body.String(), "mp-connect-success")
}

func TestConnectStart(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/connect", true)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

	assert.Contains(t, resp.AuthorizationURL, "code_challenge=")
	assert.Contains(t, resp.AuthorizationURL, "code_challenge_method=S256")
	assert.Contains(t, resp.AuthorizationURL, "state="+resp.State)

	// The verifier for this attempt is already retrievable.
	_, err := a.pkce.GetVerifier(resp.State)
	assert.NoError(t, err)
}

func TestConnectStatus(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/api/mp/status", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"connected": false}`, rr.Body.String())

	a.profiles.data[a.userID] = profile.ProtectedData{profile.KeyAccessToken: "A"}

	rr = a.get(t, "/api/mp/status", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"connected": true}`, rr.Body.String())
}

func TestConnectPage(t *testing.T) {
	a := newTestApp(t)

	rr := a.get(t, "/connect", true)
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "mp-connect-success")
	assert.Contains(t, body, "window.open")
	assert.Contains(t, body, "Connect Mercado Pago")

	a.profiles.data[a.userID] = profile.ProtectedData{profile.KeyAccessToken: "A"}

	rr = a.get(t, "/connect", true)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "account connected")
}
