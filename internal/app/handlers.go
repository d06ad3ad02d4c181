package app

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"mpconnect-go/internal/mercadopago"
	"mpconnect-go/internal/metrics"
	"mpconnect-go/internal/profile"
	"mpconnect-go/internal/storage"
)

const sessionDuration = 24 * time.Hour

//
// Session Handlers
//

// handleLogin establishes a session for the user identified by the email
// query parameter, creating the account on first sight. This stands in for
// the marketplace's real identity provider.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeJSONError(w, http.StatusBadRequest, `Missing "email" query parameter.`)
		return
	}

	user, err := a.DB.GetUserByEmail(r.Context(), email)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = a.DB.CreateUser(r.Context(), email)
	}
	if err != nil {
		a.Logger.Printf("Login failed for %s: %v", email, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to log in.")
		return
	}

	sessionID, err := a.Sessions.Create(r.Context(), user.ID, sessionDuration)
	if err != nil {
		a.Logger.Printf("Failed to create session: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to create session.")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Expires:  time.Now().Add(sessionDuration),
		HttpOnly: true,
		Path:     "/",
	})

	http.Redirect(w, r, "/connect", http.StatusSeeOther)
}

// handleLogout clears the user's session.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("session_id")
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	_ = a.Sessions.Delete(r.Context(), cookie.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

//
// Connect Flow Handlers
//

// handleConnectPage serves the popup controller page: it opens the
// authorization URL in a centered popup and reloads itself when the popup
// reports completion.
func (a *Application) handleConnectPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Could not identify user.")
		return
	}

	data, err := a.Profiles.GetProtectedData(r.Context(), userID)
	if err != nil {
		a.Logger.Printf("Failed to read profile for %s: %v", userID, err)
		writeJSONError(w, http.StatusBadGateway, "Failed to read profile.")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "connect.html.tmpl", connectPageData{
		Connected: data.Connected(),
	}); err != nil {
		a.Logger.Printf("Failed to render connect page: %v", err)
	}
}

// handleConnectStart generates the PKCE pair, caches the verifier under the
// derived state, and returns the provider authorization URL. The verifier
// is cached before this responds, so the popup can never navigate ahead of
// the correlation entry.
func (a *Application) handleConnectStart(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := a.Connect.BuildAuthorizationURL()
	if err != nil {
		a.Logger.Printf("Failed to build authorization URL: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to start connect flow.")
		return
	}

	metrics.ConnectAttempts.Inc()

	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_url": authURL,
		"state":             state,
	})
}

// handleConnectStatus reports whether the current user has a Mercado Pago
// account linked.
func (a *Application) handleConnectStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Could not identify user.")
		return
	}

	data, err := a.Profiles.GetProtectedData(r.Context(), userID)
	if err != nil {
		a.Logger.Printf("Failed to read profile for %s: %v", userID, err)
		writeJSONError(w, http.StatusBadGateway, "Failed to read profile.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"connected": data.Connected()})
}

// handleOAuthCallback receives the provider redirect, exchanges the code
// for credentials, merges them into the user's protected profile fragment,
// and renders the page that notifies the opener window and closes itself.
func (a *Application) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		metrics.CallbackErrors.WithLabelValues("missing_code").Inc()
		writeJSONError(w, http.StatusBadRequest, `Missing "code" query parameter.`)
		return
	}

	userID, ok := getUserIDFromContext(r)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "Could not identify user.")
		return
	}

	// The verifier entry is single-use. Absence is tolerated: the exchange
	// proceeds without code_verifier, matching deployments where the
	// provider does not enforce PKCE on the token endpoint.
	verifier, err := a.PKCE.GetVerifier(state)
	if err != nil {
		a.Logger.Printf("No cached verifier for state %q: %v", state, err)
	}

	start := time.Now()
	token, err := a.Exchanger.Exchange(r.Context(), code, a.Connect.RedirectURI(), verifier)
	metrics.ExchangeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TokenExchanges.WithLabelValues("failure").Inc()
		metrics.CallbackErrors.WithLabelValues("exchange_failed").Inc()
		a.Logger.Printf("Token exchange failed: %v", err)

		var exchErr *mercadopago.ExchangeError
		if errors.As(err, &exchErr) && exchErr.StatusCode >= 400 && exchErr.StatusCode < 500 {
			writeJSONError(w, http.StatusBadGateway, "Mercado Pago rejected the authorization code.")
			return
		}
		writeJSONError(w, http.StatusBadGateway, "Token exchange failed.")
		return
	}
	metrics.TokenExchanges.WithLabelValues("success").Inc()

	// Read-modify-write: the new credential keys are merged over the
	// existing fragment so unrelated fields survive. Last-writer-wins is
	// acceptable for a rare, user-initiated action.
	data, err := a.Profiles.GetProtectedData(r.Context(), userID)
	if err != nil {
		metrics.CallbackErrors.WithLabelValues("profile_read_failed").Inc()
		a.Logger.Printf("Failed to read profile for %s: %v", userID, err)
		writeJSONError(w, http.StatusBadGateway, "Failed to read profile.")
		return
	}

	merged := data.Merge(profile.CredentialFields(token))
	if err := a.Profiles.UpdateProtectedData(r.Context(), userID, merged); err != nil {
		metrics.CallbackErrors.WithLabelValues("profile_write_failed").Inc()
		a.Logger.Printf("Failed to persist credentials for %s: %v", userID, err)
		writeJSONError(w, http.StatusBadGateway, "Failed to persist credentials.")
		return
	}

	// The success page posts the original state back to the opener for
	// correlation; an absent state is reported as null. The value is
	// marshaled here so the template emits it verbatim.
	stateValue := []byte("null")
	if state != "" {
		stateValue, _ = json.Marshal(state)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExecuteTemplate(w, "callback_success.html.tmpl", callbackSuccessData{
		State: template.JS(stateValue),
	}); err != nil {
		a.Logger.Printf("Failed to render success page: %v", err)
	}
}

//
// Response helpers
//

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
