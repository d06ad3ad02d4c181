package app

import (
	"context"
	"net/http"
)

// contextKey is a custom type to use as a key for context values.
type contextKey string

// userContextKey is the key for storing the user ID in the request context.
const userContextKey = contextKey("userID")

// requireAuth ensures a user is authenticated before serving a page,
// redirecting to the login page otherwise.
func (a *Application) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.authenticate(w, r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

// requireAuthAPI ensures a user is authenticated before serving an API
// request, responding with a JSON 401 otherwise. The OAuth callback runs in
// a popup sharing the opener's cookies, so it goes through here too.
func (a *Application) requireAuthAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.authenticate(w, r)
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "Authentication required.")
			return
		}
		next.ServeHTTP(w, withUserID(r, userID))
	})
}

// authenticate resolves the session cookie to a user ID, clearing the
// cookie when the session is unknown or expired.
func (a *Application) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	cookie, err := r.Cookie("session_id")
	if err != nil {
		return "", false
	}

	userID, err := a.Sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		a.Logger.Printf("middleware: failed to get session %q: %v", cookie.Value, err)
		http.SetCookie(w, &http.Cookie{
			Name:   "session_id",
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		return "", false
	}
	return userID, true
}

// withUserID adds the user ID to the request's context.
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), userContextKey, userID)
	return r.WithContext(ctx)
}

// getUserIDFromContext retrieves the user ID from the request's context.
func getUserIDFromContext(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value(userContextKey).(string)
	return userID, ok
}
