package authz

import (
	"net/http"

	"github.com/statusify/statusify/internal/session"
)

const (
	SignInPath = "/users/sign_in"
	// UnauthenticatedMessage is shown when an anonymous visitor reaches a protected page.
	UnauthenticatedMessage = "You need to sign in or sign up before continuing."
)

// RequireUser rejects anonymous requests. Browser sessions are redirected
// to the sign-in page; token clients get 401.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if SignedIn(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("status", "failed")
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "invalid API token", http.StatusUnauthorized)
			return
		}
		session.SetFlash(w, session.Flash{Alert: UnauthenticatedMessage})
		http.Redirect(w, r, SignInPath, http.StatusFound)
	})
}

// RequireUserFunc applies RequireUser inline when registering routes.
func RequireUserFunc(next http.HandlerFunc) http.Handler {
	return RequireUser(next)
}
