package handlers

import (
	"database/sql"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/statusify/statusify/internal/authz"
	"github.com/statusify/statusify/internal/repository"
	"github.com/statusify/statusify/internal/session"
)

const (
	signedInMessage    = "Signed in successfully."
	signedOutMessage   = "Signed out successfully."
	invalidCredentials = "Invalid email or password."
)

type AuthHandler struct {
	users    repository.UserRepository
	sessions *session.Manager
	render   *Renderer
	logger   zerolog.Logger
}

func NewAuthHandler(users repository.UserRepository, sessions *session.Manager, render *Renderer, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		render:   render,
		logger:   logger.With().Str("handler", "auth").Logger(),
	}
}

func (h *AuthHandler) SignInForm(w http.ResponseWriter, r *http.Request) {
	if authz.SignedIn(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	h.render.Render(w, r, http.StatusOK, "sign_in", Page{Title: "Sign in"})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromRequest(r, h.logger)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("user[email]"))
	password := r.PostForm.Get("user[password]")

	user, err := h.users.AuthenticateUser(r.Context(), email, password)
	if err != nil {
		if !errors.Is(err, repository.ErrInvalidCredentials) {
			logger.Error().Err(err).Msg("failed to authenticate user")
		}
		setOutcome(w, false)
		session.SetFlash(w, session.Flash{Alert: invalidCredentials})
		http.Redirect(w, r, authz.SignInPath, http.StatusFound)
		return
	}

	if err := h.users.TrackSignIn(r.Context(), user.ID, remoteIP(r)); err != nil {
		logger.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to record sign-in")
	}
	if err := h.sessions.Issue(w, user.ID, user.Email, user.Admin); err != nil {
		logger.Error().Err(err).Msg("failed to issue session")
		http.Error(w, "Failed to sign in", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("user_id", user.ID).Msg("user signed in")
	setOutcome(w, true)
	session.SetFlash(w, session.Flash{Notice: signedInMessage})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	setOutcome(w, true)
	session.SetFlash(w, session.Flash{Notice: signedOutMessage})
	http.Redirect(w, r, "/", http.StatusFound)
}

// Authenticate resolves the caller from an API token header or the session
// cookie and stores the identity on the request context. Anonymous requests
// pass through untouched.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := apiToken(r); ok {
			user, err := h.users.GetUserByAPIToken(r.Context(), token)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					logger := loggerFromRequest(r, h.logger)
					logger.Error().Err(err).Msg("failed to look up api token")
				}
				next.ServeHTTP(w, r)
				return
			}
			id := authz.Identity{UserID: user.ID, Email: user.Email, Admin: user.Admin, Via: "token"}
			next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
			return
		}

		claims, err := h.sessions.Read(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		id := authz.Identity{UserID: userID, Email: claims.Email, Admin: claims.Admin, Via: "session"}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), id)))
	})
}

// apiToken extracts the token from "Authorization: Token <t>" or "Bearer <t>".
func apiToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	switch strings.ToLower(parts[0]) {
	case "token", "bearer":
		token := strings.TrimSpace(strings.TrimPrefix(parts[1], "token="))
		return token, token != ""
	}
	return "", false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
