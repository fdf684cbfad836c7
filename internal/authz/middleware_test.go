package authz

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/statusify/statusify/internal/session"
	"github.com/stretchr/testify/assert"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRequireUser_AllowsIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/incidents", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: 1, Email: "a@example.com", Via: "session"}))
	rec := httptest.NewRecorder()

	RequireUserFunc(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireUser_RedirectsAnonymousBrowser(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/incidents", nil)
	rec := httptest.NewRecorder()

	RequireUserFunc(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, SignInPath, rec.Header().Get("Location"))
	assert.Equal(t, "failed", rec.Header().Get("status"))
	assert.Equal(t, UnauthenticatedMessage, session.FlashFromResponse(rec.Result()).Alert)
}

func TestRequireUser_RejectsBadToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/incidents", nil)
	req.Header.Set("Authorization", "Token nope")
	rec := httptest.NewRecorder()

	RequireUserFunc(okHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdentityFromContext_ZeroIDIsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{}))
	assert.False(t, SignedIn(req))
}
