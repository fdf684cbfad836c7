package authz

import (
	"context"
	"net/http"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID int64
	Email  string
	Admin  bool
	// Via records how the identity was established: "session" or "token".
	Via string
}

// WithIdentity stores the identity on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}

func IdentityFromRequest(r *http.Request) (Identity, bool) {
	return IdentityFromContext(r.Context())
}

// SignedIn reports whether the request carries an identity.
func SignedIn(r *http.Request) bool {
	_, ok := IdentityFromRequest(r)
	return ok
}
