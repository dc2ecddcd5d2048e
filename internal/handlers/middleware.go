package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tasktrack/apiserver/internal/logging"
	"github.com/tasktrack/apiserver/internal/token"
)

type contextKey string

const contextIdentityKey contextKey = "identity"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   string
	Username string
}

// TokenVerifier validates a raw session token.
type TokenVerifier interface {
	Verify(raw string) (token.Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller's Identity in the request context otherwise. Every failure gets
// the same 401 body.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "err", err)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				UserID:   claims.Subject,
				Username: claims.Username,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, id)
}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(contextIdentityKey).(Identity)
	if !ok || strings.TrimSpace(id.UserID) == "" {
		return Identity{}, errors.New("missing identity")
	}
	return id, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
