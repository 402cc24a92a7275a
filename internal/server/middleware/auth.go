// Package middleware provides HTTP middleware for the calmerge server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/dtorcivia/calmerge/internal/crypto"
	"github.com/dtorcivia/calmerge/internal/response"
)

// ContextKey is a custom type for context keys.
type ContextKey string

// ContextKeyRequestID is the context key for the request id.
const ContextKeyRequestID ContextKey = "request_id"

// BearerAuth returns middleware that requires "Authorization: Bearer <token>"
// matching verifier. A nil verifier disables authentication.
func BearerAuth(verifier *crypto.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !verifier.Verify(token) {
				response.WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
