package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edvin/deliverability/internal/api/response"
	"github.com/edvin/deliverability/internal/core"
	"github.com/edvin/deliverability/internal/model"
)

type contextKey string

const APIKeyIdentityKey contextKey = "api_key_identity"

// KeyAuthenticator resolves a raw API key to its stored record.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.APIKey, error)
}

// Auth returns a middleware that validates the X-API-Key header (or a Bearer
// token) against the api_keys table.
func Auth(keys KeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = extractAPIKey(r)
			}
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			identity, err := keys.Authenticate(r.Context(), key)
			if err != nil {
				if core.KindOf(err) != core.KindNotFound {
					zerologFrom(r).Error().Err(err).Msg("api key lookup failed")
				}
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyIdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity returns the authenticated key, or nil outside Auth.
func GetIdentity(ctx context.Context) *model.APIKey {
	k, _ := ctx.Value(APIKeyIdentityKey).(*model.APIKey)
	return k
}

func extractAPIKey(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
