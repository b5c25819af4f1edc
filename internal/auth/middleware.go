package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

// ServiceTokenHeader carries the shared credential of internal callers.
const ServiceTokenHeader = "X-Ingest-Token"

type contextKey struct{}

type ProfileStore interface {
	UpsertProfile(ctx context.Context, profile store.Profile) error
}

func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}

// Middleware rejects requests without a valid bearer token and records the
// caller's profile before passing the request on.
func Middleware(verifier Verifier, profiles ProfileStore, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := RequestToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}
			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrUnauthorized) {
					logger.Warn().Err(err).Msg("token verification failed")
				}
				writeUnauthorized(w, "invalid token")
				return
			}
			if profiles != nil {
				now := time.Now().UTC().Format(time.RFC3339Nano)
				if err := profiles.UpsertProfile(r.Context(), store.Profile{
					ID:        user.ID,
					Email:     user.Email,
					FullName:  user.FullName,
					AvatarURL: user.AvatarURL,
					Provider:  user.Provider,
					CreatedAt: now,
					UpdatedAt: now,
				}); err != nil {
					logger.Error().Err(err).Str("user_id", user.ID).Msg("upsert profile")
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireServiceToken admits requests carrying the shared service token.
// With no token configured every request is refused.
func RequireServiceToken(token string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := []byte(strings.TrimSpace(r.Header.Get(ServiceTokenHeader)))
			if len(expected) == 0 || subtle.ConstantTimeCompare(given, expected) != 1 {
				writeUnauthorized(w, "invalid service token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestToken reads the bearer token from the Authorization header, falling
// back to the access_token query parameter for EventSource clients.
func RequestToken(r *http.Request) string {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
