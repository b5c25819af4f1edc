package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
)

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// Verifier resolves a bearer token into the user it was issued to.
type Verifier interface {
	Verify(ctx context.Context, token string) (User, error)
}

// Session covers the redirect-based sign-in flow of the identity provider.
type Session interface {
	AuthorizeURL(provider string, redirectTo string) (string, error)
	Logout(ctx context.Context, token string) error
}

// staticNamespace seeds the stable user ids handed out by StaticVerifier.
var staticNamespace = uuid.MustParse("6f1c8d2e-5b8a-4f0e-9d3c-2a7b1e4c9f60")

// StaticVerifier accepts any non-blank token and maps it to a stable user
// id. Development only.
type StaticVerifier struct{}

func (StaticVerifier) Verify(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthorized
	}
	return User{
		ID:       uuid.NewSHA1(staticNamespace, []byte(token)).String(),
		Email:    "dev@localhost",
		FullName: "Local Developer",
		Provider: "static",
	}, nil
}

func (StaticVerifier) AuthorizeURL(provider string, redirectTo string) (string, error) {
	if _, ok := providerScopes[provider]; !ok {
		return "", ErrUnsupportedProvider
	}
	if redirectTo == "" {
		return "/", nil
	}
	return redirectTo, nil
}

func (StaticVerifier) Logout(ctx context.Context, token string) error {
	return nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
