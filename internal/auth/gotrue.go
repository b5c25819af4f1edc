package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestTimeout = 10 * time.Second

// providerScopes lists the OAuth scopes requested per provider so that the
// workspace integrations can reuse the sign-in grant.
var providerScopes = map[string]string{
	"google": "https://www.googleapis.com/auth/calendar https://www.googleapis.com/auth/gmail.readonly https://www.googleapis.com/auth/drive https://www.googleapis.com/auth/spreadsheets https://www.googleapis.com/auth/documents",
	"azure":  "https://graph.microsoft.com/calendars.readwrite https://graph.microsoft.com/mail.read https://graph.microsoft.com/files.readwrite https://graph.microsoft.com/user.read",
}

// RemoteVerifier talks to a GoTrue-compatible identity service.
type RemoteVerifier struct {
	baseURL string
	anonKey string
	client  *http.Client
}

func NewRemoteVerifier(baseURL string, anonKey string) *RemoteVerifier {
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

type gotrueUser struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	AppMetadata  gotrueAppMetadata  `json:"app_metadata"`
	UserMetadata gotrueUserMetadata `json:"user_metadata"`
}

type gotrueAppMetadata struct {
	Provider string `json:"provider"`
}

type gotrueUserMetadata struct {
	FullName  string `json:"full_name"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, ErrUnauthorized
	}
	resp, err := v.do(ctx, http.MethodGet, "/auth/v1/user", token)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return User{}, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return User{}, fmt.Errorf("verify token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload gotrueUser
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	if payload.ID == "" {
		return User{}, ErrUnauthorized
	}
	fullName := payload.UserMetadata.FullName
	if fullName == "" {
		fullName = payload.UserMetadata.Name
	}
	return User{
		ID:        payload.ID,
		Email:     payload.Email,
		FullName:  fullName,
		AvatarURL: payload.UserMetadata.AvatarURL,
		Provider:  payload.AppMetadata.Provider,
	}, nil
}

func (v *RemoteVerifier) Logout(ctx context.Context, token string) error {
	resp, err := v.do(ctx, http.MethodPost, "/auth/v1/logout", token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout: status %d", resp.StatusCode)
	}
	return nil
}

func (v *RemoteVerifier) AuthorizeURL(provider string, redirectTo string) (string, error) {
	scopes, ok := providerScopes[provider]
	if !ok {
		return "", ErrUnsupportedProvider
	}
	params := url.Values{
		"provider": {provider},
		"scopes":   {scopes},
	}
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return v.baseURL + "/auth/v1/authorize?" + params.Encode(), nil
}

func (v *RemoteVerifier) do(ctx context.Context, method string, path string, token string) (*http.Response, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.anonKey != "" {
		req.Header.Set("apikey", v.anonKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	return resp, nil
}
