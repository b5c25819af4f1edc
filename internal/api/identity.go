package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
)

type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Provider  string `json:"provider,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	profile, err := s.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if profile == nil {
		writeJSON(w, profileResponse{
			ID:        user.ID,
			Email:     user.Email,
			FullName:  user.FullName,
			AvatarURL: user.AvatarURL,
			Provider:  user.Provider,
		})
		return
	}
	writeJSON(w, profileResponse{
		ID:        profile.ID,
		Email:     profile.Email,
		FullName:  profile.FullName,
		AvatarURL: profile.AvatarURL,
		Provider:  profile.Provider,
		CreatedAt: profile.CreatedAt,
		UpdatedAt: profile.UpdatedAt,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	redirectTo := strings.TrimSpace(r.URL.Query().Get("redirect_to"))
	if redirectTo == "" {
		redirectTo = s.cfg.AuthRedirectURL
	}
	target, err := s.session.AuthorizeURL(provider, redirectTo)
	if err != nil {
		if errors.Is(err, auth.ErrUnsupportedProvider) {
			writeError(w, "unsupported provider", http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Logout(r.Context(), auth.RequestToken(r)); err != nil {
		s.logger.Warn().Err(err).Msg("logout failed")
		writeError(w, "logout failed", http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
