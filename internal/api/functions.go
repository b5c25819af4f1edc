package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
)

const (
	functionApology = "I apologize, but I encountered an error processing your request. Please try again later."
	emptyCompletion = "I apologize, but I could not generate a response at this time."
)

type functionRequest struct {
	Prompt string `json:"prompt"`
}

type functionResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// perplexity answers a single prompt with the research model. Failures are
// reported in the body with status 200 so that callers always get text to
// show.
func (s *Server) perplexity(w http.ResponseWriter, r *http.Request) {
	response, err := s.complete(r)
	if err != nil {
		s.logger.Warn().Err(err).Msg("research function failed")
		writeJSON(w, functionResponse{Response: functionApology, Error: err.Error()})
		return
	}
	writeJSON(w, functionResponse{Response: response})
}

func (s *Server) complete(r *http.Request) (string, error) {
	var req functionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid request body")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", errors.New("prompt is required")
	}
	if s.completer == nil {
		return "", errors.New("research provider is not configured")
	}
	text, err := s.completer.Generate(r.Context(), []llm.Message{
		{Role: "system", Content: s.systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return emptyCompletion, nil
	}
	return text, nil
}
