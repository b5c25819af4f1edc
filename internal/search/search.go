package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
)

// ErrDisabled is returned when no search endpoint is configured.
var ErrDisabled = errors.New("web search is not configured")

// HTTPSearcher calls a hosted search endpoint that accepts
// {query, type, limit} and answers with {results: [...]}.
type HTTPSearcher struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSearcher(url string, apiKey string) *HTTPSearcher {
	return &HTTPSearcher{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchRequest struct {
	Query string `json:"query"`
	Type  string `json:"type"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []assistant.SearchResult `json:"results"`
}

func (s *HTTPSearcher) Search(ctx context.Context, req assistant.SearchRequest) ([]assistant.SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: req.Query, Type: req.Type, Limit: req.Limit})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search failed: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := decoded.Results
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

type Disabled struct{}

func (Disabled) Search(ctx context.Context, req assistant.SearchRequest) ([]assistant.SearchResult, error) {
	return nil, ErrDisabled
}

// New returns the HTTP searcher when url is set, Disabled otherwise.
func New(url string, apiKey string) assistant.WebSearcher {
	if strings.TrimSpace(url) == "" {
		return Disabled{}
	}
	return NewHTTPSearcher(url, apiKey)
}
