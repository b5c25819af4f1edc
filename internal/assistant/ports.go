package assistant

import (
	"context"
	"errors"
)

// ErrMalformedOutput marks model output that could not be parsed or did not
// match the requested schema.
var ErrMalformedOutput = errors.New("malformed model output")

type TextRequest struct {
	Prompt string
	System string
	Model  string
	Search bool
}

type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

type ObjectRequest struct {
	Prompt string
	Schema map[string]any
}

type ObjectExtractor interface {
	ExtractObject(ctx context.Context, req ObjectRequest) (map[string]any, error)
}

type SearchRequest struct {
	Query string
	Type  string
	Limit int
}

type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

type WebSearcher interface {
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}
