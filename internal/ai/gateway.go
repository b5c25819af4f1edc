package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
)

// Gateway exposes llm providers as the assistant's text and extraction
// capabilities.
type Gateway struct {
	text   llm.Provider
	search llm.Provider
	models map[string]llm.Provider
	logger zerolog.Logger
}

type Option func(*Gateway)

// WithSearchProvider routes requests that ask for web-grounded text to a
// separate provider, e.g. perplexity.
func WithSearchProvider(provider llm.Provider) Option {
	return func(g *Gateway) { g.search = provider }
}

// WithModel registers a provider for an explicit model override.
func WithModel(model string, provider llm.Provider) Option {
	return func(g *Gateway) { g.models[model] = provider }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func NewGateway(text llm.Provider, opts ...Option) *Gateway {
	g := &Gateway{
		text:   text,
		models: map[string]llm.Provider{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) GenerateText(ctx context.Context, req assistant.TextRequest) (string, error) {
	provider := g.providerFor(req)
	if provider == nil {
		return "", errors.New("no text provider configured")
	}
	messages := make([]llm.Message, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Prompt})

	reply, err := provider.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return reply, nil
}

// providerFor prefers the search provider for web-grounded requests; the
// model override applies to everything else.
func (g *Gateway) providerFor(req assistant.TextRequest) llm.Provider {
	if req.Search && g.search != nil {
		return g.search
	}
	if req.Model != "" {
		if provider, ok := g.models[req.Model]; ok {
			return provider
		}
		g.logger.Debug().Str("model", req.Model).Msg("no provider for model override, using default")
	}
	return g.text
}

func (g *Gateway) ExtractObject(ctx context.Context, req assistant.ObjectRequest) (map[string]any, error) {
	if g.text == nil {
		return nil, errors.New("no text provider configured")
	}
	schemaJSON, err := json.Marshal(req.Schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	messages := []llm.Message{
		{Role: "system", Content: extractionSystemPrompt + "\n\nJSON schema:\n" + string(schemaJSON)},
		{Role: "user", Content: req.Prompt},
	}
	raw, err := g.text.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("extract object: %w", err)
	}

	object, err := parseObject(raw)
	if err != nil {
		g.logger.Warn().Err(err).Msg("extraction returned unparseable output")
		return nil, err
	}
	if err := validateObject(req.Schema, object); err != nil {
		g.logger.Warn().Err(err).Msg("extraction output failed schema validation")
		return nil, err
	}
	return object, nil
}

const extractionSystemPrompt = "Extract the requested information from the user's message. " +
	"Respond with a single JSON object that matches the schema below and nothing else."

func parseObject(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: no JSON object in reply", assistant.ErrMalformedOutput)
	}
	var object map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &object); err != nil {
		return nil, fmt.Errorf("%w: %v", assistant.ErrMalformedOutput, err)
	}
	return object, nil
}

func validateObject(schema map[string]any, object map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(object))
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("%w: %s", assistant.ErrMalformedOutput, strings.Join(problems, "; "))
}
