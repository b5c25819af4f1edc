package llm

import (
	"context"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Mode             string
	Provider         string
	Model            string
	BaseURL          string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	PerplexityAPIKey string
	OllamaHost       string
	MaxTokens        int64
	Temperature      *float64
}

func NewProvider(cfg Config) (Provider, error) {
	if cfg.Mode == "local" {
		return LocalProvider{}, nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenRouterAPIKey,
			Model:       cfg.Model,
			BaseURL:     defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case "perplexity":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.PerplexityAPIKey,
			Model:       cfg.Model,
			BaseURL:     defaultIfEmpty(cfg.BaseURL, "https://api.perplexity.ai"),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case "moonshot-ai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			BaseURL:     defaultIfEmpty(cfg.BaseURL, "https://api.moonshot.ai/v1"),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
		}), nil
	case "gemini":
		return NewGeminiProvider(context.Background(), GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			Host:  defaultIfEmpty(cfg.BaseURL, cfg.OllamaHost),
			Model: cfg.Model,
		})
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// splitSystem separates system messages, which most SDKs take out of band.
func splitSystem(messages []Message) (string, []Message) {
	system := []string{}
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			if content := strings.TrimSpace(msg.Content); content != "" {
				system = append(system, content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
