// Package app wires configuration into the components shared by the
// control plane, the worker and the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/ai"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/logging"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/personality"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/search"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/secrets"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/memory"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/postgres"
)

const (
	researchMaxTokens   = 1000
	researchTemperature = 0.2
)

var (
	newProvider    = llm.NewProvider
	openPostgres   = postgres.New
	migrate        = postgres.Migrate
	loadPrompt     = personality.Load
	loadClassifier = assistant.NewClassifierFromFile
)

func NewLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.LogLevel, cfg.LogFormat, w)
}

// OpenStore returns the configured record store and a close function.
func OpenStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, func() error, error) {
	if cfg.StoreBackend != "postgres" {
		return memory.New(), func() error { return nil }, nil
	}
	if cfg.AutoMigrate {
		applied, err := migrate(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Ints64("versions", applied).Msg("applied migrations")
		}
	}
	pg, err := openPostgres(cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func TextConfig(cfg config.Config) llm.Config {
	return llm.Config{
		Mode:             cfg.LLMMode,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		PerplexityAPIKey: cfg.PerplexityAPIKey,
		OllamaHost:       cfg.OllamaHost,
	}
}

// ResearchProvider returns the search-grounded model used for research
// synthesis and the hosted function. Nil when no such model is configured.
func ResearchProvider(cfg config.Config) (llm.Provider, error) {
	temperature := researchTemperature
	if provider := strings.TrimSpace(cfg.LLMSearchProvider); provider != "" {
		searchCfg := TextConfig(cfg)
		searchCfg.Provider = provider
		searchCfg.Model = cfg.LLMSearchModel
		searchCfg.BaseURL = ""
		searchCfg.MaxTokens = researchMaxTokens
		searchCfg.Temperature = &temperature
		return newProvider(searchCfg)
	}
	if cfg.LLMMode == "local" || strings.TrimSpace(cfg.PerplexityAPIKey) == "" {
		return nil, nil
	}
	return newProvider(llm.Config{
		Provider:         "perplexity",
		Model:            cfg.PerplexityModel,
		PerplexityAPIKey: cfg.PerplexityAPIKey,
		MaxTokens:        researchMaxTokens,
		Temperature:      &temperature,
	})
}

// NewGateway registers the configured model against the text provider so
// the orchestrator's model-tagged requests resolve without falling through.
func NewGateway(cfg config.Config, text llm.Provider, research llm.Provider, logger zerolog.Logger) *ai.Gateway {
	opts := []ai.Option{ai.WithLogger(logging.Component(logger, "ai"))}
	if model := strings.TrimSpace(cfg.LLMModel); model != "" {
		opts = append(opts, ai.WithModel(model, text))
	}
	if research != nil {
		opts = append(opts, ai.WithSearchProvider(research))
	}
	return ai.NewGateway(text, opts...)
}

// NewOrchestrator builds the assistant with the configured capabilities.
func NewOrchestrator(cfg config.Config, logger zerolog.Logger) (*assistant.Orchestrator, error) {
	text, err := newProvider(TextConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}
	research, err := ResearchProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("research provider: %w", err)
	}
	gateway := NewGateway(cfg, text, research, logger)

	var classifier assistant.Classifier
	if path := strings.TrimSpace(cfg.AssistantRulesPath); path != "" {
		loaded, err := loadClassifier(path)
		if err != nil {
			return nil, fmt.Errorf("classifier rules: %w", err)
		}
		classifier = loaded
	}
	prompt, err := loadPrompt("")
	if err != nil {
		return nil, fmt.Errorf("system prompt: %w", err)
	}

	return assistant.New(
		assistant.Dependencies{
			Classifier: classifier,
			Text:       gateway,
			Extractor:  gateway,
			Search:     search.New(cfg.SearchURL, cfg.SearchAPIKey),
		},
		assistant.WithLogger(logging.Component(logger, "assistant")),
		assistant.WithAnalysis(cfg.AssistantAnalysis),
		assistant.WithDeepResearch(cfg.AssistantDeepResearch),
		assistant.WithSystemPrompt(prompt),
		assistant.WithModel(cfg.LLMModel),
	)
}

// Identity returns the token verifier and sign-in session for AUTH_MODE.
func Identity(cfg config.Config) (auth.Verifier, auth.Session) {
	if cfg.AuthMode == "remote" {
		remote := auth.NewRemoteVerifier(cfg.AuthURL, cfg.AuthAnonKey)
		return remote, remote
	}
	return auth.StaticVerifier{}, auth.StaticVerifier{}
}

// SecretsBox is nil when no key is configured; integration tokens are then
// refused.
func SecretsBox(cfg config.Config) (*secrets.Box, error) {
	if strings.TrimSpace(cfg.SecretsKey) == "" {
		return nil, nil
	}
	return secrets.NewBox(cfg.SecretsKey)
}
