package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/memory"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/postgres"
)

func captureProvider(t *testing.T) *[]llm.Config {
	t.Helper()
	orig := newProvider
	t.Cleanup(func() { newProvider = orig })
	var seen []llm.Config
	newProvider = func(cfg llm.Config) (llm.Provider, error) {
		seen = append(seen, cfg)
		return llm.LocalProvider{}, nil
	}
	return &seen
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestOpenStoreMemory(t *testing.T) {
	s, closeFn, err := OpenStore(context.Background(), config.Config{StoreBackend: "memory"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryStore{}, s)
	assert.NoError(t, closeFn())
}

func TestOpenStorePostgresMigrationFailure(t *testing.T) {
	origMigrate, origOpen := migrate, openPostgres
	t.Cleanup(func() { migrate, openPostgres = origMigrate, origOpen })
	migrate = func(ctx context.Context, conn string) ([]int64, error) {
		return nil, errors.New("no database")
	}
	openPostgres = func(conn string) (*postgres.PostgresStore, error) {
		t.Fatal("store opened after failed migration")
		return nil, nil
	}

	_, _, err := OpenStore(context.Background(), config.Config{StoreBackend: "postgres", AutoMigrate: true}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate")
}

func TestOpenStorePostgresOpenFailure(t *testing.T) {
	origOpen := openPostgres
	t.Cleanup(func() { openPostgres = origOpen })
	var gotConn string
	openPostgres = func(conn string) (*postgres.PostgresStore, error) {
		gotConn = conn
		return nil, errors.New("schema missing")
	}

	_, _, err := OpenStore(context.Background(), config.Config{StoreBackend: "postgres", PostgresURL: "postgres://x"}, zerolog.Nop())
	require.EqualError(t, err, "schema missing")
	assert.Equal(t, "postgres://x", gotConn)
}

func TestResearchProviderNoneConfigured(t *testing.T) {
	seen := captureProvider(t)

	provider, err := ResearchProvider(config.Config{LLMProvider: "openai"})
	require.NoError(t, err)
	assert.Nil(t, provider)
	assert.Empty(t, *seen)
}

func TestResearchProviderPerplexity(t *testing.T) {
	seen := captureProvider(t)

	provider, err := ResearchProvider(config.Config{
		LLMProvider:      "openai",
		PerplexityAPIKey: "pplx",
		PerplexityModel:  "sonar",
	})
	require.NoError(t, err)
	require.NotNil(t, provider)
	require.Len(t, *seen, 1)
	got := (*seen)[0]
	assert.Equal(t, "perplexity", got.Provider)
	assert.Equal(t, "sonar", got.Model)
	assert.Equal(t, "pplx", got.PerplexityAPIKey)
	assert.Equal(t, int64(1000), got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
}

func TestResearchProviderExplicitSearchModel(t *testing.T) {
	seen := captureProvider(t)

	_, err := ResearchProvider(config.Config{
		LLMProvider:       "openai",
		LLMBaseURL:        "http://proxy",
		LLMSearchProvider: "openrouter",
		LLMSearchModel:    "perplexity/sonar",
		OpenRouterAPIKey:  "or",
		PerplexityAPIKey:  "ignored",
	})
	require.NoError(t, err)
	require.Len(t, *seen, 1)
	got := (*seen)[0]
	assert.Equal(t, "openrouter", got.Provider)
	assert.Equal(t, "perplexity/sonar", got.Model)
	assert.Equal(t, "or", got.OpenRouterAPIKey)
	assert.Empty(t, got.BaseURL)
}

func TestNewGatewayResolvesConfiguredModel(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	gateway := NewGateway(config.Config{LLMModel: "gpt-4o-mini"}, llm.LocalProvider{}, nil, logger)

	reply, err := gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "hi", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, "Local mode reply to: hi", reply)
	assert.NotContains(t, logs.String(), "no provider for model override")

	_, err = gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "hi", Model: "other"})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "no provider for model override")
}

func TestNewOrchestratorLocalMode(t *testing.T) {
	orchestrator, err := NewOrchestrator(config.Config{LLMMode: "local", AssistantDeepResearch: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, orchestrator)
}

func TestNewOrchestratorUnsupportedProvider(t *testing.T) {
	_, err := NewOrchestrator(config.Config{LLMProvider: "mystery"}, zerolog.Nop())
	require.Error(t, err)
	var unsupported llm.ErrUnsupportedProvider
	assert.ErrorAs(t, err, &unsupported)
}

func TestNewOrchestratorMissingRules(t *testing.T) {
	_, err := NewOrchestrator(config.Config{
		LLMMode:            "local",
		AssistantRulesPath: filepath.Join(t.TempDir(), "rules.toml"),
	}, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "classifier rules"))
}

func TestIdentity(t *testing.T) {
	verifier, session := Identity(config.Config{AuthMode: "static"})
	assert.IsType(t, auth.StaticVerifier{}, verifier)
	assert.IsType(t, auth.StaticVerifier{}, session)

	verifier, session = Identity(config.Config{AuthMode: "remote", AuthURL: "https://auth.example.com"})
	assert.IsType(t, &auth.RemoteVerifier{}, verifier)
	assert.Same(t, verifier, session)
}

func TestSecretsBox(t *testing.T) {
	box, err := SecretsBox(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, box)

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	box, err = SecretsBox(config.Config{SecretsKey: key})
	require.NoError(t, err)
	require.NotNil(t, box)
	sealed, err := box.Seal("token")
	require.NoError(t, err)
	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", opened)

	_, err = SecretsBox(config.Config{SecretsKey: "short"})
	assert.Error(t, err)
}
