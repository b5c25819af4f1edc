package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// FileEnv names the optional config file. Environment variables win over file values.
const FileEnv = "CARBONN_CONFIG"

type Config struct {
	ControlPlanePort      string
	ControlPlaneURL       string
	StoreBackend          string
	PostgresURL           string
	AutoMigrate           bool
	TemporalAddress       string
	TemporalTaskQueue     string
	TurnBackend           string
	LLMMode               string
	LLMProvider           string
	LLMModel              string
	LLMBaseURL            string
	LLMSearchProvider     string
	LLMSearchModel        string
	OpenAIAPIKey          string
	OpenRouterAPIKey      string
	AnthropicAPIKey       string
	GeminiAPIKey          string
	PerplexityAPIKey      string
	PerplexityModel       string
	OllamaHost            string
	SearchURL             string
	SearchAPIKey          string
	AuthMode              string
	AuthAllowStatic       bool
	AuthURL               string
	AuthAnonKey           string
	AuthRedirectURL       string
	IngestToken           string
	SecretsKey            string
	AssistantRulesPath    string
	AssistantAnalysis     bool
	AssistantDeepResearch bool
	LogLevel              string
	LogFormat             string
}

var defaults = map[string]any{
	"CONTROL_PLANE_PORT":      "8080",
	"STORE_BACKEND":           "memory",
	"AUTO_MIGRATE":            false,
	"TEMPORAL_ADDRESS":        "localhost:7233",
	"TEMPORAL_TASK_QUEUE":     "carbonn-turns",
	"TURN_BACKEND":            "inline",
	"LLM_MODE":                "remote",
	"LLM_PROVIDER":            "openai",
	"LLM_MODEL":               "gpt-4o-mini",
	"PERPLEXITY_MODEL":        "llama-3.1-sonar-small-128k-online",
	"OLLAMA_HOST":             "http://localhost:11434",
	"AUTH_MODE":               "static",
	"AUTH_ALLOW_STATIC":       false,
	"ASSISTANT_ANALYSIS":      false,
	"ASSISTANT_DEEP_RESEARCH": true,
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "console",
	"POSTGRES_USER":           "carbonn",
	"POSTGRES_PASSWORD":       "carbonn",
	"POSTGRES_HOST":           "localhost",
	"POSTGRES_PORT":           "5432",
	"POSTGRES_DB":             "carbonn",
}

func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	controlPlanePort := v.GetString("CONTROL_PLANE_PORT")
	controlPlaneURL := v.GetString("CONTROL_PLANE_URL")
	if controlPlaneURL == "" {
		controlPlaneURL = "http://localhost:" + controlPlanePort
	}
	postgresURL := v.GetString("POSTGRES_URL")
	if postgresURL == "" {
		postgresURL = buildPostgresURL(v)
	}

	cfg := Config{
		ControlPlanePort:      controlPlanePort,
		ControlPlaneURL:       controlPlaneURL,
		StoreBackend:          strings.ToLower(v.GetString("STORE_BACKEND")),
		PostgresURL:           postgresURL,
		AutoMigrate:           v.GetBool("AUTO_MIGRATE"),
		TemporalAddress:       v.GetString("TEMPORAL_ADDRESS"),
		TemporalTaskQueue:     v.GetString("TEMPORAL_TASK_QUEUE"),
		TurnBackend:           strings.ToLower(v.GetString("TURN_BACKEND")),
		LLMMode:               v.GetString("LLM_MODE"),
		LLMProvider:           v.GetString("LLM_PROVIDER"),
		LLMModel:              v.GetString("LLM_MODEL"),
		LLMBaseURL:            v.GetString("LLM_BASE_URL"),
		LLMSearchProvider:     v.GetString("LLM_SEARCH_PROVIDER"),
		LLMSearchModel:        v.GetString("LLM_SEARCH_MODEL"),
		OpenAIAPIKey:          v.GetString("OPENAI_API_KEY"),
		OpenRouterAPIKey:      v.GetString("OPENROUTER_API_KEY"),
		AnthropicAPIKey:       v.GetString("ANTHROPIC_API_KEY"),
		GeminiAPIKey:          v.GetString("GEMINI_API_KEY"),
		PerplexityAPIKey:      v.GetString("PERPLEXITY_API_KEY"),
		PerplexityModel:       v.GetString("PERPLEXITY_MODEL"),
		OllamaHost:            v.GetString("OLLAMA_HOST"),
		SearchURL:             v.GetString("SEARCH_URL"),
		SearchAPIKey:          v.GetString("SEARCH_API_KEY"),
		AuthMode:              strings.ToLower(v.GetString("AUTH_MODE")),
		AuthAllowStatic:       v.GetBool("AUTH_ALLOW_STATIC"),
		AuthURL:               strings.TrimRight(v.GetString("AUTH_URL"), "/"),
		AuthAnonKey:           v.GetString("AUTH_ANON_KEY"),
		AuthRedirectURL:       v.GetString("AUTH_REDIRECT_URL"),
		IngestToken:           strings.TrimSpace(v.GetString("INGEST_TOKEN")),
		SecretsKey:            v.GetString("CARBONN_SECRETS_KEY"),
		AssistantRulesPath:    v.GetString("ASSISTANT_RULES_PATH"),
		AssistantAnalysis:     v.GetBool("ASSISTANT_ANALYSIS"),
		AssistantDeepResearch: v.GetBool("ASSISTANT_DEEP_RESEARCH"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("STORE_BACKEND must be memory or postgres, got %q", c.StoreBackend)
	}
	switch c.TurnBackend {
	case "inline", "temporal":
	default:
		return fmt.Errorf("TURN_BACKEND must be inline or temporal, got %q", c.TurnBackend)
	}
	if c.TurnBackend == "temporal" && c.StoreBackend != "postgres" {
		return fmt.Errorf("TURN_BACKEND=temporal requires STORE_BACKEND=postgres")
	}
	if c.TurnBackend == "temporal" && c.IngestToken == "" {
		return fmt.Errorf("TURN_BACKEND=temporal requires INGEST_TOKEN")
	}
	switch c.AuthMode {
	case "static", "remote":
	default:
		return fmt.Errorf("AUTH_MODE must be static or remote, got %q", c.AuthMode)
	}
	if c.AuthMode == "remote" && c.AuthURL == "" {
		return fmt.Errorf("AUTH_URL is required when AUTH_MODE=remote")
	}
	if c.AuthMode == "static" && c.StoreBackend == "postgres" && !c.AuthAllowStatic {
		return fmt.Errorf("AUTH_MODE=static with STORE_BACKEND=postgres requires AUTH_ALLOW_STATIC=true")
	}
	return nil
}

func buildPostgresURL(v *viper.Viper) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		v.GetString("POSTGRES_USER"),
		v.GetString("POSTGRES_PASSWORD"),
		v.GetString("POSTGRES_HOST"),
		v.GetString("POSTGRES_PORT"),
		v.GetString("POSTGRES_DB"),
	)
}
