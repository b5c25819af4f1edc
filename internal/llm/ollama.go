package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type OllamaConfig struct {
	Host  string
	Model string
}

type OllamaProvider struct {
	client *api.Client
	model  string
}

func NewOllamaProvider(cfg OllamaConfig) (*OllamaProvider, error) {
	host := cfg.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	if cfg.Model == "" {
		return nil, errors.New("missing model for ollama provider")
	}
	return &OllamaProvider{
		client: api.NewClient(parsed, &http.Client{Timeout: 5 * time.Minute}),
		model:  cfg.Model,
	}, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   &stream,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, api.Message{Role: msg.Role, Content: msg.Content})
	}
	var b strings.Builder
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", errors.New("ollama returned empty content")
	}
	return content, nil
}
