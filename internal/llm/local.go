package llm

import (
	"context"
	"errors"
	"strings"
)

// LocalProvider answers without a model. It echoes the last user message and
// is meant for offline development.
type LocalProvider struct{}

func (LocalProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			content := strings.TrimSpace(messages[i].Content)
			if len(content) > 280 {
				content = content[:280] + "..."
			}
			return "Local mode reply to: " + content, nil
		}
	}
	return "", errors.New("local provider: no user message")
}
