package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

func TestGenerateText_SystemAndPrompt(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Generate", mock.Anything, []llm.Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hello"},
	}).Return("hi", nil)

	reply, err := NewGateway(provider).GenerateText(context.Background(), assistant.TextRequest{Prompt: "hello", System: "sys"})
	require.NoError(t, err)
	require.Equal(t, "hi", reply)
	provider.AssertExpectations(t)
}

func TestGenerateText_SearchRouting(t *testing.T) {
	text := new(MockProvider)
	search := new(MockProvider)
	search.On("Generate", mock.Anything, mock.Anything).Return("grounded", nil)

	gateway := NewGateway(text, WithSearchProvider(search))
	reply, err := gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "q", Search: true})
	require.NoError(t, err)
	require.Equal(t, "grounded", reply)
	text.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerateText_SearchFallsBackToText(t *testing.T) {
	text := new(MockProvider)
	text.On("Generate", mock.Anything, mock.Anything).Return("plain", nil)

	reply, err := NewGateway(text).GenerateText(context.Background(), assistant.TextRequest{Prompt: "q", Search: true})
	require.NoError(t, err)
	require.Equal(t, "plain", reply)
}

func TestGenerateText_ModelOverride(t *testing.T) {
	text := new(MockProvider)
	special := new(MockProvider)
	special.On("Generate", mock.Anything, mock.Anything).Return("special", nil)
	text.On("Generate", mock.Anything, mock.Anything).Return("default", nil)

	gateway := NewGateway(text, WithModel("gpt-4o", special))
	reply, err := gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "q", Model: "gpt-4o"})
	require.NoError(t, err)
	require.Equal(t, "special", reply)

	reply, err = gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "q", Model: "unknown"})
	require.NoError(t, err)
	require.Equal(t, "default", reply)
}

func TestGenerateText_SearchWinsOverModelOverride(t *testing.T) {
	text := new(MockProvider)
	search := new(MockProvider)
	search.On("Generate", mock.Anything, mock.Anything).Return("grounded", nil)

	gateway := NewGateway(text, WithSearchProvider(search), WithModel("gpt-4o-mini", text))
	reply, err := gateway.GenerateText(context.Background(), assistant.TextRequest{Prompt: "q", Model: "gpt-4o-mini", Search: true})
	require.NoError(t, err)
	require.Equal(t, "grounded", reply)
	text.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerateText_ProviderError(t *testing.T) {
	text := new(MockProvider)
	text.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("boom"))

	_, err := NewGateway(text).GenerateText(context.Background(), assistant.TextRequest{Prompt: "q"})
	require.ErrorContains(t, err, "boom")
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		malformed bool
	}{
		{
			name:  "plain json",
			reply: `{"title":"Standup","date":"2025-01-02","time":"09:00","duration":"30m"}`,
		},
		{
			name:  "fenced json with chatter",
			reply: "Sure!\n```json\n{\"title\":\"Standup\",\"date\":\"2025-01-02\",\"time\":\"09:00\",\"duration\":\"30m\",\"description\":\"daily\"}\n```",
		},
		{name: "not json", reply: "I cannot do that", malformed: true},
		{name: "broken json", reply: `{"title": }`, malformed: true},
		{name: "missing required", reply: `{"title":"Standup"}`, malformed: true},
		{name: "wrong type", reply: `{"title":1,"date":"d","time":"t","duration":"x"}`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockProvider)
			provider.On("Generate", mock.Anything, mock.Anything).Return(tt.reply, nil)

			object, err := NewGateway(provider).ExtractObject(context.Background(), assistant.ObjectRequest{
				Prompt: "schedule standup",
				Schema: assistant.CalendarSchema(),
			})
			if tt.malformed {
				require.ErrorIs(t, err, assistant.ErrMalformedOutput)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "Standup", object["title"])
		})
	}
}

func TestExtractObject_ProviderErrorIsNotMalformed(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("timeout"))

	_, err := NewGateway(provider).ExtractObject(context.Background(), assistant.ObjectRequest{Prompt: "x", Schema: assistant.CalendarSchema()})
	require.Error(t, err)
	require.False(t, errors.Is(err, assistant.ErrMalformedOutput))
}

func TestExtractObject_SchemaInSystemPrompt(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Generate", mock.Anything, mock.MatchedBy(func(messages []llm.Message) bool {
		return len(messages) == 2 && messages[0].Role == "system" &&
			containsAll(messages[0].Content, `"title"`, `"duration"`) &&
			messages[1].Content == "book it"
	})).Return(`{"title":"a","date":"b","time":"c","duration":"d"}`, nil)

	_, err := NewGateway(provider).ExtractObject(context.Background(), assistant.ObjectRequest{Prompt: "book it", Schema: assistant.CalendarSchema()})
	require.NoError(t, err)
	provider.AssertExpectations(t)
}

func containsAll(text string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(text, part) {
			return false
		}
	}
	return true
}
