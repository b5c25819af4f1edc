package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/personality"
)

func decodeFunctionResponse(t *testing.T, body []byte) functionResponse {
	t.Helper()
	var payload functionResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestPerplexityFunction(t *testing.T) {
	provider := &MockProvider{}
	provider.On("Generate", mock.Anything, []llm.Message{
		{Role: "system", Content: personality.Default},
		{Role: "user", Content: "latest EV news"},
	}).Return("Here is what I found.", nil).Once()
	env := newTestEnv(t, nil, provider)

	rec := env.do(t, http.MethodPost, "/functions/v1/perplexity", `{"prompt":"latest EV news"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeFunctionResponse(t, rec.Body.Bytes())
	require.Equal(t, "Here is what I found.", payload.Response)
	require.Empty(t, payload.Error)
	provider.AssertExpectations(t)
}

func TestPerplexityFunctionFailuresStayOK(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		provider := &MockProvider{}
		provider.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("upstream 500")).Once()
		env := newTestEnv(t, nil, provider)

		rec := env.do(t, http.MethodPost, "/functions/v1/perplexity", `{"prompt":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		payload := decodeFunctionResponse(t, rec.Body.Bytes())
		require.Equal(t, functionApology, payload.Response)
		require.Equal(t, "upstream 500", payload.Error)
	})

	t.Run("missing prompt", func(t *testing.T) {
		provider := &MockProvider{}
		env := newTestEnv(t, nil, provider)

		rec := env.do(t, http.MethodPost, "/functions/v1/perplexity", `{"prompt":"  "}`)
		require.Equal(t, http.StatusOK, rec.Code)
		payload := decodeFunctionResponse(t, rec.Body.Bytes())
		require.Equal(t, "prompt is required", payload.Error)
		provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t, nil, nil)
		rec := env.do(t, http.MethodPost, "/functions/v1/perplexity", `{"prompt":"hi"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, functionApology, decodeFunctionResponse(t, rec.Body.Bytes()).Response)
	})

	t.Run("empty completion", func(t *testing.T) {
		provider := &MockProvider{}
		provider.On("Generate", mock.Anything, mock.Anything).Return(" ", nil).Once()
		env := newTestEnv(t, nil, provider)

		rec := env.do(t, http.MethodPost, "/functions/v1/perplexity", `{"prompt":"hi"}`)
		payload := decodeFunctionResponse(t, rec.Body.Bytes())
		require.Equal(t, emptyCompletion, payload.Response)
		require.Empty(t, payload.Error)
	})
}
