package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/memory"
)

const (
	testToken   = "dev-token"
	ingestToken = "ingest-secret"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Submit(ctx context.Context, conversationID string, utterance string) error {
	args := m.Called(ctx, conversationID, utterance)
	return args.Error(0)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// brokenStore fails every listing call.
type brokenStore struct {
	*memory.MemoryStore
}

func (brokenStore) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]store.Workflow, error) {
	return nil, errors.New("db unavailable")
}

type testEnv struct {
	store  *memory.MemoryStore
	broker *events.Broker
	server *Server
	user   auth.User
}

func newTestEnv(t *testing.T, dispatcher chat.Dispatcher, completer llm.Provider) *testEnv {
	t.Helper()
	s := memory.New()
	broker := events.NewBroker()
	user, err := auth.StaticVerifier{}.Verify(context.Background(), testToken)
	require.NoError(t, err)
	server := NewServer(Dependencies{
		Store:      s,
		Broker:     broker,
		Dispatcher: dispatcher,
		Events:     chat.NewStoreEmitter(s, broker, "control_plane"),
		Completer:  completer,
		Logger:     zerolog.Nop(),
	}, config.Config{AuthMode: "static", IngestToken: ingestToken})
	return &testEnv{store: s, broker: broker, server: server, user: user}
}

func (e *testEnv) do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) ingest(t *testing.T, conversationID string, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/conversations/"+conversationID+"/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.ServiceTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedConversation(t *testing.T, id string, userID string) {
	t.Helper()
	require.NoError(t, e.store.CreateConversation(context.Background(), store.Conversation{
		ID:        id,
		UserID:    userID,
		Title:     "chat",
		CreatedAt: "2026-01-01T00:00:00Z",
		UpdatedAt: "2026-01-01T00:00:00Z",
	}))
}
