package assistant

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockText struct {
	mock.Mock
}

func (m *MockText) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) ExtractObject(ctx context.Context, req ObjectRequest) (map[string]any, error) {
	args := m.Called(ctx, req)
	var result map[string]any
	if value := args.Get(0); value != nil {
		result = value.(map[string]any)
	}
	return result, args.Error(1)
}

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	args := m.Called(ctx, req)
	var result []SearchResult
	if value := args.Get(0); value != nil {
		result = value.([]SearchResult)
	}
	return result, args.Error(1)
}

type panicSearcher struct{}

func (panicSearcher) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	panic("search exploded")
}

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) Observe(ctx context.Context, change Change) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()
}

func (r *recorder) states() []TurnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := []TurnState{}
	for _, change := range r.changes {
		if change.Kind == ChangeTurnState {
			states = append(states, change.State)
		}
	}
	return states
}

// actionHistory lists every observed status of action index on message id.
func (r *recorder) actionHistory(id string, index int) []ActionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := []ActionStatus{}
	for _, change := range r.changes {
		if change.Message.ID != id || change.Message.Metadata == nil {
			continue
		}
		if index >= len(change.Message.Metadata.Actions) {
			continue
		}
		status := change.Message.Metadata.Actions[index].Status
		if len(history) == 0 || history[len(history)-1] != status {
			history = append(history, status)
		}
	}
	return history
}

type fixture struct {
	text      *MockText
	extractor *MockExtractor
	search    *MockSearcher
	rec       *recorder
	session   *Session
	orch      *Orchestrator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		text:      &MockText{},
		extractor: &MockExtractor{},
		search:    &MockSearcher{},
		rec:       &recorder{},
	}
	seq := 0
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	defaults := []Option{
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("m-%d", seq)
		}),
		WithClock(func() time.Time { return base }),
	}
	orch, err := New(Dependencies{
		Text:      f.text,
		Extractor: f.extractor,
		Search:    f.search,
	}, append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.orch = orch
	f.session = NewSession(NewConversation("c-1", nil, f.rec))
	t.Cleanup(func() {
		f.text.AssertExpectations(t)
		f.extractor.AssertExpectations(t)
		f.search.AssertExpectations(t)
	})
	return f
}
