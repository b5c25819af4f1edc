package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunTurn(ctx context.Context, conversationID string, utterance string) (assistant.Message, error) {
	args := m.Called(ctx, conversationID, utterance)
	return args.Get(0).(assistant.Message), args.Error(1)
}

type MockEmitter struct {
	mock.Mock
}

func (m *MockEmitter) Emit(ctx context.Context, conversationID string, eventType string, payload map[string]any) error {
	args := m.Called(ctx, conversationID, eventType, payload)
	return args.Error(0)
}

func TestExecuteTurn(t *testing.T) {
	runner := &MockRunner{}
	runner.On("RunTurn", mock.Anything, "conv-1", "hello").
		Return(assistant.Message{ID: "r-1", Content: "Hi"}, nil).Once()

	activities := NewTurnActivities(runner, &MockEmitter{}, zerolog.Nop())
	out, err := activities.ExecuteTurn(context.Background(), TurnInput{ConversationID: "conv-1", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, TurnOutput{ReplyID: "r-1", Content: "Hi"}, out)
	runner.AssertExpectations(t)
}

func TestExecuteTurn_RejectionIsNonRetryable(t *testing.T) {
	runner := &MockRunner{}
	runner.On("RunTurn", mock.Anything, "conv-1", "hello").
		Return(assistant.Message{}, assistant.ErrBusy).Once()

	activities := NewTurnActivities(runner, &MockEmitter{}, zerolog.Nop())
	_, err := activities.ExecuteTurn(context.Background(), TurnInput{ConversationID: "conv-1", Message: "hello"})
	var appErr *temporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	require.True(t, appErr.NonRetryable())
	require.ErrorIs(t, err, assistant.ErrBusy)
}

func TestExecuteTurn_StoreFailure(t *testing.T) {
	runner := &MockRunner{}
	storeErr := errors.New("db down")
	runner.On("RunTurn", mock.Anything, "conv-1", "hello").Return(assistant.Message{}, storeErr).Once()

	activities := NewTurnActivities(runner, &MockEmitter{}, zerolog.Nop())
	_, err := activities.ExecuteTurn(context.Background(), TurnInput{ConversationID: "conv-1", Message: "hello"})
	require.ErrorIs(t, err, storeErr)
}

func TestRecordRejectedTurn(t *testing.T) {
	emitter := &MockEmitter{}
	emitter.On("Emit", mock.Anything, "conv-1", events.TypeTurnRejected, map[string]any{"reason": "busy"}).Return(nil).Once()

	activities := NewTurnActivities(&MockRunner{}, emitter, zerolog.Nop())
	require.NoError(t, activities.RecordRejectedTurn(context.Background(), RejectedTurnInput{ConversationID: "conv-1", Reason: "busy"}))
	emitter.AssertExpectations(t)
}
