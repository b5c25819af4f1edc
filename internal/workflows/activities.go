package workflows

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/temporal"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
)

type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID string, utterance string) (assistant.Message, error)
}

type TurnActivities struct {
	runner  TurnRunner
	emitter chat.Emitter
	logger  zerolog.Logger
}

func NewTurnActivities(runner TurnRunner, emitter chat.Emitter, logger zerolog.Logger) *TurnActivities {
	return &TurnActivities{runner: runner, emitter: emitter, logger: logger}
}

func (a *TurnActivities) ExecuteTurn(ctx context.Context, input TurnInput) (TurnOutput, error) {
	reply, err := a.runner.RunTurn(ctx, input.ConversationID, input.Message)
	if err != nil {
		a.logger.Error().Err(err).Str("conversation_id", input.ConversationID).Msg("turn failed")
		if errors.Is(err, assistant.ErrBusy) ||
			errors.Is(err, assistant.ErrBlankInput) ||
			errors.Is(err, chat.ErrConversationNotFound) {
			return TurnOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), "TurnRejected", err)
		}
		return TurnOutput{}, err
	}
	return TurnOutput{ReplyID: reply.ID, Content: reply.Content}, nil
}

func (a *TurnActivities) RecordRejectedTurn(ctx context.Context, input RejectedTurnInput) error {
	return a.emitter.Emit(ctx, input.ConversationID, events.TypeTurnRejected, map[string]any{
		"reason": input.Reason,
	})
}
