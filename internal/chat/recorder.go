package chat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
)

// Recorder mirrors conversation changes into the event stream. Write
// failures are logged; the turn keeps running on its in-memory state.
type Recorder struct {
	emitter Emitter
	logger  zerolog.Logger
}

func NewRecorder(emitter Emitter, logger zerolog.Logger) *Recorder {
	return &Recorder{emitter: emitter, logger: logger}
}

func (r *Recorder) Observe(ctx context.Context, change assistant.Change) {
	eventType, payload, err := ChangeEvent(change)
	if err != nil {
		r.logger.Error().Err(err).Str("conversation_id", change.ConversationID).Msg("encode change")
		return
	}
	if err := r.emitter.Emit(context.WithoutCancel(ctx), change.ConversationID, eventType, payload); err != nil {
		r.logger.Error().Err(err).
			Str("conversation_id", change.ConversationID).
			Str("type", eventType).
			Msg("record change")
	}
}
