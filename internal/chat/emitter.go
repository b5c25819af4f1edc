package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

// Emitter records one conversation event.
type Emitter interface {
	Emit(ctx context.Context, conversationID string, eventType string, payload map[string]any) error
}

// StoreEmitter sequences events through the store and fans them out to live
// subscribers once persisted.
type StoreEmitter struct {
	store  store.Store
	broker events.Publisher
	source string
	now    func() time.Time
}

func NewStoreEmitter(s store.Store, broker events.Publisher, source string) *StoreEmitter {
	return &StoreEmitter{
		store:  s,
		broker: broker,
		source: source,
		now:    time.Now,
	}
}

func (e *StoreEmitter) Emit(ctx context.Context, conversationID string, eventType string, payload map[string]any) error {
	_, err := e.Append(ctx, store.Event{
		ConversationID: conversationID,
		Type:           eventType,
		Source:         e.source,
		Payload:        payload,
	})
	return err
}

// Append assigns the next sequence number, persists the event and publishes
// it. Missing timestamp and source are filled in.
func (e *StoreEmitter) Append(ctx context.Context, event store.Event) (store.Event, error) {
	if strings.TrimSpace(event.ConversationID) == "" {
		return store.Event{}, fmt.Errorf("conversation id required")
	}
	seq, err := e.store.NextSeq(ctx, event.ConversationID)
	if err != nil {
		return store.Event{}, fmt.Errorf("next seq: %w", err)
	}
	event.Seq = seq
	event.Type = store.NormalizeEventType(event.Type)
	if event.Timestamp == "" {
		event.Timestamp = e.now().UTC().Format(time.RFC3339Nano)
	}
	if event.Source == "" {
		event.Source = e.source
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		return store.Event{}, fmt.Errorf("append event: %w", err)
	}
	if e.broker != nil {
		e.broker.Publish(ToEvent(event))
	}
	return event, nil
}

func ToEvent(event store.Event) events.Event {
	return events.Event{
		ConversationID: event.ConversationID,
		Seq:            event.Seq,
		Type:           event.Type,
		Ts:             event.Timestamp,
		Source:         event.Source,
		TraceID:        event.TraceID,
		Payload:        event.Payload,
	}
}
