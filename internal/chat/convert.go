package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

// messagePayload renders a message the way it travels in event payloads
// and API responses.
func messagePayload(msg assistant.Message) (map[string]any, error) {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{}
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ChangeEvent maps a conversation change onto an event type and payload.
func ChangeEvent(change assistant.Change) (string, map[string]any, error) {
	switch change.Kind {
	case assistant.ChangeMessageAppended, assistant.ChangeMessageUpdated:
		message, err := messagePayload(change.Message)
		if err != nil {
			return "", nil, err
		}
		return string(change.Kind), map[string]any{"message": message}, nil
	case assistant.ChangeActionUpdated:
		message, err := messagePayload(change.Message)
		if err != nil {
			return "", nil, err
		}
		return events.TypeActionUpdated, map[string]any{
			"message":      message,
			"message_id":   change.Message.ID,
			"action_index": change.ActionIndex,
			"action":       actionPayload(change.Action),
		}, nil
	case assistant.ChangeTurnState:
		return events.TypeTurnState, map[string]any{"state": string(change.State)}, nil
	default:
		return "", nil, fmt.Errorf("unknown change kind %q", change.Kind)
	}
}

func actionPayload(action assistant.ActionResult) map[string]any {
	payload := map[string]any{
		"type":   string(action.Type),
		"status": string(action.Status),
	}
	if action.Error != "" {
		payload["error"] = action.Error
	}
	return payload
}

func ToStoreMessage(msg assistant.Message) (store.Message, error) {
	metadata := map[string]any{}
	if msg.Metadata != nil {
		encoded, err := json.Marshal(msg.Metadata)
		if err != nil {
			return store.Message{}, err
		}
		if err := json.Unmarshal(encoded, &metadata); err != nil {
			return store.Message{}, err
		}
	}
	return store.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           string(msg.Role),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		Metadata:       metadata,
	}, nil
}

func FromStoreMessage(msg store.Message) (assistant.Message, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, msg.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	out := assistant.Message{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           assistant.Role(msg.Role),
		Content:        msg.Content,
		CreatedAt:      createdAt,
	}
	if len(msg.Metadata) == 0 {
		return out, nil
	}
	encoded, err := json.Marshal(msg.Metadata)
	if err != nil {
		return assistant.Message{}, err
	}
	var metadata assistant.Metadata
	if err := json.Unmarshal(encoded, &metadata); err != nil {
		return assistant.Message{}, fmt.Errorf("decode metadata for message %s: %w", msg.ID, err)
	}
	out.Metadata = &metadata
	return out, nil
}
