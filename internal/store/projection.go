package store

import (
	"errors"
	"strings"
)

const (
	EventMessageAppended = "message.appended"
	EventMessageUpdated  = "message.updated"
	EventActionUpdated   = "action.updated"
)

// ErrConversationMismatch is returned when an event would project a message
// into a conversation other than the one it was appended to.
var ErrConversationMismatch = errors.New("message belongs to another conversation")

// CheckEventMessage rejects events whose message snapshot names a different
// conversation than the event itself.
func CheckEventMessage(event Event) error {
	raw, ok := event.Payload["message"].(map[string]any)
	if !ok {
		return nil
	}
	owner := firstString(raw, "conversation_id")
	if owner != "" && owner != event.ConversationID {
		return ErrConversationMismatch
	}
	return nil
}

// BuildMessageFromEvent extracts the message snapshot carried by a
// conversation change event. The returned bool reports whether the event
// changes the messages projection at all.
func BuildMessageFromEvent(event Event) (Message, bool) {
	switch NormalizeEventType(event.Type) {
	case EventMessageAppended, EventMessageUpdated, EventActionUpdated:
	default:
		return Message{}, false
	}
	raw, ok := event.Payload["message"].(map[string]any)
	if !ok {
		return Message{}, false
	}
	msg := Message{
		ID:             firstString(raw, "id"),
		ConversationID: firstString(raw, "conversation_id"),
		Role:           firstString(raw, "role"),
		Content:        readString(raw, "content"),
		CreatedAt:      firstString(raw, "created_at"),
		Metadata:       map[string]any{},
	}
	if msg.ID == "" {
		return Message{}, false
	}
	if msg.ConversationID == "" {
		msg.ConversationID = event.ConversationID
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = event.Timestamp
	}
	if metadata, ok := raw["metadata"].(map[string]any); ok {
		msg.Metadata = metadata
	}
	return msg, true
}

// IsAppend reports whether the event introduces a new message rather than
// updating one in place.
func IsAppend(event Event) bool {
	return NormalizeEventType(event.Type) == EventMessageAppended
}

// MergeMessage applies an update to a stored message. Identity, role, order
// and creation time never change after the first append.
func MergeMessage(existing Message, incoming Message) Message {
	merged := existing
	merged.Content = incoming.Content
	if incoming.Metadata != nil {
		merged.Metadata = incoming.Metadata
	}
	return merged
}

func NormalizeEventType(eventType string) string {
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		return ""
	}
	return strings.ReplaceAll(normalized, "_", ".")
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(readString(payload, key)); value != "" {
			return value
		}
	}
	return ""
}

func readString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return value
}
