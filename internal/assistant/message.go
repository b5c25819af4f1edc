package assistant

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

// Metadata records which actions ran for an assistant message.
type Metadata struct {
	Action   []Intent       `json:"action,omitempty"`
	Actions  []ActionResult `json:"actions,omitempty"`
	Result   any            `json:"result,omitempty"`
	Research []SearchResult `json:"research,omitempty"`
}

func (m Message) validate() error {
	if m.ID == "" {
		return fmt.Errorf("message id required")
	}
	switch m.Role {
	case RoleUser, RoleAssistant:
	default:
		return fmt.Errorf("message %s: invalid role %q", m.ID, m.Role)
	}
	return nil
}

// HasAction reports whether the message metadata names intent.
func (m Message) HasAction(intent Intent) bool {
	if m.Metadata == nil {
		return false
	}
	for _, action := range m.Metadata.Action {
		if action == intent {
			return true
		}
	}
	return false
}

func (m Message) clone() Message {
	if m.Metadata == nil {
		return m
	}
	meta := *m.Metadata
	meta.Action = append([]Intent(nil), m.Metadata.Action...)
	meta.Actions = append([]ActionResult(nil), m.Metadata.Actions...)
	meta.Research = append([]SearchResult(nil), m.Metadata.Research...)
	m.Metadata = &meta
	return m
}
