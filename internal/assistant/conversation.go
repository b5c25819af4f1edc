package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrMessageNotFound = errors.New("message not found")

type ChangeKind string

const (
	ChangeMessageAppended ChangeKind = "message.appended"
	ChangeMessageUpdated  ChangeKind = "message.updated"
	ChangeActionUpdated   ChangeKind = "action.updated"
	ChangeTurnState       ChangeKind = "turn.state"
)

// Change is delivered to observers after the conversation has been mutated.
// Message is a snapshot and may be retained.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	Message        Message
	ActionIndex    int
	Action         ActionResult
	State          TurnState
}

type Observer interface {
	Observe(ctx context.Context, change Change)
}

type ObserverFunc func(ctx context.Context, change Change)

func (f ObserverFunc) Observe(ctx context.Context, change Change) {
	f(ctx, change)
}

// Conversation is the ordered message list of one chat. Messages are only
// appended or updated by id.
type Conversation struct {
	id        string
	mu        sync.RWMutex
	messages  []Message
	index     map[string]int
	observers []Observer
}

func NewConversation(id string, history []Message, observers ...Observer) *Conversation {
	c := &Conversation{
		id:        id,
		index:     map[string]int{},
		observers: observers,
	}
	for _, msg := range history {
		msg.ConversationID = id
		c.index[msg.ID] = len(c.messages)
		c.messages = append(c.messages, msg.clone())
	}
	return c
}

func (c *Conversation) ID() string {
	return c.id
}

func (c *Conversation) Subscribe(observer Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, observer)
	c.mu.Unlock()
}

func (c *Conversation) Append(ctx context.Context, msg Message) error {
	msg.ConversationID = c.id
	if err := msg.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.index[msg.ID]; exists {
		c.mu.Unlock()
		return fmt.Errorf("message %s already appended", msg.ID)
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg.clone())
	c.mu.Unlock()

	c.emit(ctx, Change{Kind: ChangeMessageAppended, Message: msg.clone()})
	return nil
}

// Update applies fn to the message with the given id. Role and id are fixed
// once appended.
func (c *Conversation) Update(ctx context.Context, id string, fn func(msg *Message) error) (Message, error) {
	c.mu.Lock()
	pos, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	working := c.messages[pos].clone()
	if err := fn(&working); err != nil {
		c.mu.Unlock()
		return Message{}, err
	}
	working.ID = c.messages[pos].ID
	working.Role = c.messages[pos].Role
	working.ConversationID = c.id
	c.messages[pos] = working
	snapshot := working.clone()
	c.mu.Unlock()

	c.emit(ctx, Change{Kind: ChangeMessageUpdated, Message: snapshot})
	return snapshot, nil
}

// AdvanceAction moves one action of a message out of pending.
func (c *Conversation) AdvanceAction(ctx context.Context, id string, index int, status ActionStatus, payload any, errText string) error {
	c.mu.Lock()
	pos, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	working := c.messages[pos].clone()
	if working.Metadata == nil || index < 0 || index >= len(working.Metadata.Actions) {
		c.mu.Unlock()
		return fmt.Errorf("message %s has no action %d", id, index)
	}
	if err := working.Metadata.Actions[index].advance(status, payload, errText); err != nil {
		c.mu.Unlock()
		return err
	}
	c.messages[pos] = working
	snapshot := working.clone()
	c.mu.Unlock()

	c.emit(ctx, Change{
		Kind:        ChangeActionUpdated,
		Message:     snapshot,
		ActionIndex: index,
		Action:      snapshot.Metadata.Actions[index],
	})
	return nil
}

func (c *Conversation) Get(id string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pos, ok := c.index[id]
	if !ok {
		return Message{}, false
	}
	return c.messages[pos].clone(), true
}

func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, 0, len(c.messages))
	for _, msg := range c.messages {
		out = append(out, msg.clone())
	}
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Conversation) emit(ctx context.Context, change Change) {
	change.ConversationID = c.id
	c.mu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.RUnlock()
	for _, observer := range observers {
		observer.Observe(ctx, change)
	}
}
