package events

import (
	"context"
	"strings"
	"sync"
)

const (
	TypeMessageAppended = "message.appended"
	TypeMessageUpdated  = "message.updated"
	TypeActionUpdated   = "action.updated"
	TypeTurnState       = "turn.state"
	TypeTurnRejected    = "turn.rejected"
)

const subscriberBuffer = 32

// Event is one entry of a conversation's change stream. Seq is assigned by
// the store and is strictly increasing per conversation.
type Event struct {
	ConversationID string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	Type           string         `json:"type"`
	Ts             string         `json:"ts"`
	Source         string         `json:"source"`
	TraceID        string         `json:"trace_id,omitempty"`
	Payload        map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(event Event)
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan Event]struct{}{},
	}
}

// Subscribe registers a listener until ctx is done, at which point the
// returned channel is closed.
func (b *Broker) Subscribe(ctx context.Context, conversationID string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subscribers[conversationID] == nil {
		b.subscribers[conversationID] = map[chan Event]struct{}{}
	}
	b.subscribers[conversationID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[conversationID] != nil {
			delete(b.subscribers[conversationID], ch)
			if len(b.subscribers[conversationID]) == 0 {
				delete(b.subscribers, conversationID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish never blocks: a subscriber with a full buffer misses the event and
// catches up by replaying from the store. Sends happen under the read lock so
// a channel cannot be closed mid-send.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.ConversationID] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (b *Broker) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[conversationID])
}
