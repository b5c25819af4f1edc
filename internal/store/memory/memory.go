package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

type messageRef struct {
	conversationID string
	index          int
}

type MemoryStore struct {
	mu            sync.RWMutex
	profiles      map[string]store.Profile
	conversations map[string]store.Conversation
	messages      map[string][]store.Message
	messageIndex  map[string]messageRef
	events        map[string][]store.Event
	seq           map[string]int64
	workflows     map[string]store.Workflow
	runs          []store.WorkflowRun
	integrations  map[string]store.Integration
}

func New() *MemoryStore {
	return &MemoryStore{
		profiles:      map[string]store.Profile{},
		conversations: map[string]store.Conversation{},
		messages:      map[string][]store.Message{},
		messageIndex:  map[string]messageRef{},
		events:        map[string][]store.Event{},
		seq:           map[string]int64{},
		workflows:     map[string]store.Workflow{},
		integrations:  map[string]store.Integration{},
	}
}

func (m *MemoryStore) UpsertProfile(ctx context.Context, profile store.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.profiles[profile.ID]; ok && existing.CreatedAt != "" {
		profile.CreatedAt = existing.CreatedAt
	}
	m.profiles[profile.ID] = profile
	return nil
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*store.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (m *MemoryStore) CreateConversation(ctx context.Context, conversation store.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversation.ID]; ok {
		return fmt.Errorf("conversation %s already exists", conversation.ID)
	}
	m.conversations[conversation.ID] = conversation
	return nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, conversationID string) (*store.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	return &conversation, nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.ConversationSummary{}
	for _, conversation := range m.conversations {
		if userID != "" && conversation.UserID != userID {
			continue
		}
		messages := m.messages[conversation.ID]
		title := conversation.Title
		if title == "" {
			title = firstUserContent(messages)
		}
		results = append(results, store.ConversationSummary{
			ID:           conversation.ID,
			UserID:       conversation.UserID,
			Title:        title,
			CreatedAt:    conversation.CreatedAt,
			UpdatedAt:    conversation.UpdatedAt,
			MessageCount: int64(len(messages)),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].UpdatedAt).After(parseTime(results[j].UpdatedAt))
	})
	return results, nil
}

func (m *MemoryStore) AddMessage(ctx context.Context, msg store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messageIndex[msg.ID]; ok {
		return fmt.Errorf("message %s already exists", msg.ID)
	}
	m.addMessageLocked(msg)
	return nil
}

func (m *MemoryStore) UpdateMessage(ctx context.Context, msg store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.messageIndex[msg.ID]; !ok {
		return store.ErrNotFound
	}
	m.updateMessageLocked(msg)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.messages[conversationID]
	results := make([]store.Message, 0, len(messages))
	for _, msg := range messages {
		copy := msg
		copy.Metadata = cloneMap(msg.Metadata)
		results = append(results, copy)
	}
	return results, nil
}

func (m *MemoryStore) addMessageLocked(msg store.Message) {
	msg.Sequence = int64(len(m.messages[msg.ConversationID]) + 1)
	msg.Metadata = cloneMap(msg.Metadata)
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	m.messageIndex[msg.ID] = messageRef{conversationID: msg.ConversationID, index: len(m.messages[msg.ConversationID]) - 1}
	m.touchConversationLocked(msg.ConversationID, msg.CreatedAt)
}

func (m *MemoryStore) updateMessageLocked(msg store.Message) {
	ref := m.messageIndex[msg.ID]
	existing := m.messages[ref.conversationID][ref.index]
	msg.Metadata = cloneMap(msg.Metadata)
	m.messages[ref.conversationID][ref.index] = store.MergeMessage(existing, msg)
	m.touchConversationLocked(ref.conversationID, "")
}

func (m *MemoryStore) touchConversationLocked(conversationID string, timestamp string) {
	conversation, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	if strings.TrimSpace(timestamp) == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	conversation.UpdatedAt = timestamp
	m.conversations[conversationID] = conversation
}

// AppendEvent records the event and applies it to the messages projection.
// Replayed events upsert rather than duplicate.
func (m *MemoryStore) AppendEvent(ctx context.Context, event store.Event) error {
	if err := store.CheckEventMessage(event); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, project := store.BuildMessageFromEvent(event)
	if ref, exists := m.messageIndex[msg.ID]; project && exists && ref.conversationID != msg.ConversationID {
		return store.ErrConversationMismatch
	}
	event.Type = store.NormalizeEventType(event.Type)
	event.Payload = cloneMap(event.Payload)
	m.events[event.ConversationID] = append(m.events[event.ConversationID], event)
	if event.Seq > m.seq[event.ConversationID] {
		m.seq[event.ConversationID] = event.Seq
	}

	if !project {
		return nil
	}
	if _, exists := m.messageIndex[msg.ID]; exists {
		m.updateMessageLocked(msg)
		return nil
	}
	m.addMessageLocked(msg)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, conversationID string, afterSeq int64) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[conversationID]
	if afterSeq <= 0 {
		return append([]store.Event{}, events...), nil
	}
	filtered := []store.Event{}
	for _, event := range events {
		if event.Seq > afterSeq {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, conversationID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[conversationID] += 1
	return m.seq[conversationID], nil
}

func (m *MemoryStore) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]store.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Workflow{}
	for _, workflow := range m.workflows {
		if filter.UserID != "" && workflow.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !workflow.IsActive {
			continue
		}
		results = append(results, cloneWorkflow(workflow))
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].UpdatedAt).After(parseTime(results[j].UpdatedAt))
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (m *MemoryStore) GetWorkflow(ctx context.Context, workflowID string) (*store.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	workflow, ok := m.workflows[workflowID]
	if !ok {
		return nil, nil
	}
	cloned := cloneWorkflow(workflow)
	return &cloned, nil
}

func (m *MemoryStore) CreateWorkflow(ctx context.Context, workflow store.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[workflow.ID]; ok {
		return fmt.Errorf("workflow %s already exists", workflow.ID)
	}
	m.workflows[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

func (m *MemoryStore) ListWorkflowRuns(ctx context.Context, filter store.WorkflowRunFilter) ([]store.WorkflowRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.WorkflowRun{}
	for _, run := range m.runs {
		if filter.UserID != "" && run.UserID != filter.UserID {
			continue
		}
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		results = append(results, run)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return parseTime(results[i].StartedAt).After(parseTime(results[j].StartedAt))
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// CreateWorkflowRun also bumps the parent workflow's execution counters.
func (m *MemoryStore) CreateWorkflowRun(ctx context.Context, run store.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	if workflow, ok := m.workflows[run.WorkflowID]; ok {
		workflow.ExecutionCount++
		workflow.LastExecuted = run.StartedAt
		m.workflows[run.WorkflowID] = workflow
	}
	return nil
}

func (m *MemoryStore) ListIntegrations(ctx context.Context, userID string) ([]store.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := []store.Integration{}
	for _, integration := range m.integrations {
		if userID != "" && integration.UserID != userID {
			continue
		}
		results = append(results, integration)
	}
	sort.Slice(results, func(i, j int) bool {
		return parseTime(results[i].CreatedAt).After(parseTime(results[j].CreatedAt))
	})
	return results, nil
}

func (m *MemoryStore) CreateIntegration(ctx context.Context, integration store.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.integrations[integration.ID]; ok {
		return fmt.Errorf("integration %s already exists", integration.ID)
	}
	m.integrations[integration.ID] = integration
	return nil
}

func firstUserContent(messages []store.Message) string {
	for _, msg := range messages {
		if msg.Role == "user" {
			return msg.Content
		}
	}
	return ""
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func cloneWorkflow(workflow store.Workflow) store.Workflow {
	cloned := workflow
	cloned.TriggerConfig = cloneMap(workflow.TriggerConfig)
	cloned.Actions = make([]map[string]any, 0, len(workflow.Actions))
	for _, action := range workflow.Actions {
		cloned.Actions = append(cloned.Actions, cloneMap(action))
	}
	return cloned
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
