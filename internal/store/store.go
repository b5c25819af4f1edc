package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

type Profile struct {
	ID        string
	Email     string
	FullName  string
	AvatarURL string
	Provider  string
	CreatedAt string
	UpdatedAt string
}

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt string
	UpdatedAt string
}

type ConversationSummary struct {
	ID           string
	UserID       string
	Title        string
	CreatedAt    string
	UpdatedAt    string
	MessageCount int64
}

// Message is the persisted projection of an assistant.Message. Sequence is
// assigned on insert and reflects append order within the conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Sequence       int64
	CreatedAt      string
	Metadata       map[string]any
}

type Event struct {
	ConversationID string
	Seq            int64
	Type           string
	Timestamp      string
	Source         string
	TraceID        string
	Payload        map[string]any
}

type Workflow struct {
	ID             string
	UserID         string
	Name           string
	Description    string
	TriggerType    string
	TriggerConfig  map[string]any
	Actions        []map[string]any
	IsActive       bool
	ExecutionCount int64
	LastExecuted   string
	CreatedAt      string
	UpdatedAt      string
}

type WorkflowFilter struct {
	UserID     string
	ActiveOnly bool
	Limit      int
}

type WorkflowRun struct {
	ID          string
	WorkflowID  string
	UserID      string
	Status      string
	Error       string
	StartedAt   string
	CompletedAt string
}

type WorkflowRunFilter struct {
	UserID     string
	WorkflowID string
	Limit      int
}

// Integration tokens are stored encrypted; see internal/secrets.
type Integration struct {
	ID              string
	UserID          string
	ServiceName     string
	ServiceType     string
	AccessTokenEnc  string
	RefreshTokenEnc string
	ExpiresAt       string
	IsActive        bool
	CreatedAt       string
	UpdatedAt       string
}

type Store interface {
	UpsertProfile(ctx context.Context, profile Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	CreateConversation(ctx context.Context, conversation Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
	AddMessage(ctx context.Context, msg Message) error
	UpdateMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, conversationID string, afterSeq int64) ([]Event, error)
	NextSeq(ctx context.Context, conversationID string) (int64, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]Workflow, error)
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)
	CreateWorkflow(ctx context.Context, workflow Workflow) error
	ListWorkflowRuns(ctx context.Context, filter WorkflowRunFilter) ([]WorkflowRun, error)
	CreateWorkflowRun(ctx context.Context, run WorkflowRun) error
	ListIntegrations(ctx context.Context, userID string) ([]Integration, error)
	CreateIntegration(ctx context.Context, integration Integration) error
}
