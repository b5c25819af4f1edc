package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
)

// Service dispatches turns to per-conversation workflows.
type Service struct {
	client    client.Client
	taskQueue string
}

func NewService(client client.Client, taskQueue string) *Service {
	if taskQueue == "" {
		taskQueue = "carbonn-turns"
	}
	return &Service{client: client, taskQueue: taskQueue}
}

// Submit signals the conversation workflow, starting it when needed. Busy
// conversations are rejected up front; a message that races past this check
// is dropped by the workflow.
func (s *Service) Submit(ctx context.Context, conversationID string, utterance string) error {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return assistant.ErrBlankInput
	}
	busy, err := s.Busy(ctx, conversationID)
	if err != nil {
		return err
	}
	if busy {
		return assistant.ErrBusy
	}
	options := client.StartWorkflowOptions{
		ID:        workflowID(conversationID),
		TaskQueue: s.taskQueue,
	}
	_, err = s.client.SignalWithStartWorkflow(
		ctx,
		workflowID(conversationID),
		MessageSignalName,
		utterance,
		options,
		ConversationWorkflow,
		ConversationInput{ConversationID: conversationID},
	)
	return err
}

// Busy reports whether the conversation workflow is running a turn. A
// conversation without a workflow is idle.
func (s *Service) Busy(ctx context.Context, conversationID string) (bool, error) {
	value, err := s.client.QueryWorkflow(ctx, workflowID(conversationID), "", BusyQueryName)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("query conversation workflow: %w", err)
	}
	var busy bool
	if err := value.Get(&busy); err != nil {
		return false, fmt.Errorf("decode busy query: %w", err)
	}
	return busy, nil
}

func workflowID(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}
