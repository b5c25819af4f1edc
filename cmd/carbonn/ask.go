package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/app"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/memory"
)

var (
	loadConfig      = config.Load
	newOrchestrator = app.NewOrchestrator
)

func newAskCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run one assistant turn locally and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := ask(cmd.Context(), cmd.ErrOrStderr(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			text := replyMarkdown(reply)
			if !raw {
				rendered, err := renderMarkdown(text)
				if err != nil {
					return err
				}
				text = rendered
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print markdown without rendering")
	return cmd
}

// ask runs a single turn against an in-memory conversation.
func ask(ctx context.Context, logOut io.Writer, utterance string) (assistant.Message, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return assistant.Message{}, err
	}
	logger := app.NewLogger(cfg, logOut)
	orchestrator, err := newOrchestrator(cfg, logger)
	if err != nil {
		return assistant.Message{}, err
	}

	st := memory.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	conversationID := uuid.NewString()
	if err := st.CreateConversation(ctx, store.Conversation{
		ID:        conversationID,
		UserID:    "cli",
		Title:     "carbonn ask",
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return assistant.Message{}, err
	}
	turns := chat.NewService(ctx, st, orchestrator, chat.NewStoreEmitter(st, nil, "cli"), chat.WithLogger(logger))
	return turns.RunTurn(ctx, conversationID, utterance)
}

func replyMarkdown(reply assistant.Message) string {
	var b strings.Builder
	b.WriteString(reply.Content)
	if reply.Metadata == nil || len(reply.Metadata.Actions) == 0 {
		return b.String()
	}
	b.WriteString("\n\n---\n")
	for _, action := range reply.Metadata.Actions {
		fmt.Fprintf(&b, "\n- **%s**: %s", action.Type, action.Status)
		if action.Error != "" {
			fmt.Fprintf(&b, " (%s)", action.Error)
		}
	}
	return b.String()
}

func renderMarkdown(text string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(text)
}
