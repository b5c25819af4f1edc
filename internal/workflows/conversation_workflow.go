package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	MessageSignalName = "message"
	BusyQueryName     = "busy"

	ExecuteTurnActivity        = "ExecuteTurn"
	RecordRejectedTurnActivity = "RecordRejectedTurn"

	// turnsPerRun bounds workflow history before continuing as new.
	turnsPerRun = 200
)

type ConversationInput struct {
	ConversationID string
}

type ConversationResult struct {
	Status string
	Turns  int
}

type TurnInput struct {
	ConversationID string
	Message        string
}

type TurnOutput struct {
	ReplyID string
	Content string
}

type RejectedTurnInput struct {
	ConversationID string
	Reason         string
}

// ConversationWorkflow runs one turn per message signal. Messages that arrive
// while a turn is running are dropped and recorded as rejected.
func ConversationWorkflow(ctx workflow.Context, input ConversationInput) (ConversationResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	logger := workflow.GetLogger(ctx)
	messageCh := workflow.GetSignalChannel(ctx, MessageSignalName)

	busy := false
	if err := workflow.SetQueryHandler(ctx, BusyQueryName, func() (bool, error) {
		return busy, nil
	}); err != nil {
		return ConversationResult{}, err
	}

	turns := 0
	for {
		var msg string
		received := false
		selector := workflow.NewSelector(ctx)
		selector.AddReceive(messageCh, func(c workflow.ReceiveChannel, more bool) {
			c.Receive(ctx, &msg)
			received = true
		})
		selector.AddReceive(ctx.Done(), func(c workflow.ReceiveChannel, more bool) {})
		selector.Select(ctx)
		if ctx.Err() != nil {
			return ConversationResult{Status: "cancelled", Turns: turns}, nil
		}
		if !received {
			continue
		}

		busy = true
		future := workflow.ExecuteActivity(ctx, ExecuteTurnActivity, TurnInput{
			ConversationID: input.ConversationID,
			Message:        msg,
		})
		running := true
		for running {
			turnSelector := workflow.NewSelector(ctx)
			turnSelector.AddFuture(future, func(f workflow.Future) {
				running = false
				var out TurnOutput
				if err := f.Get(ctx, &out); err != nil {
					logger.Error("turn activity failed", "conversation_id", input.ConversationID, "error", err)
					return
				}
				logger.Info("turn completed", "conversation_id", input.ConversationID, "reply_id", out.ReplyID)
			})
			turnSelector.AddReceive(messageCh, func(c workflow.ReceiveChannel, more bool) {
				var dropped string
				c.Receive(ctx, &dropped)
				logger.Warn("message dropped while turn running", "conversation_id", input.ConversationID)
				rejected := workflow.ExecuteActivity(ctx, RecordRejectedTurnActivity, RejectedTurnInput{
					ConversationID: input.ConversationID,
					Reason:         "busy",
				})
				if err := rejected.Get(ctx, nil); err != nil {
					logger.Error("record rejected turn failed", "error", err)
				}
			})
			turnSelector.Select(ctx)
		}
		busy = false
		turns++

		if ctx.Err() != nil {
			return ConversationResult{Status: "cancelled", Turns: turns}, nil
		}
		if turns >= turnsPerRun && messageCh.Len() == 0 {
			return ConversationResult{}, workflow.NewContinueAsNewError(ctx, ConversationWorkflow, input)
		}
	}
}
