package main

import (
	"context"
	"errors"
	"log"
	"os"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/app"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/logging"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/workflows"
)

var (
	loadConfig      = config.Load
	dialTemporal    = client.Dial
	openStore       = app.OpenStore
	newOrchestrator = app.NewOrchestrator
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreBackend != "postgres" {
		return errors.New("worker requires STORE_BACKEND=postgres")
	}
	logger := app.NewLogger(cfg, os.Stderr)

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()

	orchestrator, err := newOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	publisher := workflows.NewControlPlanePublisher(cfg.ControlPlaneURL, cfg.IngestToken, logging.Component(logger, "publisher"))
	emitter := chat.NewStoreEmitter(st, publisher, "worker")
	turns := chat.NewService(ctx, st, orchestrator, emitter,
		chat.WithLogger(logging.Component(logger, "chat")),
		chat.WithoutSessionCache(),
	)
	activities := workflows.NewTurnActivities(turns, emitter, logging.Component(logger, "activities"))

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ConversationWorkflow)
	w.RegisterActivityWithOptions(activities.ExecuteTurn, activity.RegisterOptions{Name: workflows.ExecuteTurnActivity})
	w.RegisterActivityWithOptions(activities.RecordRejectedTurn, activity.RegisterOptions{Name: workflows.RecordRejectedTurnActivity})

	logger.Info().Str("task_queue", cfg.TemporalTaskQueue).Msg("carbonN worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
