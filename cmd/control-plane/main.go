package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/api"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/app"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/logging"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig       = config.Load
	openStore        = app.OpenStore
	newOrchestrator  = app.NewOrchestrator
	researchProvider = app.ResearchProvider
	secretsBox       = app.SecretsBox
	dialTemporal     = client.Dial
	newServer        = func(deps api.Dependencies, cfg config.Config) server {
		return api.NewServer(deps, cfg)
	}
	notifyContext = signal.NotifyContext
	logOutput     = io.Writer(os.Stderr)
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
	logger := app.NewLogger(cfg, logOutput)
	if cfg.AuthMode == "static" {
		logger.Warn().
			Bool("allow_static", cfg.AuthAllowStatic).
			Msg("AUTH_MODE=static accepts the fixed dev token; use AUTH_MODE=remote outside local development")
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := events.NewBroker()
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()
	emitter := chat.NewStoreEmitter(st, broker, "control_plane")

	var dispatcher chat.Dispatcher
	switch cfg.TurnBackend {
	case "temporal":
		temporalClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return err
		}
		if temporalClient != nil {
			defer temporalClient.Close()
		}
		dispatcher = workflows.NewService(temporalClient, cfg.TemporalTaskQueue)
	default:
		orchestrator, err := newOrchestrator(cfg, logger)
		if err != nil {
			return err
		}
		turns := chat.NewService(ctx, st, orchestrator, emitter, chat.WithLogger(logging.Component(logger, "chat")))
		defer turns.Wait()
		dispatcher = turns
	}

	completer, err := researchProvider(cfg)
	if err != nil {
		return err
	}
	box, err := secretsBox(cfg)
	if err != nil {
		return err
	}
	verifier, session := app.Identity(cfg)

	srv := newServer(api.Dependencies{
		Store:      st,
		Broker:     broker,
		Dispatcher: dispatcher,
		Events:     emitter,
		Verifier:   verifier,
		Session:    session,
		Completer:  completer,
		Secrets:    box,
		Logger:     logging.Component(logger, "api"),
	}, cfg)

	addr := fmt.Sprintf(":%s", cfg.ControlPlanePort)
	logger.Info().
		Str("addr", addr).
		Str("store", cfg.StoreBackend).
		Str("turns", cfg.TurnBackend).
		Msg("carbonN control plane listening")
	if err := srv.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
