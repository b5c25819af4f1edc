package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store/postgres"
)

func captureCLIDeps(t *testing.T) {
	t.Helper()
	origLoadConfig := loadConfig
	origNewOrchestrator := newOrchestrator
	origMigrateUp := migrateUp
	origMigrationStatus := migrationStatus
	t.Cleanup(func() {
		loadConfig = origLoadConfig
		newOrchestrator = origNewOrchestrator
		migrateUp = origMigrateUp
		migrationStatus = origMigrationStatus
	})
	loadConfig = func() (config.Config, error) {
		return config.Config{
			StoreBackend:          "memory",
			LLMMode:               "local",
			AssistantDeepResearch: true,
			LogLevel:              "error",
			LogFormat:             "json",
			PostgresURL:           "postgres://cli",
		}, nil
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAskGeneralReply(t *testing.T) {
	captureCLIDeps(t)

	out, err := execute(t, "ask", "--raw", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "Local mode reply to:")
	assert.Contains(t, out, "hello there")
	assert.NotContains(t, out, "---")
}

func TestAskListsActionStatuses(t *testing.T) {
	captureCLIDeps(t)

	out, err := execute(t, "ask", "--raw", "write a document about the roadmap")
	require.NoError(t, err)
	assert.Contains(t, out, "**document**: completed")
}

func TestAskRendersMarkdown(t *testing.T) {
	captureCLIDeps(t)

	out, err := execute(t, "ask", "hello")
	require.NoError(t, err)
	plain := regexp.MustCompile(`\x1b\[[0-9;]*m`).ReplaceAllString(out, "")
	assert.Contains(t, plain, "Local")
	assert.Contains(t, plain, "hello")
}

func TestAskRequiresMessage(t *testing.T) {
	captureCLIDeps(t)

	_, err := execute(t, "ask")
	assert.Error(t, err)
}

func TestAskOrchestratorFailure(t *testing.T) {
	captureCLIDeps(t)
	newOrchestrator = func(config.Config, zerolog.Logger) (*assistant.Orchestrator, error) {
		return nil, errors.New("no provider")
	}

	_, err := execute(t, "ask", "hello")
	assert.EqualError(t, err, "no provider")
}

func TestReplyMarkdownIncludesErrors(t *testing.T) {
	text := replyMarkdown(assistant.Message{
		Content: "partial",
		Metadata: &assistant.Metadata{Actions: []assistant.ActionResult{
			{Type: assistant.IntentResearch, Status: assistant.StatusFailed, Error: "search unavailable"},
		}},
	})
	assert.Contains(t, text, "partial")
	assert.Contains(t, text, "**research**: failed (search unavailable)")
}

func TestRulesDefaults(t *testing.T) {
	captureCLIDeps(t)

	out, err := execute(t, "rules")
	require.NoError(t, err)
	assert.Equal(t, "research: research, find, analyze\n"+
		"calendar: calendar, schedule\n"+
		"document: document, create, generate, write\n", out)
}

func TestRulesFromFile(t *testing.T) {
	captureCLIDeps(t)
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - intent: calendar\n    keywords: [meeting, Remind]\n"), 0o600))

	out, err := execute(t, "rules", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "calendar: meeting, remind\n", out)
}

func TestMigrateUp(t *testing.T) {
	captureCLIDeps(t)
	var gotConn string
	migrateUp = func(_ context.Context, conn string) ([]int64, error) {
		gotConn = conn
		return []int64{1, 2}, nil
	}

	out, err := execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "postgres://cli", gotConn)
	assert.Equal(t, "applied 1\napplied 2\n", out)
}

func TestMigrateUpNothingPending(t *testing.T) {
	captureCLIDeps(t)
	migrateUp = func(context.Context, string) ([]int64, error) { return nil, nil }

	out, err := execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "schema up to date\n", out)
}

func TestMigrateStatus(t *testing.T) {
	captureCLIDeps(t)
	migrationStatus = func(context.Context, string) ([]postgres.MigrationStatus, error) {
		return []postgres.MigrationStatus{
			{Version: 1, Path: "00001_init.sql", Applied: true},
			{Version: 2, Path: "00002_events.sql"},
		}, nil
	}

	out, err := execute(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION")
	assert.Regexp(t, `1\s+applied\s+00001_init.sql`, out)
	assert.Regexp(t, `2\s+pending\s+00002_events.sql`, out)
}

func TestMigrateStatusFailure(t *testing.T) {
	captureCLIDeps(t)
	migrationStatus = func(context.Context, string) ([]postgres.MigrationStatus, error) {
		return nil, errors.New("connection refused")
	}

	_, err := execute(t, "migrate", "status")
	assert.EqualError(t, err, "connection refused")
}
