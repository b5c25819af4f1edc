package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/secrets"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

func TestWorkflowEndpoints(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/workflows", `{"description":"no name"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/workflows", `{"name":"Daily digest","trigger_type":"schedule","trigger_config":{"cron":"0 9 * * *"},"actions":[{"type":"email"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var workflow workflowResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&workflow))
	require.Equal(t, "Daily digest", workflow.Name)
	require.True(t, workflow.IsActive)
	require.Equal(t, "0 9 * * *", workflow.TriggerConfig["cron"])

	rec = env.do(t, http.MethodPost, "/workflows", `{"name":"Paused","is_active":false}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Workflows []workflowResponse `json:"workflows"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Workflows, 1)
	require.Equal(t, "manual", env.mustWorkflowByName(t, "Paused").TriggerType)

	rec = env.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/runs", `{"status":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/runs", `{"status":"completed","started_at":"2026-01-01T00:00:00Z","completed_at":"2026-01-01T00:00:05Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs struct {
		Runs []workflowRunResponse `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs.Runs, 1)
	require.Equal(t, "completed", runs.Runs[0].Status)

	stored, err := env.store.GetWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.ExecutionCount)

	rec = env.do(t, http.MethodGet, "/workflows/unknown/runs", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func (e *testEnv) mustWorkflowByName(t *testing.T, name string) store.Workflow {
	t.Helper()
	workflows, err := e.store.ListWorkflows(context.Background(), store.WorkflowFilter{UserID: e.user.ID})
	require.NoError(t, err)
	for _, workflow := range workflows {
		if workflow.Name == name {
			return workflow
		}
	}
	t.Fatalf("workflow %q not found", name)
	return store.Workflow{}
}

func TestIntegrationTokensAreSealed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodPost, "/integrations", `{"service_name":"Google Calendar","service_type":"calendar","access_token":"secret"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	box, err := secrets.NewBox(key)
	require.NoError(t, err)
	env.server.secrets = box

	rec = env.do(t, http.MethodPost, "/integrations", `{"service_name":"Google Calendar","service_type":"calendar"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodPost, "/integrations", `{"service_name":"Gmail","service_type":"email","access_token":"secret","refresh_token":"refresh"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")
	require.Contains(t, rec.Body.String(), `"has_access_token":true`)

	integrations, err := env.store.ListIntegrations(context.Background(), env.user.ID)
	require.NoError(t, err)
	require.Len(t, integrations, 2)
	for _, integration := range integrations {
		if integration.ServiceName != "Gmail" {
			require.Empty(t, integration.AccessTokenEnc)
			continue
		}
		require.NotEqual(t, "secret", integration.AccessTokenEnc)
		plain, err := box.Open(integration.AccessTokenEnc)
		require.NoError(t, err)
		require.Equal(t, "secret", plain)
	}

	rec = env.do(t, http.MethodGet, "/integrations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "access_token_enc")

	rec = env.do(t, http.MethodPost, "/integrations", `{"service_name":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIntegrationCredentialCheck(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	box, err := secrets.NewBox(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	require.NoError(t, err)
	rotated, err := secrets.NewBox(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("r", 32))))
	require.NoError(t, err)
	sealed, err := box.Seal("access")
	require.NoError(t, err)
	require.NoError(t, env.store.CreateIntegration(ctx, store.Integration{
		ID: "int-1", UserID: env.user.ID, ServiceName: "Gmail", ServiceType: "email",
		AccessTokenEnc: sealed, ExpiresAt: "2020-01-01T00:00:00Z", IsActive: true,
	}))
	require.NoError(t, env.store.CreateIntegration(ctx, store.Integration{
		ID: "int-2", UserID: "someone-else", ServiceName: "Drive", ServiceType: "document",
	}))

	rec := env.do(t, http.MethodGet, "/integrations/int-1/credentials", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.server.secrets = box
	rec = env.do(t, http.MethodGet, "/integrations/int-1/credentials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload credentialCheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, credentialCheckResponse{ID: "int-1", AccessToken: "valid", RefreshToken: "missing", Expired: true}, payload)
	require.NotContains(t, rec.Body.String(), sealed)

	env.server.secrets = rotated
	rec = env.do(t, http.MethodGet, "/integrations/int-1/credentials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "unreadable", payload.AccessToken)

	rec = env.do(t, http.MethodGet, "/integrations/int-2/credentials", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	require.NoError(t, env.store.CreateWorkflow(ctx, store.Workflow{ID: "wf-1", UserID: env.user.ID, Name: "A", IsActive: true, CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, env.store.CreateWorkflow(ctx, store.Workflow{ID: "wf-2", UserID: env.user.ID, Name: "B", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, env.store.CreateWorkflow(ctx, store.Workflow{ID: "wf-3", UserID: "other", Name: "C", IsActive: true}))
	for i, status := range []string{"completed", "completed", "failed", "running"} {
		require.NoError(t, env.store.CreateWorkflowRun(ctx, store.WorkflowRun{
			ID:         "run-" + status + string(rune('a'+i)),
			WorkflowID: "wf-1",
			UserID:     env.user.ID,
			Status:     status,
			StartedAt:  "2026-01-01T00:00:0" + string(rune('1'+i)) + "Z",
		}))
	}
	require.NoError(t, env.store.CreateIntegration(ctx, store.Integration{ID: "int-1", UserID: env.user.ID, ServiceName: "Gmail", ServiceType: "email", IsActive: true}))
	env.seedConversation(t, "conv-1", env.user.ID)

	rec := env.do(t, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var payload dashboardResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	require.Equal(t, 2, payload.TotalWorkflows)
	require.Equal(t, 1, payload.ActiveWorkflows)
	require.Equal(t, int64(4), payload.TotalExecutions)
	require.Equal(t, 4, payload.TotalRuns)
	require.Equal(t, 2, payload.SuccessfulRuns)
	require.Equal(t, 1, payload.FailedRuns)
	require.InDelta(t, 66.7, payload.SuccessRate, 0.001)
	require.Equal(t, 1, payload.Integrations)
	require.Equal(t, 1, payload.ActiveIntegrations)
	require.Equal(t, 1, payload.Conversations)
	require.Len(t, payload.RecentRuns, 4)
}

func TestSummarizeEmpty(t *testing.T) {
	out := summarize(nil, nil, nil, nil)
	require.Zero(t, out.SuccessRate)
	require.NotNil(t, out.RecentRuns)
}
