package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

type workflowResponse struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Name           string           `json:"name"`
	Description    string           `json:"description,omitempty"`
	TriggerType    string           `json:"trigger_type"`
	TriggerConfig  map[string]any   `json:"trigger_config"`
	Actions        []map[string]any `json:"actions"`
	IsActive       bool             `json:"is_active"`
	ExecutionCount int64            `json:"execution_count"`
	LastExecuted   string           `json:"last_executed,omitempty"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
}

type workflowRunResponse struct {
	ID          string `json:"id"`
	WorkflowID  string `json:"workflow_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type integrationResponse struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ServiceName     string `json:"service_name"`
	ServiceType     string `json:"service_type"`
	HasAccessToken  bool   `json:"has_access_token"`
	HasRefreshToken bool   `json:"has_refresh_token"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	IsActive        bool   `json:"is_active"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toWorkflowResponse(workflow store.Workflow) workflowResponse {
	triggerConfig := workflow.TriggerConfig
	if triggerConfig == nil {
		triggerConfig = map[string]any{}
	}
	actions := workflow.Actions
	if actions == nil {
		actions = []map[string]any{}
	}
	return workflowResponse{
		ID:             workflow.ID,
		UserID:         workflow.UserID,
		Name:           workflow.Name,
		Description:    workflow.Description,
		TriggerType:    workflow.TriggerType,
		TriggerConfig:  triggerConfig,
		Actions:        actions,
		IsActive:       workflow.IsActive,
		ExecutionCount: workflow.ExecutionCount,
		LastExecuted:   workflow.LastExecuted,
		CreatedAt:      workflow.CreatedAt,
		UpdatedAt:      workflow.UpdatedAt,
	}
}

func toWorkflowRunResponse(run store.WorkflowRun) workflowRunResponse {
	return workflowRunResponse{
		ID:          run.ID,
		WorkflowID:  run.WorkflowID,
		UserID:      run.UserID,
		Status:      run.Status,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

func toIntegrationResponse(integration store.Integration) integrationResponse {
	return integrationResponse{
		ID:              integration.ID,
		UserID:          integration.UserID,
		ServiceName:     integration.ServiceName,
		ServiceType:     integration.ServiceType,
		HasAccessToken:  integration.AccessTokenEnc != "",
		HasRefreshToken: integration.RefreshTokenEnc != "",
		ExpiresAt:       integration.ExpiresAt,
		IsActive:        integration.IsActive,
		CreatedAt:       integration.CreatedAt,
		UpdatedAt:       integration.UpdatedAt,
	}
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	workflows, err := s.store.ListWorkflows(r.Context(), store.WorkflowFilter{
		UserID:     currentUser(r).ID,
		ActiveOnly: activeOnly,
		Limit:      queryLimit(r),
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]workflowResponse, 0, len(workflows))
	for _, workflow := range workflows {
		out = append(out, toWorkflowResponse(workflow))
	}
	writeJSON(w, map[string]any{"workflows": out})
}

type createWorkflowRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	TriggerType   string           `json:"trigger_type"`
	TriggerConfig map[string]any   `json:"trigger_config"`
	Actions       []map[string]any `json:"actions"`
	IsActive      *bool            `json:"is_active"`
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, "name required", http.StatusBadRequest)
		return
	}
	triggerType := strings.TrimSpace(req.TriggerType)
	if triggerType == "" {
		triggerType = "manual"
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	now := nowTimestamp()
	workflow := store.Workflow{
		ID:            uuid.NewString(),
		UserID:        currentUser(r).ID,
		Name:          name,
		Description:   strings.TrimSpace(req.Description),
		TriggerType:   triggerType,
		TriggerConfig: req.TriggerConfig,
		Actions:       req.Actions,
		IsActive:      isActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateWorkflow(r.Context(), workflow); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, toWorkflowResponse(workflow), http.StatusCreated)
}

func (s *Server) ownedWorkflow(w http.ResponseWriter, r *http.Request) (*store.Workflow, bool) {
	workflow, err := s.store.GetWorkflow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if workflow == nil || workflow.UserID != currentUser(r).ID {
		writeError(w, "workflow not found", http.StatusNotFound)
		return nil, false
	}
	return workflow, true
}

func (s *Server) listWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	workflow, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	runs, err := s.store.ListWorkflowRuns(r.Context(), store.WorkflowRunFilter{
		UserID:     workflow.UserID,
		WorkflowID: workflow.ID,
		Limit:      queryLimit(r),
	})
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]workflowRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toWorkflowRunResponse(run))
	}
	writeJSON(w, map[string]any{"runs": out})
}

type createWorkflowRunRequest struct {
	Status      string `json:"status"`
	Error       string `json:"error"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

func (s *Server) createWorkflowRun(w http.ResponseWriter, r *http.Request) {
	workflow, ok := s.ownedWorkflow(w, r)
	if !ok {
		return
	}
	var req createWorkflowRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		status = "running"
	}
	switch status {
	case "running", "completed", "failed":
	default:
		writeError(w, "status must be running, completed or failed", http.StatusBadRequest)
		return
	}
	startedAt := strings.TrimSpace(req.StartedAt)
	if startedAt == "" {
		startedAt = nowTimestamp()
	}
	run := store.WorkflowRun{
		ID:          uuid.NewString(),
		WorkflowID:  workflow.ID,
		UserID:      workflow.UserID,
		Status:      status,
		Error:       strings.TrimSpace(req.Error),
		StartedAt:   startedAt,
		CompletedAt: strings.TrimSpace(req.CompletedAt),
	}
	if err := s.store.CreateWorkflowRun(r.Context(), run); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, toWorkflowRunResponse(run), http.StatusCreated)
}

func (s *Server) listIntegrations(w http.ResponseWriter, r *http.Request) {
	integrations, err := s.store.ListIntegrations(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]integrationResponse, 0, len(integrations))
	for _, integration := range integrations {
		out = append(out, toIntegrationResponse(integration))
	}
	writeJSON(w, map[string]any{"integrations": out})
}

type credentialCheckResponse struct {
	ID           string `json:"id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expired      bool   `json:"expired"`
}

const (
	credentialMissing    = "missing"
	credentialValid      = "valid"
	credentialUnreadable = "unreadable"
)

// checkIntegration reports whether the stored tokens still decrypt with the
// current key. Plaintext never leaves the server.
func (s *Server) checkIntegration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	integrations, err := s.store.ListIntegrations(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var found *store.Integration
	for i := range integrations {
		if integrations[i].ID == id {
			found = &integrations[i]
			break
		}
	}
	if found == nil {
		writeError(w, "integration not found", http.StatusNotFound)
		return
	}
	if (found.AccessTokenEnc != "" || found.RefreshTokenEnc != "") && s.secrets == nil {
		writeError(w, "token storage is not configured", http.StatusServiceUnavailable)
		return
	}
	out := credentialCheckResponse{
		ID:           found.ID,
		AccessToken:  s.credentialState(found.AccessTokenEnc),
		RefreshToken: s.credentialState(found.RefreshTokenEnc),
	}
	if expiresAt, err := time.Parse(time.RFC3339, found.ExpiresAt); err == nil {
		out.Expired = !expiresAt.After(time.Now())
	}
	writeJSON(w, out)
}

func (s *Server) credentialState(sealed string) string {
	if sealed == "" {
		return credentialMissing
	}
	plain, err := s.secrets.Open(sealed)
	if err != nil || plain == "" {
		return credentialUnreadable
	}
	return credentialValid
}

type createIntegrationRequest struct {
	ServiceName  string `json:"service_name"`
	ServiceType  string `json:"service_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
	IsActive     *bool  `json:"is_active"`
}

func (s *Server) createIntegration(w http.ResponseWriter, r *http.Request) {
	var req createIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	serviceName := strings.TrimSpace(req.ServiceName)
	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceName == "" || serviceType == "" {
		writeError(w, "service_name and service_type required", http.StatusBadRequest)
		return
	}
	if (req.AccessToken != "" || req.RefreshToken != "") && s.secrets == nil {
		writeError(w, "token storage is not configured", http.StatusServiceUnavailable)
		return
	}
	var accessToken, refreshToken string
	if s.secrets != nil {
		var err error
		if accessToken, err = s.secrets.SealOptional(req.AccessToken); err != nil {
			writeError(w, "encrypt access token", http.StatusInternalServerError)
			return
		}
		if refreshToken, err = s.secrets.SealOptional(req.RefreshToken); err != nil {
			writeError(w, "encrypt refresh token", http.StatusInternalServerError)
			return
		}
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}
	now := nowTimestamp()
	integration := store.Integration{
		ID:              uuid.NewString(),
		UserID:          currentUser(r).ID,
		ServiceName:     serviceName,
		ServiceType:     serviceType,
		AccessTokenEnc:  accessToken,
		RefreshTokenEnc: refreshToken,
		ExpiresAt:       strings.TrimSpace(req.ExpiresAt),
		IsActive:        isActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateIntegration(r.Context(), integration); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, toIntegrationResponse(integration), http.StatusCreated)
}

type dashboardResponse struct {
	TotalWorkflows     int                   `json:"total_workflows"`
	ActiveWorkflows    int                   `json:"active_workflows"`
	TotalExecutions    int64                 `json:"total_executions"`
	TotalRuns          int                   `json:"total_runs"`
	SuccessfulRuns     int                   `json:"successful_runs"`
	FailedRuns         int                   `json:"failed_runs"`
	SuccessRate        float64               `json:"success_rate"`
	Integrations       int                   `json:"integrations"`
	ActiveIntegrations int                   `json:"active_integrations"`
	Conversations      int                   `json:"conversations"`
	RecentRuns         []workflowRunResponse `json:"recent_runs"`
}

const recentRunLimit = 5

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r).ID
	var (
		workflows     []store.Workflow
		runs          []store.WorkflowRun
		integrations  []store.Integration
		conversations []store.ConversationSummary
	)
	p := pool.New().WithContext(r.Context()).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		workflows, err = s.store.ListWorkflows(ctx, store.WorkflowFilter{UserID: userID})
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		runs, err = s.store.ListWorkflowRuns(ctx, store.WorkflowRunFilter{UserID: userID})
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		integrations, err = s.store.ListIntegrations(ctx, userID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		conversations, err = s.store.ListConversations(ctx, userID)
		return err
	})
	if err := p.Wait(); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, summarize(workflows, runs, integrations, conversations))
}

func summarize(workflows []store.Workflow, runs []store.WorkflowRun, integrations []store.Integration, conversations []store.ConversationSummary) dashboardResponse {
	out := dashboardResponse{
		TotalWorkflows: len(workflows),
		TotalRuns:      len(runs),
		Integrations:   len(integrations),
		Conversations:  len(conversations),
		RecentRuns:     []workflowRunResponse{},
	}
	for _, workflow := range workflows {
		if workflow.IsActive {
			out.ActiveWorkflows++
		}
		out.TotalExecutions += workflow.ExecutionCount
	}
	for i, run := range runs {
		switch run.Status {
		case "completed":
			out.SuccessfulRuns++
		case "failed":
			out.FailedRuns++
		}
		if i < recentRunLimit {
			out.RecentRuns = append(out.RecentRuns, toWorkflowRunResponse(run))
		}
	}
	for _, integration := range integrations {
		if integration.IsActive {
			out.ActiveIntegrations++
		}
	}
	if finished := out.SuccessfulRuns + out.FailedRuns; finished > 0 {
		out.SuccessRate = math.Round(float64(out.SuccessfulRuns)/float64(finished)*1000) / 10
	}
	return out
}
