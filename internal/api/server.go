package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/config"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/llm"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/personality"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/secrets"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

type Broker interface {
	Publish(event events.Event)
	Subscribe(ctx context.Context, conversationID string) <-chan events.Event
}

// EventAppender sequences and persists an event, then publishes it.
type EventAppender interface {
	Append(ctx context.Context, event store.Event) (store.Event, error)
}

type Dependencies struct {
	Store      store.Store
	Broker     Broker
	Dispatcher chat.Dispatcher
	Events     EventAppender
	Verifier   auth.Verifier
	Session    auth.Session
	// Completer backs the hosted research function. Nil disables it.
	Completer    llm.Provider
	SystemPrompt string
	Secrets      *secrets.Box
	Logger       zerolog.Logger
}

type Server struct {
	store        store.Store
	broker       Broker
	dispatcher   chat.Dispatcher
	events       EventAppender
	verifier     auth.Verifier
	session      auth.Session
	completer    llm.Provider
	systemPrompt string
	secrets      *secrets.Box
	logger       zerolog.Logger
	cfg          config.Config
	httpClient   *http.Client
}

func NewServer(deps Dependencies, cfg config.Config) *Server {
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.StaticVerifier{}
	}
	session := deps.Session
	if session == nil {
		session = auth.StaticVerifier{}
	}
	systemPrompt := strings.TrimSpace(deps.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = personality.Default
	}
	return &Server{
		store:        deps.Store,
		broker:       deps.Broker,
		dispatcher:   deps.Dispatcher,
		events:       deps.Events,
		verifier:     verifier,
		session:      session,
		completer:    deps.Completer,
		systemPrompt: systemPrompt,
		secrets:      deps.Secrets,
		logger:       deps.Logger,
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(quietRequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/auth/login/{provider}", s.login)
	r.With(auth.RequireServiceToken(s.cfg.IngestToken)).Post("/conversations/{id}/events", s.ingestEvent)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.verifier, s.store, s.logger))

		r.Get("/me", s.me)
		r.Post("/auth/logout", s.logout)
		r.Post("/conversations", s.createConversation)
		r.Get("/conversations", s.listConversations)
		r.Get("/conversations/{id}/messages", s.listMessages)
		r.Post("/conversations/{id}/messages", s.postMessage)
		r.Get("/conversations/{id}/events", s.streamEvents)
		r.Get("/workflows", s.listWorkflows)
		r.Post("/workflows", s.createWorkflow)
		r.Get("/workflows/{id}/runs", s.listWorkflowRuns)
		r.Post("/workflows/{id}/runs", s.createWorkflowRun)
		r.Get("/integrations", s.listIntegrations)
		r.Post("/integrations", s.createIntegration)
		r.Get("/integrations/{id}/credentials", s.checkIntegration)
		r.Get("/dashboard", s.dashboard)
		r.Post("/functions/v1/perplexity", s.perplexity)
	})

	return r
}

func quietRequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSuppressRequestLog(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func shouldSuppressRequestLog(method string, path string) bool {
	cleanPath := strings.TrimSpace(path)
	if strings.HasSuffix(cleanPath, "/events") && (method == http.MethodPost || method == http.MethodGet) {
		return true
	}
	if method == http.MethodGet && (cleanPath == "/health" || cleanPath == "/ready") {
		return true
	}
	return method == http.MethodOptions
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	subsystems := map[string]subsystemStatus{}
	overall := http.StatusOK

	if _, err := s.store.ListWorkflows(ctx, store.WorkflowFilter{Limit: 1}); err != nil {
		subsystems["store"] = subsystemStatus{Status: "error", Error: err.Error()}
		overall = http.StatusServiceUnavailable
	} else {
		subsystems["store"] = subsystemStatus{Status: "ok"}
	}

	if s.cfg.AuthMode != "remote" || strings.TrimSpace(s.cfg.AuthURL) == "" {
		subsystems["auth"] = subsystemStatus{Status: "skipped"}
	} else {
		resp, err := s.pingHTTP(ctx, strings.TrimRight(s.cfg.AuthURL, "/")+"/auth/v1/health")
		if err != nil {
			subsystems["auth"] = subsystemStatus{Status: "error", Error: err.Error()}
			overall = http.StatusServiceUnavailable
		} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			subsystems["auth"] = subsystemStatus{Status: "error", Error: fmt.Sprintf("health status %d", resp.StatusCode)}
			overall = http.StatusServiceUnavailable
		} else {
			subsystems["auth"] = subsystemStatus{Status: "ok"}
		}
	}

	status := "ok"
	if overall != http.StatusOK {
		status = "degraded"
	}
	writeJSONStatus(w, readinessResponse{Status: status, Subsystems: subsystems}, overall)
}

func writeJSONStatus(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, value, http.StatusOK)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, map[string]string{"error": message}, statusCode)
}

func (s *Server) pingHTTP(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.AuthAnonKey != "" {
		req.Header.Set("apikey", s.cfg.AuthAnonKey)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, resp.Body.Close()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Last-Event-ID, apikey, x-client-info")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
	return server.ListenAndServe()
}

func currentUser(r *http.Request) auth.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
