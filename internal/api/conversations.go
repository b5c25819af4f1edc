package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/chat"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

type conversationResponse struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int64  `json:"message_count"`
}

type messageResponse struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Sequence       int64          `json:"sequence"`
	CreatedAt      string         `json:"created_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	now := nowTimestamp()
	conversation := store.Conversation{
		ID:        uuid.NewString(),
		UserID:    currentUser(r).ID,
		Title:     strings.TrimSpace(req.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(r.Context(), conversation); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, conversationResponse{
		ID:        conversation.ID,
		UserID:    conversation.UserID,
		Title:     conversation.Title,
		CreatedAt: conversation.CreatedAt,
		UpdatedAt: conversation.UpdatedAt,
	}, http.StatusCreated)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListConversations(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]conversationResponse, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, conversationResponse{
			ID:           summary.ID,
			UserID:       summary.UserID,
			Title:        summary.Title,
			CreatedAt:    summary.CreatedAt,
			UpdatedAt:    summary.UpdatedAt,
			MessageCount: summary.MessageCount,
		})
	}
	writeJSON(w, map[string]any{"conversations": out})
}

// ownedConversation loads the conversation named in the route and writes a
// 404 when it is missing or belongs to someone else.
func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request) (*store.Conversation, bool) {
	conversationID := chi.URLParam(r, "id")
	conversation, err := s.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if conversation == nil || conversation.UserID != currentUser(r).ID {
		writeError(w, "conversation not found", http.StatusNotFound)
		return nil, false
	}
	return conversation, true
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	conversation, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}
	messages, err := s.store.ListMessages(r.Context(), conversation.ID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messageResponse{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			Sequence:       msg.Sequence,
			CreatedAt:      msg.CreatedAt,
			Metadata:       msg.Metadata,
		})
	}
	writeJSON(w, map[string]any{"messages": out})
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	conversation, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if s.dispatcher == nil {
		writeError(w, "assistant unavailable", http.StatusServiceUnavailable)
		return
	}

	err := s.dispatcher.Submit(r.Context(), conversation.ID, req.Content)
	switch {
	case err == nil:
		writeJSONStatus(w, map[string]string{"status": "accepted", "conversation_id": conversation.ID}, http.StatusAccepted)
	case errors.Is(err, assistant.ErrBlankInput):
		writeError(w, "message content required", http.StatusBadRequest)
	case errors.Is(err, assistant.ErrBusy):
		s.recordRejected(r, conversation.ID, "busy")
		writeError(w, "a turn is already running for this conversation", http.StatusConflict)
	case errors.Is(err, chat.ErrConversationNotFound):
		writeError(w, "conversation not found", http.StatusNotFound)
	default:
		s.logger.Error().Err(err).Str("conversation_id", conversation.ID).Msg("submit turn")
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) recordRejected(r *http.Request, conversationID string, reason string) {
	if s.events == nil {
		return
	}
	_, err := s.events.Append(r.Context(), store.Event{
		ConversationID: conversationID,
		Type:           events.TypeTurnRejected,
		Source:         "control_plane",
		TraceID:        uuid.NewString(),
		Payload:        map[string]any{"reason": reason},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("record rejected turn")
	}
}

type ingestEventRequest struct {
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	Seq       int64          `json:"seq"`
	Payload   map[string]any `json:"payload"`
}

// ingestEvent accepts events from the worker. Events that already carry a
// sequence number were persisted by the sender and are only fanned out.
func (s *Server) ingestEvent(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	conversation, err := s.store.GetConversation(r.Context(), conversationID)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conversation == nil {
		writeError(w, "conversation not found", http.StatusNotFound)
		return
	}
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		writeError(w, "event type required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Type, "_") {
		writeError(w, "event type must use dot notation", http.StatusBadRequest)
		return
	}

	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = nowTimestamp()
	}
	traceID := strings.TrimSpace(req.TraceID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	event := store.Event{
		ConversationID: conversationID,
		Seq:            req.Seq,
		Type:           events.NormalizeType(req.Type),
		Timestamp:      timestamp,
		Source:         req.Source,
		TraceID:        traceID,
		Payload:        req.Payload,
	}
	if err := store.CheckEventMessage(event); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if event.Seq > 0 {
		s.broker.Publish(chat.ToEvent(event))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if s.events == nil {
		writeError(w, "event ingest unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, err := s.events.Append(r.Context(), event); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	conversation, ok := s.ownedConversation(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	afterSeq := parseAfterSeq(conversation.ID, r)
	eventsChan := s.broker.Subscribe(ctx, conversation.ID)
	stored, err := s.store.ListEvents(ctx, conversation.ID, afterSeq)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	lastSeq := afterSeq
	for _, event := range stored {
		sendSSE(w, chat.ToEvent(event))
		lastSeq = event.Seq
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			if event.Seq <= lastSeq {
				continue
			}
			lastSeq = event.Seq
			sendSSE(w, event)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func sendSSE(w io.Writer, event events.Event) {
	payload, _ := json.Marshal(event)
	fmt.Fprintf(w, "id: %s:%d\n", event.ConversationID, event.Seq)
	fmt.Fprint(w, "event: conversation_event\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func parseAfterSeq(conversationID string, r *http.Request) int64 {
	afterParam := strings.TrimSpace(r.URL.Query().Get("after_seq"))
	if afterParam != "" {
		if parsed, err := strconv.ParseInt(afterParam, 10, 64); err == nil {
			return parsed
		}
	}
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		return 0
	}
	id, rawSeq, ok := strings.Cut(lastEventID, ":")
	if !ok || id != conversationID {
		return 0
	}
	seq, err := strconv.ParseInt(rawSeq, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}
