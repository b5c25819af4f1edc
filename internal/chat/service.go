package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/assistant"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/store"
)

var ErrConversationNotFound = errors.New("conversation not found")

// Dispatcher accepts a user utterance for a conversation. A nil error means
// the turn was accepted and will run asynchronously.
type Dispatcher interface {
	Submit(ctx context.Context, conversationID string, utterance string) error
}

type Option func(*Service)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithoutSessionCache reloads the conversation from the store for every
// turn. Used by the worker, where turns for one conversation may land on
// different processes.
func WithoutSessionCache() Option {
	return func(s *Service) {
		s.cache = false
	}
}

// Service runs assistant turns in-process, one session per conversation.
type Service struct {
	store        store.Store
	orchestrator *assistant.Orchestrator
	emitter      Emitter
	logger       zerolog.Logger
	cache        bool

	mu       sync.Mutex
	sessions map[string]*assistant.Session

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewService(baseCtx context.Context, s store.Store, orchestrator *assistant.Orchestrator, emitter Emitter, opts ...Option) *Service {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	svc := &Service{
		store:        s,
		orchestrator: orchestrator,
		emitter:      emitter,
		logger:       zerolog.Nop(),
		cache:        true,
		sessions:     map[string]*assistant.Session{},
		baseCtx:      baseCtx,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit starts a turn in the background. Blank and busy submissions are
// rejected with assistant.ErrBlankInput and assistant.ErrBusy.
func (s *Service) Submit(ctx context.Context, conversationID string, utterance string) error {
	session, err := s.session(ctx, conversationID)
	if err != nil {
		return err
	}
	turn, err := s.orchestrator.Begin(session, utterance)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := turn.Run(s.baseCtx); err != nil {
			s.logger.Error().Err(err).Str("conversation_id", conversationID).Msg("turn failed")
		}
	}()
	return nil
}

// RunTurn runs one turn to completion and returns the assistant reply.
func (s *Service) RunTurn(ctx context.Context, conversationID string, utterance string) (assistant.Message, error) {
	session, err := s.session(ctx, conversationID)
	if err != nil {
		return assistant.Message{}, err
	}
	return s.orchestrator.Send(ctx, session, utterance)
}

// Busy reports whether a turn is running for the conversation in this
// process.
func (s *Service) Busy(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[conversationID]
	return ok && session.Busy()
}

// Wait blocks until background turns have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) session(ctx context.Context, conversationID string) (*assistant.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache {
		if session, ok := s.sessions[conversationID]; ok {
			return session, nil
		}
	}
	conversation, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	stored, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	history := make([]assistant.Message, 0, len(stored))
	for _, msg := range stored {
		converted, err := FromStoreMessage(msg)
		if err != nil {
			return nil, err
		}
		history = append(history, converted)
	}
	session := assistant.NewSession(assistant.NewConversation(
		conversationID,
		history,
		NewRecorder(s.emitter, s.logger),
	))
	if s.cache {
		s.sessions[conversationID] = session
	}
	return session, nil
}
