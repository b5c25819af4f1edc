package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrBlankInput = errors.New("message content required")
	ErrBusy       = errors.New("a turn is already in progress")
)

type TurnState string

const (
	StateIdle        TurnState = "idle"
	StateClassifying TurnState = "classifying"
	StateResearching TurnState = "researching"
	StateScheduling  TurnState = "scheduling"
	StateDocumenting TurnState = "documenting"
	StateResponding  TurnState = "responding"
	StateAssembling  TurnState = "assembling"
)

func stateFor(intent Intent) TurnState {
	switch intent {
	case IntentResearch:
		return StateResearching
	case IntentCalendar:
		return StateScheduling
	case IntentDocument:
		return StateDocumenting
	default:
		return StateResponding
	}
}

type Dependencies struct {
	Classifier Classifier
	Text       TextGenerator
	Extractor  ObjectExtractor
	Search     WebSearcher
}

type Option func(*Orchestrator)

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithAnalysis enables a model call that describes the request before
// classification. Its text is matched alongside the utterance.
func WithAnalysis(enabled bool) Option {
	return func(o *Orchestrator) { o.analysis = enabled }
}

// WithDeepResearch(false) suppresses the research intent.
func WithDeepResearch(enabled bool) Option {
	return func(o *Orchestrator) { o.deepResearch = enabled }
}

func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator runs user turns. It holds no per-conversation state and is
// shared by all sessions.
type Orchestrator struct {
	classifier   Classifier
	text         TextGenerator
	extractor    ObjectExtractor
	search       WebSearcher
	logger       zerolog.Logger
	analysis     bool
	deepResearch bool
	systemPrompt string
	model        string
	now          func() time.Time
	newID        func() string
}

func New(deps Dependencies, opts ...Option) (*Orchestrator, error) {
	if deps.Text == nil {
		return nil, errors.New("text generation capability required")
	}
	o := &Orchestrator{
		classifier:   deps.Classifier,
		text:         deps.Text,
		extractor:    deps.Extractor,
		search:       deps.Search,
		logger:       zerolog.Nop(),
		deepResearch: true,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	if o.classifier == nil {
		classifier, err := NewKeywordClassifier(DefaultRules())
		if err != nil {
			return nil, err
		}
		o.classifier = classifier
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Session couples a conversation with its turn guard.
type Session struct {
	conversation *Conversation
	guard        Guard
	mu           sync.RWMutex
	state        TurnState
}

func NewSession(conversation *Conversation) *Session {
	return &Session{conversation: conversation, state: StateIdle}
}

func (s *Session) Conversation() *Conversation {
	return s.conversation
}

func (s *Session) State() TurnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Busy() bool {
	return s.guard.Busy()
}

func (s *Session) setState(ctx context.Context, state TurnState) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()
	s.conversation.emit(ctx, Change{Kind: ChangeTurnState, State: state})
}

// Turn is an accepted user submission holding the session guard until Run
// returns.
type Turn struct {
	o         *Orchestrator
	session   *Session
	utterance string
	replyID   string
	research  string
	logger    zerolog.Logger
}

// Begin validates the utterance and claims the session. Blank input and busy
// sessions are rejected without touching the conversation.
func (o *Orchestrator) Begin(session *Session, utterance string) (*Turn, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, ErrBlankInput
	}
	if !session.guard.TryAcquire() {
		return nil, ErrBusy
	}
	return &Turn{
		o:         o,
		session:   session,
		utterance: utterance,
		logger:    o.logger.With().Str("conversation_id", session.conversation.ID()).Logger(),
	}, nil
}

// Send runs one full turn synchronously.
func (o *Orchestrator) Send(ctx context.Context, session *Session, utterance string) (Message, error) {
	turn, err := o.Begin(session, utterance)
	if err != nil {
		return Message{}, err
	}
	return turn.Run(ctx)
}

// Run executes the turn and returns the assistant reply. Step failures are
// folded into the reply; an error is returned only when the conversation
// itself rejected a write.
func (t *Turn) Run(ctx context.Context) (reply Message, err error) {
	conv := t.session.conversation
	defer t.session.guard.Release()
	defer t.session.setState(ctx, StateIdle)
	defer func() {
		if r := recover(); r != nil {
			reply, err = t.fail(ctx, fmt.Errorf("turn panicked: %v", r))
		}
	}()

	userMsg := Message{
		ID:        t.o.newID(),
		Role:      RoleUser,
		Content:   t.utterance,
		CreatedAt: t.o.now(),
	}
	if err := conv.Append(ctx, userMsg); err != nil {
		return Message{}, err
	}

	t.session.setState(ctx, StateClassifying)
	analysis := ""
	if t.o.analysis {
		analysis, err = t.o.text.GenerateText(ctx, TextRequest{Prompt: analysisPrompt(t.utterance), Model: t.o.model})
		if err != nil {
			return t.fail(ctx, fmt.Errorf("analysis: %w", err))
		}
	}
	intents := t.o.classify(ctx, t.utterance, analysis)
	t.logger.Debug().Strs("intents", intentNames(intents)).Msg("classified turn")

	if len(intents) == 0 {
		return t.respondGeneral(ctx)
	}
	return t.runSteps(ctx, intents)
}

func (o *Orchestrator) classify(ctx context.Context, utterance string, analysis string) []Intent {
	classified := o.classifier.Classify(ctx, utterance, analysis)
	intents := make([]Intent, 0, len(classified))
	for _, intent := range classified {
		if intent == IntentResearch && !o.deepResearch {
			continue
		}
		if intent == IntentGeneral {
			continue
		}
		intents = append(intents, intent)
	}
	return intents
}

func (t *Turn) generalText(ctx context.Context) (string, error) {
	t.session.setState(ctx, StateResponding)
	return t.o.text.GenerateText(ctx, TextRequest{
		Prompt: generalPrompt(t.utterance),
		System: t.o.systemPrompt,
		Model:  t.o.model,
	})
}

func (t *Turn) respondGeneral(ctx context.Context) (Message, error) {
	text, err := t.generalText(ctx)
	if err != nil {
		return t.fail(ctx, fmt.Errorf("general reply: %w", err))
	}
	t.session.setState(ctx, StateAssembling)
	reply := Message{
		ID:        t.o.newID(),
		Role:      RoleAssistant,
		Content:   text,
		CreatedAt: t.o.now(),
		Metadata: &Metadata{
			Action:  []Intent{IntentGeneral},
			Actions: []ActionResult{{Type: IntentGeneral, Status: StatusCompleted}},
		},
	}
	if err := t.session.conversation.Append(ctx, reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func (t *Turn) runSteps(ctx context.Context, intents []Intent) (Message, error) {
	conv := t.session.conversation
	actions := make([]ActionResult, len(intents))
	for i, intent := range intents {
		actions[i] = ActionResult{Type: intent, Status: StatusPending}
	}
	reply := Message{
		ID:        t.o.newID(),
		Role:      RoleAssistant,
		CreatedAt: t.o.now(),
		Metadata: &Metadata{
			Action:  append([]Intent(nil), intents...),
			Actions: actions,
		},
	}
	if err := conv.Append(ctx, reply); err != nil {
		return Message{}, err
	}
	t.replyID = reply.ID

	parts := []string{}
	for i, intent := range intents {
		t.session.setState(ctx, stateFor(intent))
		outcome := t.o.runStep(ctx, t, intent)
		if outcome.text != "" {
			parts = append(parts, outcome.text)
		}
		content := strings.Join(parts, "\n\n")
		if _, err := conv.Update(ctx, reply.ID, func(msg *Message) error {
			msg.Content = content
			if outcome.research != nil {
				msg.Metadata.Research = outcome.research
			}
			if outcome.err == nil && outcome.payload != nil {
				msg.Metadata.Result = outcome.payload
			}
			return nil
		}); err != nil {
			return Message{}, err
		}

		status, errText := StatusCompleted, ""
		if outcome.err != nil {
			status, errText = StatusFailed, outcome.err.Error()
			t.logger.Warn().Err(outcome.err).Str("intent", string(intent)).Msg("step failed")
		}
		if err := conv.AdvanceAction(ctx, reply.ID, i, status, outcome.payload, errText); err != nil {
			return Message{}, err
		}
	}

	if len(parts) == 0 {
		// Nothing usable came out of the steps: answer the utterance directly.
		content := emptyReply
		if text, err := t.generalText(ctx); err != nil {
			t.logger.Warn().Err(err).Msg("general fallback failed")
		} else if strings.TrimSpace(text) != "" {
			content = text
		}
		t.session.setState(ctx, StateAssembling)
		return conv.Update(ctx, reply.ID, func(msg *Message) error {
			msg.Content = content
			return nil
		})
	}
	t.session.setState(ctx, StateAssembling)
	final, ok := conv.Get(reply.ID)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, reply.ID)
	}
	return final, nil
}

// fail replaces the turn's reply with the generic apology.
func (t *Turn) fail(ctx context.Context, cause error) (Message, error) {
	t.logger.Error().Err(cause).Msg("turn failed")
	conv := t.session.conversation
	if t.replyID != "" {
		return conv.Update(ctx, t.replyID, func(msg *Message) error {
			msg.Content = GenericApology
			if msg.Metadata != nil {
				for i := range msg.Metadata.Actions {
					if msg.Metadata.Actions[i].Status == StatusPending {
						_ = msg.Metadata.Actions[i].advance(StatusFailed, nil, cause.Error())
					}
				}
			}
			return nil
		})
	}
	reply := Message{
		ID:        t.o.newID(),
		Role:      RoleAssistant,
		Content:   GenericApology,
		CreatedAt: t.o.now(),
	}
	if err := conv.Append(ctx, reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func intentNames(intents []Intent) []string {
	names := make([]string, 0, len(intents))
	for _, intent := range intents {
		names = append(names, string(intent))
	}
	return names
}
