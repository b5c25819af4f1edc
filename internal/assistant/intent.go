package assistant

import (
	"errors"
	"fmt"
)

type Intent string

const (
	IntentResearch Intent = "research"
	IntentCalendar Intent = "calendar"
	IntentDocument Intent = "document"
	IntentGeneral  Intent = "general"
)

// stepOrder is the execution and concatenation order of classified intents.
var stepOrder = []Intent{IntentResearch, IntentCalendar, IntentDocument}

func ParseIntent(raw string) (Intent, error) {
	switch Intent(raw) {
	case IntentResearch, IntentCalendar, IntentDocument, IntentGeneral:
		return Intent(raw), nil
	default:
		return "", fmt.Errorf("unknown intent %q", raw)
	}
}

type ActionStatus string

const (
	StatusPending   ActionStatus = "pending"
	StatusCompleted ActionStatus = "completed"
	StatusFailed    ActionStatus = "failed"
)

var ErrInvalidTransition = errors.New("invalid action status transition")

// CanTransition reports whether a status may move to next. Statuses only
// leave pending, and only once.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	return s == StatusPending && (next == StatusCompleted || next == StatusFailed)
}

func (s ActionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ActionResult struct {
	Type    Intent       `json:"type"`
	Status  ActionStatus `json:"status"`
	Payload any          `json:"payload,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (a *ActionResult) advance(next ActionStatus, payload any, errText string) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, a.Type, a.Status, next)
	}
	a.Status = next
	if payload != nil {
		a.Payload = payload
	}
	a.Error = errText
	return nil
}
