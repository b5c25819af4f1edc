package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	searchType  = "web"
	searchLimit = 5
)

type CalendarEvent struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// CalendarSchema is the JSON schema handed to the extraction capability.
func CalendarSchema() map[string]any {
	field := func() map[string]any { return map[string]any{"type": "string"} }
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       field(),
			"date":        field(),
			"time":        field(),
			"duration":    field(),
			"description": field(),
		},
		"required": []any{"title", "date", "time", "duration"},
	}
}

type stepOutcome struct {
	text     string
	payload  any
	research []SearchResult
	err      error
}

func (o *Orchestrator) runStep(ctx context.Context, t *Turn, intent Intent) (outcome stepOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = stepOutcome{err: fmt.Errorf("%s step panicked: %v", intent, r)}
		}
	}()
	switch intent {
	case IntentResearch:
		return o.research(ctx, t)
	case IntentCalendar:
		return o.calendar(ctx, t)
	case IntentDocument:
		return o.document(ctx, t)
	default:
		return stepOutcome{err: fmt.Errorf("no step for intent %q", intent)}
	}
}

func (o *Orchestrator) research(ctx context.Context, t *Turn) stepOutcome {
	if o.search == nil {
		return stepOutcome{text: researchApology, err: errors.New("web search is not configured")}
	}
	query := ResearchQuery(t.utterance, o.researchTriggers())
	results, err := o.search.Search(ctx, SearchRequest{Query: query, Type: searchType, Limit: searchLimit})
	if err != nil {
		return stepOutcome{text: researchApology, err: fmt.Errorf("search: %w", err)}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return stepOutcome{text: researchApology, err: err}
	}
	text, err := o.text.GenerateText(ctx, TextRequest{
		Prompt: researchPrompt(string(encoded), t.utterance),
		System: o.systemPrompt,
		Model:  o.model,
		Search: true,
	})
	if err != nil {
		return stepOutcome{text: researchApology, err: fmt.Errorf("synthesize research: %w", err)}
	}
	t.research = text
	return stepOutcome{
		text:     formatResearch(text),
		payload:  map[string]any{"query": query, "results": len(results)},
		research: results,
	}
}

func (o *Orchestrator) calendar(ctx context.Context, t *Turn) stepOutcome {
	if o.extractor == nil {
		return stepOutcome{text: calendarApology, err: errors.New("structured extraction is not configured")}
	}
	object, err := o.extractor.ExtractObject(ctx, ObjectRequest{
		Prompt: calendarPrompt(t.utterance),
		Schema: CalendarSchema(),
	})
	if err != nil {
		if errors.Is(err, ErrMalformedOutput) {
			return stepOutcome{err: err}
		}
		return stepOutcome{text: calendarApology, err: fmt.Errorf("extract event: %w", err)}
	}
	event := CalendarEvent{
		Title:       stringField(object, "title"),
		Date:        stringField(object, "date"),
		Time:        stringField(object, "time"),
		Duration:    stringField(object, "duration"),
		Description: stringField(object, "description"),
	}
	return stepOutcome{text: formatCalendar(event), payload: event}
}

func (o *Orchestrator) document(ctx context.Context, t *Turn) stepOutcome {
	content, err := o.text.GenerateText(ctx, TextRequest{
		Prompt: documentPrompt(t.utterance, t.research),
		System: o.systemPrompt,
		Model:  o.model,
	})
	if err != nil {
		return stepOutcome{text: documentApology, err: fmt.Errorf("generate document: %w", err)}
	}
	if strings.TrimSpace(content) == "" {
		return stepOutcome{err: fmt.Errorf("%w: empty document", ErrMalformedOutput)}
	}
	return stepOutcome{text: formatDocument(content), payload: content}
}

func (o *Orchestrator) researchTriggers() []string {
	if source, ok := o.classifier.(KeywordSource); ok {
		if keywords := source.Keywords(IntentResearch); len(keywords) > 0 {
			return keywords
		}
	}
	for _, rule := range DefaultRules() {
		if rule.Intent == IntentResearch {
			return rule.Keywords
		}
	}
	return nil
}

func stringField(object map[string]any, key string) string {
	value, ok := object[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
