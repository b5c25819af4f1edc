package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

type Classifier interface {
	Classify(ctx context.Context, utterance string, analysis string) []Intent
}

// KeywordSource is implemented by classifiers that can report their trigger
// words. The research query is derived by removing them.
type KeywordSource interface {
	Keywords(intent Intent) []string
}

type Rule struct {
	Intent   Intent   `toml:"intent" yaml:"intent" json:"intent"`
	Keywords []string `toml:"keywords" yaml:"keywords" json:"keywords"`
}

func DefaultRules() []Rule {
	return []Rule{
		{Intent: IntentResearch, Keywords: []string{"research", "find", "analyze"}},
		{Intent: IntentCalendar, Keywords: []string{"calendar", "schedule"}},
		{Intent: IntentDocument, Keywords: []string{"document", "create", "generate", "write"}},
	}
}

// KeywordClassifier matches case-insensitive substrings. There is no negation
// handling: "don't write anything" still classifies as document.
type KeywordClassifier struct {
	keywords map[Intent][]string
}

func NewKeywordClassifier(rules []Rule) (*KeywordClassifier, error) {
	keywords := map[Intent][]string{}
	for _, rule := range rules {
		switch rule.Intent {
		case IntentResearch, IntentCalendar, IntentDocument:
		default:
			return nil, fmt.Errorf("rule intent %q cannot be keyword matched", rule.Intent)
		}
		for _, keyword := range rule.Keywords {
			keyword = strings.ToLower(strings.TrimSpace(keyword))
			if keyword == "" {
				continue
			}
			keywords[rule.Intent] = append(keywords[rule.Intent], keyword)
		}
	}
	return &KeywordClassifier{keywords: keywords}, nil
}

func (k *KeywordClassifier) Classify(ctx context.Context, utterance string, analysis string) []Intent {
	utterance = strings.ToLower(utterance)
	analysis = strings.ToLower(analysis)
	intents := []Intent{}
	for _, intent := range stepOrder {
		if containsAny(utterance, k.keywords[intent]) || containsAny(analysis, k.keywords[intent]) {
			intents = append(intents, intent)
		}
	}
	return intents
}

func (k *KeywordClassifier) Keywords(intent Intent) []string {
	return append([]string(nil), k.keywords[intent]...)
}

func (k *KeywordClassifier) Rules() []Rule {
	rules := make([]Rule, 0, len(stepOrder))
	for _, intent := range stepOrder {
		if len(k.keywords[intent]) == 0 {
			continue
		}
		rules = append(rules, Rule{Intent: intent, Keywords: k.Keywords(intent)})
	}
	return rules
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// ResearchQuery removes every trigger substring from utterance, ignoring
// case. When nothing is left the trimmed utterance is used as is.
func ResearchQuery(utterance string, triggers []string) string {
	quoted := make([]string, 0, len(triggers))
	for _, trigger := range triggers {
		if trigger = strings.TrimSpace(trigger); trigger != "" {
			quoted = append(quoted, regexp.QuoteMeta(trigger))
		}
	}
	query := utterance
	if len(quoted) > 0 {
		pattern := regexp.MustCompile("(?i)" + strings.Join(quoted, "|"))
		query = pattern.ReplaceAllString(utterance, "")
	}
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return strings.TrimSpace(utterance)
	}
	return query
}
