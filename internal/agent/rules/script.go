// Package rules holds the scripted replies of the chat widget: an ordered
// table of keyword rules, a fallback, the greeting and the lead confirmation.
//
// Classification is a pure function of the utterance and the script. Rules
// are tested in script order and the first rule with a keyword contained in
// the normalized utterance wins; there is no scoring.
package rules

import (
	"context"
	"strings"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

// Reply is a canned response with its suggested actions.
type Reply struct {
	Response string         `toml:"response"`
	Actions  []model.Action `toml:"actions"`
}

// Draft turns the reply into a ReplyDraft for intent. Actions are copied.
func (r Reply) Draft(intent model.Intent) model.ReplyDraft {
	return model.ReplyDraft{
		Intent:  intent,
		Text:    r.Response,
		Actions: copyActions(r.Actions),
	}
}

// Rule ties an intent to its keywords and reply.
type Rule struct {
	Intent   model.Intent   `toml:"name"`
	Keywords []string       `toml:"keywords"`
	Response string         `toml:"response"`
	Actions  []model.Action `toml:"actions"`

	normalized []string
}

// Matches reports whether the already normalized text contains any keyword.
func (r Rule) Matches(normalized string) bool {
	for _, kw := range r.normalized {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// Draft returns the rule's reply.
func (r Rule) Draft() model.ReplyDraft {
	return Reply{Response: r.Response, Actions: r.Actions}.Draft(r.Intent)
}

// Script is an immutable, validated reply script. Build one with Parse,
// LoadFile or Default.
type Script struct {
	greeting     Reply
	rules        []Rule
	fallback     Reply
	confirmation string
}

// Match returns the first rule matching the normalized text.
func (s *Script) Match(normalized string) (Rule, bool) {
	for _, r := range s.rules {
		if r.Matches(normalized) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify selects the scripted reply for a raw utterance.
func (s *Script) Classify(utterance string) model.ReplyDraft {
	if r, ok := s.Match(Normalize(utterance)); ok {
		return r.Draft()
	}
	return s.Fallback()
}

// Reply makes Script usable directly as the conversation responder.
func (s *Script) Reply(_ context.Context, utterance string) (model.ReplyDraft, error) {
	return s.Classify(utterance), nil
}

// Fallback returns the reply used when no rule matches.
func (s *Script) Fallback() model.ReplyDraft {
	return s.fallback.Draft(model.IntentFallback)
}

// Greeting returns the seeded first message of every conversation.
func (s *Script) Greeting() Reply {
	return Reply{Response: s.greeting.Response, Actions: copyActions(s.greeting.Actions)}
}

// ConfirmationTemplate is the Go template of the lead confirmation message.
func (s *Script) ConfirmationTemplate() string {
	return s.confirmation
}

// Intents lists the rule intents in priority order, fallback excluded.
func (s *Script) Intents() []model.Intent {
	out := make([]model.Intent, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r.Intent)
	}
	return out
}

// Rules returns a copy of the ordered rules.
func (s *Script) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

func copyActions(in []model.Action) []model.Action {
	if len(in) == 0 {
		return nil
	}
	return append([]model.Action(nil), in...)
}
