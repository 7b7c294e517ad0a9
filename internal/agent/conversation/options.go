package conversation

import (
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
)

type options struct {
	replyDelayer Delayer
	submitter    LeadSubmitter
	navigator    Navigator
	clock        Clock
	observers    []Observer
	recorder     Recorder
	greeting     *rules.Reply
	confirmation ConfirmationRenderer
	history      []model.Message
	fallback     *model.ReplyDraft
}

type Option func(*options)

// WithDelayer sets the wait before each reply.
func WithDelayer(d Delayer) Option {
	return func(o *options) { o.replyDelayer = d }
}

// WithSubmitter sets the lead delivery strategy.
func WithSubmitter(s LeadSubmitter) Option {
	return func(o *options) { o.submitter = s }
}

func WithNavigator(n Navigator) Option {
	return func(o *options) { o.navigator = n }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithObserver registers an observer. May be given several times.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithGreeting overrides the seeded first agent message.
func WithGreeting(g rules.Reply) Option {
	return func(o *options) { o.greeting = &g }
}

func WithConfirmation(r ConfirmationRenderer) Option {
	return func(o *options) { o.confirmation = r }
}

// WithHistory restores a persisted transcript instead of seeding the greeting.
func WithHistory(msgs []model.Message) Option {
	return func(o *options) { o.history = msgs }
}

// WithFallbackReply sets the reply appended when the responder fails.
func WithFallbackReply(d model.ReplyDraft) Option {
	return func(o *options) { o.fallback = &d }
}

// WithScript takes greeting, fallback and confirmation from s.
func WithScript(s *rules.Script) Option {
	return func(o *options) {
		g := s.Greeting()
		fb := s.Fallback()
		o.greeting = &g
		o.fallback = &fb
		o.confirmation = newTemplateConfirmation(s.ConfirmationTemplate())
	}
}
