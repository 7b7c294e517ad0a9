// Package conversation implements the chat widget state machine.
//
// A Conversation owns the transcript and the AwaitingReply, FormVisible and
// Submitting flags. Hosts drive it through SubmitUtterance, InvokeAction,
// SubmitForm and CancelForm, and render Snapshot or observed events.
//
//	Idle --SubmitUtterance--> AwaitingReply --reply appended--> Idle
//	Idle --invokeForm action--> FormOpen --SubmitForm/CancelForm--> Idle
//
// At most one reply is in flight. The transcript is append-only and always
// starts with the greeting.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/connecteur-digital/chatwidget/internal/agent/graph/prompts"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// Outcome is the result of an action click.
type Outcome struct {
	NavigateTo  string `json:"navigate_to,omitempty"`
	FormVisible bool   `json:"form_visible"`
}

type Conversation struct {
	id        string
	responder Responder
	opts      options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// recordMu serializes Recorder calls; it is never taken while mu is held.
	recordMu sync.Mutex

	mu           sync.Mutex
	transcript   []model.Message
	unrecorded   []model.Message
	nextID       int64
	awaiting     bool
	formVisible  bool
	submitting   bool
	closed       bool
	lastActivity time.Time
}

func newTemplateConfirmation(tpl string) ConfirmationRenderer {
	return prompts.NewConfirmationRenderer(tpl)
}

// New creates a conversation. Without WithHistory the transcript is seeded
// with the greeting; with a history ending on a user message the missing
// reply is scheduled at once.
func New(id string, responder Responder, opts ...Option) *Conversation {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.greeting == nil || o.fallback == nil || o.confirmation == nil {
		def := options{}
		WithScript(rules.Default())(&def)
		if o.greeting == nil {
			o.greeting = def.greeting
		}
		if o.fallback == nil {
			o.fallback = def.fallback
		}
		if o.confirmation == nil {
			o.confirmation = def.confirmation
		}
	}
	if o.replyDelayer == nil {
		o.replyDelayer = TimerDelayer{Delay: DefaultReplyDelay}
	}
	if o.submitter == nil {
		o.submitter = DiscardSubmitter{Delayer: TimerDelayer{Delay: DefaultSubmitDelay}}
	}
	if o.navigator == nil {
		o.navigator = logNavigator{}
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	ctx, cancel := context.WithCancel(model.WithConversationID(context.Background(), id))
	c := &Conversation{
		id:        id,
		responder: responder,
		opts:      o,
		ctx:       ctx,
		cancel:    cancel,
		nextID:    1,
	}

	defer c.flushRecords()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = o.clock()

	if len(o.history) == 0 {
		c.appendLocked(model.SenderAgent, o.greeting.Response, o.greeting.Actions)
		return c
	}

	for _, m := range o.history {
		c.transcript = append(c.transcript, m.Clone())
		if m.ID >= c.nextID {
			c.nextID = m.ID + 1
		}
	}
	if last := c.transcript[len(c.transcript)-1]; !last.IsAgent() {
		logx.Info().Str("conversation_id", id).Int64("message_id", last.ID).Msg("resuming pending reply")
		c.startReplyLocked(last.Text)
	}
	return c
}

func (c *Conversation) ID() string {
	return c.id
}

// SubmitUtterance appends a user message and schedules the reply.
func (c *Conversation) SubmitUtterance(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errx.ErrBlankUtterance
	}

	defer c.flushRecords()
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return errx.ErrClosed
	case c.awaiting:
		return errx.ErrAwaitingReply
	case c.formVisible:
		return errx.ErrFormOpen
	}

	c.touchLocked()
	c.appendLocked(model.SenderUser, text, nil)
	c.startReplyLocked(text)
	return nil
}

func (c *Conversation) startReplyLocked(text string) {
	c.awaiting = true
	c.emitStateLocked()
	c.wg.Add(1)
	go c.reply(text)
}

func (c *Conversation) reply(text string) {
	defer c.wg.Done()

	if err := c.opts.replyDelayer.Wait(c.ctx); err != nil {
		logx.Debug().Err(err).Str("conversation_id", c.id).Msg("reply wait interrupted")
		return
	}

	draft, err := c.responder.Reply(c.ctx, text)
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", c.id).Msg("responder failed, sending fallback")
		draft = *c.opts.fallback
	}

	defer c.flushRecords()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.awaiting = false
	c.appendLocked(model.SenderAgent, draft.Text, draft.Actions)
	logx.Debug().
		Str("conversation_id", c.id).
		Str("intent", string(draft.Intent)).
		Msg("reply appended")
}

// InvokeAction performs a suggested action. Navigation never touches the
// transcript; the form trigger opens the lead form.
func (c *Conversation) InvokeAction(ctx context.Context, action model.Action) (Outcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, errx.ErrClosed
	}
	c.touchLocked()

	switch action.Kind {
	case model.ActionNavigate:
		target := strings.TrimSpace(action.Target)
		visible := c.formVisible
		c.mu.Unlock()
		if target == "" {
			return Outcome{}, errx.ErrUnknownAction
		}
		c.opts.navigator.Navigate(ctx, c.id, target)
		return Outcome{NavigateTo: target, FormVisible: visible}, nil

	case model.ActionInvokeForm:
		defer c.mu.Unlock()
		if action.Target != model.FormTrigger {
			return Outcome{}, errx.ErrUnknownAction
		}
		if !c.formVisible {
			c.formVisible = true
			c.emitStateLocked()
		}
		return Outcome{FormVisible: true}, nil
	}

	c.mu.Unlock()
	return Outcome{}, errx.ErrUnknownAction
}

// SubmitForm validates and delivers the lead, then appends the confirmation
// and closes the form. The lock is not held while the submitter runs.
func (c *Conversation) SubmitForm(ctx context.Context, lead model.LeadRecord) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return errx.ErrClosed
	case !c.formVisible:
		c.mu.Unlock()
		return errx.ErrFormClosed
	case c.submitting:
		c.mu.Unlock()
		return errx.ErrSubmitting
	}
	c.touchLocked()
	lead = lead.Normalize()
	if err := lead.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.submitting = true
	c.emitStateLocked()
	c.mu.Unlock()

	subCtx, cancel := context.WithCancel(model.WithConversationID(ctx, c.id))
	stop := context.AfterFunc(c.ctx, cancel)
	err := c.opts.submitter.SubmitLead(subCtx, c.id, lead)
	stop()
	cancel()

	var text string
	if err == nil {
		text = c.renderConfirmation(ctx, lead)
	}

	defer c.flushRecords()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitting = false
	if c.closed {
		return errx.ErrClosed
	}
	if err != nil {
		logx.Error().Err(err).Str("conversation_id", c.id).Msg("lead submission failed")
		c.emitStateLocked()
		return errx.NewSubmissionFailed(err)
	}

	c.formVisible = false
	c.appendLocked(model.SenderAgent, text, nil)
	logx.Info().Str("conversation_id", c.id).Msg("lead submitted")
	return nil
}

func (c *Conversation) renderConfirmation(ctx context.Context, lead model.LeadRecord) string {
	text, err := c.opts.confirmation.Render(ctx, lead)
	if err != nil || strings.TrimSpace(text) == "" {
		logx.Warn().Err(err).Str("conversation_id", c.id).Msg("confirmation template failed, using plain text")
		return "Merci " + lead.Name + " !"
	}
	return text
}

// CancelForm closes the lead form without touching the transcript.
func (c *Conversation) CancelForm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return errx.ErrClosed
	case c.submitting:
		return errx.ErrSubmitting
	case !c.formVisible:
		return nil
	}
	c.touchLocked()
	c.formVisible = false
	c.emitStateLocked()
	return nil
}

// Snapshot returns a copy of the transcript and flags.
func (c *Conversation) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]model.Message, len(c.transcript))
	for i, m := range c.transcript {
		msgs[i] = m.Clone()
	}
	return model.Snapshot{
		ConversationID: c.id,
		Transcript:     msgs,
		AwaitingReply:  c.awaiting,
		FormVisible:    c.formVisible,
		Submitting:     c.submitting,
	}
}

// LastActivity is the time of the last accepted host input.
func (c *Conversation) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Busy reports whether a reply or a submission is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting || c.submitting
}

// Close cancels pending waits, notifies observers with EventClosed and blocks
// until the reply goroutine exits. Later calls on the conversation return
// errx.ErrClosed.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancel()
	c.emitLocked(Event{Type: EventClosed, ConversationID: c.id, State: c.stateLocked()})
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Conversation) touchLocked() {
	c.lastActivity = c.opts.clock()
}

func (c *Conversation) appendLocked(sender model.Sender, text string, actions []model.Action) {
	msg := model.Message{
		ID:        c.nextID,
		Text:      text,
		Sender:    sender,
		Timestamp: c.opts.clock(),
	}
	if len(actions) > 0 {
		msg.SuggestedActions = append([]model.Action(nil), actions...)
	}
	c.nextID++
	c.transcript = append(c.transcript, msg)
	if c.opts.recorder != nil {
		c.unrecorded = append(c.unrecorded, msg.Clone())
	}

	if len(c.opts.observers) == 0 {
		return
	}
	evMsg := msg.Clone()
	c.emitLocked(Event{Type: EventMessageAppended, ConversationID: c.id, Message: &evMsg, State: c.stateLocked()})
}

// flushRecords hands appended messages to the Recorder in append order.
// Callers must not hold mu.
func (c *Conversation) flushRecords() {
	if c.opts.recorder == nil {
		return
	}
	c.recordMu.Lock()
	defer c.recordMu.Unlock()

	c.mu.Lock()
	batch := c.unrecorded
	c.unrecorded = nil
	c.mu.Unlock()

	ctx := context.WithoutCancel(c.ctx)
	for _, msg := range batch {
		if err := c.opts.recorder.Record(ctx, c.id, msg); err != nil {
			logx.Error().Err(err).Str("conversation_id", c.id).Int64("message_id", msg.ID).Msg("failed to record message")
		}
	}
}

func (c *Conversation) emitStateLocked() {
	c.emitLocked(Event{Type: EventStateChanged, ConversationID: c.id, State: c.stateLocked()})
}

func (c *Conversation) emitLocked(ev Event) {
	for _, obs := range c.opts.observers {
		obs(ev)
	}
}

func (c *Conversation) stateLocked() State {
	return State{AwaitingReply: c.awaiting, FormVisible: c.formVisible, Submitting: c.submitting}
}
