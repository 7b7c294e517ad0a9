// Package conversations keeps the live conversations of a process, persists
// their transcripts and restores them after eviction or restart.
package conversations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// Config wires a Manager.
type Config struct {
	Responder    conversation.Responder
	Script       *rules.Script
	Messages     *MessagesManager
	Conversation model.ConversationConfig
	// Options are applied to every conversation after the manager's own.
	Options []conversation.Option
	Clock   func() time.Time
	NewID   func() string
}

type Manager struct {
	cfg   Config
	hub   *Hub
	clock func() time.Time
	newID func() string

	mu   sync.Mutex
	live map[string]*conversation.Conversation

	// closing holds ids whose transcript is being forgotten; Get must not
	// restore them. evictions counts every close so a restore that raced one
	// is retried.
	closing   map[string]int
	evictions uint64
}

func NewManager(cfg Config) *Manager {
	if cfg.Script == nil {
		cfg.Script = rules.Default()
	}
	if cfg.Responder == nil {
		cfg.Responder = cfg.Script
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Manager{
		cfg:     cfg,
		hub:     NewHub(),
		clock:   clock,
		newID:   newID,
		live:    make(map[string]*conversation.Conversation),
		closing: make(map[string]int),
	}
}

// Hub returns the event hub every managed conversation publishes to.
func (m *Manager) Hub() *Hub {
	return m.hub
}

func (m *Manager) options(extra ...conversation.Option) []conversation.Option {
	opts := []conversation.Option{
		conversation.WithScript(m.cfg.Script),
		conversation.WithDelayer(conversation.TimerDelayer{Delay: m.cfg.Conversation.ReplyDelay}),
		conversation.WithClock(m.clock),
		conversation.WithObserver(m.hub.Publish),
	}
	if m.cfg.Messages != nil {
		opts = append(opts, conversation.WithRecorder(m.cfg.Messages))
	}
	opts = append(opts, m.cfg.Options...)
	return append(opts, extra...)
}

// Create starts a conversation with a fresh id. The greeting is persisted.
func (m *Manager) Create(ctx context.Context) (*conversation.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := m.newID()
	conv := conversation.New(id, m.cfg.Responder, m.options()...)

	m.mu.Lock()
	m.live[id] = conv
	n := len(m.live)
	m.mu.Unlock()

	logx.Info().Str("conversation_id", id).Int("live", n).Msg("conversation created")
	return conv, nil
}

// Get returns a live conversation or restores it from its stored transcript.
// Conversations being closed or evicted are reported as not found.
func (m *Manager) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	for {
		m.mu.Lock()
		if conv, ok := m.live[id]; ok {
			m.mu.Unlock()
			return conv, nil
		}
		if _, ok := m.closing[id]; ok || m.cfg.Messages == nil {
			m.mu.Unlock()
			return nil, errx.ErrSessionNotFound
		}
		evictions := m.evictions
		m.mu.Unlock()

		msgs, err := m.cfg.Messages.LoadTranscript(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(msgs) == 0 {
			return nil, errx.ErrSessionNotFound
		}

		m.mu.Lock()
		if conv, ok := m.live[id]; ok {
			m.mu.Unlock()
			return conv, nil
		}
		if m.evictions != evictions {
			// A close started while the transcript was loading; it may be stale.
			m.mu.Unlock()
			continue
		}
		restored := conversation.New(id, m.cfg.Responder, m.options(conversation.WithHistory(msgs))...)
		m.live[id] = restored
		m.mu.Unlock()

		logx.Info().Str("conversation_id", id).Int("messages", len(msgs)).Msg("conversation restored")
		return restored, nil
	}
}

// beginEvictLocked removes id from the live set and marks it as closing until
// endEvict is called.
func (m *Manager) beginEvictLocked(id string) (*conversation.Conversation, bool) {
	conv, ok := m.live[id]
	delete(m.live, id)
	m.closing[id]++
	m.evictions++
	return conv, ok
}

func (m *Manager) endEvict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing[id]--; m.closing[id] <= 0 {
		delete(m.closing, id)
	}
}

// Close ends a conversation and deletes its transcript.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	conv, ok := m.beginEvictLocked(id)
	m.mu.Unlock()
	defer m.endEvict(id)

	if ok {
		conv.Close()
	}
	if m.cfg.Messages == nil {
		if !ok {
			return errx.ErrSessionNotFound
		}
		return nil
	}
	if !ok {
		exists, err := m.cfg.Messages.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return errx.ErrSessionNotFound
		}
	}
	if err := m.cfg.Messages.Forget(ctx, id); err != nil {
		return err
	}
	logx.Info().Str("conversation_id", id).Msg("conversation closed")
	return nil
}

// Sweep evicts conversations idle for longer than the configured TTL and
// returns how many were evicted. Conversations with a reply or submission in
// flight are kept.
func (m *Manager) Sweep(now time.Time) int {
	ttl := m.cfg.Conversation.TTL
	if ttl <= 0 {
		return 0
	}

	var expired []*conversation.Conversation
	m.mu.Lock()
	for id, conv := range m.live {
		if conv.Busy() || now.Sub(conv.LastActivity()) <= ttl {
			continue
		}
		m.beginEvictLocked(id)
		expired = append(expired, conv)
	}
	m.mu.Unlock()

	for _, conv := range expired {
		conv.Close()
		if m.cfg.Messages != nil {
			if err := m.cfg.Messages.Forget(context.Background(), conv.ID()); err != nil {
				logx.Warn().Err(err).Str("conversation_id", conv.ID()).Msg("failed to forget expired transcript")
			}
		}
		m.endEvict(conv.ID())
		logx.Debug().Str("conversation_id", conv.ID()).Msg("conversation expired")
	}
	return len(expired)
}

// Run sweeps on every SweepInterval until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.Conversation.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(m.clock()); n > 0 {
				logx.Info().Int("evicted", n).Msg("idle conversations evicted")
			}
		}
	}
}

// Shutdown closes every live conversation without deleting transcripts.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	live := m.live
	m.live = make(map[string]*conversation.Conversation)
	m.mu.Unlock()

	for _, conv := range live {
		conv.Close()
	}
}

// Len is the number of live conversations.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
