package conversations

import (
	"sync"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// Hub fans conversation events out to subscribers such as WebSocket clients.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan conversation.Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan conversation.Event]struct{})}
}

// Subscribe returns a channel of events for one conversation and a function
// that unsubscribes and closes the channel.
func (h *Hub) Subscribe(conversationID string, buffer int) (<-chan conversation.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan conversation.Event, buffer)

	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[chan conversation.Event]struct{})
	}
	h.subs[conversationID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[conversationID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, conversationID)
				}
			}
			close(ch)
		})
	}
}

// Publish is a conversation.Observer.
func (h *Hub) Publish(ev conversation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.ConversationID] {
		select {
		case ch <- ev:
		default:
			logx.Warn().
				Str("conversation_id", ev.ConversationID).
				Str("event", string(ev.Type)).
				Msg("subscriber too slow, event dropped")
		}
	}
}

// Subscribers returns the number of subscriptions for a conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}
