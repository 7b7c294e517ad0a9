package conversation

import "github.com/connecteur-digital/chatwidget/internal/agent/model"

type EventType string

const (
	EventMessageAppended EventType = "message_appended"
	EventStateChanged    EventType = "state_changed"
	// EventClosed is the last event of a conversation.
	EventClosed EventType = "closed"
)

// State is the set of flags a render surface needs besides the transcript.
type State struct {
	AwaitingReply bool `json:"awaiting_reply"`
	FormVisible   bool `json:"form_visible"`
	Submitting    bool `json:"submitting"`
}

// Event notifies observers of a change. Message is set for message_appended only.
type Event struct {
	Type           EventType      `json:"type"`
	ConversationID string         `json:"conversation_id"`
	Message        *model.Message `json:"message,omitempty"`
	State          State          `json:"state"`
}

// Observer receives events synchronously under the conversation lock. It must
// not block and must not call back into the conversation.
type Observer func(Event)
