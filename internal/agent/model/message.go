package model

import "time"

// Sender identifies who produced a transcript message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// ActionKind tells the host what to do when a suggested action is clicked.
type ActionKind string

const (
	// ActionNavigate asks the host to scroll or route to Action.Target.
	ActionNavigate ActionKind = "navigate"
	// ActionInvokeForm asks the engine to open the lead form named by Action.Target.
	ActionInvokeForm ActionKind = "invokeForm"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	return k == ActionNavigate || k == ActionInvokeForm
}

// FormTrigger is the invokeForm target that opens the lead-capture form.
const FormTrigger = "showContactForm"

// Action is a suggested next step attached to an agent message.
type Action struct {
	Label  string     `json:"label" toml:"label"`
	Kind   ActionKind `json:"kind" toml:"kind"`
	Target string     `json:"target" toml:"target"`
}

// Navigate builds a navigate action.
func Navigate(label, target string) Action {
	return Action{Label: label, Kind: ActionNavigate, Target: target}
}

// InvokeForm builds an invokeForm action.
func InvokeForm(label, trigger string) Action {
	return Action{Label: label, Kind: ActionInvokeForm, Target: trigger}
}

// Message is one exchanged utterance. Messages are never mutated once appended.
type Message struct {
	ID               int64     `json:"id"`
	Text             string    `json:"text"`
	Sender           Sender    `json:"sender"`
	Timestamp        time.Time `json:"timestamp"`
	SuggestedActions []Action  `json:"suggested_actions,omitempty"`
}

// IsAgent reports whether the message was produced by the engine.
func (m Message) IsAgent() bool {
	return m.Sender == SenderAgent
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.SuggestedActions != nil {
		m.SuggestedActions = append([]Action(nil), m.SuggestedActions...)
	}
	return m
}

// Snapshot is the read-only view of a conversation handed to render surfaces.
type Snapshot struct {
	ConversationID string    `json:"conversation_id"`
	Transcript     []Message `json:"transcript"`
	AwaitingReply  bool      `json:"awaiting_reply"`
	FormVisible    bool      `json:"form_visible"`
	Submitting     bool      `json:"submitting"`
}

// LastAgent returns the most recent agent message, whose actions are the ones on offer.
func (s Snapshot) LastAgent() (Message, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].IsAgent() {
			return s.Transcript[i], true
		}
	}
	return Message{}, false
}
