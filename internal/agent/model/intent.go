package model

// Intent names a rule of the reply script. The built-in script uses the
// constants below; custom scripts may define their own names.
type Intent string

const (
	IntentPricing           Intent = "pricing"
	IntentWebsiteCapability Intent = "websiteCapability"
	IntentSEO               Intent = "seo"
	IntentContactRequest    Intent = "contactRequest"
	IntentThanks            Intent = "thanks"
	IntentFallback          Intent = "fallback"
)

// ReplyDraft is the scripted answer selected for one user utterance.
type ReplyDraft struct {
	Intent  Intent   `json:"intent"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

// ReplyInput is what the reply pipeline receives for one user turn.
type ReplyInput struct {
	ConversationID string `json:"conversation_id"`
	Utterance      string `json:"utterance"`
}
