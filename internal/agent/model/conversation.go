package model

import (
	"context"
)

type TranscriptRepository interface {
	// AddMessage appends a message to the transcript of the given conversation
	AddMessage(ctx context.Context, conversationID string, message Message) error

	// LoadHistory retrieves the transcript of a conversation in append order
	LoadHistory(ctx context.Context, conversationID string) (*ConversationHistory, error)

	// ClearHistory removes the transcript of a conversation
	ClearHistory(ctx context.Context, conversationID string) error

	// GetMessageCount returns the number of messages in the conversation
	GetMessageCount(ctx context.Context, conversationID string) (int, error)
}

// ConversationHistory represents a loaded transcript with its conversation id.
type ConversationHistory struct {
	ConversationID string
	Messages       []Message
}

type LeadRepository interface {
	// SaveLead persists a validated lead captured during a conversation
	SaveLead(ctx context.Context, conversationID string, lead LeadRecord) error

	// ListLeads returns the leads of a conversation, oldest first
	ListLeads(ctx context.Context, conversationID string) ([]StoredLead, error)
}
