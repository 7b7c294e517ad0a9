package model

import "context"

type conversationIDKey struct{}

// WithConversationID tags ctx with the conversation being served, for logging
// deep inside the reply pipeline.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey{}, id)
}

// ConversationIDFromContext returns the id set by WithConversationID.
func ConversationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(conversationIDKey{}).(string)
	return id
}
