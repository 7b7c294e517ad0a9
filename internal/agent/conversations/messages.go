package conversations

import (
	"context"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

// MessagesManager persists transcripts through a TranscriptRepository and
// restores them for conversations that are no longer live.
type MessagesManager struct {
	transcriptRepo model.TranscriptRepository
	historyLimit   int
}

func NewMessagesManager(transcriptRepo model.TranscriptRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		transcriptRepo: transcriptRepo,
		historyLimit:   config.HistoryLimit,
	}
}

// Record implements conversation.Recorder.
func (mm *MessagesManager) Record(ctx context.Context, conversationID string, msg model.Message) error {
	return mm.transcriptRepo.AddMessage(ctx, conversationID, msg)
}

// LoadTranscript returns the stored transcript, keeping the greeting and the
// most recent messages when it exceeds the history limit.
func (mm *MessagesManager) LoadTranscript(ctx context.Context, conversationID string) ([]model.Message, error) {
	history, err := mm.transcriptRepo.LoadHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return trimTail(history.Messages, mm.historyLimit), nil
}

// Exists reports whether a transcript is stored for conversationID.
func (mm *MessagesManager) Exists(ctx context.Context, conversationID string) (bool, error) {
	n, err := mm.transcriptRepo.GetMessageCount(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Forget removes the stored transcript.
func (mm *MessagesManager) Forget(ctx context.Context, conversationID string) error {
	return mm.transcriptRepo.ClearHistory(ctx, conversationID)
}

// ====================== Helper function ======================
func trimTail(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || len(messages) <= limit {
		result := make([]model.Message, len(messages))
		copy(result, messages)
		return result
	}
	if limit == 1 {
		return []model.Message{messages[0]}
	}
	result := make([]model.Message, 0, limit)
	result = append(result, messages[0])
	result = append(result, messages[len(messages)-(limit-1):]...)
	return result
}
