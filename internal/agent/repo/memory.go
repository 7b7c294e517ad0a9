package repo

import (
	"context"
	"sync"
	"time"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
)

// MemoryTranscriptRepository keeps transcripts in process. Used when no Redis
// is configured and by tests.
type MemoryTranscriptRepository struct {
	mu          sync.RWMutex
	transcripts map[string][]model.Message
}

func NewMemoryTranscriptRepository() *MemoryTranscriptRepository {
	return &MemoryTranscriptRepository{transcripts: make(map[string][]model.Message)}
}

func (r *MemoryTranscriptRepository) AddMessage(_ context.Context, conversationID string, message model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts[conversationID] = append(r.transcripts[conversationID], message.Clone())
	return nil
}

func (r *MemoryTranscriptRepository) LoadHistory(_ context.Context, conversationID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.transcripts[conversationID]
	msgs := make([]model.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.Clone())
	}
	return &model.ConversationHistory{ConversationID: conversationID, Messages: msgs}, nil
}

func (r *MemoryTranscriptRepository) ClearHistory(_ context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transcripts, conversationID)
	return nil
}

func (r *MemoryTranscriptRepository) GetMessageCount(_ context.Context, conversationID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transcripts[conversationID]), nil
}

// MemoryLeadRepository keeps leads in process.
type MemoryLeadRepository struct {
	mu     sync.Mutex
	nextID int64
	leads  []model.StoredLead
	now    func() time.Time
}

func NewMemoryLeadRepository() *MemoryLeadRepository {
	return &MemoryLeadRepository{now: time.Now}
}

func (r *MemoryLeadRepository) SaveLead(_ context.Context, conversationID string, lead model.LeadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.leads = append(r.leads, model.StoredLead{
		ID:             r.nextID,
		ConversationID: conversationID,
		LeadRecord:     lead,
		CreatedAt:      r.now().UTC(),
	})
	return nil
}

func (r *MemoryLeadRepository) ListLeads(_ context.Context, conversationID string) ([]model.StoredLead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.StoredLead, 0)
	for _, l := range r.leads {
		if l.ConversationID == conversationID {
			out = append(out, l)
		}
	}
	return out, nil
}

var (
	_ model.TranscriptRepository = (*MemoryTranscriptRepository)(nil)
	_ model.LeadRepository       = (*MemoryLeadRepository)(nil)
)
