package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// Responder selects the agent reply for a user utterance.
type Responder interface {
	Reply(ctx context.Context, utterance string) (model.ReplyDraft, error)
}

// LeadSubmitter delivers a validated lead record.
type LeadSubmitter interface {
	SubmitLead(ctx context.Context, conversationID string, lead model.LeadRecord) error
}

// Navigator asks the host to scroll or route to a target. The engine never routes itself.
type Navigator interface {
	Navigate(ctx context.Context, conversationID, target string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, conversationID, target string)

func (f NavigatorFunc) Navigate(ctx context.Context, conversationID, target string) {
	f(ctx, conversationID, target)
}

// Recorder persists appended messages, in append order.
type Recorder interface {
	Record(ctx context.Context, conversationID string, msg model.Message) error
}

// ConfirmationRenderer builds the agent message sent after a successful lead submission.
type ConfirmationRenderer interface {
	Render(ctx context.Context, lead model.LeadRecord) (string, error)
}

// Clock supplies message timestamps.
type Clock func() time.Time

// RepositorySubmitter waits for Delayer, then stores the lead in Repo.
type RepositorySubmitter struct {
	Repo    model.LeadRepository
	Delayer Delayer
}

func (s RepositorySubmitter) SubmitLead(ctx context.Context, conversationID string, lead model.LeadRecord) error {
	if s.Delayer != nil {
		if err := s.Delayer.Wait(ctx); err != nil {
			return err
		}
	}
	if s.Repo == nil {
		return fmt.Errorf("lead repository is nil")
	}
	if err := s.Repo.SaveLead(ctx, conversationID, lead); err != nil {
		return fmt.Errorf("save lead: %w", err)
	}
	logx.Info().Str("conversation_id", conversationID).Msg("lead stored")
	return nil
}

// DiscardSubmitter simulates delivery: it waits for Delayer and drops the lead.
type DiscardSubmitter struct {
	Delayer Delayer
}

func (s DiscardSubmitter) SubmitLead(ctx context.Context, conversationID string, _ model.LeadRecord) error {
	if s.Delayer != nil {
		if err := s.Delayer.Wait(ctx); err != nil {
			return err
		}
	}
	logx.Debug().Str("conversation_id", conversationID).Msg("lead discarded")
	return nil
}

// logNavigator is used when the host registers no navigator.
type logNavigator struct{}

func (logNavigator) Navigate(_ context.Context, conversationID, target string) {
	logx.Debug().Str("conversation_id", conversationID).Str("target", target).Msg("navigation requested")
}
