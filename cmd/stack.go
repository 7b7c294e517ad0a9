package cmd

import (
	"context"
	"fmt"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/agent/conversations"
	"github.com/connecteur-digital/chatwidget/internal/agent/graph"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/repo"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// stack holds the collaborators shared by the serve and chat commands.
type stack struct {
	script      *rules.Script
	runner      *graph.Runner
	transcripts model.TranscriptRepository
	leads       model.LeadRepository
	closers     []func() error
}

func buildStack(ctx context.Context, cfg AppConfig) (*stack, error) {
	s := &stack{}

	script, err := rules.LoadFile(cfg.Conversation.ScriptFile)
	if err != nil {
		return nil, err
	}
	s.script = script

	s.runner, err = graph.BuildReplyGraph(ctx, graph.Config{Script: script})
	if err != nil {
		return nil, fmt.Errorf("build reply graph: %w", err)
	}

	switch cfg.Store.Transcripts {
	case model.BackendRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialise redis: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		s.transcripts = repo.NewRedisTranscriptRepository(rdb, cfg.Conversation.TTL)
		logx.Info().Msg("transcripts stored in redis")
	case model.BackendMemory, "":
		s.transcripts = repo.NewMemoryTranscriptRepository()
	default:
		s.close()
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Transcripts)
	}

	switch cfg.Store.Leads {
	case model.BackendSQLite:
		db, err := cfg.SQLite.Open(ctx)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("initialise sqlite: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		leads, err := repo.NewSQLiteLeadRepository(ctx, db)
		if err != nil {
			s.close()
			return nil, err
		}
		s.leads = leads
		logx.Info().Str("path", cfg.SQLite.Path).Msg("leads stored in sqlite")
	case model.BackendMemory, "":
		s.leads = repo.NewMemoryLeadRepository()
	default:
		s.close()
		return nil, fmt.Errorf("unknown LEADS_BACKEND %q", cfg.Store.Leads)
	}

	return s, nil
}

// manager builds a conversation manager over the stack. extra options are
// applied to every conversation it creates.
func (s *stack) manager(cfg AppConfig, extra ...conversation.Option) *conversations.Manager {
	submitter := conversation.RepositorySubmitter{
		Repo:    s.leads,
		Delayer: conversation.TimerDelayer{Delay: cfg.Conversation.SubmitDelay},
	}
	opts := append([]conversation.Option{
		conversation.WithSubmitter(submitter),
	}, extra...)

	return conversations.NewManager(conversations.Config{
		Responder:    s.runner,
		Script:       s.script,
		Messages:     conversations.NewMessagesManager(s.transcripts, cfg.Conversation),
		Conversation: cfg.Conversation,
		Options:      opts,
	})
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("failed to release resource")
		}
	}
	s.closers = nil
}
