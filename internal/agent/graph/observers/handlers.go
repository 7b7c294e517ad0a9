package observers

import (
	"context"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// NewAllCallbacks returns the handler attached to every reply graph run. It
// logs node lifecycle events at debug level and failures at error level.
func NewAllCallbacks() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			logx.Debug().
				Str("conversation_id", model.ConversationIDFromContext(ctx)).
				Str("node", info.Name).
				Str("component", string(info.Component)).
				Msg("node start")
			return ctx
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, output einocb.CallbackOutput) context.Context {
			ev := logx.Debug().
				Str("conversation_id", model.ConversationIDFromContext(ctx)).
				Str("node", info.Name)
			if draft, ok := output.(model.ReplyDraft); ok {
				ev = ev.Str("intent", string(draft.Intent)).Int("actions", len(draft.Actions))
			}
			ev.Msg("node end")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().
				Err(err).
				Str("conversation_id", model.ConversationIDFromContext(ctx)).
				Str("node", info.Name).
				Msg("node failed")
			return ctx
		}).
		Build()
}
