package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

const (
	NodeInputConverter = "InputConverter"
	NodeClassifier     = "Classifier"
	NodeIntentReply    = "IntentReply"
	NodeFallbackReply  = "FallbackReply"
)

// Turn carries one utterance through the pipeline.
type Turn struct {
	ConversationID string
	Normalized     string
	Rule           rules.Rule
	Matched        bool
}

// NewInputConverterNode normalizes the raw utterance for keyword matching.
func NewInputConverterNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.ReplyInput) (Turn, error) {
		return Turn{
			ConversationID: in.ConversationID,
			Normalized:     rules.Normalize(in.Utterance),
		}, nil
	})
}

// NewClassifierNode selects the first matching rule of the script.
func NewClassifierNode(script *rules.Script) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn Turn) (Turn, error) {
		turn.Rule, turn.Matched = script.Match(turn.Normalized)
		return turn, nil
	})
}

// NewMatchCondition routes matched turns to IntentReply and the rest to FallbackReply.
func NewMatchCondition() func(context.Context, Turn) (string, error) {
	return func(ctx context.Context, turn Turn) (string, error) {
		if turn.Matched {
			logx.Debug().
				Str("conversation_id", turn.ConversationID).
				Str("intent", string(turn.Rule.Intent)).
				Msg("Routing to intent reply")
			return NodeIntentReply, nil
		}
		logx.Debug().
			Str("conversation_id", turn.ConversationID).
			Msg("No rule matched - routing to fallback reply")
		return NodeFallbackReply, nil
	}
}

// NewIntentReplyNode drafts the reply of the matched rule.
func NewIntentReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, turn Turn) (model.ReplyDraft, error) {
		if !turn.Matched {
			return model.ReplyDraft{}, fmt.Errorf("intent reply reached without a matched rule")
		}
		return turn.Rule.Draft(), nil
	})
}

// NewFallbackReplyNode drafts the script's fallback reply.
func NewFallbackReplyNode(script *rules.Script) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ Turn) (model.ReplyDraft, error) {
		return script.Fallback(), nil
	})
}
