package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/connecteur-digital/chatwidget/internal/agent/graph/nodes"
	"github.com/connecteur-digital/chatwidget/internal/agent/graph/observers"
	"github.com/connecteur-digital/chatwidget/internal/agent/model"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

// maxRunSteps bounds a single reply run. The graph is acyclic and four nodes deep.
const maxRunSteps = 10

// Config holds everything needed to compose the reply graph.
type Config struct {
	Script *rules.Script
}

// GraphBuilder handles the construction of the reply graph.
type GraphBuilder struct {
	script *rules.Script
	graph  *compose.Graph[model.ReplyInput, model.ReplyDraft]
}

// Runner executes the compiled reply graph.
type Runner struct {
	runnable compose.Runnable[model.ReplyInput, model.ReplyDraft]
}

// Invoke runs the graph for one utterance with the logging callbacks attached.
func (r *Runner) Invoke(ctx context.Context, in model.ReplyInput) (model.ReplyDraft, error) {
	out, err := r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return model.ReplyDraft{}, fmt.Errorf("reply graph: %w", err)
	}
	return out, nil
}

// Reply classifies utterance. The conversation id, when present in ctx, is
// only used for logging.
func (r *Runner) Reply(ctx context.Context, utterance string) (model.ReplyDraft, error) {
	return r.Invoke(ctx, model.ReplyInput{
		ConversationID: model.ConversationIDFromContext(ctx),
		Utterance:      utterance,
	})
}

// BuildReplyGraph compiles the reply graph for cfg.Script and returns a Runner.
func BuildReplyGraph(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Script == nil {
		return nil, fmt.Errorf("reply script is nil")
	}

	builder := &GraphBuilder{
		script: cfg.Script,
		graph:  compose.NewGraph[model.ReplyInput, model.ReplyDraft](),
	}
	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	runnable, err := builder.compile(ctx)
	if err != nil {
		return nil, err
	}

	logx.Debug().Int("rules", len(cfg.Script.Intents())).Msg("Reply graph built successfully")
	return &Runner{runnable: runnable}, nil
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []struct {
		name   string
		lambda *compose.Lambda
	}{
		{nodes.NodeInputConverter, nodes.NewInputConverterNode()},
		{nodes.NodeClassifier, nodes.NewClassifierNode(b.script)},
		{nodes.NodeIntentReply, nodes.NewIntentReplyNode()},
		{nodes.NodeFallbackReply, nodes.NewFallbackReplyNode(b.script)},
	}
	for _, s := range steps {
		if err := b.graph.AddLambdaNode(s.name, s.lambda); err != nil {
			return fmt.Errorf("add node %s: %w", s.name, err)
		}
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeClassifier},
		{nodes.NodeIntentReply, compose.END},
		{nodes.NodeFallbackReply, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the match/no-match routing after classification
func (b *GraphBuilder) addBranches() error {
	matchBranch := compose.NewGraphBranch(
		nodes.NewMatchCondition(),
		map[string]bool{
			nodes.NodeIntentReply:   true,
			nodes.NodeFallbackReply: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeClassifier, matchBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding match branch")
		return fmt.Errorf("error adding match branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.ReplyInput, model.ReplyDraft], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
