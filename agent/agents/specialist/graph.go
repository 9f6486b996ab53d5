package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

const historyKey = "history"

// compileSupervisorGraph wires prompt -> model -> normalize. The normalize
// step never fails: unknown output collapses to the default route.
func compileSupervisorGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, contractx.RouteLabel], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder(historyKey, false),
	)

	graph := compose.NewGraph[map[string]any, contractx.RouteLabel]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add supervisor prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add supervisor model node: %w", err)
	}
	if err := graph.AddLambdaNode("normalize", compose.InvokableLambda(normalizeRoute)); err != nil {
		return nil, fmt.Errorf("add supervisor normalize node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add supervisor edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add supervisor edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "normalize"); err != nil {
		return nil, fmt.Errorf("add supervisor edge model->normalize: %w", err)
	}
	if err := graph.AddEdge("normalize", compose.END); err != nil {
		return nil, fmt.Errorf("add supervisor edge normalize->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("supervisor.classify_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile supervisor graph: %w", err)
	}
	return runner, nil
}

func normalizeRoute(ctx context.Context, msg *schema.Message) (contractx.RouteLabel, error) {
	var raw string
	if msg != nil {
		raw = msg.Content
	}

	route, ok := contractx.ParseRouteLabel(raw)
	if !ok {
		metrics.ClassificationFallbacksTotal.Inc()
		log.Ctx(ctx).Debug().
			Str("raw", strings.TrimSpace(raw)).
			Str("route", string(route)).
			Msg("supervisor output not recognised, using default route")
	}
	return route, nil
}
