package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

const (
	NodeProvider   = "provider_agent"
	NodePolicy     = "policy_agent"
	NodeComparison = "comparison_agent"
	NodeGuardrail  = "guardrail"
)

func ClassifyRoute(ctx context.Context, in *GraphState, supervisor contractx.Supervisor) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	route, err := supervisor.Classify(ctx, in.History)
	if err != nil {
		return nil, err
	}

	in.Route = route
	metrics.RoutesTotal.WithLabelValues(string(route)).Inc()
	event := log.Ctx(ctx).Info().
		Str("thread_id", in.ThreadID).
		Str("route", string(route))
	if in.State != nil && in.State.NextRoute != "" {
		event = event.Str("previous_route", string(in.State.NextRoute))
	}
	event.Msg("turn routed")
	return in, nil
}

// RouteNode maps a route label onto the graph node that handles it.
func RouteNode(route contractx.RouteLabel) string {
	switch route {
	case contractx.RouteProvider:
		return NodeProvider
	case contractx.RouteComparison:
		return NodeComparison
	case contractx.RouteGuardrail:
		return NodeGuardrail
	default:
		return NodePolicy
	}
}
