package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

type supervisorImpl struct {
	runner compose.Runnable[map[string]any, contractx.RouteLabel]
}

var _ contractx.Supervisor = (*supervisorImpl)(nil)

func newSupervisor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*supervisorImpl, error) {
	runner, err := compileSupervisorGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrConfiguration, err)
	}
	return &supervisorImpl{runner: runner}, nil
}

// Classify always yields one of the four route labels unless the model call
// itself fails.
func (s *supervisorImpl) Classify(ctx context.Context, messages []*schema.Message) (contractx.RouteLabel, error) {
	history := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		if m != nil {
			history = append(history, m)
		}
	}

	route, err := s.runner.Invoke(ctx, map[string]any{historyKey: history})
	if err != nil {
		return "", fmt.Errorf("%w: classify: %w", contractx.ErrModelInvoke, err)
	}
	if !route.Valid() {
		return contractx.DefaultRoute, nil
	}
	return route, nil
}
