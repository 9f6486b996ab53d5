package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

// RunSpecialist runs the reason-act loop on a copy of the history and keeps
// only the final assistant text; tool traffic never leaves this node.
func RunSpecialist(ctx context.Context, in *GraphState, specialist contractx.Specialist) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if specialist == nil {
		return nil, fmt.Errorf("%w: no specialist bound for route=%s", contractx.ErrConfiguration, in.Route)
	}

	history := make([]*schema.Message, len(in.History))
	copy(history, in.History)

	trace, err := specialist.Run(ctx, history)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(lastAssistantText(trace))
	if text == "" {
		return nil, ErrEmptyReply
	}
	in.Reply = &schema.Message{Role: schema.Assistant, Content: text}
	return in, nil
}

func lastAssistantText(trace []*schema.Message) string {
	for i := len(trace) - 1; i >= 0; i-- {
		if m := trace[i]; m != nil && m.Role == schema.Assistant {
			return m.Content
		}
	}
	return ""
}
