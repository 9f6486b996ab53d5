package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
)

// SaveState persists the user message, the single assistant reply and the
// route in one store call.
func SaveState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Reply == nil {
		return nil, ErrEmptyReply
	}

	if err := store.Append(ctx, in.ThreadID, in.Route, in.User, in.Reply); err != nil {
		return nil, fmt.Errorf("save thread=%s: %w", in.ThreadID, err)
	}
	return in, nil
}
