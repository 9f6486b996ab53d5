package orchestratornode

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
)

// LoadState reads the thread and builds the working history: everything
// persisted so far followed by the new user message.
func LoadState(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	st, err := store.Get(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("load thread=%s: %w", in.ThreadID, err)
	}

	history := make([]*schema.Message, 0, len(st.Messages)+1)
	history = append(history, st.Messages...)
	history = append(history, in.User)

	in.State = st
	in.History = history
	return in, nil
}
