package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.Reply == nil || strings.TrimSpace(in.Reply.Content) == "" {
		return GraphOutput{}, ErrEmptyReply
	}
	return GraphOutput{
		ThreadID: in.ThreadID,
		Route:    in.Route,
		Reply:    in.Reply.Content,
	}, nil
}
