package orchestratornode

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

// Guardrail answers off-topic turns with a fixed text.
func Guardrail(in *GraphState, text string) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if text == "" {
		return nil, ErrEmptyReply
	}
	in.Reply = &schema.Message{Role: schema.Assistant, Content: text}
	return in, nil
}
