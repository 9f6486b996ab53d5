package orchestratornode

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
)

var (
	ErrInvalidMessage = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrInvalidThread  = fmt.Errorf("%w: thread id is empty", contractx.ErrValidation)
	ErrEmptyReply     = fmt.Errorf("%w: reply is empty", contractx.ErrValidation)
)

type GraphInput struct {
	ThreadID string
	Text     string
}

type GraphOutput struct {
	ThreadID string
	Route    contractx.RouteLabel
	Reply    string
}

// GraphState travels through every node of one turn.
type GraphState struct {
	ThreadID string

	User    *schema.Message
	State   *statex.ConversationState
	History []*schema.Message

	Route contractx.RouteLabel
	Reply *schema.Message
}

func ValidateRequest(in GraphInput) (*GraphState, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return nil, ErrInvalidThread
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		ThreadID: threadID,
		User:     schema.UserMessage(text),
	}, nil
}
