package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

var (
	ErrInvalidThread      = errors.New("thread id is empty")
	ErrUnsupportedMessage = errors.New("only user and assistant messages are persisted")
)

// ConversationState is the durable history of one thread. Messages only ever
// grow; NextRoute is overwritten by every completed turn.
type ConversationState struct {
	ThreadID  string
	Messages  []*schema.Message
	NextRoute contractx.RouteLabel
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewConversationState(threadID string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadID:  threadID,
		Messages:  []*schema.Message{},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Clone deep-copies the state so callers can extend the history freely.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]*schema.Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		out.Messages = append(out.Messages, copyMessage(m))
	}
	return &out
}

// record is the persisted form of a message.
type record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toRecord(m *schema.Message) (record, error) {
	if m == nil {
		return record{}, fmt.Errorf("%w: nil message", ErrUnsupportedMessage)
	}
	switch m.Role {
	case schema.User, schema.Assistant:
		return record{Role: string(m.Role), Content: m.Content}, nil
	default:
		return record{}, fmt.Errorf("%w: role=%s", ErrUnsupportedMessage, m.Role)
	}
}

func (r record) message() *schema.Message {
	return &schema.Message{Role: schema.RoleType(r.Role), Content: r.Content}
}

func toRecords(msgs []*schema.Message) ([]record, error) {
	out := make([]record, 0, len(msgs))
	for _, m := range msgs {
		rec, err := toRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func copyMessage(m *schema.Message) *schema.Message {
	if m == nil {
		return nil
	}
	return &schema.Message{Role: m.Role, Content: m.Content}
}

func validateThread(threadID string) (string, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return "", ErrInvalidThread
	}
	return id, nil
}
