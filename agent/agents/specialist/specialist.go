package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	toolx "github.com/tanpawarit/PolicyPilot/agent/tool"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

// reactSpecialist alternates model calls and tool executions until the model
// answers without tool calls or the iteration ceiling is reached.
type reactSpecialist struct {
	agentType     contractx.AgentType
	model         einomodel.BaseChatModel
	systemPrompt  string
	tools         map[string]einotool.InvokableTool
	maxIterations int
}

var _ contractx.Specialist = (*reactSpecialist)(nil)

func newSpecialist(
	ctx context.Context,
	agentType contractx.AgentType,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	tools []einotool.InvokableTool,
	maxIterations int,
) (*reactSpecialist, error) {
	if maxIterations <= 0 {
		return nil, fmt.Errorf("%w: max iterations must be > 0 for agent=%s", contractx.ErrConfiguration, agentType)
	}

	infos, byName, err := toolx.Index(ctx, tools)
	if err != nil {
		return nil, err
	}
	bound, err := chatModel.WithTools(infos)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for agent=%s: %v", contractx.ErrConfiguration, agentType, err)
	}

	return &reactSpecialist{
		agentType:     agentType,
		model:         bound,
		systemPrompt:  systemPrompt,
		tools:         byName,
		maxIterations: maxIterations,
	}, nil
}

// Run returns the trace produced by this run: assistant messages and the tool
// messages answering them, ending with the final assistant message. The
// system prompt and the input history are not part of the trace.
func (s *reactSpecialist) Run(ctx context.Context, messages []*schema.Message) ([]*schema.Message, error) {
	logger := log.Ctx(ctx).With().Str("agent", string(s.agentType)).Logger()

	base := make([]*schema.Message, 0, len(messages)+1)
	base = append(base, schema.SystemMessage(s.systemPrompt))
	base = append(base, messages...)

	var trace []*schema.Message
	for iter := 1; iter <= s.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		input := make([]*schema.Message, 0, len(base)+len(trace))
		input = append(input, base...)
		input = append(input, trace...)

		msg, err := s.model.Generate(ctx, input)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: agent=%s iteration=%d: %v", contractx.ErrModelInvoke, s.agentType, iter, err)
		}
		if msg == nil {
			return nil, fmt.Errorf("%w: agent=%s returned no message", contractx.ErrSchemaViolation, s.agentType)
		}

		assistant := withCallIDs(msg, iter)
		trace = append(trace, assistant)
		if len(assistant.ToolCalls) == 0 {
			logger.Debug().Int("iterations", iter).Msg("specialist finished")
			return trace, nil
		}

		results, err := s.runTools(ctx, assistant.ToolCalls)
		if err != nil {
			return nil, err
		}
		trace = append(trace, results...)
	}

	metrics.LoopExhaustedTotal.WithLabelValues(string(s.agentType)).Inc()
	logger.Warn().Int("iterations", s.maxIterations).Msg("specialist exhausted iterations")
	return nil, &contractx.LoopExhaustedError{Agent: s.agentType, Iterations: s.maxIterations}
}

// runTools executes one iteration's calls concurrently and returns the tool
// messages in call order. Tool failures become message content; an unknown
// tool name fails the run.
func (s *reactSpecialist) runTools(ctx context.Context, calls []schema.ToolCall) ([]*schema.Message, error) {
	adapters := make([]einotool.InvokableTool, len(calls))
	for i, call := range calls {
		t, ok := s.tools[call.Function.Name]
		if !ok {
			return nil, fmt.Errorf("%w: tool=%s is not bound to agent=%s", contractx.ErrConfiguration, call.Function.Name, s.agentType)
		}
		adapters[i] = t
	}

	results := make([]*schema.Message, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			content, err := adapters[i].InvokableRun(gctx, call.Function.Arguments)
			status := "ok"
			if err != nil {
				status = "error"
				content = "error: " + err.Error()
				log.Ctx(ctx).Warn().Err(err).
					Str("agent", string(s.agentType)).
					Str("tool", call.Function.Name).
					Msg("tool call failed")
			}
			metrics.ToolCallsTotal.WithLabelValues(string(s.agentType), call.Function.Name, status).Inc()

			results[i] = &schema.Message{
				Role:       schema.Tool,
				Content:    content,
				ToolCallID: call.ID,
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// withCallIDs copies msg and fills in missing tool call IDs so every tool
// message can be paired with its call.
func withCallIDs(msg *schema.Message, iter int) *schema.Message {
	out := *msg
	if len(msg.ToolCalls) == 0 {
		out.ToolCalls = nil
		return &out
	}
	out.ToolCalls = make([]schema.ToolCall, len(msg.ToolCalls))
	for i, call := range msg.ToolCalls {
		if strings.TrimSpace(call.ID) == "" {
			call.ID = fmt.Sprintf("call_%d_%d", iter, i)
		}
		out.ToolCalls[i] = call
	}
	return &out
}
