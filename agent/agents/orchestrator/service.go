package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	nodex "github.com/tanpawarit/PolicyPilot/agent/nodes/orchestrator"
	promptx "github.com/tanpawarit/PolicyPilot/agent/prompt"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
	"github.com/tanpawarit/PolicyPilot/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidThread  = nodex.ErrInvalidThread
)

type Config struct {
	// GuardrailText overrides the fixed off-topic reply.
	GuardrailText string
}

// Reply is the outcome of one turn.
type Reply struct {
	ThreadID string
	Route    contractx.RouteLabel
	Text     string
}

type Orchestrator struct {
	store  statex.Store
	models contractx.Registry
	locks  *threadLocks

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	guardrailText string
	now           func() time.Time
}

func New(store statex.Store, models contractx.Registry, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}

	guardrailText := strings.TrimSpace(cfg.GuardrailText)
	if guardrailText == "" {
		guardrailText = promptx.Guardrail()
	}

	o := &Orchestrator{
		store:         store,
		models:        models,
		locks:         newThreadLocks(),
		guardrailText: guardrailText,
		now:           time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one turn. Turns on the same thread are serialised;
// waiting for the thread honours ctx. A failed or cancelled turn leaves the
// stored conversation unchanged.
func (o *Orchestrator) HandleMessage(ctx context.Context, threadID string, text string) (Reply, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return Reply{}, ErrInvalidThread
	}

	release, err := o.locks.acquire(ctx, threadID)
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		return Reply{}, err
	}
	defer release()

	logger := log.Ctx(ctx).With().Str("thread_id", threadID).Logger()
	started := o.now()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ThreadID: threadID,
		Text:     text,
	})
	if err != nil {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		logger.Error().Err(err).Msg("turn failed")
		return Reply{}, err
	}

	metrics.TurnsTotal.WithLabelValues("ok").Inc()
	logger.Info().
		Str("route", string(out.Route)).
		Dur("elapsed", o.now().Sub(started)).
		Msg("turn completed")

	return Reply{
		ThreadID: out.ThreadID,
		Route:    out.Route,
		Text:     out.Reply,
	}, nil
}

// History returns the persisted conversation for a thread.
func (o *Orchestrator) History(ctx context.Context, threadID string) (*statex.ConversationState, error) {
	return o.store.Get(ctx, threadID)
}
