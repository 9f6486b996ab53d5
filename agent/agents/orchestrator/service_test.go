package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	specialistx "github.com/tanpawarit/PolicyPilot/agent/agents/specialist"
	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	promptx "github.com/tanpawarit/PolicyPilot/agent/prompt"
	providerx "github.com/tanpawarit/PolicyPilot/agent/provider"
	statex "github.com/tanpawarit/PolicyPilot/agent/state"
	toolx "github.com/tanpawarit/PolicyPilot/agent/tool"
)

type fakeSupervisor struct {
	route contractx.RouteLabel
	err   error

	mu    sync.Mutex
	seen  [][]*schema.Message
	calls int
}

func (f *fakeSupervisor) Classify(ctx context.Context, messages []*schema.Message) (contractx.RouteLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.seen = append(f.seen, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.route, nil
}

type fakeSpecialist struct {
	run   func(ctx context.Context, messages []*schema.Message) ([]*schema.Message, error)
	calls atomic.Int32
}

func (f *fakeSpecialist) Run(ctx context.Context, messages []*schema.Message) ([]*schema.Message, error) {
	f.calls.Add(1)
	return f.run(ctx, messages)
}

func answering(text string) *fakeSpecialist {
	return &fakeSpecialist{run: func(context.Context, []*schema.Message) ([]*schema.Message, error) {
		return []*schema.Message{{Role: schema.Assistant, Content: text}}, nil
	}}
}

type fakeRegistry struct {
	supervisor contractx.Supervisor
	provider   contractx.Specialist
	policy     contractx.Specialist
	comparison contractx.Specialist
}

func (f *fakeRegistry) Supervisor() contractx.Supervisor { return f.supervisor }
func (f *fakeRegistry) Provider() contractx.Specialist   { return f.provider }
func (f *fakeRegistry) Policy() contractx.Specialist     { return f.policy }
func (f *fakeRegistry) Comparison() contractx.Specialist { return f.comparison }

func newTestOrchestrator(t *testing.T, store statex.Store, reg contractx.Registry) *Orchestrator {
	t.Helper()

	o, err := New(store, reg, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, statex.NewMemoryStore(), &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RoutePolicy},
		provider:   answering("p"),
		policy:     answering("p"),
		comparison: answering("c"),
	})

	_, err := o.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidThread) || !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrInvalidThread, got %v", err)
	}

	_, err = o.HandleMessage(context.Background(), "t1", "    ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestHandleMessageKeepsOnlyFinalAssistantText(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	provider := &fakeSpecialist{run: func(_ context.Context, messages []*schema.Message) ([]*schema.Message, error) {
		return []*schema.Message{
			{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{ID: "c1", Function: schema.FunctionCall{Name: "list_providers", Arguments: "{}"}}}},
			{Role: schema.Tool, ToolCallID: "c1", Content: "- **HDFC ERGO** (id: hdfc)"},
			{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{ID: "c2", Function: schema.FunctionCall{Name: "get_provider_details", Arguments: `{"provider_id":"hdfc"}`}}}},
			{Role: schema.Tool, ToolCallID: "c2", Content: "**HDFC ERGO General Insurance**"},
			{Role: schema.Assistant, Content: "We work with HDFC ERGO and ICICI Lombard."},
		}, nil
	}}
	o := newTestOrchestrator(t, store, &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RouteProvider},
		provider:   provider,
		policy:     answering("wrong"),
		comparison: answering("wrong"),
	})

	reply, err := o.HandleMessage(context.Background(), "t1", "Which providers do you have?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Route != contractx.RouteProvider || reply.ThreadID != "t1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Text != "We work with HDFC ERGO and ICICI Lombard." {
		t.Fatalf("unexpected text: %s", reply.Text)
	}

	st, err := store.Get(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(st.Messages) != 2 {
		t.Fatalf("expected [user, assistant], got %d messages", len(st.Messages))
	}
	if st.Messages[0].Role != schema.User || st.Messages[1].Role != schema.Assistant {
		t.Fatalf("unexpected roles: %s, %s", st.Messages[0].Role, st.Messages[1].Role)
	}
	if st.NextRoute != contractx.RouteProvider {
		t.Fatalf("NextRoute = %s", st.NextRoute)
	}
}

func TestHandleMessageGuardrailSkipsModels(t *testing.T) {
	t.Parallel()

	policy := answering("x")
	o := newTestOrchestrator(t, statex.NewMemoryStore(), &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RouteGuardrail},
		provider:   answering("x"),
		policy:     policy,
		comparison: answering("x"),
	})

	reply, err := o.HandleMessage(context.Background(), "t1", "What's the weather today?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Text != promptx.Guardrail() {
		t.Fatalf("guardrail text changed: %q", reply.Text)
	}
	if policy.calls.Load() != 0 {
		t.Fatal("guardrail must not run a specialist")
	}
}

func TestHandleMessageFailedTurnAppendsNothing(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	boom := &contractx.LoopExhaustedError{Agent: contractx.AgentTypePolicy, Iterations: 8}
	o := newTestOrchestrator(t, store, &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RoutePolicy},
		provider:   answering("x"),
		policy: &fakeSpecialist{run: func(context.Context, []*schema.Message) ([]*schema.Message, error) {
			return nil, boom
		}},
		comparison: answering("x"),
	})

	_, err := o.HandleMessage(context.Background(), "t1", "waiting period?")
	if !errors.Is(err, contractx.ErrLoopExhausted) {
		t.Fatalf("expected ErrLoopExhausted, got %v", err)
	}

	st, _ := store.Get(context.Background(), "t1")
	if len(st.Messages) != 0 || st.NextRoute != "" {
		t.Fatalf("failed turn leaked into store: %+v", st)
	}
}

func TestHandleMessageEmptySpecialistReplyFails(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, statex.NewMemoryStore(), &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RouteComparison},
		provider:   answering("x"),
		policy:     answering("x"),
		comparison: answering("   "),
	})
	_, err := o.HandleMessage(context.Background(), "t1", "compare")
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestHandleMessageSupervisorFailure(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	o := newTestOrchestrator(t, store, &fakeRegistry{
		supervisor: &fakeSupervisor{err: contractx.ErrModelInvoke},
		provider:   answering("x"),
		policy:     answering("x"),
		comparison: answering("x"),
	})
	_, err := o.HandleMessage(context.Background(), "t1", "hi")
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestHandleMessageCarriesHistoryAcrossTurns(t *testing.T) {
	t.Parallel()

	store := statex.NewMemoryStore()
	sup := &fakeSupervisor{route: contractx.RoutePolicy}
	o := newTestOrchestrator(t, store, &fakeRegistry{
		supervisor: sup,
		provider:   answering("x"),
		policy:     answering("answer"),
		comparison: answering("x"),
	})

	for _, q := range []string{"first", "second", "third"} {
		if _, err := o.HandleMessage(context.Background(), "t1", q); err != nil {
			t.Fatalf("HandleMessage(%s) error = %v", q, err)
		}
	}

	st, _ := store.Get(context.Background(), "t1")
	if len(st.Messages) != 6 {
		t.Fatalf("expected one assistant per user message, got %d messages", len(st.Messages))
	}
	last := sup.seen[2]
	if len(last) != 5 || last[4].Content != "third" {
		t.Fatalf("supervisor did not see the full history: %d messages", len(last))
	}
}

func TestHandleMessageSerialisesSameThread(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	slow := &fakeSpecialist{run: func(context.Context, []*schema.Message) ([]*schema.Message, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return []*schema.Message{{Role: schema.Assistant, Content: "ok"}}, nil
	}}
	store := statex.NewMemoryStore()
	o := newTestOrchestrator(t, store, &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RoutePolicy},
		provider:   answering("x"),
		policy:     slow,
		comparison: answering("x"),
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.HandleMessage(context.Background(), "same", "q"); err != nil {
				t.Errorf("HandleMessage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() != 1 {
		t.Fatalf("expected one in-flight turn per thread, peak=%d", peak.Load())
	}
	st, _ := store.Get(context.Background(), "same")
	if len(st.Messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(st.Messages))
	}
	if o.locks.size() != 0 {
		t.Fatalf("thread locks leaked: %d", o.locks.size())
	}
}

func TestHandleMessageCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	unblock := make(chan struct{})
	blocking := &fakeSpecialist{run: func(context.Context, []*schema.Message) ([]*schema.Message, error) {
		close(entered)
		<-unblock
		return []*schema.Message{{Role: schema.Assistant, Content: "ok"}}, nil
	}}
	o := newTestOrchestrator(t, statex.NewMemoryStore(), &fakeRegistry{
		supervisor: &fakeSupervisor{route: contractx.RoutePolicy},
		provider:   answering("x"),
		policy:     blocking,
		comparison: answering("x"),
	})

	done := make(chan error, 1)
	go func() {
		_, err := o.HandleMessage(context.Background(), "t1", "first")
		done <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.HandleMessage(ctx, "t1", "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded while waiting, got %v", err)
	}

	close(unblock)
	if err := <-done; err != nil {
		t.Fatalf("first turn error = %v", err)
	}
}

// scriptedModel replays canned assistant messages in order.
type scriptedModel struct {
	mu      sync.Mutex
	replies []*schema.Message
	calls   int
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.replies) {
		return nil, errors.New("script exhausted")
	}
	r := m.replies[m.calls]
	m.calls++
	return r, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in scripted model")
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

type emptySearcher struct{}

func (emptySearcher) Search(context.Context, string, contractx.Category, int) ([]contractx.PolicyChunk, error) {
	return nil, nil
}

func assistant(text string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: text}
}

func callTool(id, name, args string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{
		{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}},
	}}
}

func TestEndToEndPolicySearchWithoutResults(t *testing.T) {
	t.Parallel()

	const fallback = "I couldn't find that information in the policy documents."
	catalog, err := providerx.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	policyModel := &scriptedModel{replies: []*schema.Message{
		callTool("c1", toolx.ToolSearchPolicy, `{"query":"dental cover"}`),
		assistant(fallback),
	}}
	providerModel := &scriptedModel{}
	reg, err := specialistx.Build(context.Background(), specialistx.Models{
		Supervisor: &scriptedModel{replies: []*schema.Message{assistant("policy")}},
		Provider:   providerModel,
		Policy:     policyModel,
		Comparison: &scriptedModel{},
	}, toolx.Dependencies{Providers: catalog, Policies: emptySearcher{}}, 8)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	store := statex.NewMemoryStore()
	o := newTestOrchestrator(t, store, reg)
	reply, err := o.HandleMessage(context.Background(), "t1", "Is dental treatment covered?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Route != contractx.RoutePolicy || reply.Text != fallback {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if policyModel.calls != 2 || providerModel.calls != 0 {
		t.Fatalf("unexpected model calls policy=%d provider=%d", policyModel.calls, providerModel.calls)
	}

	st, _ := store.Get(context.Background(), "t1")
	for _, m := range st.Messages {
		if m.Role == schema.Tool || len(m.ToolCalls) > 0 {
			t.Fatalf("tool traffic persisted: %+v", m)
		}
	}
}

func TestEndToEndProviderListing(t *testing.T) {
	t.Parallel()

	catalog, err := providerx.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	reg, err := specialistx.Build(context.Background(), specialistx.Models{
		Supervisor: &scriptedModel{replies: []*schema.Message{assistant("provider_agent")}},
		Provider: &scriptedModel{replies: []*schema.Message{
			callTool("", toolx.ToolListProviders, ``),
			assistant("We have HDFC ERGO and ICICI Lombard."),
		}},
		Policy:     &scriptedModel{},
		Comparison: &scriptedModel{},
	}, toolx.Dependencies{Providers: catalog, Policies: emptySearcher{}}, 8)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	o := newTestOrchestrator(t, statex.NewMemoryStore(), reg)
	reply, err := o.HandleMessage(context.Background(), "t1", "What insurance companies do you have?")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Route != contractx.RouteProvider {
		t.Fatalf("route = %s, want provider", reply.Route)
	}
	if reply.Text != "We have HDFC ERGO and ICICI Lombard." {
		t.Fatalf("unexpected text: %s", reply.Text)
	}
}
