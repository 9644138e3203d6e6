package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/parley/domain/agent"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/domain/variable"
	"github.com/felixgeelhaar/parley/infrastructure/journeyrt"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/storage/memory"
)

type fixture struct {
	engine    *Engine
	sessions  *memory.SessionStore
	events    *memory.EventLog
	variables *memory.VariableStore
	registry  *memory.ToolRegistry
}

func newFixture(t *testing.T, def *agent.Definition, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		sessions:  memory.NewSessionStore(),
		events:    memory.NewEventLog(),
		variables: memory.NewVariableStore(),
		registry:  memory.NewToolRegistry(),
	}

	base := []Option{
		WithDefinition(def),
		WithSessionStore(f.sessions),
		WithEventLog(f.events),
		WithVariableStore(f.variables),
		WithToolRegistry(f.registry),
		WithRetryBackoff(10 * time.Millisecond),
	}

	eng, err := NewEngineWithOptions(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngineWithOptions() error = %v", err)
	}
	f.engine = eng
	return f
}

func (f *fixture) startSession(t *testing.T, customerID string, tags ...string) *session.Session {
	t.Helper()
	sess, err := f.engine.StartSession(context.Background(), customerID, tags...)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return sess
}

// mapExtractor resolves customer parameters from a fixed map.
type mapExtractor map[string]json.RawMessage

func (m mapExtractor) Extract(_ context.Context, _ []tool.Parameter, _ matching.Context) (map[string]json.RawMessage, error) {
	return m, nil
}

// returnFlowDefinition is the order-return scenario: a journey that asks
// for the order number, looks the order up, and confirms the return.
func returnFlowDefinition() *agent.Definition {
	return &agent.Definition{
		ID:          "support",
		Name:        "Order Support",
		Description: "You help customers with orders and returns.",
		Mode:        message.ModeFluid,
		Journeys: []journey.Journey{{
			ID:                   "order_return",
			Title:                "Order return",
			ActivationConditions: []string{"customer wants to return an item"},
			InitialState:         "ask_order",
			States: []journey.State{
				{ID: "ask_order", Kind: journey.StateChat, Instruction: "Ask for the order number", Collects: "order_number"},
				{ID: "lookup", Kind: journey.StateTool, ToolRef: "get_order"},
				{ID: "route", Kind: journey.StateFork},
				{ID: "confirm", Kind: journey.StateChat, Instruction: "Confirm the return and explain next steps"},
				{ID: "deny", Kind: journey.StateChat, Instruction: "Explain why the order is not returnable"},
			},
			Transitions: []journey.Transition{
				{From: "ask_order", To: "lookup"},
				{From: "lookup", To: "route"},
				{From: "route", To: "confirm", Condition: "order is within the return window"},
				{From: "route", To: "deny", Condition: "order is outside the return window"},
			},
		}},
	}
}

func getOrderTool() tool.Tool {
	return tool.NewBuilder("get_order").
		WithDescription("Look up an order by its number").
		CustomerParam("order_number", "The order number, e.g. #A100").
		WithHandler(func(_ context.Context, _ tool.Context, args tool.Arguments) (tool.Result, error) {
			number := args.String("order_number")
			data, _ := json.Marshal(map[string]string{"order_number": number, "status": "delivered"})
			return tool.NewResult(data).
				WithBinding("order_number", number).
				WithBinding("status", "delivered"), nil
		}).
		MustBuild()
}

func TestProcessTurn_ReturnFlow(t *testing.T) {
	t.Parallel()

	evaluator := matching.NewMockEvaluator(map[string]matching.Verdict{
		"customer wants to return an item":    {Match: true, Confidence: 0.9},
		"order is within the return window":   {Match: true, Confidence: 0.9},
		"order is outside the return window":  {Match: false, Confidence: 0.9},
	})
	provider := matching.NewMockProvider(
		"Sure, I can help with that. What is your order number?",
		"Thanks! Let me look that up.",
		"Your return for order #A100 is approved. You'll receive a label by email.",
	)

	f := newFixture(t, returnFlowDefinition(),
		WithEvaluator(evaluator),
		WithProvider(provider, "test-model"),
		WithExtractor(mapExtractor{"order_number": json.RawMessage(`"#A100"`)}),
	)
	if err := f.registry.Register(getOrderTool()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx := context.Background()
	sess := f.startSession(t, "cust-1")

	// Turn 1 activates the journey and asks for the order number.
	reply, err := f.engine.ProcessTurn(ctx, sess.ID, "I want to return my blender")
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if reply.Text == "" {
		t.Fatal("turn 1 produced empty reply")
	}

	stored, err := f.sessions.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get session error = %v", err)
	}
	if stored.JourneyID != "order_return" || stored.StateID != "ask_order" {
		t.Fatalf("after turn 1: journey=%s state=%s, want order_return/ask_order", stored.JourneyID, stored.StateID)
	}

	// Turn 2 answers the question; the journey moves to the tool state.
	if _, err := f.engine.ProcessTurn(ctx, sess.ID, "It's order #A100"); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	stored, _ = f.sessions.Get(ctx, sess.ID)
	if stored.StateID != "lookup" {
		t.Fatalf("after turn 2: state = %s, want lookup", stored.StateID)
	}

	// Turn 3 runs the lookup, routes through the fork, and confirms.
	reply, err = f.engine.ProcessTurn(ctx, sess.ID, "ok")
	if err != nil {
		t.Fatalf("turn 3 error = %v", err)
	}

	if len(reply.Trace.Tools) != 1 || reply.Trace.Tools[0].ToolName != "get_order" {
		t.Fatalf("trace tools = %+v, want one get_order call", reply.Trace.Tools)
	}
	if reply.Trace.Tools[0].Outcome != tool.OutcomeSuccess {
		t.Errorf("get_order outcome = %s, want success", reply.Trace.Tools[0].Outcome)
	}
	if len(reply.Trace.JourneySteps) != 2 {
		t.Fatalf("journey steps = %+v, want lookup->route->confirm", reply.Trace.JourneySteps)
	}
	if reply.Trace.JourneySteps[1].ToState != "confirm" {
		t.Errorf("final step = %+v, want confirm", reply.Trace.JourneySteps[1])
	}

	stored, _ = f.sessions.Get(ctx, sess.ID)
	if stored.StateID != "confirm" {
		t.Errorf("after turn 3: state = %s, want confirm", stored.StateID)
	}

	// The full conversation is on the event log, strictly alternating.
	events, err := f.events.LoadEvents(ctx, sess.ID)
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("event count = %d, want 6", len(events))
	}
	for i, ev := range events {
		want := session.SourceCustomer
		if i%2 == 1 {
			want = session.SourceAgent
		}
		if ev.Source != want {
			t.Errorf("event %d source = %s, want %s", i, ev.Source, want)
		}
	}
}

func TestProcessTurn_AbandonSwitchesJourney(t *testing.T) {
	t.Parallel()

	def := returnFlowDefinition()
	def.Journeys = append(def.Journeys, journey.Journey{
		ID:                   "track_order",
		Title:                "Track order",
		ActivationConditions: []string{"customer wants to track a shipment"},
		InitialState:         "ask_tracking",
		States: []journey.State{
			{ID: "ask_tracking", Kind: journey.StateChat, Instruction: "Ask for the tracking number", Collects: "tracking_number"},
			{ID: "report", Kind: journey.StateChat, Instruction: "Report the shipment status"},
		},
		Transitions: []journey.Transition{
			{From: "ask_tracking", To: "report"},
		},
	})

	evaluator := matching.NewMockEvaluator(map[string]matching.Verdict{
		"customer wants to return an item": {Match: true, Confidence: 0.9},
	})
	provider := matching.NewMockProvider(
		"Sure, what is your order number?",
		"No problem. What is the tracking number?",
	)

	f := newFixture(t, def,
		WithEvaluator(evaluator),
		WithProvider(provider, "test-model"),
	)

	ctx := context.Background()
	sess := f.startSession(t, "cust-1")

	if _, err := f.engine.ProcessTurn(ctx, sess.ID, "I want to return my blender"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	stored, _ := f.sessions.Get(ctx, sess.ID)
	if stored.JourneyID != "order_return" || stored.StateID != "ask_order" {
		t.Fatalf("after turn 1: journey=%s state=%s, want order_return/ask_order", stored.JourneyID, stored.StateID)
	}

	// The customer walks away from the return mid-flow and asks for
	// tracking instead; the session must switch journeys this same turn.
	evaluator.SetVerdict("customer wants to return an item", matching.Verdict{Match: false, Confidence: 0.9})
	evaluator.SetVerdict(journeyrt.DefaultAbandonCondition, matching.Verdict{Match: true, Confidence: 0.9})
	evaluator.SetVerdict("customer wants to track a shipment", matching.Verdict{Match: true, Confidence: 0.9})

	reply, err := f.engine.ProcessTurn(ctx, sess.ID, "actually forget the return, where is my other package?")
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if !reply.Trace.HasDiagnostic(message.DiagnosticJourneyAbandoned) {
		t.Error("missing journey_abandoned diagnostic")
	}

	stored, _ = f.sessions.Get(ctx, sess.ID)
	if stored.JourneyID != "track_order" || stored.StateID != "ask_tracking" {
		t.Fatalf("after turn 2: journey=%s state=%s, want track_order/ask_tracking", stored.JourneyID, stored.StateID)
	}
}

// cancellingProvider cancels the turn's context when composition asks it
// to generate, simulating a caller that gave up mid-turn.
type cancellingProvider struct {
	cancel context.CancelFunc
}

func (p *cancellingProvider) Name() string { return "cancelling" }

func (p *cancellingProvider) Complete(_ context.Context, _ matching.CompletionRequest) (matching.CompletionResponse, error) {
	p.cancel()
	return matching.CompletionResponse{}, context.Canceled
}

func TestProcessTurn_CancellationDiscardsStagedWrites(t *testing.T) {
	t.Parallel()

	def := &agent.Definition{
		ID:   "support",
		Name: "Support",
		Mode: message.ModeFluid,
		Guidelines: []guideline.Guideline{{
			ID:          "credit",
			Condition:   "customer asks for a goodwill credit",
			Action:      "grant a small credit",
			Criticality: guideline.CriticalityMedium,
			ToolRefs:    []string{"grant_credit"},
			Scope:       guideline.GlobalScope(),
			Enabled:     true,
		}},
		Variables: []variable.Definition{{Name: "credit", Scope: variable.ScopeCustomer}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	evaluator := matching.NewMockEvaluator(map[string]matching.Verdict{
		"customer asks for a goodwill credit": {Match: true, Confidence: 0.9},
	})

	f := newFixture(t, def,
		WithEvaluator(evaluator),
		WithProvider(&cancellingProvider{cancel: cancel}, "test-model"),
	)

	grantCredit := tool.NewBuilder("grant_credit").
		WithDescription("Grant a goodwill credit").
		WithHandler(func(_ context.Context, _ tool.Context, _ tool.Arguments) (tool.Result, error) {
			res := tool.NewResult(json.RawMessage(`{"granted":true}`))
			res.VariableWrites = map[string]json.RawMessage{"credit": json.RawMessage(`"10 EUR"`)}
			return res, nil
		}).
		MustBuild()
	if err := f.registry.Register(grantCredit); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sess := f.startSession(t, "cust-1")

	_, err := f.engine.ProcessTurn(ctx, sess.ID, "can I get a credit for the delay?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ProcessTurn() error = %v, want context.Canceled", err)
	}

	// The tool ran and staged a write, but the cancelled turn must not
	// have committed it.
	if _, err := f.variables.Get(context.Background(), "credit", "cust-1"); !errors.Is(err, variable.ErrNotFound) {
		t.Errorf("Get(credit) error = %v, want ErrNotFound", err)
	}
}

// flakyEvaluator fails its first call with a matching-unavailable error
// and delegates afterwards.
type flakyEvaluator struct {
	calls int32
	inner matching.Evaluator
}

func (e *flakyEvaluator) Name() string { return "flaky" }

func (e *flakyEvaluator) Evaluate(ctx context.Context, condition string, ec matching.Context) (matching.Verdict, error) {
	if atomic.AddInt32(&e.calls, 1) == 1 {
		return matching.Verdict{}, fmt.Errorf("evaluator offline: %w", matching.ErrMatchingUnavailable)
	}
	return e.inner.Evaluate(ctx, condition, ec)
}

func TestProcessTurn_RetriesOnMatchingUnavailable(t *testing.T) {
	t.Parallel()

	def := &agent.Definition{
		ID:   "support",
		Name: "Support",
		Mode: message.ModeFluid,
		Guidelines: []guideline.Guideline{{
			ID:        "greeting",
			Condition: "customer greets the agent",
			Action:    "greet back warmly",
			Scope:     guideline.GlobalScope(),
			Enabled:   true,
		}},
	}

	evaluator := &flakyEvaluator{inner: matching.NewMockEvaluator(nil)}
	provider := matching.NewMockProvider("Hello! How can I help you today?")

	f := newFixture(t, def,
		WithEvaluator(evaluator),
		WithProvider(provider, "test-model"),
	)
	sess := f.startSession(t, "cust-1")

	reply, err := f.engine.ProcessTurn(context.Background(), sess.ID, "hi there")
	if err != nil {
		t.Fatalf("ProcessTurn() error = %v", err)
	}
	if reply.Text != "Hello! How can I help you today?" {
		t.Errorf("reply = %q", reply.Text)
	}

	// The retry must not duplicate the customer message on the log.
	events, err := f.events.LoadEvents(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	customers := 0
	for _, ev := range events {
		if ev.Source == session.SourceCustomer {
			customers++
		}
	}
	if customers != 1 {
		t.Errorf("customer events = %d, want 1", customers)
	}
}

func TestProcessTurn_MatchingFailureAbortsTurn(t *testing.T) {
	t.Parallel()

	def := &agent.Definition{
		ID:   "support",
		Name: "Support",
		Mode: message.ModeFluid,
		Guidelines: []guideline.Guideline{{
			ID:        "greeting",
			Condition: "customer greets the agent",
			Scope:     guideline.GlobalScope(),
			Enabled:   true,
		}},
	}

	evaluator := matching.NewMockEvaluator(nil)
	evaluator.Fail(fmt.Errorf("evaluator offline: %w", matching.ErrMatchingUnavailable))

	f := newFixture(t, def, WithEvaluator(evaluator))
	sess := f.startSession(t, "cust-1")

	_, err := f.engine.ProcessTurn(context.Background(), sess.ID, "hi")
	if !errors.Is(err, matching.ErrMatchingUnavailable) {
		t.Fatalf("ProcessTurn() error = %v, want ErrMatchingUnavailable", err)
	}
}

// gaugeEvaluator tracks how many evaluations run concurrently.
type gaugeEvaluator struct {
	active int32
	peak   int32
	delay  time.Duration
}

func (e *gaugeEvaluator) Name() string { return "gauge" }

func (e *gaugeEvaluator) Evaluate(_ context.Context, _ string, _ matching.Context) (matching.Verdict, error) {
	n := atomic.AddInt32(&e.active, 1)
	for {
		peak := atomic.LoadInt32(&e.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&e.peak, peak, n) {
			break
		}
	}
	time.Sleep(e.delay)
	atomic.AddInt32(&e.active, -1)
	return matching.Verdict{Match: false, Confidence: 1}, nil
}

func serializationDefinition() *agent.Definition {
	return &agent.Definition{
		ID:   "support",
		Name: "Support",
		Mode: message.ModeFluid,
		Guidelines: []guideline.Guideline{{
			ID:        "g1",
			Condition: "condition one",
			Scope:     guideline.GlobalScope(),
			Enabled:   true,
		}},
	}
}

func TestProcessTurn_SameSessionSerialized(t *testing.T) {
	t.Parallel()

	evaluator := &gaugeEvaluator{delay: 50 * time.Millisecond}
	provider := matching.NewMockProvider("ok")

	f := newFixture(t, serializationDefinition(),
		WithEvaluator(evaluator),
		WithProvider(provider, "test-model"),
	)
	sess := f.startSession(t, "cust-1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := f.engine.ProcessTurn(context.Background(), sess.ID, fmt.Sprintf("message %d", n)); err != nil {
				t.Errorf("ProcessTurn(%d) error = %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&evaluator.peak); peak != 1 {
		t.Errorf("peak concurrent evaluations = %d, want 1", peak)
	}

	// Strictly ordered turns alternate customer and agent messages.
	events, err := f.events.LoadEvents(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("LoadEvents() error = %v", err)
	}
	if len(events) != 8 {
		t.Fatalf("event count = %d, want 8", len(events))
	}
	for i, ev := range events {
		want := session.SourceCustomer
		if i%2 == 1 {
			want = session.SourceAgent
		}
		if ev.Source != want {
			t.Errorf("event %d source = %s, want %s", i, ev.Source, want)
		}
	}
}

func TestProcessTurn_DistinctSessionsConcurrent(t *testing.T) {
	t.Parallel()

	evaluator := &gaugeEvaluator{delay: 200 * time.Millisecond}
	provider := matching.NewMockProvider("ok")

	f := newFixture(t, serializationDefinition(),
		WithEvaluator(evaluator),
		WithProvider(provider, "test-model"),
	)
	a := f.startSession(t, "cust-a")
	b := f.startSession(t, "cust-b")

	var wg sync.WaitGroup
	for _, id := range []string{a.ID, b.ID} {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			if _, err := f.engine.ProcessTurn(context.Background(), sessionID, "hello"); err != nil {
				t.Errorf("ProcessTurn() error = %v", err)
			}
		}(id)
	}
	wg.Wait()

	if peak := atomic.LoadInt32(&evaluator.peak); peak < 2 {
		t.Errorf("peak concurrent evaluations = %d, want 2", peak)
	}
}

func TestProcessTurn_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, serializationDefinition(),
		WithEvaluator(matching.NewMockEvaluator(nil)),
		WithProvider(matching.NewMockProvider("ok"), "test-model"),
	)

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()

		_, err := f.engine.ProcessTurn(context.Background(), "some-session", "   ")
		if !errors.Is(err, ErrEmptyInput) {
			t.Errorf("error = %v, want ErrEmptyInput", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		_, err := f.engine.ProcessTurn(context.Background(), "missing", "hello")
		if !errors.Is(err, session.ErrNotFound) {
			t.Errorf("error = %v, want session.ErrNotFound", err)
		}
	})
}

func TestNewEngine_RequiredCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(EngineConfig{}); !errors.Is(err, ErrNoDefinition) {
		t.Errorf("error = %v, want ErrNoDefinition", err)
	}

	_, err := NewEngineWithOptions(WithDefinition(serializationDefinition()))
	if err == nil {
		t.Error("NewEngineWithOptions() without stores should fail")
	}
}

func TestEffectiveMode(t *testing.T) {
	t.Parallel()

	def := &agent.Definition{Mode: message.ModeFluid}

	tests := []struct {
		name    string
		matches []guideline.Match
		want    message.CompositionMode
	}{
		{
			name: "no overrides keeps the definition default",
			matches: []guideline.Match{
				{Guideline: guideline.Guideline{ID: "a"}},
			},
			want: message.ModeFluid,
		},
		{
			name: "strongest match override wins",
			matches: []guideline.Match{
				{Guideline: guideline.Guideline{ID: "a", Mode: "strict", Criticality: guideline.CriticalityHigh}},
				{Guideline: guideline.Guideline{ID: "b", Mode: "composited"}},
			},
			want: message.ModeStrict,
		},
		{
			name: "invalid override is skipped",
			matches: []guideline.Match{
				{Guideline: guideline.Guideline{ID: "a", Mode: "shouty"}},
				{Guideline: guideline.Guideline{ID: "b", Mode: "composited"}},
			},
			want: message.ModeComposited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := effectiveMode(def, tt.matches); got != tt.want {
				t.Errorf("effectiveMode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSetDefinition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, serializationDefinition(),
		WithEvaluator(matching.NewMockEvaluator(nil)),
	)

	next := serializationDefinition()
	next.Name = "Support v2"
	f.engine.SetDefinition(next)

	if got := f.engine.Definition().Name; got != "Support v2" {
		t.Errorf("Definition().Name = %s, want Support v2", got)
	}

	// nil swaps are ignored.
	f.engine.SetDefinition(nil)
	if f.engine.Definition() == nil {
		t.Error("Definition() = nil after nil swap")
	}
}
