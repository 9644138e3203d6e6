// Package api provides the public API for the parley runtime.
//
// parley is a guideline-driven conversational agent engine for Go. Agent
// behavior is designed rather than prompted: condition-action guidelines,
// journey state machines, pre-approved responses, and a glossary together
// constrain what the agent may say and do on every turn.
//
// # Quick Start
//
// Create a minimal agent with one guideline and a tool:
//
//	refund := api.NewToolBuilder("issue_refund").
//	    WithDescription("Issues a refund for an order").
//	    CustomerParam("order_number", "The order to refund").
//	    WithHandler(func(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
//	        return tool.NewResult(json.RawMessage(`{"refunded":true}`)), nil
//	    }).
//	    MustBuild()
//
//	agent, _ := api.New(
//	    api.WithDefinition(def),
//	    api.WithTool(refund),
//	    api.WithProvider(api.NewOpenAIProvider(api.OpenAIConfig{APIKey: key, Model: "gpt-4o"}), "gpt-4o"),
//	)
//
//	sess, _ := agent.StartSession(ctx, "customer-42")
//	reply, _ := agent.ProcessTurn(ctx, sess.ID, "I want a refund for order #A100")
//	fmt.Println(reply.Text)
//
// # Definitions
//
// A Definition is the complete configuration of one agent: its glossary
// terms, guidelines, journeys, canned responses, and context-variable
// declarations. Definitions are immutable during turn processing and can
// be hot-swapped between turns via SetDefinition.
//
// # Composition modes
//
//   - ModeFluid: free generation guided by matched guidelines
//   - ModeComposited: generation anchored on a signal-matched template
//   - ModeStrict: only pre-approved canned responses, verbatim
package api

import (
	"context"

	"github.com/felixgeelhaar/parley/application"
	"github.com/felixgeelhaar/parley/domain/agent"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/domain/variable"
	"github.com/felixgeelhaar/parley/infrastructure/composer"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/observability"
	"github.com/felixgeelhaar/parley/infrastructure/storage/memory"
	"github.com/felixgeelhaar/parley/infrastructure/toolcall"
)

// Re-export core types for convenience.
type (
	// Definition is the complete configuration of one agent.
	Definition = agent.Definition

	// Session is one customer conversation.
	Session = session.Session

	// Event is one entry on a session's event log.
	Event = session.Event

	// Reply is the outgoing message with its trace.
	Reply = message.Reply

	// Trace records which guidelines, tools, and journey steps informed
	// a reply.
	Trace = message.Trace

	// Diagnostic is one non-fatal condition surfaced by the pipeline.
	Diagnostic = message.Diagnostic

	// Guideline is one condition-action rule.
	Guideline = guideline.Guideline

	// Journey is one conversational state machine.
	Journey = journey.Journey

	// Tool is a registered capability the agent can invoke.
	Tool = tool.Tool

	// Variable declares a context variable.
	Variable = variable.Definition

	// CannedResponse is a pre-approved response template.
	CannedResponse = message.CannedResponse
)

// Re-export composition modes.
const (
	ModeFluid      = message.ModeFluid
	ModeComposited = message.ModeComposited
	ModeStrict     = message.ModeStrict
)

// Re-export criticality levels.
const (
	CriticalityLow    = guideline.CriticalityLow
	CriticalityMedium = guideline.CriticalityMedium
	CriticalityHigh   = guideline.CriticalityHigh
)

// Re-export common errors.
var (
	// ErrEmptyInput is returned when a turn carries no customer text.
	ErrEmptyInput = application.ErrEmptyInput

	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = session.ErrNotFound

	// ErrMatchingUnavailable marks evaluator failures that abort the turn.
	ErrMatchingUnavailable = matching.ErrMatchingUnavailable
)

// Agent is the main runtime: a conversation engine bound to one agent
// definition.
type Agent struct {
	engine   *application.Engine
	registry tool.Registry
	closers  []func() error
}

// New creates a new Agent with the provided options. A definition and an
// evaluator (or a completion provider) are required; stores default to
// in-memory implementations.
func New(opts ...Option) (*Agent, error) {
	cfg := newAgentConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newAgent(cfg)
}

func newAgent(cfg *agentConfig) (*Agent, error) {
	engine, err := application.NewEngine(cfg.engine)
	if err != nil {
		for _, c := range cfg.closers {
			_ = c()
		}
		return nil, err
	}

	return &Agent{
		engine:   engine,
		registry: cfg.engine.Registry,
		closers:  cfg.closers,
	}, nil
}

// StartSession opens a new conversation for a customer. Tags scope shared
// context variables to customer groups.
func (a *Agent) StartSession(ctx context.Context, customerID string, tags ...string) (*Session, error) {
	return a.engine.StartSession(ctx, customerID, tags...)
}

// ProcessTurn handles one customer message and returns the agent's reply.
// Turns on the same session are processed strictly one at a time.
func (a *Agent) ProcessTurn(ctx context.Context, sessionID, input string) (*Reply, error) {
	return a.engine.ProcessTurn(ctx, sessionID, input)
}

// Definition returns the active agent definition.
func (a *Agent) Definition() *Definition {
	return a.engine.Definition()
}

// SetDefinition hot-swaps the agent definition. In-flight turns finish
// against the definition they started with.
func (a *Agent) SetDefinition(def *Definition) {
	a.engine.SetDefinition(def)
}

// RegisterTool adds a tool to the agent's registry.
func (a *Agent) RegisterTool(t Tool) error {
	return a.registry.Register(t)
}

// Registry returns the agent's tool registry.
func (a *Agent) Registry() tool.Registry {
	return a.registry
}

// Close releases resources held by the agent: storage connections, the
// handler factory, and the observability provider.
func (a *Agent) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// agentConfig accumulates the engine configuration plus cleanup hooks for
// resources the options opened.
type agentConfig struct {
	engine  application.EngineConfig
	closers []func() error
}

func newAgentConfig() *agentConfig {
	return &agentConfig{
		engine: application.EngineConfig{
			Sessions:  memory.NewSessionStore(),
			Events:    memory.NewEventLog(),
			Variables: memory.NewVariableStore(),
			Registry:  memory.NewToolRegistry(),
		},
	}
}

// Option configures the Agent.
type Option func(*agentConfig)

// WithDefinition sets the agent definition.
func WithDefinition(def *Definition) Option {
	return func(c *agentConfig) {
		c.engine.Definition = def
	}
}

// WithTool registers a tool. Can be called multiple times; duplicate names
// are silently ignored. Use WithToolRegistry for full control over
// registration errors.
func WithTool(t Tool) Option {
	return func(c *agentConfig) {
		_ = c.engine.Registry.Register(t)
	}
}

// WithToolRegistry replaces the tool registry.
func WithToolRegistry(r tool.Registry) Option {
	return func(c *agentConfig) {
		c.engine.Registry = r
	}
}

// WithEvaluator sets the condition evaluator.
func WithEvaluator(e matching.Evaluator) Option {
	return func(c *agentConfig) {
		c.engine.Evaluator = e
	}
}

// WithProvider sets the completion provider and model used for message
// composition and parameter extraction. When no evaluator is configured,
// the provider also backs condition evaluation.
func WithProvider(p matching.Provider, model string) Option {
	return func(c *agentConfig) {
		c.engine.Provider = p
		c.engine.Model = model
		if c.engine.Evaluator == nil {
			c.engine.Evaluator = matching.NewLLMEvaluator(matching.LLMEvaluatorConfig{
				Provider: p,
				Model:    model,
			})
		}
	}
}

// WithSessionStore replaces the session store.
func WithSessionStore(s session.Store) Option {
	return func(c *agentConfig) {
		c.engine.Sessions = s
	}
}

// WithEventLog replaces the event log.
func WithEventLog(l session.EventLog) Option {
	return func(c *agentConfig) {
		c.engine.Events = l
	}
}

// WithVariableStore replaces the context-variable store.
func WithVariableStore(s variable.Store) Option {
	return func(c *agentConfig) {
		c.engine.Variables = s
	}
}

// WithGuidelineStore sets a guideline store that overrides the
// definition's inline guidelines.
func WithGuidelineStore(s guideline.Store) Option {
	return func(c *agentConfig) {
		c.engine.Guidelines = s
	}
}

// WithCannedStore sets a canned-response store that overrides the
// definition's inline responses.
func WithCannedStore(s message.CannedStore) Option {
	return func(c *agentConfig) {
		c.engine.Canned = s
	}
}

// WithMatcher replaces the guideline matcher.
func WithMatcher(m *matching.Matcher) Option {
	return func(c *agentConfig) {
		c.engine.Matcher = m
	}
}

// WithCaller replaces the tool caller.
func WithCaller(caller *toolcall.Caller) Option {
	return func(c *agentConfig) {
		c.engine.Caller = caller
	}
}

// WithComposer replaces the message composer.
func WithComposer(comp *composer.Composer) Option {
	return func(c *agentConfig) {
		c.engine.Composer = comp
	}
}

// WithObservability wires tracing and metrics from a provider.
func WithObservability(p *observability.Provider) Option {
	return func(c *agentConfig) {
		c.engine.Tracer = p.Tracer()
		c.engine.Meter = p.Meter()
		c.closers = append(c.closers, func() error {
			return p.Shutdown(context.Background())
		})
	}
}

// WithHistoryLimit bounds how many prior messages feed each turn.
func WithHistoryLimit(n int) Option {
	return func(c *agentConfig) {
		c.engine.HistoryLimit = n
	}
}
