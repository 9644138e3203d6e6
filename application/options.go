package application

import (
	"time"

	"github.com/felixgeelhaar/parley/domain/agent"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/domain/telemetry"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/domain/variable"
	"github.com/felixgeelhaar/parley/infrastructure/composer"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/toolcall"
)

// Option configures the engine.
type Option func(*EngineConfig)

// WithDefinition sets the agent definition.
func WithDefinition(def *agent.Definition) Option {
	return func(c *EngineConfig) {
		c.Definition = def
	}
}

// WithSessionStore sets the session store.
func WithSessionStore(s session.Store) Option {
	return func(c *EngineConfig) {
		c.Sessions = s
	}
}

// WithEventLog sets the session event log.
func WithEventLog(l session.EventLog) Option {
	return func(c *EngineConfig) {
		c.Events = l
	}
}

// WithVariableStore sets the context-variable store.
func WithVariableStore(s variable.Store) Option {
	return func(c *EngineConfig) {
		c.Variables = s
	}
}

// WithGuidelineStore sets a guideline store that overrides the
// definition's guideline list.
func WithGuidelineStore(s guideline.Store) Option {
	return func(c *EngineConfig) {
		c.Guidelines = s
	}
}

// WithCannedStore sets a canned-response store that overrides the
// definition's canned list.
func WithCannedStore(s message.CannedStore) Option {
	return func(c *EngineConfig) {
		c.Canned = s
	}
}

// WithToolRegistry sets the tool registry.
func WithToolRegistry(r tool.Registry) Option {
	return func(c *EngineConfig) {
		c.Registry = r
	}
}

// WithEvaluator sets the condition evaluator.
func WithEvaluator(e matching.Evaluator) Option {
	return func(c *EngineConfig) {
		c.Evaluator = e
	}
}

// WithProvider sets the completion provider and model.
func WithProvider(p matching.Provider, model string) Option {
	return func(c *EngineConfig) {
		c.Provider = p
		c.Model = model
	}
}

// WithMatcher sets a pre-built matcher.
func WithMatcher(m *matching.Matcher) Option {
	return func(c *EngineConfig) {
		c.Matcher = m
	}
}

// WithCaller sets a pre-built tool caller.
func WithCaller(cl *toolcall.Caller) Option {
	return func(c *EngineConfig) {
		c.Caller = cl
	}
}

// WithComposer sets a pre-built composer.
func WithComposer(cp *composer.Composer) Option {
	return func(c *EngineConfig) {
		c.Composer = cp
	}
}

// WithExtractor sets the customer-parameter extractor.
func WithExtractor(x ArgExtractor) Option {
	return func(c *EngineConfig) {
		c.Extractor = x
	}
}

// WithTracer sets the tracer.
func WithTracer(t telemetry.Tracer) Option {
	return func(c *EngineConfig) {
		c.Tracer = t
	}
}

// WithMeter sets the meter.
func WithMeter(m telemetry.Meter) Option {
	return func(c *EngineConfig) {
		c.Meter = m
	}
}

// WithHistoryLimit caps conversation lines passed to matching and
// composition.
func WithHistoryLimit(n int) Option {
	return func(c *EngineConfig) {
		c.HistoryLimit = n
	}
}

// WithRetryBackoff sets the pause before the matching-unavailable retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *EngineConfig) {
		c.RetryBackoff = d
	}
}

// NewEngineWithOptions creates an engine with functional options.
func NewEngineWithOptions(opts ...Option) (*Engine, error) {
	config := EngineConfig{}
	for _, opt := range opts {
		opt(&config)
	}
	return NewEngine(config)
}
