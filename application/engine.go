// Package application orchestrates turn processing: it wires guideline
// matching, tool calling, journey advancement, and reply composition over
// the domain stores, one serialized turn per session at a time.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/parley/domain/agent"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/domain/telemetry"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/domain/variable"
	"github.com/felixgeelhaar/parley/infrastructure/composer"
	"github.com/felixgeelhaar/parley/infrastructure/journeyrt"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/observability"
	"github.com/felixgeelhaar/parley/infrastructure/toolcall"
)

// Engine processes customer turns against an agent definition.
type Engine struct {
	defMu sync.RWMutex
	def   *agent.Definition

	sessions   session.Store
	events     session.EventLog
	variables  variable.Store
	guidelines guideline.Store
	canned     message.CannedStore
	registry   tool.Registry

	matcher   *matching.Matcher
	caller    *toolcall.Caller
	composer  *composer.Composer
	extractor ArgExtractor

	tracer  telemetry.Tracer
	metrics *observability.TurnMetrics

	locks        *sessionLocks
	historyLimit int
	retryBackoff time.Duration
}

// EngineConfig contains the engine's collaborators. Definition, Sessions,
// Events, Variables, Registry, and Evaluator are required; everything else
// has a working default.
type EngineConfig struct {
	Definition *agent.Definition
	Sessions   session.Store
	Events     session.EventLog
	Variables  variable.Store

	// Guidelines optionally overrides the definition's guideline list
	// with a store supporting runtime enable/disable.
	Guidelines guideline.Store

	// Canned optionally overrides the definition's canned responses.
	Canned message.CannedStore

	Registry  tool.Registry
	Evaluator matching.Evaluator

	// Provider generates replies and extracts customer-sourced tool
	// parameters. Without one the agent can only use canned responses.
	Provider matching.Provider

	// Model passed to the provider.
	Model string

	Matcher   *matching.Matcher
	Caller    *toolcall.Caller
	Composer  *composer.Composer
	Extractor ArgExtractor

	Tracer telemetry.Tracer
	Meter  telemetry.Meter

	// HistoryLimit caps conversation lines passed to matching and
	// composition. Zero means 20.
	HistoryLimit int

	// RetryBackoff is the pause before the single matching-unavailable
	// retry. Zero means 200ms.
	RetryBackoff time.Duration
}

// NewEngine creates a new engine with the given configuration.
func NewEngine(config EngineConfig) (*Engine, error) {
	if config.Definition == nil {
		return nil, ErrNoDefinition
	}
	if config.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if config.Events == nil {
		return nil, errors.New("event log is required")
	}
	if config.Variables == nil {
		return nil, errors.New("variable store is required")
	}
	if config.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if config.Evaluator == nil && config.Matcher == nil {
		return nil, errors.New("condition evaluator is required")
	}

	e := &Engine{
		def:          config.Definition,
		sessions:     config.Sessions,
		events:       config.Events,
		variables:    config.Variables,
		guidelines:   config.Guidelines,
		canned:       config.Canned,
		registry:     config.Registry,
		matcher:      config.Matcher,
		caller:       config.Caller,
		composer:     config.Composer,
		extractor:    config.Extractor,
		tracer:       config.Tracer,
		locks:        newSessionLocks(),
		historyLimit: config.HistoryLimit,
		retryBackoff: config.RetryBackoff,
	}

	if e.matcher == nil {
		e.matcher = matching.NewMatcher(matching.MatcherConfig{Evaluator: config.Evaluator})
	}
	if e.caller == nil {
		e.caller = toolcall.NewCaller(config.Registry, nil)
	}
	if e.composer == nil {
		e.composer = composer.NewComposer(composer.Config{
			Provider:   config.Provider,
			Evaluator:  config.Evaluator,
			Model:      config.Model,
			Deflection: config.Definition.Deflection,
		})
	}
	if e.extractor == nil && config.Provider != nil {
		e.extractor = NewProviderExtractor(config.Provider, config.Model)
	}
	if e.tracer == nil {
		e.tracer = observability.NewNoopTracer()
	}
	meter := config.Meter
	if meter == nil {
		meter = observability.NewNoopMeter()
	}
	e.metrics = observability.NewTurnMetrics(meter)

	if e.historyLimit <= 0 {
		e.historyLimit = 20
	}
	if e.retryBackoff <= 0 {
		e.retryBackoff = 200 * time.Millisecond
	}

	return e, nil
}

// Definition returns the agent definition turns currently run against.
func (e *Engine) Definition() *agent.Definition {
	e.defMu.RLock()
	defer e.defMu.RUnlock()
	return e.def
}

// SetDefinition swaps the agent definition. In-flight turns keep the
// definition they started with; the swap takes effect from the next turn.
func (e *Engine) SetDefinition(def *agent.Definition) {
	if def == nil {
		return
	}
	e.defMu.Lock()
	e.def = def
	e.defMu.Unlock()

	logging.Info().
		Add(logging.AgentID(def.ID)).
		Msg("agent definition swapped")
}

// StartSession creates a session for the customer. Sessions are long-lived
// and never deleted implicitly.
func (e *Engine) StartSession(ctx context.Context, customerID string, tags ...string) (*session.Session, error) {
	def := e.Definition()
	now := time.Now()
	sess := &session.Session{
		ID:         uuid.New().String(),
		AgentID:    def.ID,
		CustomerID: customerID,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	logging.Info().
		Add(logging.SessionID(sess.ID)).
		Add(logging.CustomerID(customerID)).
		Msg("session started")
	return sess, nil
}

// ProcessTurn processes one customer message and returns the reply. Turns
// on the same session are strictly serialized. A matching-unavailable
// failure aborts the turn, releases the session, and retries once.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, input string) (*message.Reply, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	reply, err := e.runTurn(ctx, sessionID, input, true)
	if err != nil && errors.Is(err, matching.ErrMatchingUnavailable) {
		logging.Warn().
			Add(logging.SessionID(sessionID)).
			Add(logging.ErrorField(err)).
			Msg("matching unavailable, retrying turn")

		select {
		case <-time.After(e.retryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		// The customer message is already on the log from the first
		// attempt.
		reply, err = e.runTurn(ctx, sessionID, input, false)
	}
	return reply, err
}

func (e *Engine) runTurn(ctx context.Context, sessionID, input string, recordInput bool) (*message.Reply, error) {
	unlock := e.locks.Lock(sessionID)
	defer unlock()
	return e.processTurn(ctx, sessionID, input, recordInput)
}

func (e *Engine) processTurn(ctx context.Context, sessionID, input string, recordInput bool) (*message.Reply, error) {
	start := time.Now()
	def := e.Definition()

	ctx, span := e.tracer.StartSpan(ctx, "turn.process",
		telemetry.WithAttributes(telemetry.String("session.id", sessionID)))
	defer span.End()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load session: %w", err)
	}

	if recordInput {
		ev, err := session.NewMessageEvent(sessionID, session.SourceCustomer, input)
		if err != nil {
			return nil, err
		}
		ev.ID = uuid.New().String()
		if err := e.events.Append(ctx, ev); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("append customer event: %w", err)
		}
	}

	history, err := e.historyLines(ctx, sessionID, input)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	staging := variable.NewStaging(e.variables)
	vars := e.snapshotVars(ctx, sess)

	// Restore the active journey; a definition swap may have removed it.
	restingState := ""
	var interp *journeyrt.Interpreter
	if sess.HasActiveJourney() {
		if j, ok := def.JourneyByID(sess.JourneyID); ok {
			in, ierr := journeyrt.NewInterpreter(j)
			if ierr == nil {
				ierr = in.Resume(sess.StateID)
			}
			if ierr == nil {
				interp = in
				restingState = sess.StateID
			} else {
				logging.Warn().
					Add(logging.SessionID(sessionID)).
					Add(logging.JourneyID(sess.JourneyID)).
					Add(logging.ErrorField(ierr)).
					Msg("journey state no longer valid, detaching")
				sess.ClearJourney()
			}
		} else {
			sess.ClearJourney()
		}
	}

	ec := matching.Context{
		Input:     input,
		History:   history,
		Vars:      vars,
		JourneyID: sess.JourneyID,
		StateID:   sess.StateID,
	}
	ec.Terms = matching.RelevantTerms(def.Terms, ec)

	evalCondition := func(ctx context.Context, condition string) (bool, error) {
		return e.matcher.EvaluateCondition(ctx, condition, ec)
	}

	// Mid-flow preemption: the customer may explicitly walk away from the
	// active journey; the abandon signal is matched like any condition and
	// releases the session so a new journey can activate this same turn.
	abandonedJourneyID := ""
	if interp != nil {
		gone, aerr := journeyrt.Abandoned(ctx, interp.Journey(), evalCondition)
		if aerr != nil {
			span.RecordError(aerr)
			return nil, aerr
		}
		if gone {
			abandonedJourneyID = sess.JourneyID
			sess.ClearJourney()
			interp = nil
			restingState = ""
			ec.JourneyID, ec.StateID = "", ""
		}
	}

	// Activation: sessions without an active journey are offered one.
	if interp == nil {
		j, aerr := journeyrt.Activate(ctx, def.Journeys, evalCondition)
		if aerr != nil {
			span.RecordError(aerr)
			return nil, aerr
		}
		if j != nil {
			in, ierr := journeyrt.NewInterpreter(j)
			if ierr != nil {
				span.RecordError(ierr)
				return nil, fmt.Errorf("compile journey %s: %w", j.ID, ierr)
			}
			interp = in
			sess.BindJourney(j.ID, in.StateID())
			ec.JourneyID, ec.StateID = sess.JourneyID, sess.StateID
		}
	}

	eligible, err := e.eligibleGuidelines(ctx, def, sess)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	matches, err := e.matcher.Match(ctx, eligible, ec)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	e.metrics.Matches.Record(ctx, float64(len(matches)))

	journeyToolRef := ""
	if interp != nil {
		if st, ok := interp.State(); ok && st.Kind == journey.StateTool {
			journeyToolRef = st.ToolRef
		}
	}

	treq := toolcall.Request{
		Session: tool.Context{
			SessionID:  sess.ID,
			CustomerID: sess.CustomerID,
			Tags:       sess.Tags,
			Vars:       vars,
			History:    history,
		},
		Matches:        matches,
		JourneyToolRef: journeyToolRef,
		CustomerArgs:   e.extractArgs(ctx, matches, journeyToolRef, ec),
		Variables:      def.Variables,
		Staging:        staging,
	}

	invocations := e.caller.RefreshStale(ctx, treq)
	resp, err := e.caller.Call(ctx, treq)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	invocations = append(invocations, resp.Invocations...)

	violated := false
	for _, inv := range invocations {
		e.metrics.ToolCalls.Add(ctx, 1, telemetry.String("outcome", string(inv.Result.Outcome)))
		if inv.Result.Outcome == tool.OutcomeSecurityViolation {
			violated = true
		}
	}

	var steps []message.JourneyStep
	var journeyDiag *message.Diagnostic
	if interp != nil {
		trusted := func(fact string) bool {
			if _, verr := staging.Get(ctx, fact, sess.CustomerID); verr == nil {
				return true
			}
			for _, inv := range invocations {
				if _, ok := inv.Result.FieldBindings[fact]; ok {
					return true
				}
			}
			return false
		}

		steps, journeyDiag, err = interp.Advance(ctx, journeyrt.AdvanceRequest{
			RestingState:  restingState,
			Condition:     evalCondition,
			Trusted:       trusted,
			ToolCompleted: resp.Completed,
		})
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		if interp.Done() {
			sess.ClearJourney()
		} else {
			sess.BindJourney(interp.Journey().ID, interp.StateID())
		}
	}

	instruction := ""
	if interp != nil && !interp.Done() {
		if st, ok := interp.State(); ok && st.Kind == journey.StateChat {
			instruction = st.Instruction
		}
	}

	canned, err := e.eligibleCanned(ctx, def, sess)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reply, err := e.composer.Compose(ctx, composer.Request{
		Mode:            effectiveMode(def, matches),
		Identity:        def.Description,
		Input:           input,
		History:         history,
		Instruction:     instruction,
		Matches:         matches,
		Canned:          canned,
		Bindings:        buildBindings(vars, invocations),
		Terms:           ec.Terms,
		Invocations:     invocations,
		Asks:            resp.NeedsInput,
		JourneySteps:    steps,
		ForceDeflection: violated,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if abandonedJourneyID != "" {
		reply.Trace.AddDiagnostic(message.DiagnosticJourneyAbandoned, abandonedJourneyID)
	}
	if journeyDiag != nil {
		reply.Trace.Diagnostics = append(reply.Trace.Diagnostics, *journeyDiag)
	}
	for _, d := range reply.Trace.Diagnostics {
		e.metrics.Diagnostics.Add(ctx, 1, telemetry.String("kind", string(d.Kind)))
	}
	e.metrics.CritiquePasses.Record(ctx, float64(reply.Trace.CritiquePasses))

	agentEv, err := session.NewMessageEvent(sessionID, session.SourceAgent, reply.Text)
	if err != nil {
		return nil, err
	}
	agentEv.ID = uuid.New().String()
	if err := e.events.Append(ctx, agentEv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("append agent event: %w", err)
	}

	sess.UpdatedAt = time.Now()
	if err := e.sessions.Update(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update session: %w", err)
	}

	if err := staging.Commit(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("commit variables: %w", err)
	}

	e.metrics.Turns.Add(ctx, 1)
	e.metrics.TurnDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	logging.Info().
		Add(logging.SessionID(sessionID)).
		Add(logging.Mode(reply.Trace.Mode)).
		Add(logging.Matches(len(matches))).
		Add(logging.Duration(time.Since(start))).
		Msg("turn processed")

	return &reply, nil
}

// historyLines renders the session's prior conversation, newest last. The
// customer message of the current turn is excluded; it travels separately
// as the turn input.
func (e *Engine) historyLines(ctx context.Context, sessionID, currentInput string) ([]string, error) {
	events, err := e.events.LoadEvents(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var lines []string
	for i := range events {
		ev := &events[i]
		if ev.Kind != session.KindMessage {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", ev.Source, ev.Text()))
	}

	current := fmt.Sprintf("%s: %s", session.SourceCustomer, currentInput)
	if n := len(lines); n > 0 && lines[n-1] == current {
		lines = lines[:n-1]
	}
	if len(lines) > e.historyLimit {
		lines = lines[len(lines)-e.historyLimit:]
	}
	return lines, nil
}

// snapshotVars reads the resolvable variable values for the session's
// customer and tags. Customer-scoped values shadow tag-scoped ones. Read
// failures degrade to an incomplete snapshot, never a failed turn.
func (e *Engine) snapshotVars(ctx context.Context, sess *session.Session) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	keys := append(append([]string{}, sess.Tags...), sess.CustomerID)
	for _, key := range keys {
		values, err := e.variables.List(ctx, key)
		if err != nil {
			logging.Warn().
				Add(logging.SessionID(sess.ID)).
				Add(logging.Str("scope_key", key)).
				Add(logging.ErrorField(err)).
				Msg("variable snapshot read failed")
			continue
		}
		for _, v := range values {
			out[v.Name] = v.Data
		}
	}
	return out
}

func (e *Engine) eligibleGuidelines(ctx context.Context, def *agent.Definition, sess *session.Session) ([]guideline.Guideline, error) {
	if e.guidelines != nil {
		return e.guidelines.ListEligible(ctx, sess.JourneyID, sess.StateID)
	}
	var out []guideline.Guideline
	for _, g := range def.Guidelines {
		if g.Enabled && g.Scope.Eligible(sess.JourneyID, sess.StateID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (e *Engine) eligibleCanned(ctx context.Context, def *agent.Definition, sess *session.Session) ([]message.CannedResponse, error) {
	if e.canned != nil {
		return e.canned.ListEligible(ctx, sess.JourneyID, sess.StateID)
	}
	var out []message.CannedResponse
	for _, c := range def.Canned {
		if c.Scope.Eligible(sess.JourneyID, sess.StateID) {
			out = append(out, c)
		}
	}
	return out, nil
}

// extractArgs resolves customer-sourced parameters for the tools this turn
// plans to call. Extraction failures leave parameters unresolved; the tool
// caller then defers the call and asks the customer.
func (e *Engine) extractArgs(ctx context.Context, matches []guideline.Match, journeyToolRef string, ec matching.Context) map[string]json.RawMessage {
	if e.extractor == nil {
		return nil
	}

	var refs []string
	for _, m := range matches {
		refs = append(refs, m.Guideline.ToolRefs...)
	}
	if journeyToolRef != "" {
		refs = append(refs, journeyToolRef)
	}

	seen := make(map[string]bool)
	var params []tool.Parameter
	for _, ref := range refs {
		t, ok := e.registry.Get(ref)
		if !ok {
			continue
		}
		for _, p := range t.Parameters() {
			if p.Source == tool.SourceCustomer && !seen[p.Name] {
				seen[p.Name] = true
				params = append(params, p)
			}
		}
	}
	if len(params) == 0 {
		return nil
	}

	args, err := e.extractor.Extract(ctx, params, ec)
	if err != nil {
		logging.Warn().
			Add(logging.ErrorField(err)).
			Msg("parameter extraction failed, deferring to clarification")
		return nil
	}
	return args
}

// effectiveMode resolves the turn's composition mode: the definition's
// default, overridden by the strongest matched guideline carrying one.
func effectiveMode(def *agent.Definition, matches []guideline.Match) message.CompositionMode {
	for _, m := range matches {
		if m.Guideline.Mode == "" {
			continue
		}
		if mode, ok := message.ParseMode(m.Guideline.Mode); ok {
			return mode
		}
	}
	return def.Mode
}

// buildBindings merges the variable snapshot with tool field bindings.
// Later tool results override earlier ones and all override variables.
func buildBindings(vars map[string]json.RawMessage, invocations []toolcall.Invocation) map[string]string {
	out := make(map[string]string)
	for name, raw := range vars {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out[name] = s
		} else {
			out[name] = string(raw)
		}
	}
	for _, inv := range invocations {
		for field, value := range inv.Result.FieldBindings {
			out[field] = value
		}
	}
	return out
}
