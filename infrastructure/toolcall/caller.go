package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/domain/variable"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// Request is the tool-calling input for one turn.
type Request struct {
	// Session is the snapshot tools execute against.
	Session tool.Context

	// Matches are the matched guidelines; their tool refs are planned.
	Matches []guideline.Match

	// JourneyToolRef is the active journey tool state's tool, empty when
	// the session is not resting in a tool state.
	JourneyToolRef string

	// CustomerArgs are customer-sourced parameter values resolved from
	// the conversation this turn, keyed by parameter name.
	CustomerArgs map[string]json.RawMessage

	// Variables declares the agent's context variables; used to scope
	// staged writes.
	Variables []variable.Definition

	// Staging receives variable writes for the turn-end commit.
	Staging *variable.Staging
}

// Ask reports a deferred call: a required customer-sourced parameter is
// unresolved, so the composer should ask for it instead of calling.
type Ask struct {
	ToolName    string
	Parameter   string
	Description string
}

// Invocation is one executed call with its result.
type Invocation struct {
	ToolName    string
	GuidelineID string
	Result      tool.Result
}

// Response is the outcome of the turn's tool calling.
type Response struct {
	Invocations []Invocation
	NeedsInput  []Ask

	completed map[string]bool
}

// Completed reports whether the named tool ran this turn, regardless of
// outcome. The journey engine uses this to release tool states.
func (r *Response) Completed(toolName string) bool {
	return r.completed[toolName]
}

// ResultFor returns the last result for the named tool.
func (r *Response) ResultFor(toolName string) (tool.Result, bool) {
	for i := len(r.Invocations) - 1; i >= 0; i-- {
		if r.Invocations[i].ToolName == toolName {
			return r.Invocations[i].Result, true
		}
	}
	return tool.Result{}, false
}

// Trace renders the invocations for the turn trace.
func (r *Response) Trace() []message.ToolInvocation {
	out := make([]message.ToolInvocation, 0, len(r.Invocations))
	for _, inv := range r.Invocations {
		out = append(out, message.ToolInvocation{
			ToolName:    inv.ToolName,
			GuidelineID: inv.GuidelineID,
			Outcome:     inv.Result.Outcome,
			Error:       inv.Result.Error,
			Duration:    inv.Result.Duration,
		})
	}
	return out
}

// Caller plans and runs the tool invocations of a turn.
type Caller struct {
	registry tool.Registry
	executor *Executor
}

// NewCaller creates a caller over the given registry and executor.
func NewCaller(registry tool.Registry, executor *Executor) *Caller {
	if executor == nil {
		executor = NewDefaultExecutor()
	}
	return &Caller{registry: registry, executor: executor}
}

// call is one planned invocation.
type call struct {
	tool        tool.Tool
	guidelineID string
}

// Call plans invocations from the matched guidelines' tool refs plus the
// journey's tool state and executes them. Independent calls within a group
// run concurrently; calls bound to another call's result run in a later
// stage. A security violation aborts the remaining calls of the same
// guideline.
func (c *Caller) Call(ctx context.Context, req Request) (*Response, error) {
	resp := &Response{completed: make(map[string]bool)}

	for _, m := range req.Matches {
		if len(m.Guideline.ToolRefs) == 0 {
			continue
		}
		group, err := c.plan(m.Guideline.ToolRefs, m.Guideline.ID)
		if err != nil {
			return nil, err
		}
		c.runGroup(ctx, group, req, resp)
	}

	if req.JourneyToolRef != "" {
		group, err := c.plan([]string{req.JourneyToolRef}, "")
		if err != nil {
			return nil, err
		}
		c.runGroup(ctx, group, req, resp)
	}

	return resp, nil
}

// plan resolves tool refs against the registry and orders them into a
// group. Unknown refs fail the turn: a definition that references a missing
// tool is a configuration error, not a customer-facing condition.
func (c *Caller) plan(refs []string, guidelineID string) ([]call, error) {
	var group []call
	for _, ref := range refs {
		t, ok := c.registry.Get(ref)
		if !ok {
			return nil, errors.Join(tool.ErrToolNotFound, errors.New(ref))
		}
		group = append(group, call{tool: t, guidelineID: guidelineID})
	}
	return group, nil
}

// runGroup executes one guideline's calls in dependency stages.
func (c *Caller) runGroup(ctx context.Context, group []call, req Request, resp *Response) {
	// Field bindings produced so far, by tool name.
	bindings := make(map[string]map[string]string)
	pending := group

	for len(pending) > 0 {
		stage, rest := splitStage(pending, bindings)
		if len(stage) == 0 {
			// Remaining calls depend on tools that will never produce
			// bindings (failed, deferred, or outside the group).
			for _, cl := range pending {
				resp.Invocations = append(resp.Invocations, Invocation{
					ToolName:    cl.tool.Name(),
					GuidelineID: cl.guidelineID,
					Result:      tool.NewMissingParameterResult(unmetDependency(cl.tool, bindings)),
				})
				resp.completed[cl.tool.Name()] = true
			}
			return
		}
		pending = rest

		results := make([]Invocation, len(stage))
		var wg sync.WaitGroup
		for i, cl := range stage {
			args, ask, missing := c.resolve(cl.tool, req, bindings)
			if ask != nil {
				// Deferred, not failed: do not mark completed.
				resp.NeedsInput = append(resp.NeedsInput, *ask)
				results[i] = Invocation{ToolName: cl.tool.Name()}
				continue
			}
			if missing != "" {
				results[i] = Invocation{
					ToolName:    cl.tool.Name(),
					GuidelineID: cl.guidelineID,
					Result:      tool.NewMissingParameterResult(missing),
				}
				continue
			}

			wg.Add(1)
			go func(i int, cl call, args tool.Arguments) {
				defer wg.Done()
				result := c.executor.Execute(ctx, cl.tool, req.Session, args)
				results[i] = Invocation{
					ToolName:    cl.tool.Name(),
					GuidelineID: cl.guidelineID,
					Result:      result,
				}
			}(i, cl, args)
		}
		wg.Wait()

		violated := false
		for _, inv := range results {
			if inv.Result.Outcome == "" {
				// Deferred call placeholder.
				continue
			}
			resp.Invocations = append(resp.Invocations, inv)
			resp.completed[inv.ToolName] = true

			logging.Debug().
				Add(logging.ToolName(inv.ToolName)).
				Add(logging.GuidelineID(inv.GuidelineID)).
				Add(logging.Outcome(inv.Result.Outcome)).
				Add(logging.Duration(inv.Result.Duration)).
				Msg("tool invoked")

			if inv.Result.Outcome == tool.OutcomeSecurityViolation {
				violated = true
			}
			if inv.Result.OK() {
				if len(inv.Result.FieldBindings) > 0 {
					bindings[inv.ToolName] = inv.Result.FieldBindings
				}
				c.stageWrites(inv, req)
			}
		}
		if violated {
			logging.Warn().Msg("security violation, aborting remaining calls in guideline")
			return
		}
	}
}

// splitStage partitions pending calls into those whose dependencies are
// satisfied and the rest.
func splitStage(pending []call, bindings map[string]map[string]string) (stage, rest []call) {
	for _, cl := range pending {
		if dependenciesMet(cl.tool, pending, bindings) {
			stage = append(stage, cl)
		} else {
			rest = append(rest, cl)
		}
	}
	return stage, rest
}

// dependenciesMet reports whether every BindsTo reference either has a
// binding already or points outside the pending set.
func dependenciesMet(t tool.Tool, pending []call, bindings map[string]map[string]string) bool {
	for _, p := range t.Parameters() {
		dep, _, ok := p.Dependency()
		if !ok {
			continue
		}
		if _, have := bindings[dep]; have {
			continue
		}
		for _, other := range pending {
			if other.tool.Name() == dep && other.tool.Name() != t.Name() {
				return false
			}
		}
	}
	return true
}

// unmetDependency names the first dependency parameter that cannot resolve.
func unmetDependency(t tool.Tool, bindings map[string]map[string]string) string {
	for _, p := range t.Parameters() {
		if dep, _, ok := p.Dependency(); ok {
			if _, have := bindings[dep]; !have {
				return p.Name
			}
		}
	}
	return ""
}

// resolve builds the argument map for one call. It returns an Ask when a
// required customer-sourced parameter is unresolved (defer, don't call) and
// a missing-parameter name when a required context-sourced parameter cannot
// be extracted (call fails as MissingParameter).
func (c *Caller) resolve(t tool.Tool, req Request, bindings map[string]map[string]string) (tool.Arguments, *Ask, string) {
	args := make(tool.Arguments)

	for _, p := range t.Parameters() {
		if dep, field, ok := p.Dependency(); ok {
			fields, have := bindings[dep]
			if !have {
				if p.Required {
					return nil, nil, p.Name
				}
				continue
			}
			value, haveField := fields[field]
			if !haveField {
				if p.Required {
					return nil, nil, p.Name
				}
				continue
			}
			raw, _ := json.Marshal(value)
			args[p.Name] = raw
			continue
		}

		switch p.Source {
		case tool.SourceCustomer:
			if v, ok := req.CustomerArgs[p.Name]; ok {
				args[p.Name] = v
				continue
			}
			if p.Required {
				return nil, &Ask{
					ToolName:    t.Name(),
					Parameter:   p.Name,
					Description: p.Description,
				}, ""
			}
		default:
			if v, ok := req.CustomerArgs[p.Name]; ok {
				args[p.Name] = v
				continue
			}
			if v, ok := req.Session.Vars[p.Name]; ok {
				args[p.Name] = v
				continue
			}
			if p.Required {
				return nil, nil, p.Name
			}
		}
	}

	return args, nil, ""
}

// stageWrites stages the result's variable writes, plus the refreshed value
// for refresher tools, into the turn's staging buffer.
func (c *Caller) stageWrites(inv Invocation, req Request) {
	if req.Staging == nil {
		return
	}

	writes := inv.Result.VariableWrites
	if name := toolRefreshes(inv, c.registry); name != "" && inv.Result.Data != nil {
		if writes == nil {
			writes = map[string]json.RawMessage{name: inv.Result.Data}
		} else if _, ok := writes[name]; !ok {
			writes[name] = inv.Result.Data
		}
	}

	for name, data := range writes {
		for _, key := range scopeKeys(name, req) {
			req.Staging.Stage(variable.Value{
				Name:          name,
				ScopeKey:      key,
				Data:          data,
				LastRefreshed: time.Now(),
			})
		}
	}
}

func toolRefreshes(inv Invocation, registry tool.Registry) string {
	t, ok := registry.Get(inv.ToolName)
	if !ok {
		return ""
	}
	return t.Annotations().RefreshesVariable
}

// scopeKeys resolves the scope keys a write to the named variable targets.
// Unknown variables default to customer scope.
func scopeKeys(name string, req Request) []string {
	for _, def := range req.Variables {
		if def.Name == name {
			return scopeKeysFor(def, req)
		}
	}
	return []string{req.Session.CustomerID}
}

// scopeKeysFor resolves a definition's scope keys for the session: the
// session's tags for tag scope, the customer ID otherwise.
func scopeKeysFor(def variable.Definition, req Request) []string {
	if def.Scope == variable.ScopeTag {
		return req.Session.Tags
	}
	return []string{req.Session.CustomerID}
}

// RefreshStale invokes the refresher tools of stale variables and stages
// the refreshed values. Failures are logged and traced, never fatal.
func (c *Caller) RefreshStale(ctx context.Context, req Request) []Invocation {
	var out []Invocation
	now := time.Now()

	for _, def := range req.Variables {
		if def.Refresher == "" || def.MaxAge <= 0 || req.Staging == nil {
			continue
		}

		// The freshness read targets the variable's declared scope; tag
		// values are staged under every session tag with one timestamp, so
		// the first hit decides.
		var current variable.Value
		err := variable.ErrNotFound
		for _, key := range scopeKeysFor(def, req) {
			current, err = req.Staging.Get(ctx, def.Name, key)
			if err == nil || !errors.Is(err, variable.ErrNotFound) {
				break
			}
		}
		if err == nil && !def.Stale(current, now) {
			continue
		}
		if err != nil && !errors.Is(err, variable.ErrNotFound) {
			logging.Warn().
				Add(logging.Str("variable", def.Name)).
				Add(logging.ErrorField(err)).
				Msg("variable read failed, skipping refresh")
			continue
		}

		t, ok := c.registry.Get(def.Refresher)
		if !ok {
			logging.Warn().
				Add(logging.Str("variable", def.Name)).
				Add(logging.ToolName(def.Refresher)).
				Msg("refresher tool not registered")
			continue
		}

		args, ask, missing := c.resolve(t, req, nil)
		if ask != nil || missing != "" {
			// Refreshers run in the background of a turn; they never ask.
			continue
		}

		inv := Invocation{ToolName: t.Name(), Result: c.executor.Execute(ctx, t, req.Session, args)}
		out = append(out, inv)
		if inv.Result.OK() {
			c.stageWrites(inv, req)
		}
	}

	return out
}
