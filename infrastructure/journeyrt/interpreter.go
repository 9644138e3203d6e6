package journeyrt

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// AdvanceRequest carries the turn context the interpreter advances against.
type AdvanceRequest struct {
	// RestingState is the state the session was in when the turn began.
	// Its chat question was asked in an earlier turn, so its default
	// transition is ready: the current customer message is the answer.
	RestingState string

	// Condition evaluates a transition condition against turn context.
	Condition func(ctx context.Context, condition string) (bool, error)

	// Trusted reports whether a collected fact is already present and
	// trusted in turn context. Drives the adaptive-skip check.
	Trusted func(fact string) bool

	// ToolCompleted reports whether a tool state's tool ran this turn.
	ToolCompleted func(toolRef string) bool
}

// Interpreter drives one journey instance for one session. It wraps the
// statekit interpreter with the per-turn transition algorithm.
type Interpreter struct {
	journey *journey.Journey
	interp  *statekit.Interpreter[*TurnContext]
	tctx    *TurnContext
}

// NewInterpreter compiles the journey and starts an interpreter in its
// initial state.
func NewInterpreter(j *journey.Journey) (*Interpreter, error) {
	machine, err := Compile(j)
	if err != nil {
		return nil, err
	}

	tctx := &TurnContext{JourneyID: j.ID}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **TurnContext) {
		*c = tctx
	})
	interp.Start()

	return &Interpreter{
		journey: j,
		interp:  interp,
		tctx:    tctx,
	}, nil
}

// Resume restores the interpreter to a previously persisted state.
func (i *Interpreter) Resume(stateID string) error {
	if _, ok := i.journey.StateByID(stateID); !ok {
		return fmt.Errorf("journey %s: %w: %s", i.journey.ID, journey.ErrUnknownState, stateID)
	}

	snapshot := statekit.Snapshot[*TurnContext]{
		MachineID:    i.journey.ID,
		CurrentState: statekit.StateID(stateID),
		Context:      i.tctx,
		CreatedAt:    time.Now(),
	}
	if err := i.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("journey %s: restore state %s: %w", i.journey.ID, stateID, err)
	}
	return nil
}

// StateID returns the current state.
func (i *Interpreter) StateID() string {
	return string(i.interp.State().Value)
}

// State returns the current state's definition.
func (i *Interpreter) State() (journey.State, bool) {
	return i.journey.StateByID(i.StateID())
}

// Done reports whether the journey reached a terminal state.
func (i *Interpreter) Done() bool {
	return i.interp.Done()
}

// Journey returns the journey definition being interpreted.
func (i *Interpreter) Journey() *journey.Journey {
	return i.journey
}

// Advance runs the per-turn transition algorithm to a fixpoint: conditions
// are evaluated in declaration order, the first true one wins, the
// unconditional default fires only when the current state's purpose is
// fulfilled. Chat states reached mid-advance whose collected fact is already
// trusted are skipped with an explicit trace entry.
//
// Advancing again with identical context takes no further step: every
// transition the context could justify has already been taken.
func (i *Interpreter) Advance(ctx context.Context, req AdvanceRequest) ([]message.JourneyStep, *message.Diagnostic, error) {
	start := len(i.tctx.Steps)
	var diag *message.Diagnostic

	// arrived marks states entered during this call, as opposed to the
	// resting state the session woke up in.
	arrived := false
	visited := make(map[string]bool)

	for {
		current := i.StateID()
		if i.journey.IsTerminal(current) || visited[current] {
			break
		}
		visited[current] = true

		state, ok := i.journey.StateByID(current)
		if !ok {
			break
		}

		next, reason, err := i.pick(ctx, state, req, arrived)
		if err != nil {
			return nil, nil, err
		}
		if next == "" {
			if state.Kind == journey.StateFork {
				detail := fmt.Sprintf("journey %s fork %s: no transition condition matched", i.journey.ID, state.ID)
				diag = &message.Diagnostic{Kind: message.DiagnosticUnresolvedTransition, Detail: detail}
				logging.Warn().
					Add(logging.JourneyID(i.journey.ID)).
					Add(logging.StateID(state.ID)).
					Msg("unresolved fork, staying in state")
			}
			break
		}

		// A chat state passed through mid-advance is an adaptive skip only
		// when its default fired off the trusted-fact check; leaving it via
		// a matched condition is an ordinary transition.
		skipped := arrived && state.Kind == journey.StateChat && reason == reasonDefault
		i.interp.Send(statekit.Event{
			Type: eventFor(next),
			Payload: StepPayload{
				From:    current,
				To:      next,
				Skipped: skipped,
				Reason:  reason,
			},
		})
		logging.Debug().
			Add(logging.JourneyID(i.journey.ID)).
			Add(logging.FromState(current)).
			Add(logging.ToState(next)).
			Msg("journey transition")
		arrived = true
	}

	return i.tctx.Steps[start:], diag, nil
}

// reasonDefault marks a step taken over the unconditional default
// transition.
const reasonDefault = "default"

// pick selects the next state, or "" when no transition is ready.
// Conditional transitions are tried in declaration order; the unconditional
// default fires only when the state is fulfilled in the current context.
func (i *Interpreter) pick(ctx context.Context, state journey.State, req AdvanceRequest, arrived bool) (string, string, error) {
	outgoing := i.journey.Outgoing(state.ID)

	var defaultTo string
	for _, tr := range outgoing {
		if tr.IsDefault() {
			if defaultTo == "" {
				defaultTo = tr.To
			}
			continue
		}
		matched, err := req.Condition(ctx, tr.Condition)
		if err != nil {
			return "", "", err
		}
		if matched {
			return tr.To, tr.Condition, nil
		}
	}

	if defaultTo != "" && i.fulfilled(state, req, arrived) {
		return defaultTo, reasonDefault, nil
	}
	return "", "", nil
}

// fulfilled reports whether the state's purpose has been served, making its
// default transition ready.
func (i *Interpreter) fulfilled(state journey.State, req AdvanceRequest, arrived bool) bool {
	switch state.Kind {
	case journey.StateChat:
		if !arrived {
			// The resting state's question was asked last turn; the
			// current message is the customer's answer.
			return state.ID == req.RestingState
		}
		// Mid-advance the question was never asked: only skippable when
		// the fact it elicits is already trusted.
		return state.Collects != "" && req.Trusted != nil && req.Trusted(state.Collects)
	case journey.StateTool:
		return req.ToolCompleted != nil && req.ToolCompleted(state.ToolRef)
	default:
		return false
	}
}

// Steps returns every step recorded since the interpreter started.
func (i *Interpreter) Steps() []message.JourneyStep {
	return i.tctx.Steps
}
