// Package journeyrt compiles journey graphs into statekit machines and
// drives them through conversation turns.
package journeyrt

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
)

// TurnContext carries journey progress through the state machine.
type TurnContext struct {
	JourneyID string
	Steps     []message.JourneyStep
}

// StepPayload carries transition data with a machine event.
type StepPayload struct {
	From    string
	To      string
	Skipped bool
	Reason  string
}

// eventFor returns the machine event that moves to the given state.
// Transitions are picked by the interpreter, not by statekit guards, so one
// event per target state is enough.
func eventFor(to string) statekit.EventType {
	return statekit.EventType("GOTO:" + to)
}

// recordStep appends the taken step to the turn context.
// Actions receive a pointer to the context; ours is *TurnContext, so the
// action receives **TurnContext.
func recordStep(ctx **TurnContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	payload, ok := event.Payload.(StepPayload)
	if !ok {
		return
	}
	c.Steps = append(c.Steps, message.JourneyStep{
		JourneyID: c.JourneyID,
		FromState: payload.From,
		ToState:   payload.To,
		Skipped:   payload.Skipped,
		Reason:    payload.Reason,
	})
}

// Compile builds the statekit machine for a journey. States with no outgoing
// transitions become final states.
func Compile(j *journey.Journey) (*statekit.MachineConfig[*TurnContext], error) {
	if err := j.Validate(); err != nil {
		return nil, fmt.Errorf("journey %s: %w", j.ID, err)
	}

	builder := statekit.NewMachine[*TurnContext](j.ID).
		WithInitial(statekit.StateID(j.InitialState)).
		WithContext(&TurnContext{JourneyID: j.ID}).
		WithAction("recordStep", recordStep)

	for _, st := range j.States {
		outgoing := j.Outgoing(st.ID)
		stateBuilder := builder.State(statekit.StateID(st.ID))

		if len(outgoing) == 0 {
			builder = stateBuilder.Final().Done()
			continue
		}

		// Two conditional transitions to the same target share an event.
		seen := make(map[string]bool, len(outgoing))
		var targets []string
		for _, tr := range outgoing {
			if seen[tr.To] {
				continue
			}
			seen[tr.To] = true
			targets = append(targets, tr.To)
		}

		transitionBuilder := stateBuilder.
			On(eventFor(targets[0])).Target(statekit.StateID(targets[0])).Do("recordStep")
		for _, to := range targets[1:] {
			transitionBuilder = transitionBuilder.
				On(eventFor(to)).Target(statekit.StateID(to)).Do("recordStep")
		}
		builder = transitionBuilder.Done()
	}

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("journey %s: build machine: %w", j.ID, err)
	}
	return machine, nil
}
