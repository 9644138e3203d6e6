// Package journey provides multi-turn conversational state machines.
package journey

// StateKind classifies what a journey state does.
type StateKind string

const (
	// StateChat instructs the agent to say or ask something.
	StateChat StateKind = "chat"

	// StateTool invokes a tool before the reply is composed.
	StateTool StateKind = "tool"

	// StateFork routes between branches; it carries no payload and all of
	// its outgoing transitions are conditional.
	StateFork StateKind = "fork"
)

// State is a node in a journey graph.
type State struct {
	// ID is unique within the journey.
	ID string `json:"id"`

	// Kind determines which payload field applies.
	Kind StateKind `json:"kind"`

	// Instruction is the chat-state payload.
	Instruction string `json:"instruction,omitempty"`

	// Collects names the fact a chat state's question elicits. A chat
	// state whose fact is already present and trusted in turn context is
	// skippable; the skip is an explicit precondition check, recorded in
	// the turn trace.
	Collects string `json:"collects,omitempty"`

	// ToolRef is the tool-state payload.
	ToolRef string `json:"tool_ref,omitempty"`
}

// Transition is a directed edge between states. An empty condition marks the
// unconditional default.
type Transition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
}

// IsDefault reports whether the transition is unconditional.
func (t Transition) IsDefault() bool {
	return t.Condition == ""
}

// Journey is a per-agent conversational state machine. It is instantiated
// once per agent definition and referenced, not copied, by active sessions.
type Journey struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Title is a short human-readable name.
	Title string `json:"title"`

	// Description explains the journey's purpose to the evaluator.
	Description string `json:"description,omitempty"`

	// ActivationConditions are matched like guideline conditions; the
	// journey becomes the session's active journey when one holds.
	ActivationConditions []string `json:"activation_conditions"`

	// AbandonConditions release a mid-flow session from this journey when
	// one holds, matched like guideline conditions. Empty means the
	// built-in change-of-mind signal.
	AbandonConditions []string `json:"abandon_conditions,omitempty"`

	// States are the graph nodes in declaration order.
	States []State `json:"states"`

	// Transitions are the graph edges in declaration order. Declaration
	// order is the evaluation order during a turn.
	Transitions []Transition `json:"transitions"`

	// InitialState is the entry state ID.
	InitialState string `json:"initial_state"`
}

// StateByID returns the state with the given ID.
func (j *Journey) StateByID(id string) (State, bool) {
	for _, s := range j.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// Outgoing returns the transitions leaving the given state, in declaration
// order.
func (j *Journey) Outgoing(stateID string) []Transition {
	var out []Transition
	for _, t := range j.Transitions {
		if t.From == stateID {
			out = append(out, t)
		}
	}
	return out
}

// IsTerminal reports whether a state has no outgoing transitions. Terminal
// states are implicit; the model defines no explicit marker.
func (j *Journey) IsTerminal(stateID string) bool {
	return len(j.Outgoing(stateID)) == 0
}
