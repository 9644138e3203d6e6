package journey

import "fmt"

// Validate checks the journey graph invariants:
//   - the initial state exists
//   - state IDs are unique
//   - every transition endpoint names an existing state
//   - non-fork states have at most one unconditional outgoing transition
//   - fork states have only conditional outgoing transitions, at least two
//   - chat states carry an instruction, tool states a tool ref, fork states
//     no payload
func (j *Journey) Validate() error {
	if j.ID == "" {
		return ErrEmptyID
	}
	if len(j.States) == 0 {
		return fmt.Errorf("%w: journey %s", ErrNoStates, j.ID)
	}

	states := make(map[string]State, len(j.States))
	for _, s := range j.States {
		if s.ID == "" {
			return fmt.Errorf("%w: journey %s", ErrEmptyStateID, j.ID)
		}
		if _, dup := states[s.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateState, s.ID)
		}
		if err := validateState(s); err != nil {
			return err
		}
		states[s.ID] = s
	}

	if _, ok := states[j.InitialState]; !ok {
		return fmt.Errorf("%w: %q", ErrInitialStateMissing, j.InitialState)
	}

	defaults := make(map[string]int)
	conditional := make(map[string]int)
	for _, t := range j.Transitions {
		if _, ok := states[t.From]; !ok {
			return fmt.Errorf("%w: transition from %q", ErrUnknownState, t.From)
		}
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("%w: transition to %q", ErrUnknownState, t.To)
		}
		if t.IsDefault() {
			defaults[t.From]++
		} else {
			conditional[t.From]++
		}
	}

	for _, s := range j.States {
		if s.Kind == StateFork {
			if defaults[s.ID] > 0 {
				return fmt.Errorf("%w: fork state %s has an unconditional transition", ErrInvalidFork, s.ID)
			}
			if conditional[s.ID] < 2 {
				return fmt.Errorf("%w: fork state %s needs at least two conditional transitions", ErrInvalidFork, s.ID)
			}
			continue
		}
		if defaults[s.ID] > 1 {
			return fmt.Errorf("%w: state %s", ErrMultipleDefaults, s.ID)
		}
	}

	return nil
}

func validateState(s State) error {
	switch s.Kind {
	case StateChat:
		if s.Instruction == "" {
			return fmt.Errorf("%w: chat state %s has no instruction", ErrInvalidState, s.ID)
		}
		if s.ToolRef != "" {
			return fmt.Errorf("%w: chat state %s has a tool ref", ErrInvalidState, s.ID)
		}
	case StateTool:
		if s.ToolRef == "" {
			return fmt.Errorf("%w: tool state %s has no tool ref", ErrInvalidState, s.ID)
		}
	case StateFork:
		if s.Instruction != "" || s.ToolRef != "" {
			return fmt.Errorf("%w: fork state %s carries a payload", ErrInvalidState, s.ID)
		}
	default:
		return fmt.Errorf("%w: state %s kind %q", ErrInvalidState, s.ID, s.Kind)
	}
	return nil
}
