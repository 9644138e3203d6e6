package agent

import (
	"fmt"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
)

// Validate checks the definition at build time: duplicate IDs, dangling
// tool, journey, and variable references, and journey graph invariants.
// knownTools lists the registered tool names; pass nil to skip tool checks.
func (d *Definition) Validate(knownTools []string) error {
	if d.ID == "" {
		return ErrEmptyID
	}
	if _, ok := message.ParseMode(string(d.Mode)); !ok && d.Mode != "" {
		return fmt.Errorf("%w: %q", ErrInvalidMode, d.Mode)
	}

	tools := make(map[string]bool, len(knownTools))
	for _, name := range knownTools {
		tools[name] = true
	}
	checkTool := func(ref, where string) error {
		if knownTools == nil || ref == "" || tools[ref] {
			return nil
		}
		return fmt.Errorf("%w: %s references tool %q", ErrDanglingToolRef, where, ref)
	}

	termNames := make(map[string]bool, len(d.Terms))
	for _, t := range d.Terms {
		if t.Name == "" {
			return fmt.Errorf("%w: term %s", ErrInvalidTerm, t.ID)
		}
		if termNames[t.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTerm, t.Name)
		}
		termNames[t.Name] = true
	}

	journeys := make(map[string]map[string]bool, len(d.Journeys))
	for i := range d.Journeys {
		j := &d.Journeys[i]
		if _, dup := journeys[j.ID]; dup {
			return fmt.Errorf("%w: journey %q", ErrDuplicateID, j.ID)
		}
		if err := j.Validate(); err != nil {
			return err
		}
		states := make(map[string]bool, len(j.States))
		for _, s := range j.States {
			states[s.ID] = true
			if err := checkTool(s.ToolRef, "journey "+j.ID+" state "+s.ID); err != nil {
				return err
			}
		}
		journeys[j.ID] = states
	}

	guidelineIDs := make(map[string]bool, len(d.Guidelines))
	for _, g := range d.Guidelines {
		if g.Condition == "" {
			return fmt.Errorf("%w: guideline %s", guideline.ErrEmptyCondition, g.ID)
		}
		if guidelineIDs[g.ID] {
			return fmt.Errorf("%w: guideline %q", ErrDuplicateID, g.ID)
		}
		guidelineIDs[g.ID] = true
		for _, ref := range g.ToolRefs {
			if err := checkTool(ref, "guideline "+g.ID); err != nil {
				return err
			}
		}
		if g.Mode != "" {
			if _, ok := message.ParseMode(g.Mode); !ok {
				return fmt.Errorf("%w: guideline %s mode %q", ErrInvalidMode, g.ID, g.Mode)
			}
		}
		if g.Scope.Kind == guideline.ScopeJourney || g.Scope.Kind == guideline.ScopeState {
			states, ok := journeys[g.Scope.JourneyID]
			if !ok {
				return fmt.Errorf("%w: guideline %s scope journey %q", ErrDanglingJourneyRef, g.ID, g.Scope.JourneyID)
			}
			if g.Scope.Kind == guideline.ScopeState && !states[g.Scope.StateID] {
				return fmt.Errorf("%w: guideline %s scope state %q", ErrDanglingJourneyRef, g.ID, g.Scope.StateID)
			}
		}
	}

	for _, c := range d.Canned {
		if c.Scope.JourneyID != "" {
			states, ok := journeys[c.Scope.JourneyID]
			if !ok {
				return fmt.Errorf("%w: canned %s scope journey %q", ErrDanglingJourneyRef, c.ID, c.Scope.JourneyID)
			}
			if c.Scope.StateID != "" && !states[c.Scope.StateID] {
				return fmt.Errorf("%w: canned %s scope state %q", ErrDanglingJourneyRef, c.ID, c.Scope.StateID)
			}
		}
	}

	varNames := make(map[string]bool, len(d.Variables))
	for _, v := range d.Variables {
		if v.Name == "" {
			return ErrInvalidVariable
		}
		if varNames[v.Name] {
			return fmt.Errorf("%w: variable %q", ErrDuplicateID, v.Name)
		}
		varNames[v.Name] = true
		if err := checkTool(v.Refresher, "variable "+v.Name); err != nil {
			return err
		}
	}

	return nil
}
