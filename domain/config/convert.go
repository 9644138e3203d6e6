package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/parley/domain/agent"
	"github.com/felixgeelhaar/parley/domain/glossary"
	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/variable"
)

// ToDefinition converts the parsed config into an agent definition.
// Validation happens separately via Definition.Validate.
func (c *AgentConfig) ToDefinition() (*agent.Definition, error) {
	mode, ok := message.ParseMode(c.Agent.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: mode %q", ErrValidationFailed, c.Agent.Mode)
	}

	id := c.Agent.ID
	if id == "" {
		id = slug(c.Name)
	}

	def := &agent.Definition{
		ID:          id,
		Name:        c.Name,
		Description: c.Description,
		Mode:        mode,
		Deflection:  c.Agent.Deflection,
	}

	for i, t := range c.Terms {
		termID := t.ID
		if termID == "" {
			termID = fmt.Sprintf("term-%d", i+1)
		}
		def.Terms = append(def.Terms, glossary.Term{
			ID:          termID,
			Name:        t.Name,
			Description: t.Description,
			Synonyms:    t.Synonyms,
		})
	}

	for i, g := range c.Guidelines {
		crit, ok := guideline.ParseCriticality(g.Criticality)
		if !ok {
			return nil, fmt.Errorf("%w: guideline %d criticality %q", ErrValidationFailed, i+1, g.Criticality)
		}
		gid := g.ID
		if gid == "" {
			gid = fmt.Sprintf("guideline-%d", i+1)
		}
		scope := guideline.GlobalScope()
		if g.Scope != nil {
			scope = guideline.Scope{Kind: guideline.ScopeJourney, JourneyID: g.Scope.Journey}
			if g.Scope.State != "" {
				scope.Kind = guideline.ScopeState
				scope.StateID = g.Scope.State
			}
		}
		def.Guidelines = append(def.Guidelines, guideline.Guideline{
			ID:          gid,
			Condition:   g.Condition,
			Action:      g.Action,
			Criticality: crit,
			ToolRefs:    g.Tools,
			Mode:        g.Mode,
			Scope:       scope,
			Enabled:     !g.Disabled,
			Sequence:    i + 1,
		})
	}

	for _, j := range c.Journeys {
		converted := journey.Journey{
			ID:                   j.ID,
			Title:                j.Title,
			Description:          j.Description,
			ActivationConditions: j.Activation,
			AbandonConditions:    j.Abandon,
			InitialState:         j.Initial,
		}
		for _, s := range j.States {
			converted.States = append(converted.States, journey.State{
				ID:          s.ID,
				Kind:        journey.StateKind(s.Kind),
				Instruction: s.Instruction,
				Collects:    s.Collects,
				ToolRef:     s.Tool,
			})
		}
		for _, t := range j.Transitions {
			converted.Transitions = append(converted.Transitions, journey.Transition{
				From:      t.From,
				To:        t.To,
				Condition: t.Condition,
			})
		}
		def.Journeys = append(def.Journeys, converted)
	}

	for i, canned := range c.Canned {
		cid := canned.ID
		if cid == "" {
			cid = fmt.Sprintf("canned-%d", i+1)
		}
		scope := message.CannedScope{}
		if canned.Scope != nil {
			scope.JourneyID = canned.Scope.Journey
			scope.StateID = canned.Scope.State
		}
		def.Canned = append(def.Canned, message.CannedResponse{
			ID:            cid,
			Template:      canned.Text,
			SignalPhrases: canned.Signals,
			Scope:         scope,
			Safe:          canned.Safe,
		})
	}

	for _, v := range c.Variables {
		scope := variable.Scope(v.Scope)
		if scope == "" {
			scope = variable.ScopeCustomer
		}
		if scope != variable.ScopeCustomer && scope != variable.ScopeTag {
			return nil, fmt.Errorf("%w: variable %s scope %q", ErrValidationFailed, v.Name, v.Scope)
		}
		def.Variables = append(def.Variables, variable.Definition{
			Name:        v.Name,
			Description: v.Description,
			Scope:       scope,
			MaxAge:      time.Duration(v.MaxAge),
			Refresher:   v.Refresher,
		})
	}

	return def, nil
}

// slug lowercases a name and replaces spaces with hyphens.
func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}
