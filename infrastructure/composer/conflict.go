package composer

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
)

// resolution records which matched guidelines lost a conflict tie-break.
// Suppressed actions are excluded from the composition prompt; the matches
// themselves stay in the trace.
type resolution struct {
	suppressed map[string]bool
}

// resolveConflicts detects mutually contradictory actions among matched
// guidelines. Across criticality levels the higher level strictly wins, which
// the prompt's priority ordering already enforces; contradiction is only
// checked within a level. An equal-criticality conflict is resolved by the
// deterministic tie-break (highest sequence, the most recently defined rule,
// wins) and surfaced as a diagnostic.
func (c *Composer) resolveConflicts(ctx context.Context, matches []guideline.Match, trace *message.Trace) resolution {
	res := resolution{suppressed: make(map[string]bool)}
	if c.evaluator == nil {
		return res
	}

	for i := 0; i < len(matches); i++ {
		a := matches[i].Guideline
		if a.IsObservation() || res.suppressed[a.ID] {
			continue
		}
		for j := i + 1; j < len(matches); j++ {
			b := matches[j].Guideline
			if b.IsObservation() || res.suppressed[b.ID] {
				continue
			}
			if a.Criticality != b.Criticality {
				continue
			}

			verdict, err := c.evaluator.Evaluate(ctx, conflictCondition(a.Action, b.Action), matching.Context{})
			if err != nil {
				// Conflict detection is diagnostic machinery; it
				// must not block the turn.
				logging.Warn().
					Add(logging.GuidelineID(a.ID)).
					Add(logging.ErrorField(err)).
					Msg("guideline conflict check failed")
				continue
			}
			if !verdict.Match {
				continue
			}

			loser, winner := a, b
			if a.Sequence > b.Sequence {
				loser, winner = b, a
			}
			res.suppressed[loser.ID] = true
			detail := fmt.Sprintf("guidelines %s and %s conflict at criticality %s; %s wins", a.ID, b.ID, a.Criticality, winner.ID)
			trace.AddDiagnostic(message.DiagnosticAmbiguousConflict, detail)
			logging.Warn().
				Add(logging.GuidelineID(winner.ID)).
				Add(logging.Criticality(a.Criticality)).
				Add(logging.Str("suppressed", loser.ID)).
				Msg("ambiguous guideline conflict, latest-defined rule applied")

			if loser.ID == a.ID {
				break
			}
		}
	}
	return res
}

func conflictCondition(actionA, actionB string) string {
	return fmt.Sprintf("These two instructions give mutually contradictory directions:\n1) %s\n2) %s", actionA, actionB)
}
