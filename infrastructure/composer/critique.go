package composer

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
)

// critique re-checks the draft against every matched high-criticality
// guideline's action. It returns the first violated instruction and whether
// the draft passed. An evaluator failure counts as a pass: critique hardens
// output, it does not gate all output on evaluator availability.
func (c *Composer) critique(ctx context.Context, req Request, res resolution, draft string, reply *message.Reply) (violated string, ok bool) {
	if c.evaluator == nil {
		return "", true
	}

	for _, m := range req.Matches {
		g := m.Guideline
		if g.Criticality != guideline.CriticalityHigh || g.IsObservation() || res.suppressed[g.ID] {
			continue
		}

		reply.Trace.CritiquePasses++
		verdict, err := c.evaluator.Evaluate(ctx, critiqueCondition(g.Action), matching.Context{
			Input:   draft,
			History: req.History,
		})
		if err != nil {
			logging.Warn().
				Add(logging.GuidelineID(g.ID)).
				Add(logging.ErrorField(err)).
				Msg("critique evaluation failed")
			continue
		}
		if verdict.Match {
			logging.Info().
				Add(logging.GuidelineID(g.ID)).
				Add(logging.Confidence(verdict.Confidence)).
				Msg("draft violates high-criticality guideline")
			return g.Action, false
		}
	}
	return "", true
}

func critiqueCondition(action string) string {
	return fmt.Sprintf("The assistant's draft reply (given as the customer message) violates this instruction: %s", action)
}
