package journeyrt

import (
	"context"

	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// Activate evaluates journey activation conditions in definition order and
// returns the first journey with a holding condition, or nil when none
// activates. The caller enforces the no-preemption policy: sessions with an
// active, non-terminal journey are not offered a new one unless the customer
// abandoned the current flow.
func Activate(ctx context.Context, journeys []journey.Journey, eval func(ctx context.Context, condition string) (bool, error)) (*journey.Journey, error) {
	for idx := range journeys {
		j := &journeys[idx]
		for _, condition := range j.ActivationConditions {
			matched, err := eval(ctx, condition)
			if err != nil {
				return nil, err
			}
			if matched {
				logging.Info().
					Add(logging.JourneyID(j.ID)).
					Add(logging.Str("condition", condition)).
					Msg("journey activated")
				return j, nil
			}
		}
	}
	return nil, nil
}

// DefaultAbandonCondition is the abandon signal used by journeys that do not
// declare their own.
const DefaultAbandonCondition = "the customer changes their mind or explicitly abandons the current process"

// Abandoned reports whether the customer walked away from the active journey
// this turn. Abandon conditions are matched like guideline conditions, in
// declaration order; journeys without any use DefaultAbandonCondition.
func Abandoned(ctx context.Context, j *journey.Journey, eval func(ctx context.Context, condition string) (bool, error)) (bool, error) {
	conditions := j.AbandonConditions
	if len(conditions) == 0 {
		conditions = []string{DefaultAbandonCondition}
	}
	for _, condition := range conditions {
		matched, err := eval(ctx, condition)
		if err != nil {
			return false, err
		}
		if matched {
			logging.Info().
				Add(logging.JourneyID(j.ID)).
				Add(logging.Str("condition", condition)).
				Msg("journey abandoned")
			return true, nil
		}
	}
	return false, nil
}
