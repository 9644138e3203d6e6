package matching

import (
	"context"
	"fmt"
	"sync"
)

// ScriptStep defines an expected condition and the verdict to return.
type ScriptStep struct {
	// ExpectCondition asserts this condition is the one being evaluated.
	// Empty skips the check.
	ExpectCondition string

	// Verdict is the verdict to return.
	Verdict Verdict

	// Err, when set, is returned instead of the verdict.
	Err error
}

// ScriptedEvaluator executes a predefined verdict sequence for
// deterministic testing. It validates conditions arrive in the expected
// order, so tests catch pipeline ordering regressions.
type ScriptedEvaluator struct {
	steps []ScriptStep
	index int
	mu    sync.Mutex
}

// NewScriptedEvaluator creates a scripted evaluator with the given steps.
func NewScriptedEvaluator(steps ...ScriptStep) *ScriptedEvaluator {
	return &ScriptedEvaluator{steps: steps}
}

// Name returns the evaluator name.
func (e *ScriptedEvaluator) Name() string {
	return "scripted"
}

// Evaluate returns the next verdict if the condition matches expectations.
func (e *ScriptedEvaluator) Evaluate(_ context.Context, condition string, _ Context) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index >= len(e.steps) {
		return Verdict{}, fmt.Errorf("script exhausted at condition %q", condition)
	}

	step := e.steps[e.index]
	if step.ExpectCondition != "" && step.ExpectCondition != condition {
		return Verdict{}, fmt.Errorf("unexpected condition at step %d: expected %q, got %q",
			e.index, step.ExpectCondition, condition)
	}

	e.index++
	if step.Err != nil {
		return Verdict{}, step.Err
	}
	return step.Verdict, nil
}

// Reset resets the evaluator to the beginning.
func (e *ScriptedEvaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index = 0
}

// IsComplete returns true if all steps have been consumed.
func (e *ScriptedEvaluator) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index >= len(e.steps)
}
