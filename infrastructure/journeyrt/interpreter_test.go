package journeyrt

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/parley/domain/journey"
	"github.com/felixgeelhaar/parley/domain/message"
)

// returnFlow is an order-return journey: ask for the order number, look the
// order up, fork on return eligibility, then confirm or deny.
func returnFlow() *journey.Journey {
	return &journey.Journey{
		ID:                   "order_return",
		Title:                "Order return",
		ActivationConditions: []string{"customer wants to return an item"},
		InitialState:         "ask_order",
		States: []journey.State{
			{ID: "ask_order", Kind: journey.StateChat, Instruction: "Ask for the order number", Collects: "order_number"},
			{ID: "lookup", Kind: journey.StateTool, ToolRef: "get_order"},
			{ID: "route", Kind: journey.StateFork},
			{ID: "confirm", Kind: journey.StateChat, Instruction: "Confirm the return and explain next steps"},
			{ID: "deny", Kind: journey.StateChat, Instruction: "Explain why the order is not returnable"},
		},
		Transitions: []journey.Transition{
			{From: "ask_order", To: "lookup"},
			{From: "lookup", To: "route"},
			{From: "route", To: "confirm", Condition: "order is within the return window"},
			{From: "route", To: "deny", Condition: "order is outside the return window"},
		},
	}
}

// askChain elicits three facts in a row; volunteered facts allow skipping.
func askChain() *journey.Journey {
	return &journey.Journey{
		ID:           "onboarding",
		Title:        "Onboarding",
		InitialState: "ask_name",
		States: []journey.State{
			{ID: "ask_name", Kind: journey.StateChat, Instruction: "Ask for the customer's name", Collects: "name"},
			{ID: "ask_city", Kind: journey.StateChat, Instruction: "Ask which city they live in", Collects: "city"},
			{ID: "ask_budget", Kind: journey.StateChat, Instruction: "Ask for their budget", Collects: "budget"},
			{ID: "summary", Kind: journey.StateChat, Instruction: "Summarize what was collected"},
		},
		Transitions: []journey.Transition{
			{From: "ask_name", To: "ask_city"},
			{From: "ask_city", To: "ask_budget"},
			{From: "ask_budget", To: "summary"},
		},
	}
}

func neverTrusted(string) bool { return false }

func conditionSet(truths map[string]bool) func(context.Context, string) (bool, error) {
	return func(_ context.Context, condition string) (bool, error) {
		return truths[condition], nil
	}
}

func TestCompile(t *testing.T) {
	t.Parallel()

	t.Run("valid journey compiles", func(t *testing.T) {
		t.Parallel()

		if _, err := Compile(returnFlow()); err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
	})

	t.Run("invalid journey fails", func(t *testing.T) {
		t.Parallel()

		j := returnFlow()
		j.InitialState = "missing"
		if _, err := Compile(j); err == nil {
			t.Fatal("Compile() error = nil, want error")
		}
	})
}

func TestInterpreter_Advance(t *testing.T) {
	t.Parallel()

	t.Run("resting chat state advances on answer", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(returnFlow())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}

		steps, diag, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState: "ask_order",
			Condition:    conditionSet(nil),
			Trusted:      neverTrusted,
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if diag != nil {
			t.Errorf("diagnostic = %+v, want nil", diag)
		}
		// Moves to the tool state and stops: the tool has not run yet.
		if interp.StateID() != "lookup" {
			t.Errorf("state = %s, want lookup", interp.StateID())
		}
		if len(steps) != 1 || steps[0].FromState != "ask_order" || steps[0].ToState != "lookup" {
			t.Errorf("steps = %+v", steps)
		}
	})

	t.Run("tool completion carries through the fork", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(returnFlow())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}
		if err := interp.Resume("lookup"); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		steps, diag, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState:  "lookup",
			Condition:     conditionSet(map[string]bool{"order is within the return window": true}),
			Trusted:       neverTrusted,
			ToolCompleted: func(ref string) bool { return ref == "get_order" },
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if diag != nil {
			t.Errorf("diagnostic = %+v, want nil", diag)
		}
		if interp.StateID() != "confirm" {
			t.Errorf("state = %s, want confirm", interp.StateID())
		}
		if len(steps) != 2 {
			t.Fatalf("steps = %d, want 2", len(steps))
		}
		if steps[1].Reason != "order is within the return window" {
			t.Errorf("reason = %s", steps[1].Reason)
		}
	})

	t.Run("unresolvable fork stays and records diagnostic", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(returnFlow())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}
		if err := interp.Resume("lookup"); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		steps, diag, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState:  "lookup",
			Condition:     conditionSet(nil),
			Trusted:       neverTrusted,
			ToolCompleted: func(string) bool { return true },
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if interp.StateID() != "route" {
			t.Errorf("state = %s, want route", interp.StateID())
		}
		if diag == nil || diag.Kind != message.DiagnosticUnresolvedTransition {
			t.Fatalf("diagnostic = %+v, want unresolved_transition", diag)
		}
		if len(steps) != 1 {
			t.Errorf("steps = %d, want 1", len(steps))
		}
	})

	t.Run("adaptive skip bypasses chat states with trusted facts", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(askChain())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}
		if err := interp.Resume("ask_city"); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		// The customer answered the city question and volunteered the
		// budget in the same message.
		steps, _, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState: "ask_city",
			Condition:    conditionSet(nil),
			Trusted:      func(fact string) bool { return fact == "budget" },
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if interp.StateID() != "summary" {
			t.Errorf("state = %s, want summary", interp.StateID())
		}
		if len(steps) != 2 {
			t.Fatalf("steps = %+v, want 2 steps", steps)
		}
		if steps[0].Skipped {
			t.Error("leaving the resting state is not a skip")
		}
		if !steps[1].Skipped || steps[1].FromState != "ask_budget" {
			t.Errorf("steps[1] = %+v, want skipped ask_budget", steps[1])
		}
	})

	t.Run("conditional exit from a passed-through chat state is not a skip", func(t *testing.T) {
		t.Parallel()

		j := &journey.Journey{
			ID:           "upgrade",
			InitialState: "ask_city",
			States: []journey.State{
				{ID: "ask_city", Kind: journey.StateChat, Instruction: "Ask for their city", Collects: "city"},
				{ID: "offer", Kind: journey.StateChat, Instruction: "Present the standard offer"},
				{ID: "vip_desk", Kind: journey.StateChat, Instruction: "Route to the VIP desk"},
				{ID: "summary", Kind: journey.StateChat, Instruction: "Summarize"},
			},
			Transitions: []journey.Transition{
				{From: "ask_city", To: "offer"},
				{From: "offer", To: "vip_desk", Condition: "customer is premium"},
				{From: "offer", To: "summary"},
			},
		}

		interp, err := NewInterpreter(j)
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}

		steps, _, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState: "ask_city",
			Condition:    conditionSet(map[string]bool{"customer is premium": true}),
			Trusted:      neverTrusted,
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if interp.StateID() != "vip_desk" {
			t.Errorf("state = %s, want vip_desk", interp.StateID())
		}
		if len(steps) != 2 {
			t.Fatalf("steps = %+v, want 2 steps", steps)
		}
		if steps[1].FromState != "offer" || steps[1].ToState != "vip_desk" {
			t.Fatalf("steps[1] = %+v, want offer->vip_desk", steps[1])
		}
		if steps[1].Skipped {
			t.Error("a matched conditional transition was labeled a skip")
		}
		if steps[1].Reason != "customer is premium" {
			t.Errorf("reason = %s, want the matched condition", steps[1].Reason)
		}
	})

	t.Run("advance is idempotent for identical context", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(askChain())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}

		req := AdvanceRequest{
			RestingState: "ask_name",
			Condition:    conditionSet(nil),
			Trusted:      neverTrusted,
		}

		first, _, err := interp.Advance(context.Background(), req)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if len(first) != 1 || interp.StateID() != "ask_city" {
			t.Fatalf("first advance: steps = %+v, state = %s", first, interp.StateID())
		}

		second, _, err := interp.Advance(context.Background(), req)
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if len(second) != 0 {
			t.Errorf("second advance took steps: %+v", second)
		}
		if interp.StateID() != "ask_city" {
			t.Errorf("state moved to %s on repeat advance", interp.StateID())
		}
	})

	t.Run("terminal state takes no steps", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(returnFlow())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}
		if err := interp.Resume("confirm"); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		steps, diag, err := interp.Advance(context.Background(), AdvanceRequest{
			RestingState: "confirm",
			Condition:    conditionSet(nil),
			Trusted:      neverTrusted,
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if len(steps) != 0 || diag != nil {
			t.Errorf("steps = %+v, diag = %+v, want none", steps, diag)
		}
		if !interp.Done() {
			t.Error("Done() = false, want true for terminal state")
		}
	})

	t.Run("condition evaluation error aborts", func(t *testing.T) {
		t.Parallel()

		interp, err := NewInterpreter(returnFlow())
		if err != nil {
			t.Fatalf("NewInterpreter() error = %v", err)
		}
		if err := interp.Resume("route"); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		wantErr := errors.New("evaluator down")
		_, _, err = interp.Advance(context.Background(), AdvanceRequest{
			RestingState: "route",
			Condition: func(context.Context, string) (bool, error) {
				return false, wantErr
			},
			Trusted: neverTrusted,
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("Advance() error = %v, want %v", err, wantErr)
		}
	})
}

func TestInterpreter_Resume(t *testing.T) {
	t.Parallel()

	interp, err := NewInterpreter(returnFlow())
	if err != nil {
		t.Fatalf("NewInterpreter() error = %v", err)
	}

	if err := interp.Resume("route"); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if interp.StateID() != "route" {
		t.Errorf("state = %s, want route", interp.StateID())
	}

	if err := interp.Resume("nonexistent"); !errors.Is(err, journey.ErrUnknownState) {
		t.Fatalf("Resume() error = %v, want ErrUnknownState", err)
	}
}

func TestActivate(t *testing.T) {
	t.Parallel()

	journeys := []journey.Journey{
		*returnFlow(),
		{
			ID:                   "onboarding",
			InitialState:         "ask_name",
			ActivationConditions: []string{"customer is new"},
			States:               []journey.State{{ID: "ask_name", Kind: journey.StateChat}},
		},
	}

	t.Run("first matching journey in definition order wins", func(t *testing.T) {
		t.Parallel()

		j, err := Activate(context.Background(), journeys, conditionSet(map[string]bool{
			"customer wants to return an item": true,
			"customer is new":                  true,
		}))
		if err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		if j == nil || j.ID != "order_return" {
			t.Fatalf("activated = %+v, want order_return", j)
		}
	})

	t.Run("no match activates nothing", func(t *testing.T) {
		t.Parallel()

		j, err := Activate(context.Background(), journeys, conditionSet(nil))
		if err != nil {
			t.Fatalf("Activate() error = %v", err)
		}
		if j != nil {
			t.Errorf("activated = %+v, want nil", j)
		}
	})

	t.Run("evaluator error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("evaluator down")
		_, err := Activate(context.Background(), journeys, func(context.Context, string) (bool, error) {
			return false, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("Activate() error = %v, want %v", err, wantErr)
		}
	})
}

func TestAbandoned(t *testing.T) {
	t.Parallel()

	t.Run("declared condition releases the journey", func(t *testing.T) {
		t.Parallel()

		j := returnFlow()
		j.AbandonConditions = []string{"customer no longer wants the return"}

		gone, err := Abandoned(context.Background(), j, conditionSet(map[string]bool{
			"customer no longer wants the return": true,
		}))
		if err != nil {
			t.Fatalf("Abandoned() error = %v", err)
		}
		if !gone {
			t.Error("Abandoned() = false, want true")
		}
	})

	t.Run("default condition applies when none declared", func(t *testing.T) {
		t.Parallel()

		gone, err := Abandoned(context.Background(), returnFlow(), conditionSet(map[string]bool{
			DefaultAbandonCondition: true,
		}))
		if err != nil {
			t.Fatalf("Abandoned() error = %v", err)
		}
		if !gone {
			t.Error("Abandoned() = false, want true")
		}
	})

	t.Run("no signal keeps the journey", func(t *testing.T) {
		t.Parallel()

		gone, err := Abandoned(context.Background(), returnFlow(), conditionSet(nil))
		if err != nil {
			t.Fatalf("Abandoned() error = %v", err)
		}
		if gone {
			t.Error("Abandoned() = true, want false")
		}
	})

	t.Run("evaluator error propagates", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("evaluator down")
		_, err := Abandoned(context.Background(), returnFlow(), func(context.Context, string) (bool, error) {
			return false, wantErr
		})
		if !errors.Is(err, wantErr) {
			t.Fatalf("Abandoned() error = %v, want %v", err, wantErr)
		}
	})
}
