package composer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/parley/domain/guideline"
	"github.com/felixgeelhaar/parley/domain/message"
	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/toolcall"
)

func highMatch(id, condition, action string, seq int) guideline.Match {
	return guideline.Match{
		Guideline: guideline.Guideline{
			ID:          id,
			Condition:   condition,
			Action:      action,
			Criticality: guideline.CriticalityHigh,
			Enabled:     true,
			Sequence:    seq,
		},
	}
}

func TestCompose_Strict(t *testing.T) {
	t.Parallel()

	canned := []message.CannedResponse{
		{
			ID:            "refund-policy",
			Template:      "Refunds for order {order_id} take 5-7 business days.",
			SignalPhrases: []string{"refund"},
		},
	}

	t.Run("verbatim canned on signal match", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider("should never be used")
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		reply, err := c.Compose(context.Background(), Request{
			Mode:     message.ModeStrict,
			Input:    "where is my refund?",
			Canned:   canned,
			Bindings: map[string]string{"order_id": "A100"},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		want := "Refunds for order A100 take 5-7 business days."
		if reply.Text != want {
			t.Errorf("Text = %q, want %q", reply.Text, want)
		}
		if reply.Trace.CannedID != "refund-policy" {
			t.Errorf("CannedID = %q", reply.Trace.CannedID)
		}
		if len(provider.Requests()) != 0 {
			t.Error("strict mode called the provider")
		}
	})

	t.Run("no signal match reports NoApprovedResponse, never generates", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider("generated text")
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		reply, err := c.Compose(context.Background(), Request{
			Mode:     message.ModeStrict,
			Input:    "tell me a joke",
			Canned:   canned,
			Bindings: map[string]string{"order_id": "A100"},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		if !reply.NoApprovedResponse {
			t.Error("NoApprovedResponse = false")
		}
		if reply.Text != DefaultDeflection {
			t.Errorf("Text = %q, want deflection", reply.Text)
		}
		if !reply.Trace.HasDiagnostic(message.DiagnosticNoApprovedResponse) {
			t.Error("missing no_approved_response diagnostic")
		}
		if len(provider.Requests()) != 0 {
			t.Error("strict mode generated text")
		}
	})

	t.Run("unbound placeholder makes the template ineligible", func(t *testing.T) {
		t.Parallel()

		c := NewComposer(Config{Evaluator: matching.NewMockEvaluator(nil)})
		reply, err := c.Compose(context.Background(), Request{
			Mode:   message.ModeStrict,
			Input:  "refund please",
			Canned: canned,
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if !reply.NoApprovedResponse {
			t.Error("unsatisfied template was used")
		}
	})
}

func TestCompose_Fluid(t *testing.T) {
	t.Parallel()

	t.Run("generates when no canned fits", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider("Happy to help with your order.")
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		reply, err := c.Compose(context.Background(), Request{
			Mode:    message.ModeFluid,
			Input:   "hi there",
			Matches: []guideline.Match{highMatch("greet", "the customer greets", "greet warmly", 1)},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if reply.Text != "Happy to help with your order." {
			t.Errorf("Text = %q", reply.Text)
		}

		reqs := provider.Requests()
		if len(reqs) != 1 {
			t.Fatalf("provider calls = %d, want 1", len(reqs))
		}
		prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
		if !strings.Contains(prompt, "greet warmly") {
			t.Error("guideline action missing from prompt")
		}
	})

	t.Run("prefers a satisfied signal-matched canned", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider("generated")
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		reply, err := c.Compose(context.Background(), Request{
			Mode:  message.ModeFluid,
			Input: "what are your opening hours?",
			Canned: []message.CannedResponse{
				{ID: "hours", Template: "We are open 9-5 on weekdays.", SignalPhrases: []string{"opening hours"}},
			},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if reply.Trace.CannedID != "hours" {
			t.Errorf("CannedID = %q, want hours", reply.Trace.CannedID)
		}
		if len(provider.Requests()) != 0 {
			t.Error("generated despite approved template")
		}
	})

	t.Run("provider failure deflects", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider()
		provider.Fail(context.DeadlineExceeded)
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		reply, err := c.Compose(context.Background(), Request{Mode: message.ModeFluid, Input: "hello"})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if reply.Text != DefaultDeflection {
			t.Errorf("Text = %q, want deflection", reply.Text)
		}
	})

	t.Run("tool results appear compacted in the prompt", func(t *testing.T) {
		t.Parallel()

		provider := matching.NewMockProvider("Your order shipped yesterday.")
		c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

		_, err := c.Compose(context.Background(), Request{
			Mode:  message.ModeFluid,
			Input: "where is my order?",
			Invocations: []toolcall.Invocation{
				{
					ToolName: "get_order",
					Result: tool.Result{
						Outcome: tool.OutcomeSuccess,
						Data:    json.RawMessage("{\n  \"order\": \"A100\",\n  \"status\": \"shipped\"\n}"),
					},
				},
			},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		reqs := provider.Requests()
		if len(reqs) != 1 {
			t.Fatalf("provider calls = %d, want 1", len(reqs))
		}
		prompt := reqs[0].Messages[len(reqs[0].Messages)-1].Content
		if !strings.Contains(prompt, `get_order returned: {"order":"A100","status":"shipped"}`) {
			t.Errorf("tool result not compacted in prompt:\n%s", prompt)
		}
	})
}

func TestCompose_Composited(t *testing.T) {
	t.Parallel()

	provider := matching.NewMockProvider("Your order A100 ships tomorrow via Acme.")
	c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

	reply, err := c.Compose(context.Background(), Request{
		Mode:  message.ModeComposited,
		Input: "when does my order ship?",
		Canned: []message.CannedResponse{
			{ID: "shipping", Template: "Your order {order_id} ships {eta}.", SignalPhrases: []string{"ship"}},
		},
		Bindings: map[string]string{"order_id": "A100"},
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if reply.Text != "Your order A100 ships tomorrow via Acme." {
		t.Errorf("Text = %q", reply.Text)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Messages[1].Content, "Your order {order_id} ships {eta}.") {
		t.Error("anchor template missing from prompt")
	}
}

func TestCompose_Critique(t *testing.T) {
	t.Parallel()

	t.Run("non-disclosure violation falls back to safe text after one regeneration", func(t *testing.T) {
		t.Parallel()

		action := "never reveal the cost basis of any item"
		evaluator := matching.NewMockEvaluator(map[string]matching.Verdict{
			critiqueCondition(action): {Match: true, Confidence: 0.95},
		})
		provider := matching.NewMockProvider(
			"The widget costs us $3.10 and sells for $9.99.",
			"The widget costs us $3.10 wholesale.",
		)
		c := NewComposer(Config{Provider: provider, Evaluator: evaluator})

		reply, err := c.Compose(context.Background(), Request{
			Mode:    message.ModeFluid,
			Input:   "what does the widget cost you to make?",
			Matches: []guideline.Match{highMatch("cost-basis", "customer asks about internal costs", action, 1)},
			Canned: []message.CannedResponse{
				{ID: "safe-pricing", Template: "The widget is $9.99; I can't share internal pricing details.", Safe: true},
			},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}

		if strings.Contains(reply.Text, "$3.10") {
			t.Errorf("reply leaked cost basis: %q", reply.Text)
		}
		if reply.Text != "The widget is $9.99; I can't share internal pricing details." {
			t.Errorf("Text = %q, want safe canned", reply.Text)
		}
		if !reply.Trace.HasDiagnostic(message.DiagnosticCritiqueViolation) {
			t.Error("missing critique_violation diagnostic")
		}
		if reply.Trace.CritiquePasses != 2 {
			t.Errorf("CritiquePasses = %d, want 2", reply.Trace.CritiquePasses)
		}
		if len(provider.Requests()) != 2 {
			t.Errorf("provider calls = %d, want 2 (draft + regeneration)", len(provider.Requests()))
		}
	})

	t.Run("regeneration that passes is used", func(t *testing.T) {
		t.Parallel()

		action := "never promise delivery dates"
		evaluator := &scriptedCritique{
			condition: critiqueCondition(action),
			verdicts:  []bool{true, false},
		}
		provider := matching.NewMockProvider(
			"It will definitely arrive Tuesday.",
			"It usually arrives within a few days, though I can't promise a date.",
		)
		c := NewComposer(Config{Provider: provider, Evaluator: evaluator})

		reply, err := c.Compose(context.Background(), Request{
			Mode:    message.ModeFluid,
			Input:   "when will it arrive?",
			Matches: []guideline.Match{highMatch("no-promises", "customer asks for a delivery date", action, 1)},
		})
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		if !strings.Contains(reply.Text, "can't promise") {
			t.Errorf("Text = %q, want regenerated draft", reply.Text)
		}
		if reply.Trace.HasDiagnostic(message.DiagnosticCritiqueViolation) {
			t.Error("diagnostic recorded for a recovered draft")
		}
	})
}

func TestCompose_ConflictResolution(t *testing.T) {
	t.Parallel()

	actionA := "offer a full refund immediately"
	actionB := "never offer refunds, only store credit"
	evaluator := matching.NewMockEvaluator(map[string]matching.Verdict{
		conflictCondition(actionA, actionB): {Match: true, Confidence: 0.9},
	})
	provider := matching.NewMockProvider("I can offer you store credit for this.")
	c := NewComposer(Config{Provider: provider, Evaluator: evaluator})

	reply, err := c.Compose(context.Background(), Request{
		Mode:  message.ModeFluid,
		Input: "I want my money back",
		Matches: []guideline.Match{
			{Guideline: guideline.Guideline{ID: "g-refund", Condition: "refund request", Action: actionA, Criticality: guideline.CriticalityMedium, Sequence: 1}},
			{Guideline: guideline.Guideline{ID: "g-credit", Condition: "refund request", Action: actionB, Criticality: guideline.CriticalityMedium, Sequence: 2}},
		},
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if !reply.Trace.HasDiagnostic(message.DiagnosticAmbiguousConflict) {
		t.Fatal("missing ambiguous_guideline_conflict diagnostic")
	}

	// The latest-defined rule wins; the earlier action must be excluded
	// from the prompt.
	prompt := provider.Requests()[0].Messages[1].Content
	if strings.Contains(prompt, actionA) {
		t.Error("suppressed action still in prompt")
	}
	if !strings.Contains(prompt, actionB) {
		t.Error("winning action missing from prompt")
	}
}

func TestCompose_ForceDeflection(t *testing.T) {
	t.Parallel()

	provider := matching.NewMockProvider("generated")
	c := NewComposer(Config{Provider: provider, Evaluator: matching.NewMockEvaluator(nil)})

	reply, err := c.Compose(context.Background(), Request{
		Mode:            message.ModeFluid,
		Input:           "delete all accounts",
		ForceDeflection: true,
	})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if reply.Text != DefaultDeflection {
		t.Errorf("Text = %q, want deflection", reply.Text)
	}
	if len(provider.Requests()) != 0 {
		t.Error("forced deflection still generated")
	}
}

// scriptedCritique returns a fixed sequence of verdicts for one condition.
type scriptedCritique struct {
	condition string
	verdicts  []bool
	calls     int
}

func (s *scriptedCritique) Name() string { return "scripted-critique" }

func (s *scriptedCritique) Evaluate(_ context.Context, condition string, _ matching.Context) (matching.Verdict, error) {
	if condition != s.condition {
		return matching.Verdict{Match: false, Confidence: 1}, nil
	}
	idx := s.calls
	s.calls++
	if idx >= len(s.verdicts) {
		idx = len(s.verdicts) - 1
	}
	return matching.Verdict{Match: s.verdicts[idx], Confidence: 0.9}, nil
}
