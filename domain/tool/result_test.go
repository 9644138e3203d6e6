package tool_test

import (
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/parley/domain/tool"
)

func TestResultConstructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		result    tool.Result
		outcome   tool.Outcome
		retryable bool
	}{
		{"success", tool.NewResult(json.RawMessage(`{}`)), tool.OutcomeSuccess, false},
		{"retryable error", tool.NewErrorResult("boom", true), tool.OutcomeError, true},
		{"permanent error", tool.NewErrorResult("boom", false), tool.OutcomeError, false},
		{"security violation", tool.NewSecurityViolationResult("denied"), tool.OutcomeSecurityViolation, false},
		{"timeout", tool.NewTimeoutResult("deadline"), tool.OutcomeTimeout, true},
		{"missing parameter", tool.NewMissingParameterResult("order_id"), tool.OutcomeMissingParameter, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.result.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", tt.result.Outcome, tt.outcome)
			}
			if tt.result.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.result.Retryable, tt.retryable)
			}
			if tt.result.OK() != (tt.outcome == tool.OutcomeSuccess) {
				t.Errorf("OK() = %v for outcome %s", tt.result.OK(), tt.outcome)
			}
		})
	}
}

func TestResult_WithVariableWrite(t *testing.T) {
	t.Parallel()

	r := tool.NewResult(nil).
		WithVariableWrite("balance", json.RawMessage(`250`)).
		WithVariableWrite("tier", json.RawMessage(`"gold"`))

	if len(r.VariableWrites) != 2 {
		t.Fatalf("VariableWrites len = %d, want 2", len(r.VariableWrites))
	}
	if string(r.VariableWrites["balance"]) != "250" {
		t.Errorf("balance write = %s, want 250", r.VariableWrites["balance"])
	}
}
