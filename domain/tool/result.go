package tool

import (
	"encoding/json"
	"time"
)

// Outcome classifies how a tool invocation ended.
type Outcome string

const (
	// OutcomeSuccess means the tool produced data.
	OutcomeSuccess Outcome = "success"

	// OutcomeError is a tool-level failure; Retryable says whether the
	// caller may retry it.
	OutcomeError Outcome = "error"

	// OutcomeSecurityViolation is always non-retryable and short-circuits
	// the remaining calls of the same guideline.
	OutcomeSecurityViolation Outcome = "security_violation"

	// OutcomeTimeout means the invocation hit its deadline; retryable by
	// policy.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeMissingParameter means a context-sourced parameter could not
	// be resolved; the composer decides whether to ask the customer.
	OutcomeMissingParameter Outcome = "missing_parameter"
)

// Result contains the outcome of a single tool invocation. It is consumed
// by the composer within the turn and not persisted beyond it, except via
// context variables it updates.
type Result struct {
	// Outcome classifies the invocation.
	Outcome Outcome `json:"outcome"`

	// Data is the payload; absent for non-success outcomes.
	Data json.RawMessage `json:"data,omitempty"`

	// Error describes the failure for non-success outcomes.
	Error string `json:"error,omitempty"`

	// Retryable marks error outcomes the caller may retry.
	Retryable bool `json:"retryable,omitempty"`

	// FieldBindings map canned-response placeholder names to values.
	FieldBindings map[string]string `json:"field_bindings,omitempty"`

	// VariableWrites are context-variable updates to stage for commit.
	// Keyed by variable name; scoping follows the variable's definition.
	VariableWrites map[string]json.RawMessage `json:"variable_writes,omitempty"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`
}

// NewResult creates a successful result with the given data.
func NewResult(data json.RawMessage) Result {
	return Result{Outcome: OutcomeSuccess, Data: data}
}

// NewErrorResult creates an error result.
func NewErrorResult(msg string, retryable bool) Result {
	return Result{Outcome: OutcomeError, Error: msg, Retryable: retryable}
}

// NewSecurityViolationResult creates a security-violation result.
func NewSecurityViolationResult(msg string) Result {
	return Result{Outcome: OutcomeSecurityViolation, Error: msg}
}

// NewTimeoutResult creates a timeout result.
func NewTimeoutResult(msg string) Result {
	return Result{Outcome: OutcomeTimeout, Error: msg, Retryable: true}
}

// NewMissingParameterResult reports an unresolvable context parameter.
func NewMissingParameterResult(param string) Result {
	return Result{Outcome: OutcomeMissingParameter, Error: "missing parameter: " + param}
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// WithBinding adds a canned-response field binding.
func (r Result) WithBinding(field, value string) Result {
	if r.FieldBindings == nil {
		r.FieldBindings = make(map[string]string)
	}
	r.FieldBindings[field] = value
	return r
}

// WithVariableWrite stages a context-variable update.
func (r Result) WithVariableWrite(name string, data json.RawMessage) Result {
	if r.VariableWrites == nil {
		r.VariableWrites = make(map[string]json.RawMessage)
	}
	r.VariableWrites[name] = data
	return r
}
