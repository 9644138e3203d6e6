package matching

import (
	"context"
	"sync"
)

// MockEvaluator returns predefined verdicts keyed by condition text for
// deterministic testing.
type MockEvaluator struct {
	verdicts map[string]Verdict
	err      error
	calls    []string
	mu       sync.Mutex
}

// NewMockEvaluator creates a mock evaluator with the given verdicts.
// Conditions without an entry evaluate to no-match.
func NewMockEvaluator(verdicts map[string]Verdict) *MockEvaluator {
	if verdicts == nil {
		verdicts = make(map[string]Verdict)
	}
	return &MockEvaluator{verdicts: verdicts}
}

// Name returns the evaluator name.
func (e *MockEvaluator) Name() string {
	return "mock"
}

// Evaluate returns the predefined verdict for the condition.
func (e *MockEvaluator) Evaluate(_ context.Context, condition string, _ Context) (Verdict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, condition)
	if e.err != nil {
		return Verdict{}, e.err
	}
	if v, ok := e.verdicts[condition]; ok {
		return v, nil
	}
	return Verdict{Match: false, Confidence: 1}, nil
}

// SetVerdict sets the verdict for a condition.
func (e *MockEvaluator) SetVerdict(condition string, v Verdict) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verdicts[condition] = v
}

// Fail makes every subsequent Evaluate call return err.
func (e *MockEvaluator) Fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Calls returns the conditions evaluated so far, in call order.
func (e *MockEvaluator) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// MockProvider returns predefined completion contents in sequence for
// testing code that generates through a Provider.
type MockProvider struct {
	contents []string
	index    int
	err      error
	requests []CompletionRequest
	mu       sync.Mutex
}

// NewMockProvider creates a mock provider with the given response contents.
func NewMockProvider(contents ...string) *MockProvider {
	return &MockProvider{contents: contents}
}

// Name returns the provider name.
func (p *MockProvider) Name() string {
	return "mock"
}

// Complete returns the next predefined response content.
func (p *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.err != nil {
		return CompletionResponse{}, p.err
	}

	var content string
	if p.index < len(p.contents) {
		content = p.contents[p.index]
		p.index++
	} else if len(p.contents) > 0 {
		// Repeat the last response when the script runs out
		content = p.contents[len(p.contents)-1]
	}

	return CompletionResponse{
		ID:    "mock",
		Model: req.Model,
		Message: Message{
			Role:    "assistant",
			Content: content,
		},
	}, nil
}

// Fail makes every subsequent Complete call return err.
func (p *MockProvider) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Requests returns the completion requests received so far.
func (p *MockProvider) Requests() []CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}
