package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/parley/infrastructure/logging"
)

// LLMEvaluator judges conditions through an LLM provider with strict JSON
// verdict parsing.
type LLMEvaluator struct {
	provider    Provider
	model       string
	temperature float64
	maxTokens   int
}

// LLMEvaluatorConfig configures the LLM evaluator.
type LLMEvaluatorConfig struct {
	Provider    Provider
	Model       string
	Temperature float64
	MaxTokens   int
}

// verdictSystemPrompt instructs the model to answer with a bare verdict.
const verdictSystemPrompt = `You judge whether a condition holds for the current turn of a customer conversation.

You MUST respond with a single JSON object and nothing else:
{"match": true|false, "confidence": <0.0-1.0>, "rationale": "<one short sentence>"}

Judge only the stated condition against the conversation. Do not invent facts the customer never gave.`

// NewLLMEvaluator creates a new LLM-backed condition evaluator.
func NewLLMEvaluator(config LLMEvaluatorConfig) *LLMEvaluator {
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}
	return &LLMEvaluator{
		provider:    config.Provider,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   maxTokens,
	}
}

// Name returns the evaluator name.
func (e *LLMEvaluator) Name() string {
	return "llm/" + e.provider.Name()
}

// Evaluate implements Evaluator.
func (e *LLMEvaluator) Evaluate(ctx context.Context, condition string, ec Context) (Verdict, error) {
	req := CompletionRequest{
		Model: e.model,
		Messages: []Message{
			{Role: "system", Content: verdictSystemPrompt},
			{Role: "user", Content: buildVerdictPrompt(condition, ec)},
		},
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrMatchingUnavailable, err)
	}
	if resp.Error != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrMatchingUnavailable, resp.Error)
	}

	verdict, err := parseVerdict(resp.Message.Content)
	if err != nil {
		logging.Warn().
			Add(logging.Str("evaluator", e.Name())).
			Add(logging.ErrorField(err)).
			Msg("unparseable verdict")
		return Verdict{}, err
	}
	return verdict, nil
}

// buildVerdictPrompt renders the condition and context for the model.
func buildVerdictPrompt(condition string, ec Context) string {
	var b strings.Builder

	b.WriteString("## Condition\n")
	b.WriteString(condition)
	b.WriteString("\n\n## Customer message\n")
	b.WriteString(ec.Input)

	if len(ec.History) > 0 {
		b.WriteString("\n\n## Recent conversation\n")
		for _, line := range ec.History {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if len(ec.Terms) > 0 {
		b.WriteString("\n## Domain terms\n")
		for _, t := range ec.Terms {
			b.WriteString("- ")
			b.WriteString(t.Name)
			if t.Description != "" {
				b.WriteString(": ")
				b.WriteString(t.Description)
			}
			if len(t.Synonyms) > 0 {
				b.WriteString(" (also: ")
				b.WriteString(strings.Join(t.Synonyms, ", "))
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}

	if len(ec.Vars) > 0 {
		b.WriteString("\n## Known customer facts\n")
		for name, value := range ec.Vars {
			b.WriteString("- ")
			b.WriteString(name)
			b.WriteString(" = ")
			b.Write(value)
			b.WriteString("\n")
		}
	}

	if ec.JourneyID != "" {
		fmt.Fprintf(&b, "\n## Active journey\n%s, state %s\n", ec.JourneyID, ec.StateID)
	}

	return b.String()
}

// parseVerdict extracts the JSON verdict from model output. Providers
// sometimes wrap JSON in code fences or prose; find the object.
func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("%w: no JSON object in %q", ErrInvalidVerdict, truncate(content, 120))
	}

	var v Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrInvalidVerdict, err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return Verdict{}, fmt.Errorf("%w: confidence %f out of range", ErrInvalidVerdict, v.Confidence)
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
