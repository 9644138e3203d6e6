package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
)

// ArgExtractor resolves customer-sourced tool parameters from the turn's
// conversation. A parameter left out of the returned map is treated as
// unresolved and surfaces as a clarification question, never a guess.
type ArgExtractor interface {
	Extract(ctx context.Context, params []tool.Parameter, ec matching.Context) (map[string]json.RawMessage, error)
}

const extractSystemPrompt = `You extract parameter values from a customer conversation.

Respond with a single JSON object mapping parameter names to values. Include a parameter only when the customer explicitly stated its value; never guess or invent one. Respond with {} when nothing was stated. No prose, no markup.`

// providerExtractor resolves parameters with an LLM completion.
type providerExtractor struct {
	provider matching.Provider
	model    string
}

// NewProviderExtractor creates an extractor backed by the given provider.
func NewProviderExtractor(provider matching.Provider, model string) ArgExtractor {
	return &providerExtractor{provider: provider, model: model}
}

func (e *providerExtractor) Extract(ctx context.Context, params []tool.Parameter, ec matching.Context) (map[string]json.RawMessage, error) {
	if len(params) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Parameters to extract:\n")
	for _, p := range params {
		fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Description)
	}
	if len(ec.History) > 0 {
		b.WriteString("\nConversation:\n")
		for _, line := range ec.History {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteString("\nCurrent customer message:\n")
	b.WriteString(ec.Input)

	resp, err := e.provider.Complete(ctx, matching.CompletionRequest{
		Model: e.model,
		Messages: []matching.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return nil, fmt.Errorf("extract parameters: %w", err)
	}

	args := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(stripFences(resp.Message.Content)), &args); err != nil {
		logging.Warn().
			Add(logging.ErrorField(err)).
			Msg("parameter extraction returned malformed JSON, treating as unresolved")
		return nil, nil
	}

	// Drop values for parameters that were never asked for.
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	for name := range args {
		if !declared[name] {
			delete(args, name)
		}
	}
	return args, nil
}

// stripFences removes a markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
