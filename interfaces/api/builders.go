package api

import (
	domaintool "github.com/felixgeelhaar/parley/domain/tool"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/observability"
	"github.com/felixgeelhaar/parley/infrastructure/storage/memory"
)

// NewToolBuilder creates a new tool builder.
func NewToolBuilder(name string) *domaintool.Builder {
	return domaintool.NewBuilder(name)
}

// NewToolRegistry creates a new in-memory tool registry.
func NewToolRegistry() *memory.ToolRegistry {
	return memory.NewToolRegistry()
}

// NewGuidelineStore creates a new in-memory guideline store.
func NewGuidelineStore() *memory.GuidelineStore {
	return memory.NewGuidelineStore()
}

// NewCannedStore creates a new in-memory canned-response store.
func NewCannedStore() *memory.CannedStore {
	return memory.NewCannedStore()
}

// Evaluator judges guideline and journey conditions against turn context.
type Evaluator = matching.Evaluator

// Provider generates chat completions.
type Provider = matching.Provider

// Verdict is one condition judgement.
type Verdict = matching.Verdict

// ScriptMatchStep is a step in a scripted evaluator.
type ScriptMatchStep = matching.ScriptStep

// NewMockEvaluator creates an evaluator with fixed per-condition verdicts.
// Unknown conditions evaluate to no-match.
func NewMockEvaluator(verdicts map[string]Verdict) *matching.MockEvaluator {
	return matching.NewMockEvaluator(verdicts)
}

// NewScriptedEvaluator creates an evaluator that follows a predefined
// sequence of verdicts for deterministic testing.
func NewScriptedEvaluator(steps ...ScriptMatchStep) *matching.ScriptedEvaluator {
	return matching.NewScriptedEvaluator(steps...)
}

// NewMockProvider creates a provider that returns canned completions.
func NewMockProvider(contents ...string) *matching.MockProvider {
	return matching.NewMockProvider(contents...)
}

// Provider configuration types.
type (
	OpenAIConfig    = matching.OpenAIConfig
	AnthropicConfig = matching.AnthropicConfig
	OllamaConfig    = matching.OllamaConfig
	CopilotConfig   = matching.CopilotConfig
)

// NewOpenAIProvider creates an OpenAI-backed completion provider.
func NewOpenAIProvider(cfg OpenAIConfig) *matching.OpenAIProvider {
	return matching.NewOpenAIProvider(cfg)
}

// NewAnthropicProvider creates an Anthropic-backed completion provider.
func NewAnthropicProvider(cfg AnthropicConfig) *matching.AnthropicProvider {
	return matching.NewAnthropicProvider(cfg)
}

// NewOllamaProvider creates a provider backed by a local Ollama server.
func NewOllamaProvider(cfg OllamaConfig) *matching.OllamaProvider {
	return matching.NewOllamaProvider(cfg)
}

// NewCopilotProvider creates a provider backed by the Copilot CLI.
func NewCopilotProvider(cfg CopilotConfig) (*matching.CopilotProvider, error) {
	return matching.NewCopilotProvider(cfg)
}

// NewLLMEvaluator creates a condition evaluator backed by a completion
// provider.
func NewLLMEvaluator(cfg matching.LLMEvaluatorConfig) *matching.LLMEvaluator {
	return matching.NewLLMEvaluator(cfg)
}

// NewStdoutObservability creates an observability provider that prints
// traces to stdout, for development.
func NewStdoutObservability(serviceName string) (*observability.Provider, error) {
	return observability.NewStdoutProvider(serviceName)
}

// NewOTLPObservability creates an observability provider that exports
// traces to an OTLP endpoint.
func NewOTLPObservability(serviceName, endpoint string) (*observability.Provider, error) {
	return observability.NewOTLPProvider(serviceName, endpoint)
}
