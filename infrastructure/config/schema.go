package config

import (
	"encoding/json"
)

// JSONSchema represents a JSON Schema document.
type JSONSchema struct {
	Schema               string                 `json:"$schema,omitempty"`
	ID                   string                 `json:"$id,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Default              any                    `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Format               string                 `json:"format,omitempty"`
	Ref                  string                 `json:"$ref,omitempty"`
	Definitions          map[string]*JSONSchema `json:"$defs,omitempty"`
	OneOf                []*JSONSchema          `json:"oneOf,omitempty"`
	AnyOf                []*JSONSchema          `json:"anyOf,omitempty"`
	AllOf                []*JSONSchema          `json:"allOf,omitempty"`
}

// GenerateSchema generates a JSON Schema for the AgentConfig file format.
func GenerateSchema() *JSONSchema {
	return &JSONSchema{
		Schema:      "https://json-schema.org/draft/2020-12/schema",
		ID:          "https://github.com/felixgeelhaar/parley/agent-config.schema.json",
		Title:       "Agent Configuration",
		Description: "Configuration schema for the parley conversation engine",
		Type:        "object",
		Required:    []string{"name", "version"},
		Properties: map[string]*JSONSchema{
			"name": {
				Type:        "string",
				Description: "A human-readable name for this configuration",
			},
			"version": {
				Type:        "string",
				Description: "The configuration schema version",
				Default:     "1.0",
			},
			"description": {
				Type:        "string",
				Description: "Describes the agent's purpose",
			},
			"agent": generateAgentSchema(),
			"terms": {
				Type:        "array",
				Description: "Glossary terms with synonyms",
				Items:       generateTermSchema(),
			},
			"guidelines": {
				Type:        "array",
				Description: "Condition-action behavioral rules",
				Items:       generateGuidelineSchema(),
			},
			"journeys": {
				Type:        "array",
				Description: "Conversational state machines",
				Items:       generateJourneySchema(),
			},
			"canned": {
				Type:        "array",
				Description: "Pre-approved response templates",
				Items:       generateCannedSchema(),
			},
			"variables": {
				Type:        "array",
				Description: "Context variable declarations",
				Items:       generateVariableSchema(),
			},
			"tools": {
				Type:        "array",
				Description: "Tool definitions with executable handlers",
				Items:       generateToolSchema(),
			},
			"matching":      generateMatchingSchema(),
			"logging":       generateLoggingSchema(),
			"observability": generateObservabilitySchema(),
			"storage":       generateStorageSchema(),
		},
	}
}

func generateAgentSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Core agent behavior settings",
		Properties: map[string]*JSONSchema{
			"id": {
				Type:        "string",
				Description: "Agent identifier (defaults to a slug of the name)",
			},
			"mode": {
				Type:        "string",
				Description: "Default composition mode",
				Enum:        []string{"fluid", "composited", "strict"},
				Default:     "fluid",
			},
			"deflection": {
				Type:        "string",
				Description: "Generic fallback message when no approved reply exists",
			},
		},
	}
}

func generateTermSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A domain glossary term",
		Required:    []string{"name"},
		Properties: map[string]*JSONSchema{
			"id":          {Type: "string", Description: "Term identifier"},
			"name":        {Type: "string", Description: "Canonical term name"},
			"description": {Type: "string", Description: "What the term means"},
			"synonyms": {
				Type:        "array",
				Description: "Alternate spellings and phrasings",
				Items:       &JSONSchema{Type: "string"},
			},
		},
	}
}

func generateGuidelineSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A condition-action rule",
		Required:    []string{"condition"},
		Properties: map[string]*JSONSchema{
			"id":        {Type: "string", Description: "Guideline identifier"},
			"condition": {Type: "string", Description: "Natural-language condition evaluated each turn"},
			"action":    {Type: "string", Description: "Instruction applied when the condition matches (omit for observations)"},
			"criticality": {
				Type:        "string",
				Description: "Priority band for conflict resolution",
				Enum:        []string{"low", "medium", "high"},
				Default:     "medium",
			},
			"tools": {
				Type:        "array",
				Description: "Tools this guideline may invoke when matched",
				Items:       &JSONSchema{Type: "string"},
			},
			"mode": {
				Type:        "string",
				Description: "Composition mode override while this guideline is active",
				Enum:        []string{"fluid", "composited", "strict"},
			},
			"scope":    generateScopeSchema(),
			"disabled": {Type: "boolean", Description: "Excludes the guideline from matching", Default: false},
		},
	}
}

func generateScopeSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Restricts applicability to a journey or one of its states",
		Required:    []string{"journey"},
		Properties: map[string]*JSONSchema{
			"journey": {Type: "string", Description: "Journey ID"},
			"state":   {Type: "string", Description: "State ID within the journey"},
		},
	}
}

func generateJourneySchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A conversational state machine",
		Required:    []string{"id", "title", "activation", "initial", "states", "transitions"},
		Properties: map[string]*JSONSchema{
			"id":          {Type: "string", Description: "Journey identifier"},
			"title":       {Type: "string", Description: "Human-readable title"},
			"description": {Type: "string", Description: "What the journey accomplishes"},
			"activation": {
				Type:        "array",
				Description: "Conditions that activate the journey",
				Items:       &JSONSchema{Type: "string"},
			},
			"abandon": {
				Type:        "array",
				Description: "Conditions that release a mid-flow session from the journey",
				Items:       &JSONSchema{Type: "string"},
			},
			"initial": {Type: "string", Description: "Initial state ID"},
			"states": {
				Type:        "array",
				Description: "Journey states",
				Items: &JSONSchema{
					Type:     "object",
					Required: []string{"id", "kind"},
					Properties: map[string]*JSONSchema{
						"id": {Type: "string", Description: "State identifier"},
						"kind": {
							Type:        "string",
							Description: "State behavior",
							Enum:        []string{"chat", "tool", "fork"},
						},
						"instruction": {Type: "string", Description: "Instruction for chat states"},
						"collects":    {Type: "string", Description: "Variable a chat state gathers from the customer"},
						"tool":        {Type: "string", Description: "Tool a tool state invokes"},
					},
				},
			},
			"transitions": {
				Type:        "array",
				Description: "Edges between states",
				Items: &JSONSchema{
					Type:     "object",
					Required: []string{"from", "to"},
					Properties: map[string]*JSONSchema{
						"from":      {Type: "string", Description: "Source state ID"},
						"to":        {Type: "string", Description: "Target state ID"},
						"condition": {Type: "string", Description: "Condition gating the transition (unconditional when omitted)"},
					},
				},
			},
		},
	}
}

func generateCannedSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A pre-approved response template",
		Required:    []string{"text"},
		Properties: map[string]*JSONSchema{
			"id":   {Type: "string", Description: "Canned response identifier"},
			"text": {Type: "string", Description: "Template text with {{variable}} placeholders"},
			"signals": {
				Type:        "array",
				Description: "Phrases that signal this response fits the customer message",
				Items:       &JSONSchema{Type: "string"},
			},
			"scope": generateScopeSchema(),
			"safe":  {Type: "boolean", Description: "Marks the response usable as a critique fallback", Default: false},
		},
	}
}

func generateVariableSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A context variable declaration",
		Required:    []string{"name"},
		Properties: map[string]*JSONSchema{
			"name":        {Type: "string", Description: "Variable name"},
			"description": {Type: "string", Description: "What the variable holds"},
			"scope": {
				Type:        "string",
				Description: "Whether the variable is keyed by customer or tag",
				Enum:        []string{"customer", "tag"},
				Default:     "customer",
			},
			"max_age": {
				Type:        "string",
				Description: "Freshness window as a duration (e.g. 30m); expired values are refreshed",
				Pattern:     `^\d+(ns|us|µs|ms|s|m|h)$`,
			},
			"refresher": {Type: "string", Description: "Tool that recomputes the variable"},
		},
	}
}

func generateToolSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "A tool definition with an executable handler",
		Required:    []string{"name", "handler"},
		Properties: map[string]*JSONSchema{
			"name":        {Type: "string", Description: "Tool name"},
			"description": {Type: "string", Description: "What the tool does"},
			"parameters": {
				Type:        "array",
				Description: "Tool parameters",
				Items: &JSONSchema{
					Type:     "object",
					Required: []string{"name"},
					Properties: map[string]*JSONSchema{
						"name":        {Type: "string", Description: "Parameter name"},
						"description": {Type: "string", Description: "What the parameter means"},
						"required":    {Type: "boolean", Description: "Whether the parameter must be supplied", Default: false},
						"source": {
							Type:        "string",
							Description: "Where the value comes from",
							Enum:        []string{"context", "customer"},
							Default:     "context",
						},
						"binds_to": {Type: "string", Description: "Upstream field binding (tool.field) supplying the value"},
					},
				},
			},
			"read_only": {Type: "boolean", Description: "Whether the tool has no side effects", Default: false},
			"retryable": {Type: "boolean", Description: "Whether failed invocations may be retried", Default: false},
			"refreshes": {Type: "string", Description: "Context variable this tool recomputes"},
			"handler":   generateHandlerSchema(),
		},
	}
}

func generateHandlerSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "How to execute the tool",
		Required:    []string{"type"},
		Properties: map[string]*JSONSchema{
			"type": {
				Type:        "string",
				Description: "Handler type",
				Enum:        []string{"http", "exec", "wasm"},
			},
			"url": {Type: "string", Description: "Endpoint for http handlers", Format: "uri"},
			"headers": {
				Type:                 "object",
				Description:          "Extra HTTP headers",
				AdditionalProperties: &JSONSchema{Type: "string"},
			},
			"command": {
				Type:        "array",
				Description: "Executable and arguments for exec handlers",
				Items:       &JSONSchema{Type: "string"},
			},
			"module":      {Type: "string", Description: "WASM module path for wasm handlers"},
			"entry_point": {Type: "string", Description: "Exported function for wasm handlers"},
			"timeout": {
				Type:        "string",
				Description: "Bound on a single invocation (e.g. 10s)",
				Pattern:     `^\d+(ns|us|µs|ms|s|m|h)$`,
			},
		},
	}
}

func generateMatchingSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Condition evaluator settings",
		Properties: map[string]*JSONSchema{
			"provider": {
				Type:        "string",
				Description: "Evaluator backend",
				Enum:        []string{"openai", "anthropic", "ollama", "copilot", "mock", "scripted"},
			},
			"model":       {Type: "string", Description: "Provider model name"},
			"base_url":    {Type: "string", Description: "Provider endpoint override", Format: "uri"},
			"api_key_env": {Type: "string", Description: "Environment variable holding the API key"},
			"threshold": {
				Type:        "number",
				Description: "Minimum confidence for a match",
				Default:     0.5,
				Minimum:     floatPtr(0),
				Maximum:     floatPtr(1),
			},
			"timeout": {
				Type:        "string",
				Description: "Bound on a single evaluator call",
				Pattern:     `^\d+(ns|us|µs|ms|s|m|h)$`,
			},
			"max_concurrent": {
				Type:        "integer",
				Description: "Concurrent condition evaluations per turn",
				Minimum:     floatPtr(1),
			},
		},
	}
}

func generateLoggingSchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Structured logging settings",
		Properties: map[string]*JSONSchema{
			"level": {
				Type:        "string",
				Description: "Minimum log level",
				Enum:        []string{"trace", "debug", "info", "warn", "error"},
				Default:     "info",
			},
			"format": {
				Type:        "string",
				Description: "Output format",
				Enum:        []string{"json", "console"},
				Default:     "json",
			},
		},
	}
}

func generateObservabilitySchema() *JSONSchema {
	return &JSONSchema{
		Type:        "object",
		Description: "Tracing and metrics settings",
		Properties: map[string]*JSONSchema{
			"enabled":      {Type: "boolean", Description: "Enables tracing and metrics", Default: false},
			"service_name": {Type: "string", Description: "Service name reported to the collector"},
			"exporter": {
				Type:        "string",
				Description: "Trace exporter",
				Enum:        []string{"otlp", "stdout", "none"},
				Default:     "none",
			},
			"endpoint": {Type: "string", Description: "OTLP collector endpoint"},
			"insecure": {Type: "boolean", Description: "Disables TLS for the OTLP connection", Default: false},
			"sample_rate": {
				Type:        "number",
				Description: "Trace sampling rate",
				Default:     1.0,
				Minimum:     floatPtr(0),
				Maximum:     floatPtr(1),
			},
		},
	}
}

func generateStorageSchema() *JSONSchema {
	backend := func(desc string, backends ...string) *JSONSchema {
		return &JSONSchema{
			Type:        "object",
			Description: desc,
			Properties: map[string]*JSONSchema{
				"backend": {
					Type:        "string",
					Description: "Backend name",
					Enum:        backends,
					Default:     "memory",
				},
				"dsn":   {Type: "string", Description: "Connection string (path for sqlite/badger, URL otherwise)"},
				"table": {Type: "string", Description: "Table or collection name where the backend uses one"},
			},
		}
	}
	return &JSONSchema{
		Type:        "object",
		Description: "Persistence backend selection",
		Properties: map[string]*JSONSchema{
			"sessions":  backend("Session store backend", "memory", "sqlite", "mongodb"),
			"events":    backend("Event log backend", "memory", "sqlite", "postgres", "badger"),
			"variables": backend("Variable store backend", "memory", "redis", "dynamodb"),
		},
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

// SchemaJSON returns the JSON Schema as a JSON string.
func SchemaJSON() (string, error) {
	schema := GenerateSchema()
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
