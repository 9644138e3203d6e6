// Package config provides the file format for agent definitions and
// runtime settings.
package config

import "time"

// Duration wraps time.Duration with string parsing for yaml/json.
type Duration time.Duration

// UnmarshalYAML parses durations like "30s" or "5m".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON parses durations from JSON strings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' {
		parsed, err := time.ParseDuration(string(data[1 : len(data)-1]))
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	return ErrInvalidDuration
}

// MarshalJSON renders the duration as a JSON string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// AgentConfig is the complete agent definition file.
type AgentConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`
	// Description describes the agent's purpose.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Agent contains core agent settings.
	Agent AgentSettings `json:"agent" yaml:"agent"`
	// Terms is the glossary.
	Terms []TermConfig `json:"terms,omitempty" yaml:"terms,omitempty"`
	// Guidelines are the condition-action rules.
	Guidelines []GuidelineConfig `json:"guidelines,omitempty" yaml:"guidelines,omitempty"`
	// Journeys are the conversational state machines.
	Journeys []JourneyConfig `json:"journeys,omitempty" yaml:"journeys,omitempty"`
	// Canned are the pre-approved response templates.
	Canned []CannedConfig `json:"canned,omitempty" yaml:"canned,omitempty"`
	// Variables are the context-variable declarations.
	Variables []VariableConfig `json:"variables,omitempty" yaml:"variables,omitempty"`
	// Tools are declared tool definitions with handlers.
	Tools []ToolConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
	// Matching configures the condition evaluator.
	Matching MatchingConfig `json:"matching,omitempty" yaml:"matching,omitempty"`
	// Logging configures structured logging.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Observability configures tracing and metrics.
	Observability ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
	// Storage selects persistence backends.
	Storage StorageConfig `json:"storage,omitempty" yaml:"storage,omitempty"`
}

// AgentSettings contains core agent behavior settings.
type AgentSettings struct {
	// ID is the agent identifier; defaults to a slug of Name.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Mode is the default composition mode (fluid, composited, strict).
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
	// Deflection is the generic fallback message.
	Deflection string `json:"deflection,omitempty" yaml:"deflection,omitempty"`
}

// TermConfig declares a glossary term.
type TermConfig struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Synonyms    []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// GuidelineConfig declares a guideline.
type GuidelineConfig struct {
	ID          string       `json:"id,omitempty" yaml:"id,omitempty"`
	Condition   string       `json:"condition" yaml:"condition"`
	Action      string       `json:"action,omitempty" yaml:"action,omitempty"`
	Criticality string       `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	Tools       []string     `json:"tools,omitempty" yaml:"tools,omitempty"`
	Mode        string       `json:"mode,omitempty" yaml:"mode,omitempty"`
	Scope       *ScopeConfig `json:"scope,omitempty" yaml:"scope,omitempty"`
	Disabled    bool         `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// ScopeConfig restricts a guideline to a journey or state.
type ScopeConfig struct {
	Journey string `json:"journey" yaml:"journey"`
	State   string `json:"state,omitempty" yaml:"state,omitempty"`
}

// JourneyConfig declares a journey.
type JourneyConfig struct {
	ID          string             `json:"id" yaml:"id"`
	Title       string             `json:"title" yaml:"title"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Activation  []string           `json:"activation" yaml:"activation"`
	Abandon     []string           `json:"abandon,omitempty" yaml:"abandon,omitempty"`
	Initial     string             `json:"initial" yaml:"initial"`
	States      []StateConfig      `json:"states" yaml:"states"`
	Transitions []TransitionConfig `json:"transitions" yaml:"transitions"`
}

// StateConfig declares a journey state.
type StateConfig struct {
	ID          string `json:"id" yaml:"id"`
	Kind        string `json:"kind" yaml:"kind"`
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Collects    string `json:"collects,omitempty" yaml:"collects,omitempty"`
	Tool        string `json:"tool,omitempty" yaml:"tool,omitempty"`
}

// TransitionConfig declares a journey transition.
type TransitionConfig struct {
	From      string `json:"from" yaml:"from"`
	To        string `json:"to" yaml:"to"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// CannedConfig declares a canned response.
type CannedConfig struct {
	ID      string       `json:"id,omitempty" yaml:"id,omitempty"`
	Text    string       `json:"text" yaml:"text"`
	Signals []string     `json:"signals,omitempty" yaml:"signals,omitempty"`
	Scope   *ScopeConfig `json:"scope,omitempty" yaml:"scope,omitempty"`
	Safe    bool         `json:"safe,omitempty" yaml:"safe,omitempty"`
}

// VariableConfig declares a context variable.
type VariableConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Scope       string   `json:"scope,omitempty" yaml:"scope,omitempty"`
	MaxAge      Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	Refresher   string   `json:"refresher,omitempty" yaml:"refresher,omitempty"`
}

// ToolConfig declares a tool with an executable handler.
type ToolConfig struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []ParameterConfig `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ReadOnly    bool              `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Retryable   bool              `json:"retryable,omitempty" yaml:"retryable,omitempty"`
	Refreshes   string            `json:"refreshes,omitempty" yaml:"refreshes,omitempty"`
	Handler     HandlerConfig     `json:"handler" yaml:"handler"`
}

// ParameterConfig declares a tool parameter.
type ParameterConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Source      string `json:"source,omitempty" yaml:"source,omitempty"`
	BindsTo     string `json:"binds_to,omitempty" yaml:"binds_to,omitempty"`
}

// HandlerConfig specifies how to execute a tool.
type HandlerConfig struct {
	// Type is the handler type (http, exec, wasm).
	Type string `json:"type" yaml:"type"`
	// URL is the endpoint for HTTP handlers.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Headers are extra HTTP headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	// Command is the executable for exec handlers.
	Command []string `json:"command,omitempty" yaml:"command,omitempty"`
	// Module is the WASM module path for wasm handlers.
	Module string `json:"module,omitempty" yaml:"module,omitempty"`
	// EntryPoint is the exported function for wasm handlers.
	EntryPoint string `json:"entry_point,omitempty" yaml:"entry_point,omitempty"`
	// Timeout bounds a single invocation.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// MatchingConfig configures the condition evaluator.
type MatchingConfig struct {
	// Provider selects the backend (openai, anthropic, ollama, copilot,
	// mock, scripted).
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model is the provider model name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	// Threshold is the minimum confidence for a match (default 0.5).
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout bounds a single evaluator call.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxConcurrent bounds concurrent condition evaluations per turn.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Enabled     bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	Exporter    string  `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// StorageConfig selects persistence backends.
type StorageConfig struct {
	// Sessions selects the session store backend (memory, sqlite, mongodb).
	Sessions BackendConfig `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	// Events selects the event log backend (memory, sqlite, postgres, badger).
	Events BackendConfig `json:"events,omitempty" yaml:"events,omitempty"`
	// Variables selects the variable store backend (memory, redis, dynamodb).
	Variables BackendConfig `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// BackendConfig names a backend and its connection settings.
type BackendConfig struct {
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is the connection string (path for sqlite/badger, URL otherwise).
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Table is the table/collection name where the backend uses one.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}
