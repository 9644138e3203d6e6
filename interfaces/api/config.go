package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	domainconfig "github.com/felixgeelhaar/parley/domain/config"
	"github.com/felixgeelhaar/parley/domain/session"
	"github.com/felixgeelhaar/parley/domain/variable"
	infraconfig "github.com/felixgeelhaar/parley/infrastructure/config"
	"github.com/felixgeelhaar/parley/infrastructure/handlers"
	"github.com/felixgeelhaar/parley/infrastructure/logging"
	"github.com/felixgeelhaar/parley/infrastructure/matching"
	"github.com/felixgeelhaar/parley/infrastructure/observability"
	"github.com/felixgeelhaar/parley/infrastructure/storage/badger"
	"github.com/felixgeelhaar/parley/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/parley/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/parley/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/parley/infrastructure/storage/redis"
	"github.com/felixgeelhaar/parley/infrastructure/storage/sqlite"
)

// ErrUnknownBackend indicates an unrecognized storage backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// ErrUnknownProvider indicates an unrecognized matching provider name.
var ErrUnknownProvider = errors.New("unknown matching provider")

// Re-export configuration types.
type (
	// AgentConfig is the complete agent definition file.
	AgentConfig = domainconfig.AgentConfig
	// AgentSettings contains core agent behavior settings.
	AgentSettings = domainconfig.AgentSettings
	// GuidelineConfig declares a guideline.
	GuidelineConfig = domainconfig.GuidelineConfig
	// JourneyConfig declares a journey.
	JourneyConfig = domainconfig.JourneyConfig
	// CannedConfig declares a canned response.
	CannedConfig = domainconfig.CannedConfig
	// VariableConfig declares a context variable.
	VariableConfig = domainconfig.VariableConfig
	// ToolConfig declares a tool with an executable handler.
	ToolConfig = domainconfig.ToolConfig
	// MatchingConfig configures the condition evaluator.
	MatchingConfig = domainconfig.MatchingConfig
	// LoggingConfig configures structured logging.
	LoggingConfig = domainconfig.LoggingConfig
	// ObservabilityConfig configures tracing and metrics.
	ObservabilityConfig = domainconfig.ObservabilityConfig
	// StorageConfig selects persistence backends.
	StorageConfig = domainconfig.StorageConfig
	// BackendConfig names a storage backend and its connection settings.
	BackendConfig = domainconfig.BackendConfig
	// ConfigLoader loads agent configuration from files.
	ConfigLoader = infraconfig.Loader
	// ConfigLoaderOption configures the loader.
	ConfigLoaderOption = infraconfig.LoaderOption
	// ConfigWatcher reloads configuration on file changes.
	ConfigWatcher = infraconfig.Watcher
)

// Re-export loader options.
var (
	ConfigWithValidation   = infraconfig.WithValidation
	ConfigWithStrictEnv    = infraconfig.WithStrictEnv
	ConfigWithEnvExpansion = infraconfig.WithEnvExpansion
)

// NewConfigLoaderWithOptions creates a loader with the given options.
func NewConfigLoaderWithOptions(opts ...ConfigLoaderOption) *ConfigLoader {
	return infraconfig.NewLoaderWithOptions(opts...)
}

// Configuration format constants.
const (
	ConfigFormatYAML = infraconfig.FormatYAML
	ConfigFormatJSON = infraconfig.FormatJSON
)

// NewConfigLoader creates a configuration loader with env expansion and
// validation enabled.
func NewConfigLoader() *ConfigLoader {
	return infraconfig.NewLoader()
}

// ConfigSchemaJSON returns the JSON Schema for agent configuration files.
func ConfigSchemaJSON() (string, error) {
	return infraconfig.SchemaJSON()
}

// FromFile loads an agent configuration file and builds a running Agent
// from it: definition, declared tools, storage backends, the matching
// provider, logging, and observability.
func FromFile(path string, opts ...Option) (*Agent, error) {
	cfg, err := infraconfig.NewLoader().LoadFile(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg, opts...)
}

// FromConfig builds a running Agent from a parsed configuration. Options
// apply after the configuration, so they can override any wired component.
func FromConfig(cfg *AgentConfig, opts ...Option) (*Agent, error) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})

	def, err := cfg.ToDefinition()
	if err != nil {
		return nil, err
	}

	ac := newAgentConfig()
	ac.engine.Definition = def

	if err := wireStorage(ac, cfg.Storage); err != nil {
		_ = closeAll(ac)
		return nil, err
	}

	factory := handlers.NewFactory()
	ac.closers = append(ac.closers, factory.Close)
	tools, err := factory.Tools(cfg.Tools)
	if err != nil {
		_ = closeAll(ac)
		return nil, err
	}
	for _, t := range tools {
		if err := ac.engine.Registry.Register(t); err != nil {
			_ = closeAll(ac)
			return nil, err
		}
	}

	if err := wireMatching(ac, cfg.Matching); err != nil {
		_ = closeAll(ac)
		return nil, err
	}

	obs, err := observability.FromAgentConfig(cfg.Observability)
	if err != nil {
		_ = closeAll(ac)
		return nil, err
	}
	ac.engine.Tracer = obs.Tracer()
	ac.engine.Meter = obs.Meter()
	ac.closers = append(ac.closers, func() error {
		return obs.Shutdown(context.Background())
	})

	for _, opt := range opts {
		opt(ac)
	}

	return newAgent(ac)
}

func closeAll(ac *agentConfig) error {
	var firstErr error
	for i := len(ac.closers) - 1; i >= 0; i-- {
		if err := ac.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// wireMatching selects the evaluator and provider from the matching
// section. The mock provider is intended for tests and demos.
func wireMatching(ac *agentConfig, cfg domainconfig.MatchingConfig) error {
	timeout := int(time.Duration(cfg.Timeout) / time.Second)

	var provider matching.Provider
	var evaluator matching.Evaluator
	switch cfg.Provider {
	case "", "mock":
		// Deterministic no-match evaluation, for tests and offline demos.
		provider = matching.NewMockProvider()
		evaluator = matching.NewMockEvaluator(nil)
	case "openai":
		provider = matching.NewOpenAIProvider(matching.OpenAIConfig{
			APIKey:  os.Getenv(apiKeyEnv(cfg, "OPENAI_API_KEY")),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	case "anthropic":
		provider = matching.NewAnthropicProvider(matching.AnthropicConfig{
			APIKey:  os.Getenv(apiKeyEnv(cfg, "ANTHROPIC_API_KEY")),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	case "ollama":
		provider = matching.NewOllamaProvider(matching.OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	case "copilot":
		p, err := matching.NewCopilotProvider(matching.CopilotConfig{
			Model:   cfg.Model,
			Timeout: timeout,
		})
		if err != nil {
			return err
		}
		provider = p
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if evaluator == nil {
		evaluator = matching.NewLLMEvaluator(matching.LLMEvaluatorConfig{
			Provider: provider,
			Model:    cfg.Model,
		})
	}

	ac.engine.Provider = provider
	ac.engine.Model = cfg.Model
	ac.engine.Evaluator = evaluator
	ac.engine.Matcher = matching.NewMatcher(matching.MatcherConfig{
		Evaluator:     evaluator,
		Threshold:     cfg.Threshold,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	return nil
}

func apiKeyEnv(cfg domainconfig.MatchingConfig, fallback string) string {
	if cfg.APIKeyEnv != "" {
		return cfg.APIKeyEnv
	}
	return fallback
}

// wireStorage opens the configured persistence backends. Anything left
// unset keeps its in-memory default.
func wireStorage(ac *agentConfig, cfg domainconfig.StorageConfig) error {
	sessions, err := openSessionStore(ac, cfg.Sessions)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if sessions != nil {
		ac.engine.Sessions = sessions
	}

	events, err := openEventLog(ac, cfg.Events)
	if err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if events != nil {
		ac.engine.Events = events
	}

	variables, err := openVariableStore(ac, cfg.Variables)
	if err != nil {
		return fmt.Errorf("variables: %w", err)
	}
	if variables != nil {
		ac.engine.Variables = variables
	}
	return nil
}

func openSessionStore(ac *agentConfig, cfg domainconfig.BackendConfig) (session.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return nil, nil
	case "sqlite":
		store, err := sqlite.NewSessionStore(sqlite.Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		ac.closers = append(ac.closers, store.Close)
		return store, nil
	case "mongodb":
		client, err := mongodb.NewClient(context.Background(), mongodb.WithURI(cfg.DSN))
		if err != nil {
			return nil, err
		}
		ac.closers = append(ac.closers, func() error {
			return client.Close(context.Background())
		})
		collection := cfg.Table
		if collection == "" {
			collection = "sessions"
		}
		return mongodb.NewSessionStore(client, collection), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func openEventLog(ac *agentConfig, cfg domainconfig.BackendConfig) (session.EventLog, error) {
	switch cfg.Backend {
	case "", "memory":
		return nil, nil
	case "sqlite":
		log, err := sqlite.NewEventLog(sqlite.Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		ac.closers = append(ac.closers, log.Close)
		return log, nil
	case "postgres":
		pool, err := postgres.Connect(context.Background(), postgres.Config{DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		log := postgres.NewEventLog(pool, cfg.Table)
		ac.closers = append(ac.closers, func() error {
			log.Close()
			return nil
		})
		return log, nil
	case "badger":
		log, err := badger.NewEventLog(badger.Config{Dir: cfg.DSN})
		if err != nil {
			return nil, err
		}
		ac.closers = append(ac.closers, log.Close)
		return log, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func openVariableStore(ac *agentConfig, cfg domainconfig.BackendConfig) (variable.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return nil, nil
	case "redis":
		store, err := redis.NewVariableStore(redis.Config{Address: cfg.DSN})
		if err != nil {
			return nil, err
		}
		ac.closers = append(ac.closers, store.Close)
		return store, nil
	case "dynamodb":
		opts := []dynamodb.ConfigOption{}
		if cfg.DSN != "" {
			opts = append(opts, dynamodb.WithEndpoint(cfg.DSN))
		}
		if cfg.Table != "" {
			opts = append(opts, dynamodb.WithVariablesTableName(cfg.Table))
		}
		client, err := dynamodb.NewClient(context.Background(), opts...)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewVariableStore(client), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// WatchConfig reloads the configuration file on change and hot-swaps the
// agent definition. Invalid files are rejected and the running definition
// kept. Close the returned watcher to stop.
func (a *Agent) WatchConfig(path string) (*ConfigWatcher, error) {
	return infraconfig.NewWatcher(path, func(cfg *domainconfig.AgentConfig) {
		def, err := cfg.ToDefinition()
		if err != nil {
			logging.Warn().
				Add(logging.ErrorField(err)).
				Msg("config reload produced invalid definition, keeping current")
			return
		}
		a.SetDefinition(def)
	})
}
