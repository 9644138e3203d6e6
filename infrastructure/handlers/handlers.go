// Package handlers builds executable tool handlers from configuration:
// HTTP endpoints, local subprocesses, and sandboxed WASM modules.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/parley/domain/config"
	"github.com/felixgeelhaar/parley/domain/tool"
)

var (
	// ErrUnknownHandlerType indicates an unrecognized handler type.
	ErrUnknownHandlerType = errors.New("unknown handler type")

	// ErrHandlerConfig indicates an incomplete handler configuration.
	ErrHandlerConfig = errors.New("invalid handler configuration")
)

// payload is the JSON document every handler receives: the session view
// the tool executes against plus the resolved arguments.
type payload struct {
	Context tool.Context   `json:"context"`
	Args    tool.Arguments `json:"args"`
}

func encodePayload(tc tool.Context, args tool.Arguments) ([]byte, error) {
	return json.Marshal(payload{Context: tc, Args: args})
}

// decodeOutput turns handler output bytes into a tool result. Output that
// is a JSON object with an "outcome" field is taken as a full result
// envelope, letting handlers report bindings and variable writes; any
// other JSON becomes the result data; non-JSON output is wrapped.
func decodeOutput(out []byte) tool.Result {
	if len(out) == 0 {
		return tool.NewResult(json.RawMessage(`{}`))
	}
	if json.Valid(out) {
		var probe struct {
			Outcome tool.Outcome `json:"outcome"`
		}
		if err := json.Unmarshal(out, &probe); err == nil && probe.Outcome != "" {
			var res tool.Result
			if err := json.Unmarshal(out, &res); err == nil {
				return res
			}
		}
		data := make(json.RawMessage, len(out))
		copy(data, out)
		return tool.NewResult(data)
	}
	wrapped, _ := json.Marshal(map[string]string{"output": string(out)})
	return tool.NewResult(wrapped)
}

// Factory builds handlers from config. It owns the WASM runtime shared by
// wasm handlers; Close releases it.
type Factory struct {
	mu   sync.Mutex
	wasm *WASMRuntime
}

// NewFactory creates a handler factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Handler builds a tool handler from its configuration section.
func (f *Factory) Handler(cfg config.HandlerConfig) (tool.Handler, error) {
	timeout := time.Duration(cfg.Timeout)
	switch cfg.Type {
	case "http":
		if cfg.URL == "" {
			return nil, fmt.Errorf("%w: http handler needs a url", ErrHandlerConfig)
		}
		return NewHTTPHandler(cfg.URL, cfg.Headers, timeout), nil
	case "exec":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("%w: exec handler needs a command", ErrHandlerConfig)
		}
		return NewExecHandler(cfg.Command, timeout), nil
	case "wasm":
		if cfg.Module == "" {
			return nil, fmt.Errorf("%w: wasm handler needs a module path", ErrHandlerConfig)
		}
		rt, err := f.wasmRuntime()
		if err != nil {
			return nil, err
		}
		return rt.Handler(cfg.Module, cfg.EntryPoint, timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandlerType, cfg.Type)
	}
}

// Tools builds the declared tools of a configuration file.
func (f *Factory) Tools(cfgs []config.ToolConfig) ([]tool.Tool, error) {
	tools := make([]tool.Tool, 0, len(cfgs))
	for _, tc := range cfgs {
		handler, err := f.Handler(tc.Handler)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}

		b := tool.NewBuilder(tc.Name).
			WithDescription(tc.Description).
			WithHandler(handler)
		if tc.ReadOnly {
			b = b.ReadOnly()
		}
		if tc.Retryable {
			b = b.Retryable()
		}
		if tc.Refreshes != "" {
			b = b.Refreshes(tc.Refreshes)
		}
		for _, pc := range tc.Parameters {
			b = b.WithParameter(tool.Parameter{
				Name:        pc.Name,
				Description: pc.Description,
				Required:    pc.Required,
				Source:      tool.Source(pc.Source),
				BindsTo:     pc.BindsTo,
			})
		}

		t, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tc.Name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

func (f *Factory) wasmRuntime() (*WASMRuntime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wasm == nil {
		rt, err := NewWASMRuntime()
		if err != nil {
			return nil, err
		}
		f.wasm = rt
	}
	return f.wasm, nil
}

// Close releases factory resources.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wasm == nil {
		return nil
	}
	err := f.wasm.Close()
	f.wasm = nil
	return err
}
