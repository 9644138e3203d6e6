package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/felixgeelhaar/parley/domain/tool"
)

var (
	// ErrInvalidWASM indicates the module could not be compiled.
	ErrInvalidWASM = errors.New("invalid WASM module")

	// ErrNoEntryPoint indicates the module exports no runnable function.
	ErrNoEntryPoint = errors.New("WASM module has no entry point")
)

const (
	defaultWASMTimeout = 30 * time.Second
	// 256 pages of 64KB each, 16MB per module instance.
	maxMemoryPages = 256
)

// WASMRuntime executes tool handlers inside sandboxed WASM modules. The
// module reads the invocation payload from stdin and writes its result to
// stdout; it gets no filesystem or network access.
type WASMRuntime struct {
	runtime wazero.Runtime

	mu       sync.Mutex
	compiled map[string]wazero.CompiledModule
}

// NewWASMRuntime creates a runtime with WASI support and a fixed memory
// ceiling per instance.
func NewWASMRuntime() (*WASMRuntime, error) {
	ctx := context.Background()
	runtime := wazero.NewRuntimeWithConfig(ctx,
		wazero.NewRuntimeConfig().WithMemoryLimitPages(maxMemoryPages))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	return &WASMRuntime{
		runtime:  runtime,
		compiled: make(map[string]wazero.CompiledModule),
	}, nil
}

// Handler compiles the module at path and returns a handler invoking
// entryPoint (default "_start", the WASI command convention).
func (r *WASMRuntime) Handler(path, entryPoint string, timeout time.Duration) (tool.Handler, error) {
	compiled, err := r.load(path)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultWASMTimeout
	}

	h := &wasmHandler{
		runtime:    r.runtime,
		compiled:   compiled,
		path:       path,
		entryPoint: entryPoint,
		timeout:    timeout,
	}
	return h.handle, nil
}

// load compiles a module, caching by path.
func (r *WASMRuntime) load(path string) (wazero.CompiledModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if compiled, ok := r.compiled[path]; ok {
		return compiled, nil
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read WASM module: %w", err)
	}
	compiled, err := r.runtime.CompileModule(context.Background(), wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWASM, path, err)
	}
	r.compiled[path] = compiled
	return compiled, nil
}

// Close releases all compiled modules and the runtime.
func (r *WASMRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	for path, compiled := range r.compiled {
		_ = compiled.Close(ctx)
		delete(r.compiled, path)
	}
	return r.runtime.Close(ctx)
}

type wasmHandler struct {
	runtime    wazero.Runtime
	compiled   wazero.CompiledModule
	path       string
	entryPoint string
	timeout    time.Duration
}

func (h *wasmHandler) handle(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
	body, err := encodePayload(tc, args)
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	// Buffers are per call: module instances must not share output.
	var stdout, stderr bytes.Buffer
	moduleConfig := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(body)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions() // entry point is invoked explicitly below

	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, moduleConfig)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tool.Result{}, fmt.Errorf("%w: %s", tool.ErrExecutionTimeout, h.path)
		}
		return tool.Result{}, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer func() { _ = mod.Close(ctx) }()

	entry := h.entryPoint
	if entry == "" {
		entry = "_start"
	}
	fn := mod.ExportedFunction(entry)
	if fn == nil {
		return tool.Result{}, fmt.Errorf("%w: %s exports no %q", ErrNoEntryPoint, h.path, entry)
	}

	if _, err := fn.Call(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tool.Result{}, fmt.Errorf("%w: %s", tool.ErrExecutionTimeout, h.path)
		}
		detail := stderr.String()
		if detail == "" {
			detail = err.Error()
		}
		return tool.NewErrorResult(fmt.Sprintf("WASM execution failed: %s", detail), false), nil
	}

	return decodeOutput(stdout.Bytes()), nil
}
