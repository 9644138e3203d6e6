package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/felixgeelhaar/parley/domain/tool"
)

const defaultExecTimeout = 30 * time.Second

// Exit code a subprocess uses to signal a security refusal (sysexits
// EX_NOPERM). Any other non-zero exit is an ordinary tool error.
const exitSecurityViolation = 77

// ExecHandler runs a local subprocess with the invocation payload on
// stdin and reads the tool result from stdout.
type ExecHandler struct {
	command []string
	timeout time.Duration
}

// NewExecHandler creates a handler that shells out to a command.
func NewExecHandler(command []string, timeout time.Duration) tool.Handler {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	h := &ExecHandler{command: command, timeout: timeout}
	return h.handle
}

func (h *ExecHandler) handle(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
	body, err := encodePayload(tc, args)
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, h.command[0], h.command[1:]...)
	cmd.Stdin = bytes.NewReader(body)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tool.Result{}, fmt.Errorf("%w: %s", tool.ErrExecutionTimeout, h.command[0])
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := stderr.String()
			if detail == "" {
				detail = err.Error()
			}
			if exitErr.ExitCode() == exitSecurityViolation {
				return tool.Result{}, fmt.Errorf("%w: %s", tool.ErrSecurityViolation, detail)
			}
			return tool.NewErrorResult(fmt.Sprintf("%s exited %d: %s", h.command[0], exitErr.ExitCode(), detail), false), nil
		}
		return tool.Result{}, fmt.Errorf("failed to run %s: %w", h.command[0], err)
	}

	return decodeOutput(stdout.Bytes()), nil
}
