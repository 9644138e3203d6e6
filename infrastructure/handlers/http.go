package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/felixgeelhaar/parley/domain/tool"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// HTTPHandler posts the invocation payload to an endpoint as JSON and
// interprets the response body as the tool result.
type HTTPHandler struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPHandler creates a handler for an HTTP tool endpoint.
func NewHTTPHandler(url string, headers map[string]string, timeout time.Duration) tool.Handler {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	h := &HTTPHandler{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
	return h.handle
}

func (h *HTTPHandler) handle(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
	body, err := encodePayload(tc, args)
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, fmt.Errorf("%w: %v", tool.ErrExecutionTimeout, err)
		}
		// Transport failures surface as errors so the executor's retry
		// policy can apply to retryable tools.
		return tool.Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return tool.Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeOutput(out), nil
	case resp.StatusCode == http.StatusForbidden:
		return tool.Result{}, fmt.Errorf("%w: endpoint refused the call: %s", tool.ErrSecurityViolation, truncate(out))
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return tool.Result{}, fmt.Errorf("%w: status %d", tool.ErrExecutionTimeout, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return tool.Result{}, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, truncate(out))
	default:
		return tool.NewErrorResult(fmt.Sprintf("endpoint returned status %d: %s", resp.StatusCode, truncate(out)), false), nil
	}
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
