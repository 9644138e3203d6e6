package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/parley/domain/config"
	"github.com/felixgeelhaar/parley/domain/tool"
)

func testContext() tool.Context {
	return tool.Context{
		SessionID:  "sess-1",
		CustomerID: "cust-1",
		Vars: map[string]json.RawMessage{
			"order_id": json.RawMessage(`"A100"`),
		},
	}
}

func testArgs() tool.Arguments {
	return tool.Arguments{"order_id": json.RawMessage(`"A100"`)}
}

func TestDecodeOutput(t *testing.T) {
	t.Parallel()

	t.Run("plain JSON becomes result data", func(t *testing.T) {
		t.Parallel()
		res := decodeOutput([]byte(`{"carrier":"acme"}`))
		if !res.OK() {
			t.Fatalf("Outcome = %s, want success", res.Outcome)
		}
		if string(res.Data) != `{"carrier":"acme"}` {
			t.Errorf("Data = %s", res.Data)
		}
	})

	t.Run("result envelope passes through", func(t *testing.T) {
		t.Parallel()
		res := decodeOutput([]byte(`{"outcome":"success","data":{"ok":true},"field_bindings":{"carrier":"acme"}}`))
		if !res.OK() {
			t.Fatalf("Outcome = %s, want success", res.Outcome)
		}
		if res.FieldBindings["carrier"] != "acme" {
			t.Errorf("FieldBindings = %v", res.FieldBindings)
		}
	})

	t.Run("error envelope passes through", func(t *testing.T) {
		t.Parallel()
		res := decodeOutput([]byte(`{"outcome":"error","error":"order not found","retryable":false}`))
		if res.Outcome != tool.OutcomeError {
			t.Fatalf("Outcome = %s, want error", res.Outcome)
		}
		if res.Error != "order not found" {
			t.Errorf("Error = %s", res.Error)
		}
	})

	t.Run("non-JSON output is wrapped", func(t *testing.T) {
		t.Parallel()
		res := decodeOutput([]byte("plain text"))
		if !res.OK() {
			t.Fatalf("Outcome = %s, want success", res.Outcome)
		}
		var out map[string]string
		if err := json.Unmarshal(res.Data, &out); err != nil || out["output"] != "plain text" {
			t.Errorf("Data = %s", res.Data)
		}
	})

	t.Run("empty output yields empty object", func(t *testing.T) {
		t.Parallel()
		res := decodeOutput(nil)
		if !res.OK() || string(res.Data) != `{}` {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestHTTPHandler(t *testing.T) {
	t.Parallel()

	t.Run("posts payload and returns body data", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s, want POST", r.Method)
			}
			if r.Header.Get("X-Api-Key") != "k-1" {
				t.Errorf("missing custom header")
			}
			var in payload
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Fatalf("bad payload: %v", err)
			}
			if in.Context.SessionID != "sess-1" || in.Args.String("order_id") != "A100" {
				t.Errorf("payload = %+v", in)
			}
			w.Write([]byte(`{"status":"shipped"}`))
		}))
		defer srv.Close()

		h := NewHTTPHandler(srv.URL, map[string]string{"X-Api-Key": "k-1"}, time.Second)
		res, err := h(context.Background(), testContext(), testArgs())
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if !res.OK() || string(res.Data) != `{"status":"shipped"}` {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("forbidden maps to security violation", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not allowed", http.StatusForbidden)
		}))
		defer srv.Close()

		h := NewHTTPHandler(srv.URL, nil, time.Second)
		_, err := h(context.Background(), testContext(), nil)
		if !errors.Is(err, tool.ErrSecurityViolation) {
			t.Errorf("error = %v, want ErrSecurityViolation", err)
		}
	})

	t.Run("server error surfaces as retryable error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		h := NewHTTPHandler(srv.URL, nil, time.Second)
		if _, err := h(context.Background(), testContext(), nil); err == nil {
			t.Error("expected error for status 500")
		}
	})

	t.Run("client error becomes non-retryable result", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad args", http.StatusBadRequest)
		}))
		defer srv.Close()

		h := NewHTTPHandler(srv.URL, nil, time.Second)
		res, err := h(context.Background(), testContext(), nil)
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if res.Outcome != tool.OutcomeError || res.Retryable {
			t.Errorf("result = %+v, want non-retryable error", res)
		}
	})
}

func TestExecHandler(t *testing.T) {
	t.Parallel()

	t.Run("reads stdout as result", func(t *testing.T) {
		t.Parallel()
		h := NewExecHandler([]string{"sh", "-c", `echo '{"balance":"17.20"}'`}, time.Second)
		res, err := h(context.Background(), testContext(), testArgs())
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if !res.OK() {
			t.Fatalf("Outcome = %s, want success", res.Outcome)
		}
		var out map[string]string
		if err := json.Unmarshal(res.Data, &out); err != nil || out["balance"] != "17.20" {
			t.Errorf("Data = %s", res.Data)
		}
	})

	t.Run("payload arrives on stdin", func(t *testing.T) {
		t.Parallel()
		h := NewExecHandler([]string{"sh", "-c", "cat"}, time.Second)
		res, err := h(context.Background(), testContext(), testArgs())
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		var in payload
		if err := json.Unmarshal(res.Data, &in); err != nil {
			t.Fatalf("stdout was not the payload: %v", err)
		}
		if in.Context.CustomerID != "cust-1" {
			t.Errorf("payload = %+v", in)
		}
	})

	t.Run("nonzero exit becomes error result", func(t *testing.T) {
		t.Parallel()
		h := NewExecHandler([]string{"sh", "-c", "echo oops >&2; exit 2"}, time.Second)
		res, err := h(context.Background(), testContext(), nil)
		if err != nil {
			t.Fatalf("handler error = %v", err)
		}
		if res.Outcome != tool.OutcomeError {
			t.Errorf("Outcome = %s, want error", res.Outcome)
		}
	})

	t.Run("security exit code maps to violation", func(t *testing.T) {
		t.Parallel()
		h := NewExecHandler([]string{"sh", "-c", "exit 77"}, time.Second)
		_, err := h(context.Background(), testContext(), nil)
		if !errors.Is(err, tool.ErrSecurityViolation) {
			t.Errorf("error = %v, want ErrSecurityViolation", err)
		}
	})

	t.Run("timeout maps to execution timeout", func(t *testing.T) {
		t.Parallel()
		h := NewExecHandler([]string{"sh", "-c", "sleep 5"}, 50*time.Millisecond)
		_, err := h(context.Background(), testContext(), nil)
		if !errors.Is(err, tool.ErrExecutionTimeout) {
			t.Errorf("error = %v, want ErrExecutionTimeout", err)
		}
	})
}

func TestFactory(t *testing.T) {
	t.Parallel()

	t.Run("unknown type rejected", func(t *testing.T) {
		t.Parallel()
		f := NewFactory()
		_, err := f.Handler(config.HandlerConfig{Type: "carrier-pigeon"})
		if !errors.Is(err, ErrUnknownHandlerType) {
			t.Errorf("error = %v, want ErrUnknownHandlerType", err)
		}
	})

	t.Run("incomplete config rejected", func(t *testing.T) {
		t.Parallel()
		f := NewFactory()
		if _, err := f.Handler(config.HandlerConfig{Type: "http"}); !errors.Is(err, ErrHandlerConfig) {
			t.Errorf("http without url: error = %v, want ErrHandlerConfig", err)
		}
		if _, err := f.Handler(config.HandlerConfig{Type: "exec"}); !errors.Is(err, ErrHandlerConfig) {
			t.Errorf("exec without command: error = %v, want ErrHandlerConfig", err)
		}
		if _, err := f.Handler(config.HandlerConfig{Type: "wasm"}); !errors.Is(err, ErrHandlerConfig) {
			t.Errorf("wasm without module: error = %v, want ErrHandlerConfig", err)
		}
	})

	t.Run("builds declared tools", func(t *testing.T) {
		t.Parallel()
		f := NewFactory()
		defer f.Close()

		tools, err := f.Tools([]config.ToolConfig{
			{
				Name:        "get_order",
				Description: "Look up an order",
				Parameters: []config.ParameterConfig{
					{Name: "order_id", Required: true, Source: "customer"},
				},
				ReadOnly:  true,
				Retryable: true,
				Handler:   config.HandlerConfig{Type: "exec", Command: []string{"true"}},
			},
			{
				Name:      "get_balance",
				Refreshes: "balance",
				Handler:   config.HandlerConfig{Type: "exec", Command: []string{"true"}},
			},
		})
		if err != nil {
			t.Fatalf("Tools() error = %v", err)
		}
		if len(tools) != 2 {
			t.Fatalf("len(tools) = %d, want 2", len(tools))
		}
		if tools[0].Name() != "get_order" || !tools[0].Annotations().Retryable {
			t.Errorf("tool = %+v", tools[0])
		}
		if tools[0].Parameters()[0].Source != tool.SourceCustomer {
			t.Errorf("parameter source = %s, want customer", tools[0].Parameters()[0].Source)
		}
		if tools[1].Annotations().RefreshesVariable != "balance" {
			t.Errorf("refreshes = %q, want balance", tools[1].Annotations().RefreshesVariable)
		}
	})
}
