package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleConfig = `name: Order Support
version: "1"
description: Helps customers with orders and returns
agent:
  mode: fluid
  deflection: "Let me connect you with a colleague."
terms:
  - name: RMA
    description: Return merchandise authorization
guidelines:
  - condition: customer wants to return an item
    action: start the return process
    criticality: high
journeys:
  - id: order_return
    title: Order return
    activation:
      - customer wants to return an item
    initial: ask_order
    states:
      - id: ask_order
        kind: chat
        instruction: Ask for the order number
      - id: confirm
        kind: chat
        instruction: Confirm the return
    transitions:
      - from: ask_order
        to: confirm
canned:
  - id: shipping
    text: "Standard shipping takes 3-5 business days."
    signals:
      - shipping time
variables:
  - name: order_status
    scope: customer
matching:
  provider: mock
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr)
	err := app.ExecuteWithArgs(context.Background(), args)
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(stdout, "parley version") {
		t.Errorf("output = %q, want version banner", stdout)
	}
}

func TestValidateCmd(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	stdout, _, err := run(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	for _, want := range []string{"Definition is valid", "Guidelines: 1", "Journeys: 1", "order_return"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

func TestValidateCmd_InvalidFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "name: Broken\nversion: \"1\"\nagent:\n  mode: shouty\n")
	_, _, err := run(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("validate should fail for unknown mode")
	}
}

func TestValidateCmd_MissingPath(t *testing.T) {
	t.Parallel()

	_, _, err := run(t, "validate")
	if err == nil {
		t.Fatal("validate without -c should fail")
	}
}

func TestValidateCmd_Schema(t *testing.T) {
	t.Parallel()

	stdout, _, err := run(t, "validate", "--schema")
	if err != nil {
		t.Fatalf("validate --schema error = %v", err)
	}
	if !strings.Contains(stdout, "guidelines") {
		t.Errorf("schema output missing guidelines:\n%.200s", stdout)
	}
}

func TestExportSchemaCmd(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "schema.json")
	stdout, _, err := run(t, "export-schema", "-o", out)
	if err != nil {
		t.Fatalf("export-schema error = %v", err)
	}
	if !strings.Contains(stdout, "Schema exported") {
		t.Errorf("output = %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if !strings.Contains(string(data), "journeys") {
		t.Error("exported schema missing journeys")
	}
}

func TestInspectCmd(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)

	tests := []struct {
		name    string
		section string
		want    string
	}{
		{"all", "all", "Order Support"},
		{"guidelines", "guidelines", "return an item"},
		{"journeys", "journeys", "ask_order"},
		{"terms", "terms", "RMA"},
		{"canned", "canned", "shipping"},
		{"variables", "variables", "order_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, _, err := run(t, "inspect", "-c", path, "--section", tt.section)
			if err != nil {
				t.Fatalf("inspect error = %v", err)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Errorf("section %s output missing %q:\n%s", tt.section, tt.want, stdout)
			}
		})
	}
}

func TestInspectCmd_UnknownSection(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	_, _, err := run(t, "inspect", "-c", path, "--section", "budget")
	if err == nil {
		t.Fatal("inspect with unknown section should fail")
	}
}

func TestInspectCmd_JSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	stdout, _, err := run(t, "inspect", "-c", path, "--json", "--section", "journeys")
	if err != nil {
		t.Fatalf("inspect --json error = %v", err)
	}
	if !strings.Contains(stdout, `"order_return"`) {
		t.Errorf("json output missing journey id:\n%s", stdout)
	}
}

func TestChatCmd_SingleTurn(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)
	stdout, _, err := run(t, "chat", "-c", path, "--customer", "alice", "hello there")
	if err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if strings.TrimSpace(stdout) == "" {
		t.Error("chat produced no reply")
	}
}

func TestChatCmd_Interactive(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, sampleConfig)

	var stdout, stderr bytes.Buffer
	app := New().WithOutput(&stdout, &stderr).WithInput(strings.NewReader("hi\n"))
	if err := app.ExecuteWithArgs(context.Background(), []string{"chat", "-c", path}); err != nil {
		t.Fatalf("chat error = %v", err)
	}
	if !strings.Contains(stdout.String(), "Session ") {
		t.Errorf("missing session banner:\n%s", stdout.String())
	}
}
