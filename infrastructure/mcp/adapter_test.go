package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/felixgeelhaar/parley/domain/tool"
)

func TestMCPDefToTool(t *testing.T) {
	t.Parallel()

	def := MCPToolDef{
		Name:        "check_stock",
		Description: "Check stock for a product",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"product_id": {"type": "string", "description": "Product identifier"},
				"warehouse": {"type": "string", "description": "Warehouse code"}
			},
			"required": ["product_id"]
		}`),
	}

	proxied := MCPDefToTool(def, func(ctx context.Context, name string, input json.RawMessage) (tool.Result, error) {
		return tool.NewResult(json.RawMessage(`{"in_stock":true}`)), nil
	})

	if proxied.Name() != "check_stock" {
		t.Errorf("Name = %s", proxied.Name())
	}
	if proxied.Description() != "Check stock for a product" {
		t.Errorf("Description = %s", proxied.Description())
	}

	params := proxied.Parameters()
	if len(params) != 2 {
		t.Fatalf("Parameters length = %d, want 2", len(params))
	}
	// Sorted by name.
	if params[0].Name != "product_id" || params[1].Name != "warehouse" {
		t.Errorf("parameter order = %s, %s", params[0].Name, params[1].Name)
	}
	if !params[0].Required {
		t.Error("product_id should be required")
	}
	if params[1].Required {
		t.Error("warehouse should not be required")
	}
	if params[0].Source != tool.SourceContext {
		t.Errorf("Source = %s, want context", params[0].Source)
	}
	if params[0].Description != "Product identifier" {
		t.Errorf("Description = %s", params[0].Description)
	}
}

func TestMCPDefToTool_NoSchema(t *testing.T) {
	t.Parallel()

	proxied := MCPDefToTool(MCPToolDef{Name: "ping"}, nil)
	if params := proxied.Parameters(); len(params) != 0 {
		t.Errorf("Parameters length = %d, want 0", len(params))
	}
}

func TestProxyTool_Execute(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotInput json.RawMessage
	caller := func(ctx context.Context, name string, input json.RawMessage) (tool.Result, error) {
		gotName = name
		gotInput = input
		return tool.NewResult(json.RawMessage(`{"status":"shipped"}`)), nil
	}

	proxied := MCPDefToTool(MCPToolDef{Name: "lookup_order"}, caller)

	args := tool.Arguments{"order_id": json.RawMessage(`"#A100"`)}
	result, err := proxied.Execute(context.Background(), tool.Context{}, args)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}

	if gotName != "lookup_order" {
		t.Errorf("caller name = %s", gotName)
	}

	var decoded map[string]string
	if err := json.Unmarshal(gotInput, &decoded); err != nil {
		t.Fatalf("caller input not JSON: %v", err)
	}
	if decoded["order_id"] != "#A100" {
		t.Errorf("order_id = %s", decoded["order_id"])
	}

	if !result.OK() {
		t.Errorf("Outcome = %s, want success", result.Outcome)
	}
	if string(result.Data) != `{"status":"shipped"}` {
		t.Errorf("Data = %s", result.Data)
	}
}

func TestToolToMCPDef(t *testing.T) {
	t.Parallel()

	built, err := tool.NewBuilder("lookup_order").
		WithDescription("Look up an order by its ID").
		WithParameter(tool.Parameter{
			Name:        "order_id",
			Description: "Order identifier",
			Required:    true,
			Source:      tool.SourceCustomer,
		}).
		WithParameter(tool.Parameter{
			Name:   "include_history",
			Source: tool.SourceContext,
		}).
		WithHandler(func(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
			return tool.NewResult(json.RawMessage(`{}`)), nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}

	def := ToolToMCPDef(built)
	if def.Name != "lookup_order" {
		t.Errorf("Name = %s", def.Name)
	}

	var schema struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
		t.Fatalf("InputSchema not JSON: %v", err)
	}
	if schema.Type != "object" {
		t.Errorf("schema type = %s", schema.Type)
	}
	if len(schema.Properties) != 2 {
		t.Errorf("properties = %d, want 2", len(schema.Properties))
	}
	if len(schema.Required) != 1 || schema.Required[0] != "order_id" {
		t.Errorf("required = %v", schema.Required)
	}
}

func TestToolToMCPDef_Roundtrip(t *testing.T) {
	t.Parallel()

	built, err := tool.NewBuilder("get_balance").
		WithDescription("Fetch the account balance").
		CustomerParam("account_id", "Account identifier").
		WithHandler(func(ctx context.Context, tc tool.Context, args tool.Arguments) (tool.Result, error) {
			return tool.NewResult(json.RawMessage(`{"balance":42}`)), nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}

	proxied := MCPDefToTool(ToolToMCPDef(built), nil)

	params := proxied.Parameters()
	if len(params) != 1 {
		t.Fatalf("Parameters length = %d, want 1", len(params))
	}
	if params[0].Name != "account_id" || !params[0].Required {
		t.Errorf("parameter = %+v", params[0])
	}
}
