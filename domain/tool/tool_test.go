package tool_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/parley/domain/tool"
)

func TestBuilder_Build(t *testing.T) {
	t.Parallel()

	built, err := tool.NewBuilder("process_return").
		WithDescription("initiates a product return").
		CustomerParam("order_id", "the order number").
		ContextParam("customer_id", "the customer identifier").
		Retryable().
		WithHandler(func(_ context.Context, _ tool.Context, args tool.Arguments) (tool.Result, error) {
			return tool.NewResult(json.RawMessage(`{"status":"initiated"}`)).
				WithBinding("order_id", args.String("order_id")), nil
		}).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if built.Name() != "process_return" {
		t.Errorf("Name() = %s, want process_return", built.Name())
	}
	params := built.Parameters()
	if len(params) != 2 {
		t.Fatalf("Parameters() len = %d, want 2", len(params))
	}
	if params[0].Source != tool.SourceCustomer || !params[0].Required {
		t.Errorf("first parameter = %+v, want required customer source", params[0])
	}
	if params[1].Source != tool.SourceContext {
		t.Errorf("second parameter source = %s, want context", params[1].Source)
	}
	if !built.Annotations().Retryable {
		t.Error("Retryable() should set the annotation")
	}

	result, err := built.Execute(context.Background(), tool.Context{}, tool.Arguments{
		"order_id": json.RawMessage(`"A100"`),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.OK() {
		t.Errorf("Outcome = %s, want success", result.Outcome)
	}
	if result.FieldBindings["order_id"] != "A100" {
		t.Errorf("binding order_id = %q, want A100", result.FieldBindings["order_id"])
	}
}

func TestBuilder_EmptyName(t *testing.T) {
	t.Parallel()

	_, err := tool.NewBuilder("").Build()
	if !errors.Is(err, tool.ErrEmptyName) {
		t.Errorf("Build() error = %v, want ErrEmptyName", err)
	}
}

func TestDefinition_Execute_NoHandler(t *testing.T) {
	t.Parallel()

	built, err := tool.NewBuilder("bare").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	_, err = built.Execute(context.Background(), tool.Context{}, nil)
	if !errors.Is(err, tool.ErrNoHandler) {
		t.Errorf("Execute() error = %v, want ErrNoHandler", err)
	}
}

func TestParameter_Dependency(t *testing.T) {
	t.Parallel()

	p := tool.Parameter{Name: "ticket", BindsTo: "lookup_order.ticket_id"}
	toolName, field, ok := p.Dependency()
	if !ok || toolName != "lookup_order" || field != "ticket_id" {
		t.Errorf("Dependency() = (%s, %s, %v), want (lookup_order, ticket_id, true)", toolName, field, ok)
	}

	none := tool.Parameter{Name: "plain"}
	if _, _, ok := none.Dependency(); ok {
		t.Error("parameter without BindsTo should have no dependency")
	}

	malformed := tool.Parameter{Name: "bad", BindsTo: "nodot"}
	if _, _, ok := malformed.Dependency(); ok {
		t.Error("malformed BindsTo should have no dependency")
	}
}

func TestArguments_String(t *testing.T) {
	t.Parallel()

	args := tool.Arguments{
		"quoted": json.RawMessage(`"A100"`),
		"number": json.RawMessage(`42`),
	}
	if got := args.String("quoted"); got != "A100" {
		t.Errorf("String(quoted) = %q, want A100", got)
	}
	if got := args.String("number"); got != "42" {
		t.Errorf("String(number) = %q, want 42", got)
	}
	if got := args.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
}
