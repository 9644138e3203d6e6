// Package tool provides the tool model: declared parameters, invocation
// context, results, and the registry.
package tool

import "context"

// Tool represents a registered capability the agent can invoke. Tools may
// mutate context variables and session-scoped data through their results;
// they must never mutate guideline, journey, or glossary configuration.
type Tool interface {
	// Name returns the stable string identifier for the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Parameters returns the declared parameters in declaration order.
	Parameters() []Parameter

	// Annotations returns the tool's behavioral annotations.
	Annotations() Annotations

	// Execute runs the tool with resolved arguments.
	Execute(ctx context.Context, tc Context, args Arguments) (Result, error)
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, tc Context, args Arguments) (Result, error)

// Annotations describe tool behavior the caller relies on.
type Annotations struct {
	// ReadOnly indicates the tool doesn't modify external state.
	ReadOnly bool `json:"read_only,omitempty"`

	// Retryable indicates failed invocations may be retried.
	Retryable bool `json:"retryable,omitempty"`

	// RefreshesVariable names the context variable this tool refreshes,
	// empty when the tool is not a refresher.
	RefreshesVariable string `json:"refreshes_variable,omitempty"`
}

// Definition is a concrete implementation of Tool.
type Definition struct {
	name        string
	description string
	parameters  []Parameter
	annotations Annotations
	handler     Handler
}

// Name returns the tool name.
func (d *Definition) Name() string {
	return d.name
}

// Description returns the tool description.
func (d *Definition) Description() string {
	return d.description
}

// Parameters returns the declared parameters.
func (d *Definition) Parameters() []Parameter {
	return d.parameters
}

// Annotations returns the tool annotations.
func (d *Definition) Annotations() Annotations {
	return d.annotations
}

// Execute runs the tool handler.
func (d *Definition) Execute(ctx context.Context, tc Context, args Arguments) (Result, error) {
	if d.handler == nil {
		return Result{}, ErrNoHandler
	}
	return d.handler(ctx, tc, args)
}

// Builder provides a fluent API for constructing tools.
type Builder struct {
	def *Definition
	err error
}

// NewBuilder creates a new tool builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{
		def: &Definition{name: name},
	}
}

// WithDescription sets the tool description.
func (b *Builder) WithDescription(desc string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.description = desc
	return b
}

// WithParameter adds a declared parameter.
func (b *Builder) WithParameter(p Parameter) *Builder {
	if b.err != nil {
		return b
	}
	if p.Source == "" {
		p.Source = SourceContext
	}
	b.def.parameters = append(b.def.parameters, p)
	return b
}

// CustomerParam adds a required parameter the agent must ask the customer
// for before the tool can be called.
func (b *Builder) CustomerParam(name, description string) *Builder {
	return b.WithParameter(Parameter{
		Name:        name,
		Description: description,
		Required:    true,
		Source:      SourceCustomer,
	})
}

// ContextParam adds a parameter extracted from conversation or session
// state without asking the customer.
func (b *Builder) ContextParam(name, description string) *Builder {
	return b.WithParameter(Parameter{
		Name:        name,
		Description: description,
		Required:    true,
		Source:      SourceContext,
	})
}

// ReadOnly marks the tool as read-only.
func (b *Builder) ReadOnly() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.ReadOnly = true
	return b
}

// Retryable marks the tool's failures as retryable.
func (b *Builder) Retryable() *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.Retryable = true
	return b
}

// Refreshes binds the tool as the refresher of a context variable.
func (b *Builder) Refreshes(variableName string) *Builder {
	if b.err != nil {
		return b
	}
	b.def.annotations.RefreshesVariable = variableName
	return b
}

// WithHandler sets the tool handler function.
func (b *Builder) WithHandler(handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	b.def.handler = handler
	return b
}

// Build constructs the tool definition.
func (b *Builder) Build() (Tool, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.def.name == "" {
		return nil, ErrEmptyName
	}
	return b.def, nil
}

// MustBuild constructs the tool definition or panics on error.
func (b *Builder) MustBuild() Tool {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
