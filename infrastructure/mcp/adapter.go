package mcp

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/felixgeelhaar/parley/domain/tool"
)

// toolCaller executes a named tool on a remote MCP server.
type toolCaller func(ctx context.Context, name string, input json.RawMessage) (tool.Result, error)

// mcpProxyTool wraps a remote MCP tool as a registry tool.
type mcpProxyTool struct {
	def    MCPToolDef
	params []tool.Parameter
	caller toolCaller
	annot  tool.Annotations
}

// newMCPProxyTool creates a new MCP proxy tool.
func newMCPProxyTool(def MCPToolDef, caller toolCaller) *mcpProxyTool {
	return &mcpProxyTool{
		def:    def,
		params: parametersFromSchema(def.InputSchema),
		caller: caller,
	}
}

var _ tool.Tool = (*mcpProxyTool)(nil)

func (t *mcpProxyTool) Name() string {
	return t.def.Name
}

func (t *mcpProxyTool) Description() string {
	return t.def.Description
}

func (t *mcpProxyTool) Parameters() []tool.Parameter {
	return t.params
}

func (t *mcpProxyTool) Annotations() tool.Annotations {
	return t.annot
}

func (t *mcpProxyTool) Execute(ctx context.Context, _ tool.Context, args tool.Arguments) (tool.Result, error) {
	input, err := json.Marshal(args)
	if err != nil {
		return tool.Result{}, err
	}
	return t.caller(ctx, t.def.Name, input)
}

// parametersFromSchema derives declared parameters from an MCP input
// schema. Remote tools resolve everything from conversation state, so all
// parameters are context-sourced.
func parametersFromSchema(schema json.RawMessage) []tool.Parameter {
	if len(schema) == 0 {
		return nil
	}

	var s struct {
		Properties map[string]struct {
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}

	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}

	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]tool.Parameter, 0, len(names))
	for _, name := range names {
		params = append(params, tool.Parameter{
			Name:        name,
			Description: s.Properties[name].Description,
			Required:    required[name],
			Source:      tool.SourceContext,
		})
	}
	return params
}

// ToolToMCPDef converts a registry tool to an MCP tool definition.
func ToolToMCPDef(t tool.Tool) MCPToolDef {
	def := MCPToolDef{
		Name:        t.Name(),
		Description: t.Description(),
	}

	params := t.Parameters()
	if len(params) == 0 {
		return def
	}

	type property struct {
		Type        string `json:"type"`
		Description string `json:"description,omitempty"`
	}
	schema := struct {
		Type       string              `json:"type"`
		Properties map[string]property `json:"properties"`
		Required   []string            `json:"required,omitempty"`
	}{
		Type:       "object",
		Properties: make(map[string]property, len(params)),
	}
	for _, p := range params {
		schema.Properties[p.Name] = property{
			Type:        "string",
			Description: p.Description,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	raw, err := json.Marshal(schema)
	if err == nil {
		def.InputSchema = raw
	}
	return def
}

// MCPDefToTool converts an MCP tool definition to a registry tool. The
// caller executes the tool on the remote server.
func MCPDefToTool(def MCPToolDef, caller toolCaller) tool.Tool {
	return newMCPProxyTool(def, caller)
}
