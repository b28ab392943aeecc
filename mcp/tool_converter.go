package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// Every vendor takes JSON Schema for tool arguments but wraps it in its own
// request type. The functions here translate the MCP tool list once per
// request; an empty list yields nil so the field is omitted on the wire.

// inputSchema is a tool schema with the gaps vendors reject filled in.
// Argument-less tools often ship no type and a null properties object.
type inputSchema struct {
	kind     string
	props    map[string]any
	required []string
	defs     map[string]any
}

func normalize(s mcptypes.ToolInputSchema) inputSchema {
	out := inputSchema{kind: s.Type, props: s.Properties, required: s.Required, defs: s.Defs}
	if out.kind == "" {
		out.kind = "object"
	}
	if out.props == nil {
		out.props = map[string]any{}
	}
	return out
}

// ToOllamaTools converts MCP tools to Ollama's typed tool definitions.
func ToOllamaTools(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, len(tools))
	for i, t := range tools {
		s := normalize(t.InputSchema)
		params := api.ToolFunctionParameters{
			Type:       s.kind,
			Required:   s.required,
			Properties: make(map[string]api.ToolProperty, len(s.props)),
		}
		if s.defs != nil {
			params.Defs = s.defs
		}
		for name, v := range s.props {
			params.Properties[name] = ollamaProperty(v)
		}
		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// ollamaProperty maps one JSON Schema property onto api.ToolProperty.
// Unknown keywords are dropped; Ollama's type has no place for them.
func ollamaProperty(v any) api.ToolProperty {
	m := asObject(v)
	var prop api.ToolProperty
	if m == nil {
		return prop
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		prop.Type = api.PropertyType(stringsOf(t))
	}
	prop.Description, _ = m["description"].(string)
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if variants, ok := m["anyOf"].([]any); ok {
		prop.AnyOf = make([]api.ToolProperty, len(variants))
		for i, alt := range variants {
			prop.AnyOf[i] = ollamaProperty(alt)
		}
	}
	return prop
}

// asObject returns v as a JSON object, re-encoding typed values such as
// structs a server may have decoded its schema into.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	return m
}

func stringsOf(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ToOpenAITools converts MCP tools to function tools for every
// OpenAI-compatible endpoint. rename, when non-nil, rewrites each tool name
// into one the endpoint accepts.
func ToOpenAITools(tools []mcptypes.Tool, rename func(string) string) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		name := t.Name
		if rename != nil {
			name = rename(name)
		}
		s := normalize(t.InputSchema)
		params := openai.FunctionParameters{"type": s.kind, "properties": s.props}
		if len(s.required) > 0 {
			params["required"] = s.required
		}
		if s.defs != nil {
			params["$defs"] = s.defs
		}
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        name,
			Description: openai.String(t.Description),
			Parameters:  params,
		})
	}
	return out
}

// ToAnthropicTools converts MCP tools to Anthropic custom tools. The
// schema type is implied "object"; $defs ride along as extra fields.
func ToAnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		s := normalize(t.InputSchema)
		schema := anthropic.ToolInputSchemaParam{Properties: s.props}
		if len(s.required) > 0 {
			schema.Required = s.required
		}
		if s.defs != nil {
			schema.ExtraFields = map[string]any{"$defs": s.defs}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}
