package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"mcpchat/model"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ParseToolArguments parses JSON arguments string into a map.
// Used by the OpenAI-compatible and Anthropic adapters for tool call parsing.
func ParseToolArguments(argsJSON string) map[string]any {
	args := make(map[string]any)
	if strings.TrimSpace(argsJSON) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		// If parsing fails, return empty map
		return make(map[string]any)
	}
	return args
}

func marshalArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// withProvider stamps the provider id on a *model.Error that has none.
func withProvider(err error, id string) error {
	var e *model.Error
	if errors.As(err, &e) && e.Provider == "" {
		cp := *e
		cp.Provider = id
		return &cp
	}
	return err
}

// ToOpenAIMessages converts messages to OpenAI chat completion params.
//
// System messages stay inline with the system role. Assistant messages that
// carry tool calls are replayed with their calls so the following tool
// messages can reference them.
func ToOpenAIMessages(messages []model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, err
	}

	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: marshalArguments(tc.Arguments),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return result, nil
}

// openAIWireMessage is the JSON shape the SDK sends for one message.
type openAIWireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCallID string          `json:"tool_call_id"`
	ToolCalls  []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// FromOpenAIMessages is the inverse of ToOpenAIMessages. It reads the wire
// form of the params, so it also accepts params built by other code.
func FromOpenAIMessages(params []openai.ChatCompletionMessageParamUnion) ([]model.Message, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var wire []openAIWireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	result := make([]model.Message, 0, len(wire))
	for _, w := range wire {
		role := model.Role(w.Role)
		if w.Role == "developer" {
			role = model.RoleSystem
		}
		msg := model.Message{
			Role:       role,
			Content:    wireText(w.Content),
			ToolCallID: w.ToolCallID,
		}
		for _, tc := range w.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: ParseToolArguments(tc.Function.Arguments),
			})
		}
		result = append(result, msg)
	}
	return result, nil
}

// wireText reads message content that is either a plain string or a list of
// text parts.
func wireText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "" || p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// openAIToolCalls extracts complete function calls from a completion message.
func openAIToolCalls(msg openai.ChatCompletionMessage) []model.ToolCall {
	var calls []model.ToolCall
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		calls = append(calls, model.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: ParseToolArguments(tc.Function.Arguments),
		})
	}
	return calls
}

// ToAnthropicMessages converts messages to the Messages API shape.
//
// Every system message is hoisted into the returned system blocks, in order.
// Tool results become tool_result blocks on a user turn, and adjacent
// user-side turns are merged because the API requires alternating roles.
func ToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, nil, err
	}

	var system []anthropic.TextBlockParam
	result := make([]anthropic.MessageParam, 0, len(messages))

	appendUser := func(block anthropic.ContentBlockParamUnion) {
		if n := len(result); n > 0 && result[n-1].Role == anthropic.MessageParamRoleUser {
			result[n-1].Content = append(result[n-1].Content, block)
			return
		}
		result = append(result, anthropic.NewUserMessage(block))
	}

	for i, msg := range messages {
		// Anthropic rejects empty text blocks; fail here rather than on the
		// wire.
		if msg.Content == "" && len(msg.ToolCalls) == 0 &&
			(msg.Role == model.RoleUser || msg.Role == model.RoleAssistant) {
			return nil, nil, model.NewError(model.KindInvalidRequest, IDAnthropic,
				fmt.Sprintf("message %d: %s message has no content", i, msg.Role))
		}

		switch msg.Role {
		case model.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case model.RoleUser:
			appendUser(anthropic.NewTextBlock(msg.Content))
		case model.RoleTool:
			appendUser(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return result, system, nil
}

type anthropicWireBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
}

type anthropicWireMessage struct {
	Role    string               `json:"role"`
	Content []anthropicWireBlock `json:"content"`
}

// FromAnthropicMessages is the inverse of ToAnthropicMessages. System blocks
// come first; each user-side block becomes its own message again.
func FromAnthropicMessages(params []anthropic.MessageParam, system []anthropic.TextBlockParam) ([]model.Message, error) {
	result := make([]model.Message, 0, len(params)+len(system))
	for _, block := range system {
		result = append(result, model.Message{Role: model.RoleSystem, Content: block.Text})
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var wire []anthropicWireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	for _, w := range wire {
		if w.Role == string(model.RoleAssistant) {
			msg := model.Message{Role: model.RoleAssistant}
			for _, b := range w.Content {
				switch b.Type {
				case "text":
					msg.Content += b.Text
				case "tool_use":
					args := b.Input
					if args == nil {
						args = map[string]any{}
					}
					msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
				}
			}
			result = append(result, msg)
			continue
		}
		for _, b := range w.Content {
			switch b.Type {
			case "text":
				result = append(result, model.Message{Role: model.RoleUser, Content: b.Text})
			case "tool_result":
				result = append(result, model.Message{
					Role:       model.RoleTool,
					Content:    wireText(b.Content),
					ToolCallID: b.ToolUseID,
				})
			}
		}
	}
	return result, nil
}

// anthropicToolCalls extracts tool calls from Anthropic message content.
func anthropicToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCall {
	var toolCalls []model.ToolCall
	for _, block := range content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			toolCalls = append(toolCalls, model.ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: ParseToolArguments(string(toolUse.Input)),
			})
		}
	}
	return toolCalls
}

// anthropicText concatenates the text blocks of a message.
func anthropicText(content []anthropic.ContentBlockUnion) string {
	var b strings.Builder
	for _, block := range content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// ToOllamaMessages converts messages to Ollama api.Message.
//
// Ollama has no tool call ids; a tool message is matched to its call by the
// tool name of the earlier assistant call with the same id.
func ToOllamaMessages(messages []model.Message) ([]api.Message, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, err
	}

	names := make(map[string]string)
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		if len(msg.ToolCalls) > 0 {
			result[i].ToolCalls = ToOllamaToolCalls(msg.ToolCalls)
			for _, tc := range msg.ToolCalls {
				names[tc.ID] = tc.Name
			}
		}
		if msg.Role == model.RoleTool {
			if name, ok := names[msg.ToolCallID]; ok {
				result[i].ToolName = name
			} else {
				result[i].ToolName = msg.ToolCallID
			}
		}
	}
	return result, nil
}

// FromOllamaMessages converts Ollama api.Message back to model.Message.
// Tool messages get their tool name as ToolCallID.
func FromOllamaMessages(messages []api.Message) []model.Message {
	result := make([]model.Message, len(messages))
	for i, msg := range messages {
		result[i] = model.Message{
			Role:      model.Role(msg.Role),
			Content:   msg.Content,
			ToolCalls: FromOllamaToolCalls(msg.ToolCalls),
		}
		if result[i].Role == model.RoleTool {
			result[i].ToolCallID = msg.ToolName
		}
	}
	return result
}

// FromOllamaToolCalls converts Ollama api.ToolCall to model.ToolCall.
//
// Ollama does not assign call ids, so each call gets a generated one the
// caller can echo back in its tool result.
//
// Returns nil if the input is nil or empty.
func FromOllamaToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		args := map[string]any(call.Function.Arguments)
		if args == nil {
			args = map[string]any{}
		}
		result[i] = model.ToolCall{
			ID:        "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
			Name:      call.Function.Name,
			Arguments: args,
		}
	}
	return result
}

// ToOllamaToolCalls converts model.ToolCall to Ollama api.ToolCall.
//
// Returns nil if the input is nil or empty.
func ToOllamaToolCalls(calls []model.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return result
}
