package testutil

import (
	"mcpchat/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// TestMessages returns a sample conversation for testing
func TestMessages() []model.Message {
	return []model.Message{
		{
			Role:    model.RoleUser,
			Content: "Hello, how are you?",
		},
		{
			Role:    model.RoleAssistant,
			Content: "I'm doing well, thank you!",
		},
		{
			Role:    model.RoleUser,
			Content: "Can you help me with a task?",
		},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{
			Role:    model.RoleUser,
			Content: content,
		},
	}
}

// TestMCPTools returns sample MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}

// EmptyMessages returns an empty message slice for edge case testing
func EmptyMessages() []model.Message {
	return []model.Message{}
}

// SystemMessage returns a system message for testing
func SystemMessage(content string) model.Message {
	return model.Message{
		Role:    model.RoleSystem,
		Content: content,
	}
}

// ToolConversation returns a conversation where the assistant called a tool
// and the caller answered it.
func ToolConversation() []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: "You are a helpful assistant."},
		{Role: model.RoleUser, Content: "What's the weather in Paris?"},
		{
			Role: model.RoleAssistant,
			ToolCalls: []model.ToolCall{{
				ID:        "call_1",
				Name:      "get_weather",
				Arguments: map[string]any{"location": "Paris"},
			}},
		},
		model.ToolResult{ToolCallID: "call_1", Result: "18C and cloudy"}.Message(),
	}
}

// ProviderConfig returns settings pointing an adapter at baseURL with
// retries disabled, so tests see the first vendor error.
func ProviderConfig(id, baseURL string) model.ProviderConfig {
	return model.ProviderConfig{
		ProviderID: id,
		APIKey:     "sk-test-0123456789abcdef",
		BaseURL:    baseURL,
		Extra:      map[string]any{"max_retries": 0},
	}
}
