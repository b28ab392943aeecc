package model

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// Message represents a chat message in the conversation.
//
// Order within a conversation is significant. Role sequencing is not
// validated here; vendors may reject sequences they do not accept.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model. The core never
// executes it; the caller runs the tool and answers with a ToolResult.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the caller's answer to a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
}

// Message returns the tool-role message that carries r back to the model.
func (r ToolResult) Message() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Result,
		ToolCallID: r.ToolCallID,
	}
}

// ValidateMessages checks the structural rules every adapter enforces before
// any network call: the sequence is non-empty and every role is known.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return NewError(KindInvalidRequest, "", "messages must not be empty")
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return NewError(KindInvalidRequest, "", fmt.Sprintf("message %d has unknown role %q", i, msg.Role))
		}
		if msg.Role == RoleTool && msg.ToolCallID == "" {
			return NewError(KindInvalidRequest, "", fmt.Sprintf("message %d: tool message requires tool_call_id", i))
		}
	}
	return nil
}

// ProviderStatus is the derived health view of one provider. It is recomputed
// on demand and never persisted by the core.
type ProviderStatus struct {
	ProviderID      string    `json:"provider"`
	Configured      bool      `json:"configured"`
	Healthy         bool      `json:"healthy"`
	AvailableModels []string  `json:"available_models"`
	Error           string    `json:"error,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}
