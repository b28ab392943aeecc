package model

import (
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ProviderConfig holds the settings one adapter is built from. It is owned by
// the settings collaborator and passed by value; adapters never mutate it.
type ProviderConfig struct {
	ProviderID string
	APIKey     string
	BaseURL    string
	Extra      map[string]any
}

// ExtraString returns Extra[key] as a string, or "" when absent.
func (c ProviderConfig) ExtraString(key string) string {
	if v, ok := c.Extra[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// ExtraInt returns Extra[key] as an int, accepting the numeric shapes that
// TOML, YAML and JSON decoders produce.
func (c ProviderConfig) ExtraInt(key string) (int, bool) {
	switch v := c.Extra[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Redacted returns a copy that is safe to log.
func (c ProviderConfig) Redacted() ProviderConfig {
	out := c
	out.APIKey = MaskSecret(c.APIKey)
	return out
}

// String never prints the API key in full.
func (c ProviderConfig) String() string {
	return fmt.Sprintf("{provider=%s base_url=%s api_key=%s}", c.ProviderID, c.BaseURL, MaskSecret(c.APIKey))
}

// MaskSecret keeps at most the last four characters of a secret.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return "****" + secret[len(secret)-4:]
	}
}

// Sampling carries the optional generation parameters of a request.
type Sampling struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// ParseSampling converts the loosely typed mapping form into Sampling.
// Unknown keys are ignored.
func ParseSampling(params map[string]any) (Sampling, error) {
	var s Sampling
	for key, raw := range params {
		switch key {
		case "temperature":
			f, ok := toFloat(raw)
			if !ok {
				return Sampling{}, NewError(KindInvalidRequest, "", "temperature must be a number")
			}
			s.Temperature = &f
		case "top_p":
			f, ok := toFloat(raw)
			if !ok {
				return Sampling{}, NewError(KindInvalidRequest, "", "top_p must be a number")
			}
			s.TopP = &f
		case "max_tokens":
			f, ok := toFloat(raw)
			if !ok || f < 1 {
				return Sampling{}, NewError(KindInvalidRequest, "", "max_tokens must be a positive integer")
			}
			n := int(f)
			s.MaxTokens = &n
		case "stop":
			switch v := raw.(type) {
			case string:
				s.Stop = []string{v}
			case []string:
				s.Stop = v
			case []any:
				for _, item := range v {
					str, ok := item.(string)
					if !ok {
						return Sampling{}, NewError(KindInvalidRequest, "", "stop must be a list of strings")
					}
					s.Stop = append(s.Stop, str)
				}
			default:
				return Sampling{}, NewError(KindInvalidRequest, "", "stop must be a string or list of strings")
			}
		}
	}
	return s, nil
}

// Map is the inverse of ParseSampling.
func (s Sampling) Map() map[string]any {
	m := map[string]any{}
	if s.Temperature != nil {
		m["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		m["top_p"] = *s.TopP
	}
	if s.MaxTokens != nil {
		m["max_tokens"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		m["stop"] = s.Stop
	}
	return m
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ChatOptions are the per-call options an adapter receives next to the
// message sequence.
type ChatOptions struct {
	Model    string
	Tools    []mcptypes.Tool
	Sampling Sampling
}

// Request is the unified chat request accepted by the orchestration service.
type Request struct {
	ProviderID string          `json:"provider"`
	Model      string          `json:"model,omitempty"`
	Messages   []Message       `json:"messages"`
	Stream     bool            `json:"stream,omitempty"`
	Tools      []mcptypes.Tool `json:"tools,omitempty"`
	Sampling   Sampling        `json:"sampling,omitempty"`
}

// Options returns the adapter-facing part of the request.
func (r Request) Options() ChatOptions {
	return ChatOptions{
		Model:    r.Model,
		Tools:    r.Tools,
		Sampling: r.Sampling,
	}
}

// FinishReason is why the model stopped generating.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// Usage reports token consumption. Build it with NewUsage so the total is
// always the sum of its parts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage returns a Usage whose TotalTokens is prompt + completion.
func NewUsage(prompt, completion int) *Usage {
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Response is the unified, fully materialized result of a chat call.
type Response struct {
	Content      string       `json:"content"`
	Model        string       `json:"model"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
}

// Normalize enforces the response invariants: a tool_calls finish reason
// implies at least one tool call, and tool calls imply that reason unless
// the model was cut off.
func (r *Response) Normalize() {
	switch {
	case r.FinishReason == FinishToolCalls && len(r.ToolCalls) == 0:
		r.FinishReason = FinishStop
	case len(r.ToolCalls) > 0 && (r.FinishReason == FinishStop || r.FinishReason == ""):
		r.FinishReason = FinishToolCalls
	case r.FinishReason == "":
		r.FinishReason = FinishStop
	}
	if r.Usage != nil {
		r.Usage = NewUsage(r.Usage.PromptTokens, r.Usage.CompletionTokens)
	}
}

// Capabilities is the static or near-static description of what a provider
// supports.
type Capabilities struct {
	SupportsStreaming bool     `json:"supports_streaming"`
	SupportsTools     bool     `json:"supports_tools"`
	MaxContextTokens  int      `json:"max_context_tokens"`
	SupportedModels   []string `json:"supported_models"`
}
