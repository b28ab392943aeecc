package model

import "context"

// Provider abstracts LLM vendor adapters (OpenAI, Anthropic, Ollama, ...)
// behind provider-agnostic types.
//
// This interface lives in the model package (not provider) so the chat and
// health packages can depend on it without importing vendor SDKs.
//
// Implementations must be safe for concurrent use: the only state an adapter
// owns is its immutable config, its HTTP client and small caches.
type Provider interface {
	// ID returns the provider identifier (e.g. "openai").
	ID() string

	// ValidateConfig reports a *Error of KindConfig when required settings
	// are missing or malformed. Constructors call it before returning.
	ValidateConfig() error

	// Chat sends messages and returns the fully materialized response.
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*Response, error)

	// ChatStream sends messages and returns a pull-based delta stream.
	ChatStream(ctx context.Context, messages []Message, opts ChatOptions) (Stream, error)

	// NormalizeMessages converts messages into the vendor wire shape without
	// any I/O.
	NormalizeMessages(messages []Message) (any, error)

	// HealthCheck performs a minimal call and reports whether the provider is
	// reachable and authenticated. It never panics; the failure cause is
	// available from LastError.
	HealthCheck(ctx context.Context) bool

	// LastError returns the error captured by the most recent HealthCheck.
	LastError() string

	// Capabilities describes the provider. Static parts need no network;
	// SupportedModels may come from one cached list call, which is skipped
	// when ctx is already done.
	Capabilities(ctx context.Context) Capabilities

	// Close releases idle connections held by the adapter.
	Close() error
}

// Delta is one event of a streamed response. Content deltas arrive in
// generation order; the last event has Done set and carries FinishReason,
// Usage and any complete tool calls.
type Delta struct {
	Content      string       `json:"content,omitempty"`
	Done         bool         `json:"done,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
}

// Stream is a finite, non-restartable sequence of deltas. The consumer pulls
// with Next; the adapter only reads from the network when pulled. Close may
// be called at any time and releases the underlying connection.
//
//	for s.Next() {
//	    d := s.Current()
//	    fmt.Print(d.Content)
//	}
//	if err := s.Err(); err != nil {
//	    // handle
//	}
type Stream interface {
	Next() bool
	Current() Delta
	Err() error
	Close() error
	// Response returns everything accumulated so far.
	Response() *Response
}
