// Package provider adapts LLM vendors to the provider-agnostic types in the
// model package.
//
// mcpchat talks to several vendors (OpenAI, Anthropic, Ollama, and the
// OpenAI-compatible Gemini and OpenRouter endpoints) through the common
// model.Provider interface. Everything vendor specific stays in this package:
// SDK clients, message and tool conversions, finish-reason mapping and the
// translation of vendor failures into *model.Error.
//
// # Type Conversions
//
// Message conversions are pure functions and are exported so they can be
// tested without a network:
//   - ToOpenAIMessages / FromOpenAIMessages
//   - ToAnthropicMessages / FromAnthropicMessages
//   - ToOllamaMessages / FromOllamaMessages
//
// # Architecture
//
//   - model.Provider defines the contract
//   - OpenAIProvider, AnthropicProvider and OllamaProvider implement it
//   - GeminiProvider and OpenRouterProvider embed OpenAIProvider
//   - Registry builds adapters by id and owns the live instances
//
// # Usage
//
//	reg := provider.NewDefaultRegistry()
//	p, err := reg.Configure(model.ProviderConfig{
//	    ProviderID: provider.IDOllama,
//	    BaseURL:    "http://localhost:11434",
//	})
//	if err != nil {
//	    // handle error
//	}
//	stream, err := p.ChatStream(ctx, messages, model.ChatOptions{Model: "llama3.1"})
package provider

// Note: The Provider and Stream interfaces are defined in the model package
// (model/provider.go) to avoid import cycles. This package implements them.

// Provider identifiers.
const (
	IDOpenAI     = "openai"
	IDAnthropic  = "anthropic"
	IDOllama     = "ollama"
	IDGemini     = "gemini"
	IDOpenRouter = "openrouter"
)

// Default endpoints used when a ProviderConfig has no base URL.
const (
	DefaultOpenAIURL     = "https://api.openai.com/v1"
	DefaultAnthropicURL  = "https://api.anthropic.com"
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultGeminiURL     = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"
)

// Default models used when neither the request nor Extra["default_model"]
// names one.
const (
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultAnthropicModel  = "claude-sonnet-4-5-20250929"
	DefaultOllamaModel     = "llama3.1"
	DefaultGeminiModel     = "gemini-2.0-flash"
	DefaultOpenRouterModel = "openai/gpt-4o-mini"
)

// DefaultAnthropicMaxTokens is sent when the request sets no max_tokens; the
// Messages API requires the field.
const DefaultAnthropicMaxTokens = 4096

// Static model lists reported when the list-models call fails.
var (
	openAIModels = []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "o3-mini"}

	anthropicModels = []string{
		"claude-sonnet-4-5-20250929",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}

	geminiModels = []string{"gemini-2.0-flash", "gemini-1.5-pro", "gemini-1.5-flash"}

	openRouterModels = []string{"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet", "google/gemini-2.0-flash-001"}
)

// Context windows reported by Capabilities.
const (
	openAIContextTokens     = 128000
	anthropicContextTokens  = 200000
	ollamaContextTokens     = 8192
	geminiContextTokens     = 1048576
	openRouterContextTokens = 128000
)
