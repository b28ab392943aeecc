package provider

import (
	"mcpchat/model"
	"strings"
)

// OpenRouterProvider connects to OpenRouter's API, which is OpenAI-compatible.
// Only tool naming differs from the OpenAI adapter.
type OpenRouterProvider struct {
	*OpenAIProvider
}

// NewOpenRouterProvider creates an OpenRouter adapter.
//
// Config:
//   - APIKey: required
//   - BaseURL: defaults to "https://openrouter.ai/api/v1"
//   - Extra["app_name"], Extra["app_url"]: optional attribution headers
func NewOpenRouterProvider(cfg model.ProviderConfig) (*OpenRouterProvider, error) {
	headers := map[string]string{}
	if name := cfg.ExtraString("app_name"); name != "" {
		headers["X-Title"] = name
	}
	if u := cfg.ExtraString("app_url"); u != "" {
		headers["HTTP-Referer"] = u
	}

	base, err := newOpenAICompatible(cfg, openAIVariant{
		id:            IDOpenRouter,
		baseURL:       DefaultOpenRouterURL,
		defaultModel:  DefaultOpenRouterModel,
		models:        openRouterModels,
		contextTokens: openRouterContextTokens,
		headers:       headers,
	})
	if err != nil {
		return nil, err
	}
	base.toolNameOut = toOpenRouterToolName
	base.toolNameIn = fromOpenRouterToolName
	return &OpenRouterProvider{OpenAIProvider: base}, nil
}

// toOpenRouterToolName converts tool names from dotted notation to underscore notation.
// OpenRouter API requires tool names matching ^[a-zA-Z0-9_-]{1,64}$ (no dots allowed).
// Example: "filesystem.read_file" → "filesystem__read_file"
func toOpenRouterToolName(name string) string {
	return strings.ReplaceAll(name, ".", "__")
}

// fromOpenRouterToolName reverses toOpenRouterToolName.
// Example: "filesystem__read_file" → "filesystem.read_file"
func fromOpenRouterToolName(name string) string {
	return strings.ReplaceAll(name, "__", ".")
}
