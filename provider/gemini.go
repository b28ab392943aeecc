package provider

import (
	"mcpchat/model"
)

// GeminiProvider talks to Google's OpenAI-compatible Gemini endpoint. It is
// the OpenAI adapter with a different base URL and a model family check.
type GeminiProvider struct {
	*OpenAIProvider
}

// NewGeminiProvider creates a Gemini adapter.
//
// Config:
//   - APIKey: required (Google AI Studio key)
//   - BaseURL: defaults to "https://generativelanguage.googleapis.com/v1beta/openai/"
//
// Requests for models that do not start with "gemini-" fail with an
// invalid_request error before any network call.
func NewGeminiProvider(cfg model.ProviderConfig) (*GeminiProvider, error) {
	base, err := newOpenAICompatible(cfg, openAIVariant{
		id:            IDGemini,
		baseURL:       DefaultGeminiURL,
		defaultModel:  DefaultGeminiModel,
		models:        geminiModels,
		contextTokens: geminiContextTokens,
	})
	if err != nil {
		return nil, err
	}
	base.checkModel = requirePrefix(IDGemini, "gemini-")
	return &GeminiProvider{OpenAIProvider: base}, nil
}
