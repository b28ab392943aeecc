package provider

import (
	"context"
	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/model"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openAIVariant describes one OpenAI-compatible endpoint.
type openAIVariant struct {
	id            string
	baseURL       string
	defaultModel  string
	models        []string
	contextTokens int
	headers       map[string]string
}

// OpenAIProvider implements model.Provider using OpenAI's official Go SDK.
// The Gemini and OpenRouter adapters embed it and only change the endpoint,
// the model rules and tool naming.
type OpenAIProvider struct {
	id            string
	cfg           model.ProviderConfig
	client        openai.Client
	httpClient    *http.Client
	defaultModel  string
	contextTokens int
	models        *modelCache
	health        healthState

	// checkModel rejects models the endpoint does not serve.
	checkModel func(string) error
	// toolNameOut and toolNameIn rewrite tool names for vendors with
	// stricter naming rules. Both default to the identity.
	toolNameOut func(string) string
	toolNameIn  func(string) string
}

// NewOpenAIProvider creates an OpenAI adapter.
//
// Config:
//   - APIKey: required
//   - BaseURL: defaults to "https://api.openai.com/v1"
//   - Extra["default_model"]: model used when a request names none
//   - Extra["max_retries"]: SDK retries for retryable failures (default 2)
//
// Returns a *model.Error of KindConfig when the settings are invalid.
func NewOpenAIProvider(cfg model.ProviderConfig) (*OpenAIProvider, error) {
	return newOpenAICompatible(cfg, openAIVariant{
		id:            IDOpenAI,
		baseURL:       DefaultOpenAIURL,
		defaultModel:  DefaultOpenAIModel,
		models:        openAIModels,
		contextTokens: openAIContextTokens,
	})
}

func newOpenAICompatible(cfg model.ProviderConfig, v openAIVariant) (*OpenAIProvider, error) {
	cfg = withDefaults(cfg, v.baseURL)
	p := &OpenAIProvider{
		id:            v.id,
		cfg:           cfg,
		defaultModel:  v.defaultModel,
		contextTokens: v.contextTokens,
		models:        newModelCache(v.models),
		toolNameOut:   identity,
		toolNameIn:    identity,
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	p.httpClient = newHTTPClient()
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(maxRetries(cfg)),
	}
	for k, val := range v.headers {
		opts = append(opts, option.WithHeader(k, val))
	}
	p.client = openai.NewClient(opts...)

	if config.Debug {
		config.DebugLog.Printf("[Provider] Created %s adapter: %s", v.id, cfg)
	}
	return p, nil
}

func identity(s string) string { return s }

func (p *OpenAIProvider) ID() string { return p.id }

// ValidateConfig implements model.Provider.
func (p *OpenAIProvider) ValidateConfig() error {
	return validateRemote(p.id, p.cfg)
}

// NormalizeMessages implements model.Provider. The result is
// []openai.ChatCompletionMessageParamUnion.
func (p *OpenAIProvider) NormalizeMessages(messages []model.Message) (any, error) {
	msgs, err := ToOpenAIMessages(p.renameOutgoing(messages))
	if err != nil {
		return nil, withProvider(err, p.id)
	}
	return msgs, nil
}

// renameOutgoing applies toolNameOut to replayed assistant tool calls.
func (p *OpenAIProvider) renameOutgoing(messages []model.Message) []model.Message {
	if p.toolNameOut == nil {
		return messages
	}
	out := make([]model.Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if len(msg.ToolCalls) == 0 {
			continue
		}
		out[i].ToolCalls = make([]model.ToolCall, len(msg.ToolCalls))
		for j, tc := range msg.ToolCalls {
			tc.Name = p.toolNameOut(tc.Name)
			out[i].ToolCalls[j] = tc
		}
	}
	return out
}

func (p *OpenAIProvider) renameIncoming(calls []model.ToolCall) []model.ToolCall {
	for i := range calls {
		calls[i].Name = p.toolNameIn(calls[i].Name)
	}
	return calls
}

func (p *OpenAIProvider) buildParams(messages []model.Message, opts model.ChatOptions) (openai.ChatCompletionNewParams, error) {
	msgs, err := ToOpenAIMessages(p.renameOutgoing(messages))
	if err != nil {
		return openai.ChatCompletionNewParams{}, withProvider(err, p.id)
	}

	modelName := resolveModel(opts.Model, p.cfg, p.defaultModel)
	if p.checkModel != nil {
		if err := p.checkModel(modelName); err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    openai.ChatModel(modelName),
	}
	if len(opts.Tools) > 0 {
		params.Tools = mcp.ToOpenAITools(opts.Tools, p.toolNameOut)
	}

	s := opts.Sampling
	if s.Temperature != nil {
		params.Temperature = openai.Float(*s.Temperature)
	}
	if s.TopP != nil {
		params.TopP = openai.Float(*s.TopP)
	}
	if s.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*s.MaxTokens))
	}
	if len(s.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: s.Stop}
	}
	return params, nil
}

// Chat implements model.Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAI(p.id, err)
	}
	if len(completion.Choices) == 0 {
		return nil, model.NewError(model.KindProviderUnavailable, p.id, "response contained no choices")
	}

	choice := completion.Choices[0]
	resp := &model.Response{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		FinishReason: mapOpenAIFinish(string(choice.FinishReason)),
		ToolCalls:    p.renameIncoming(openAIToolCalls(choice.Message)),
		Usage:        openAIUsage(completion.Usage),
	}
	if resp.Model == "" {
		resp.Model = string(params.Model)
	}
	resp.Normalize()
	return resp, nil
}

// ChatStream implements model.Provider. Usage is requested through
// stream_options.include_usage and tool calls are assembled by the SDK
// accumulator, so both arrive on the terminal delta.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := p.client.Chat.Completions.NewStreaming(streamCtx, params)
	acc := openai.ChatCompletionAccumulator{}

	src := &sdkSource[openai.ChatCompletionChunk]{
		stream: stream,
		onEvent: func(c openai.ChatCompletionChunk) (chunk, error) {
			acc.AddChunk(c)
			out := chunk{model: c.Model, usage: openAIUsage(c.Usage)}
			if len(c.Choices) > 0 {
				out.content = c.Choices[0].Delta.Content
				if fr := string(c.Choices[0].FinishReason); fr != "" {
					out.finish = mapOpenAIFinish(fr)
				}
			}
			return out, nil
		},
		flush: func() (chunk, bool) {
			if len(acc.Choices) == 0 {
				return chunk{}, false
			}
			calls := p.renameIncoming(openAIToolCalls(acc.Choices[0].Message))
			return chunk{toolCalls: calls}, len(calls) > 0
		},
	}
	return newDeltaStream(streamCtx, cancel, p.id, string(params.Model), src, classifyOpenAI), nil
}

func openAIUsage(u openai.CompletionUsage) *model.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	return model.NewUsage(int(u.PromptTokens), int(u.CompletionTokens))
}

// mapOpenAIFinish maps OpenAI finish reasons. A content filter stop is
// reported as a normal stop; the partial content is still returned.
func mapOpenAIFinish(reason string) model.FinishReason {
	switch reason {
	case "":
		return ""
	case "length":
		return model.FinishLength
	case "tool_calls", "function_call":
		return model.FinishToolCalls
	default:
		return model.FinishStop
	}
}

func (p *OpenAIProvider) listModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, classifyOpenAI(p.id, err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, strings.TrimPrefix(m.ID, "models/"))
	}
	return ids, nil
}

// HealthCheck implements model.Provider with a list-models call, which
// needs valid credentials but generates no tokens.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	return p.health.probe(ctx, p.id, func(ctx context.Context) error {
		ids, err := p.listModels(ctx)
		if err != nil {
			return err
		}
		p.models.store(ids)
		return nil
	})
}

func (p *OpenAIProvider) LastError() string { return p.health.LastError() }

// Capabilities implements model.Provider.
func (p *OpenAIProvider) Capabilities(ctx context.Context) model.Capabilities {
	return model.Capabilities{
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxContextTokens:  p.contextTokens,
		SupportedModels:   p.models.get(ctx, p.listModels),
	}
}

// Close implements model.Provider.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
