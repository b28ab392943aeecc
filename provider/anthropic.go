package provider

import (
	"context"
	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/model"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements model.Provider using Anthropic's official Go SDK.
type AnthropicProvider struct {
	cfg        model.ProviderConfig
	client     anthropic.Client
	httpClient *http.Client
	models     *modelCache
	health     healthState
	checkModel func(string) error
}

// NewAnthropicProvider creates an Anthropic adapter.
//
// Config:
//   - APIKey: required
//   - BaseURL: defaults to "https://api.anthropic.com"
//   - Extra["default_model"]: model used when a request names none
//   - Extra["max_tokens"]: default completion budget (default 4096)
//   - Extra["max_retries"]: SDK retries for retryable failures (default 2)
func NewAnthropicProvider(cfg model.ProviderConfig) (*AnthropicProvider, error) {
	cfg = withDefaults(cfg, DefaultAnthropicURL)
	p := &AnthropicProvider{
		cfg:        cfg,
		models:     newModelCache(anthropicModels),
		checkModel: requirePrefix(IDAnthropic, "claude-"),
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	p.httpClient = newHTTPClient()
	p.client = anthropic.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(maxRetries(cfg)),
	)

	if config.Debug {
		config.DebugLog.Printf("[Provider] Created anthropic adapter: %s", cfg)
	}
	return p, nil
}

func (p *AnthropicProvider) ID() string { return IDAnthropic }

// ValidateConfig implements model.Provider.
func (p *AnthropicProvider) ValidateConfig() error {
	return validateRemote(IDAnthropic, p.cfg)
}

// NormalizeMessages implements model.Provider. The result is an
// AnthropicPayload.
func (p *AnthropicProvider) NormalizeMessages(messages []model.Message) (any, error) {
	msgs, system, err := ToAnthropicMessages(messages)
	if err != nil {
		return nil, withProvider(err, IDAnthropic)
	}
	return AnthropicPayload{Messages: msgs, System: system}, nil
}

// AnthropicPayload is the normalized form of a conversation: the system
// prompt travels separately from the turns.
type AnthropicPayload struct {
	Messages []anthropic.MessageParam
	System   []anthropic.TextBlockParam
}

func (p *AnthropicProvider) buildParams(messages []model.Message, opts model.ChatOptions) (anthropic.MessageNewParams, error) {
	msgs, system, err := ToAnthropicMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, withProvider(err, IDAnthropic)
	}

	modelName := resolveModel(opts.Model, p.cfg, DefaultAnthropicModel)
	if err := p.checkModel(modelName); err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := DefaultAnthropicMaxTokens
	if n, ok := p.cfg.ExtraInt("max_tokens"); ok && n > 0 {
		maxTokens = n
	}
	if opts.Sampling.MaxTokens != nil {
		maxTokens = *opts.Sampling.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(opts.Tools) > 0 {
		params.Tools = mcp.ToAnthropicTools(opts.Tools)
	}
	if t := opts.Sampling.Temperature; t != nil {
		params.Temperature = anthropic.Float(*t)
	}
	if tp := opts.Sampling.TopP; tp != nil {
		params.TopP = anthropic.Float(*tp)
	}
	if len(opts.Sampling.Stop) > 0 {
		params.StopSequences = opts.Sampling.Stop
	}
	return params, nil
}

// Chat implements model.Provider.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropic(IDAnthropic, err)
	}

	resp := &model.Response{
		Content:      anthropicText(msg.Content),
		Model:        string(msg.Model),
		FinishReason: mapAnthropicFinish(string(msg.StopReason)),
		Usage:        anthropicUsage(msg.Usage),
		ToolCalls:    anthropicToolCalls(msg.Content),
	}
	if resp.Model == "" {
		resp.Model = string(params.Model)
	}
	resp.Normalize()
	return resp, nil
}

// ChatStream implements model.Provider. Events are folded into one message
// with the SDK accumulator; tool calls, stop reason and usage are read from
// it once the event stream ends.
func (p *AnthropicProvider) ChatStream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := p.client.Messages.NewStreaming(streamCtx, params)
	msg := anthropic.Message{}

	src := &sdkSource[anthropic.MessageStreamEventUnion]{
		stream: stream,
		onEvent: func(event anthropic.MessageStreamEventUnion) (chunk, error) {
			if err := msg.Accumulate(event); err != nil {
				return chunk{}, model.WrapError(model.KindProviderUnavailable, IDAnthropic, err, "malformed stream event")
			}
			switch ev := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				return chunk{model: string(ev.Message.Model)}, nil
			case anthropic.ContentBlockDeltaEvent:
				if text, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
					return chunk{content: text.Text}, nil
				}
			}
			return chunk{}, nil
		},
		flush: func() (chunk, bool) {
			return chunk{
				finish:    mapAnthropicFinish(string(msg.StopReason)),
				usage:     anthropicUsage(msg.Usage),
				toolCalls: anthropicToolCalls(msg.Content),
			}, true
		},
	}
	return newDeltaStream(streamCtx, cancel, IDAnthropic, string(params.Model), src, classifyAnthropic), nil
}

func anthropicUsage(u anthropic.Usage) *model.Usage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return nil
	}
	return model.NewUsage(int(u.InputTokens), int(u.OutputTokens))
}

// mapAnthropicFinish maps Anthropic stop reasons.
func mapAnthropicFinish(reason string) model.FinishReason {
	switch reason {
	case "":
		return ""
	case "max_tokens":
		return model.FinishLength
	case "tool_use":
		return model.FinishToolCalls
	default:
		// end_turn, stop_sequence, pause_turn, refusal
		return model.FinishStop
	}
}

func (p *AnthropicProvider) listModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, classifyAnthropic(IDAnthropic, err)
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// HealthCheck implements model.Provider. Anthropic has no ping endpoint, so
// the models list is used; it needs a valid key but costs no tokens.
func (p *AnthropicProvider) HealthCheck(ctx context.Context) bool {
	return p.health.probe(ctx, IDAnthropic, func(ctx context.Context) error {
		ids, err := p.listModels(ctx)
		if err != nil {
			return err
		}
		p.models.store(ids)
		return nil
	})
}

func (p *AnthropicProvider) LastError() string { return p.health.LastError() }

// Capabilities implements model.Provider.
func (p *AnthropicProvider) Capabilities(ctx context.Context) model.Capabilities {
	return model.Capabilities{
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxContextTokens:  anthropicContextTokens,
		SupportedModels:   p.models.get(ctx, p.listModels),
	}
}

// Close implements model.Provider.
func (p *AnthropicProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
