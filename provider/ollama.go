package provider

import (
	"context"
	"io"
	"mcpchat/config"
	"mcpchat/mcp"
	"mcpchat/model"
	"mcpchat/ollama"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaProvider wraps ollama.Client to implement model.Provider.
//
// This adapter is a thin wrapper around the existing ollama.Client, handling
// type conversions between the provider-agnostic types and Ollama API types.
// Ollama needs no API key.
type OllamaProvider struct {
	cfg    model.ProviderConfig
	client *ollama.Client
	models *modelCache
	health healthState
}

// NewOllamaProvider creates a new Ollama provider instance.
//
// Config:
//   - BaseURL: Ollama server URL (default: "http://localhost:11434")
//   - Extra["default_model"]: model used when a request names none
//   - Extra["num_ctx"]: context window reported by Capabilities
//
// Returns a *model.Error of KindConfig if the URL is malformed.
func NewOllamaProvider(cfg model.ProviderConfig) (*OllamaProvider, error) {
	cfg = withDefaults(cfg, DefaultOllamaURL)
	p := &OllamaProvider{
		cfg:    cfg,
		models: newModelCache(nil),
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	client, err := ollama.NewClient(cfg.BaseURL, newHTTPClient())
	if err != nil {
		return nil, model.WrapError(model.KindConfig, IDOllama, err, "invalid base_url")
	}
	p.client = client

	if config.Debug {
		config.DebugLog.Printf("[Provider] Created ollama adapter: %s", cfg)
	}
	return p, nil
}

func (p *OllamaProvider) ID() string { return IDOllama }

// ValidateConfig implements model.Provider.
func (p *OllamaProvider) ValidateConfig() error {
	return validateBaseURL(IDOllama, p.cfg.BaseURL)
}

// NormalizeMessages implements model.Provider. The result is []api.Message.
func (p *OllamaProvider) NormalizeMessages(messages []model.Message) (any, error) {
	msgs, err := ToOllamaMessages(messages)
	if err != nil {
		return nil, withProvider(err, IDOllama)
	}
	return msgs, nil
}

func (p *OllamaProvider) buildRequest(messages []model.Message, opts model.ChatOptions, stream bool) (ollama.ChatRequest, error) {
	msgs, err := ToOllamaMessages(messages)
	if err != nil {
		return ollama.ChatRequest{}, withProvider(err, IDOllama)
	}

	req := ollama.ChatRequest{
		Model:    resolveModel(opts.Model, p.cfg, DefaultOllamaModel),
		Messages: msgs,
		Stream:   stream,
		Options:  ollamaOptions(opts.Sampling),
	}
	if len(opts.Tools) > 0 {
		// Ollama rejects the whole request when the model cannot take tools.
		if supported, known := ollama.KnownToolSupport(req.Model); known && !supported {
			if config.Debug {
				config.DebugLog.Printf("[Provider] ollama model %s does not support tools, sending without them", req.Model)
			}
		} else {
			req.Tools = mcp.ToOllamaTools(opts.Tools)
		}
	}
	return req, nil
}

func ollamaOptions(s model.Sampling) map[string]any {
	opts := map[string]any{}
	if s.Temperature != nil {
		opts["temperature"] = *s.Temperature
	}
	if s.TopP != nil {
		opts["top_p"] = *s.TopP
	}
	if s.MaxTokens != nil {
		opts["num_predict"] = *s.MaxTokens
	}
	if len(s.Stop) > 0 {
		opts["stop"] = s.Stop
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// Chat implements model.Provider.
func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	req, err := p.buildRequest(messages, opts, false)
	if err != nil {
		return nil, err
	}

	var (
		final   api.ChatResponse
		content strings.Builder
		calls   []api.ToolCall
	)
	err = p.client.Chat(ctx, req, func(r api.ChatResponse) error {
		content.WriteString(r.Message.Content)
		calls = append(calls, r.Message.ToolCalls...)
		if r.Done {
			final = r
		}
		return nil
	})
	if err != nil {
		return nil, classifyOllama(IDOllama, err)
	}
	if !final.Done {
		return nil, model.NewError(model.KindProviderUnavailable, IDOllama, "response ended before completion")
	}

	resp := &model.Response{
		Content:      content.String(),
		Model:        final.Model,
		FinishReason: mapOllamaFinish(final.DoneReason),
		Usage:        ollamaUsage(final),
		ToolCalls:    FromOllamaToolCalls(calls),
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	resp.Normalize()
	return resp, nil
}

// ChatStream implements model.Provider.
//
// The Ollama client pushes responses into a callback. The callback hands
// each response over an unbuffered channel, so the HTTP body is only read
// as fast as the consumer pulls.
func (p *OllamaProvider) ChatStream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
	req, err := p.buildRequest(messages, opts, true)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	src := &ollamaSource{
		responses: make(chan api.ChatResponse),
		errc:      make(chan error, 1),
	}
	go func() {
		err := p.client.Chat(streamCtx, req, func(r api.ChatResponse) error {
			select {
			case src.responses <- r:
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		})
		src.errc <- err
		close(src.responses)
	}()

	return newDeltaStream(streamCtx, cancel, IDOllama, req.Model, src, classifyOllama), nil
}

type ollamaSource struct {
	responses chan api.ChatResponse
	errc      chan error
}

func (s *ollamaSource) next() (chunk, error) {
	r, ok := <-s.responses
	if !ok {
		if err := <-s.errc; err != nil {
			return chunk{}, err
		}
		return chunk{}, io.EOF
	}

	c := chunk{
		content:   r.Message.Content,
		model:     r.Model,
		toolCalls: FromOllamaToolCalls(r.Message.ToolCalls),
	}
	if r.Done {
		c.finish = mapOllamaFinish(r.DoneReason)
		c.usage = ollamaUsage(r)
	}
	return c, nil
}

// close is a no-op: the producer goroutine exits when the stream context is
// cancelled, which closes the response body.
func (s *ollamaSource) close() error { return nil }

func ollamaUsage(r api.ChatResponse) *model.Usage {
	if r.PromptEvalCount == 0 && r.EvalCount == 0 {
		return nil
	}
	return model.NewUsage(r.PromptEvalCount, r.EvalCount)
}

// mapOllamaFinish maps done_reason. Tool calls are detected from the
// message itself when the response is normalized.
func mapOllamaFinish(reason string) model.FinishReason {
	if reason == "length" {
		return model.FinishLength
	}
	return model.FinishStop
}

func (p *OllamaProvider) listModels(ctx context.Context) ([]string, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOllama(IDOllama, err)
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
	}
	return names, nil
}

// HealthCheck implements model.Provider by listing local models.
func (p *OllamaProvider) HealthCheck(ctx context.Context) bool {
	return p.health.probe(ctx, IDOllama, func(ctx context.Context) error {
		names, err := p.listModels(ctx)
		if err != nil {
			return err
		}
		p.models.store(names)
		return nil
	})
}

func (p *OllamaProvider) LastError() string { return p.health.LastError() }

// Capabilities implements model.Provider. Tool support depends on the model;
// the adapter accepts tools and drops them for families known to reject them.
func (p *OllamaProvider) Capabilities(ctx context.Context) model.Capabilities {
	contextTokens := ollamaContextTokens
	if n, ok := p.cfg.ExtraInt("num_ctx"); ok && n > 0 {
		contextTokens = n
	}
	return model.Capabilities{
		SupportsStreaming: true,
		SupportsTools:     true,
		MaxContextTokens:  contextTokens,
		SupportedModels:   p.models.get(ctx, p.listModels),
	}
}

// Close implements model.Provider.
func (p *OllamaProvider) Close() error {
	p.client.Close()
	return nil
}
