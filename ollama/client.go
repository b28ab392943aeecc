package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// Client wraps the Ollama API client with the settings mcpchat needs. It
// holds no per-conversation state; the model travels with each request.
type Client struct {
	client     *api.Client
	httpClient *http.Client
	baseURL    string
}

// ResponseFunc receives each response of a chat call. Returning an error
// stops the call.
type ResponseFunc func(resp api.ChatResponse) error

// ChatRequest is one chat call. Options holds Ollama model options such as
// temperature or num_predict.
type ChatRequest struct {
	Model    string
	Messages []api.Message
	Tools    []api.Tool
	Stream   bool
	Options  map[string]any
}

// NewClient creates a client for the Ollama server at baseURL. A nil
// httpClient uses a private connection pool.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid Ollama URL %q: want http(s)://host[:port]", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		client:     api.NewClient(u, httpClient),
		httpClient: httpClient,
		baseURL:    baseURL,
	}, nil
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends a chat request. fn is called once per response when streaming
// and once in total otherwise.
func (c *Client) Chat(ctx context.Context, req ChatRequest, fn ResponseFunc) error {
	if fn == nil {
		fn = func(api.ChatResponse) error { return nil }
	}
	stream := req.Stream
	return c.client.Chat(ctx, &api.ChatRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Tools:    req.Tools,
		Stream:   &stream,
		Options:  req.Options,
	}, api.ChatResponseFunc(fn))
}

// ModelInfo is one locally installed model.
type ModelInfo struct {
	Name string
	Size int64
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	out := make([]ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, ModelInfo{Name: m.Name, Size: m.Size})
	}
	return out, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// toolFamilies records which model families accept tool definitions.
// Order matters: the first matching prefix wins, so "llama3.1" must come
// before "llama3".
var toolFamilies = []struct {
	prefix string
	tools  bool
}{
	{"llama3.3", true},
	{"llama3.2", true},
	{"llama3.1", true},
	{"llama3-gradient", false},
	{"llama3", false},
	{"codellama", false},
	{"qwen", true},
	{"mistral", true},
	{"command-r", true},
	{"nemotron", true},
	{"granite3", true},
	{"deepseek", false},
	{"phi", false},
	{"gemma", false},
}

// KnownToolSupport reports whether a model family is known to support (true)
// or known to reject (false) tool definitions. known is false for families
// not on the list.
func KnownToolSupport(modelName string) (supported, known bool) {
	name := strings.ToLower(modelName)
	for _, f := range toolFamilies {
		if strings.HasPrefix(name, f.prefix) {
			return f.tools, true
		}
	}
	return false, false
}
