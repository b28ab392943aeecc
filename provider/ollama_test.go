package provider

import (
	"context"
	"errors"
	"fmt"
	"mcpchat/model"
	"mcpchat/provider/testutil"
	"net/http"
	"strings"
	"testing"
)

func newTestOllama(t *testing.T, url string) *OllamaProvider {
	t.Helper()
	p, err := NewOllamaProvider(model.ProviderConfig{ProviderID: IDOllama, BaseURL: url})
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}
	return p
}

func ndjson(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	for _, line := range lines {
		fmt.Fprintln(w, line)
		if f != nil {
			f.Flush()
		}
	}
}

func TestOllamaChat(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		ndjson(w, `{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"Hi there!"},"done":true,"done_reason":"stop","prompt_eval_count":7,"eval_count":3}`)
	})
	p := newTestOllama(t, srv.URL)

	temp := 0.5
	resp, err := p.Chat(context.Background(), testutil.SingleUserMessage("Hello"), model.ChatOptions{
		Sampling: model.Sampling{Temperature: &temp},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Hi there!" || resp.FinishReason != model.FinishStop || resp.Model != "llama3.1" {
		t.Errorf("response: %+v", resp)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("usage: %+v", resp.Usage)
	}

	body := srv.body()
	if body["stream"] != false {
		t.Errorf("batch chat should disable streaming, got %v", body["stream"])
	}
	opts, _ := body["options"].(map[string]any)
	if opts["temperature"] != 0.5 {
		t.Errorf("options: %v", body["options"])
	}
}

func TestOllamaChatToolCalls(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		ndjson(w, `{"model":"qwen2.5","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"get_weather","arguments":{"location":"Paris"}}}]},"done":true,"done_reason":"stop"}`)
	})
	p := newTestOllama(t, srv.URL)

	resp, err := p.Chat(context.Background(), testutil.SingleUserMessage("Weather?"), model.ChatOptions{
		Model: "qwen2.5",
		Tools: testutil.TestMCPTools(),
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.FinishReason != model.FinishToolCalls {
		t.Errorf("finish: %q", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "get_weather" || resp.ToolCalls[0].ID == "" {
		t.Errorf("tool calls: %+v", resp.ToolCalls)
	}
	if tools, _ := srv.body()["tools"].([]any); len(tools) != 2 {
		t.Errorf("expected tools in request, got %v", srv.body()["tools"])
	}
}

func TestOllamaDropsToolsForUnsupportedModels(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		ndjson(w, `{"model":"gemma2","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"ok"},"done":true,"done_reason":"stop"}`)
	})
	p := newTestOllama(t, srv.URL)

	if _, err := p.Chat(context.Background(), testutil.SingleUserMessage("Hi"), model.ChatOptions{
		Model: "gemma2",
		Tools: testutil.TestMCPTools(),
	}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := srv.body()["tools"]; ok {
		t.Errorf("tools should not be sent to gemma, got %v", srv.body()["tools"])
	}
}

func TestOllamaChatStream(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		ndjson(w,
			`{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"Hi"},"done":false}`,
			`{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":" there!"},"done":false}`,
			`{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":""},"done":true,"done_reason":"length","prompt_eval_count":7,"eval_count":3}`,
		)
	})
	p := newTestOllama(t, srv.URL)

	stream, err := p.ChatStream(context.Background(), testutil.SingleUserMessage("Hello"), model.ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer stream.Close()

	var deltas []model.Delta
	for stream.Next() {
		deltas = append(deltas, stream.Current())
	}
	if stream.Err() != nil {
		t.Fatalf("stream error: %v", stream.Err())
	}
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
	last := deltas[2]
	if !last.Done || last.FinishReason != model.FinishLength || last.Usage == nil || last.Usage.TotalTokens != 10 {
		t.Errorf("terminal delta: %+v", last)
	}
	if srv.body()["stream"] != true {
		t.Errorf("stream flag: %v", srv.body()["stream"])
	}
}

func TestOllamaChatStreamCloseEarly(t *testing.T) {
	release := make(chan struct{})
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		ndjson(w, `{"model":"llama3.1","created_at":"2025-01-01T00:00:00Z","message":{"role":"assistant","content":"Once"},"done":false}`)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)
	p := newTestOllama(t, srv.URL)

	stream, err := p.ChatStream(context.Background(), testutil.SingleUserMessage("Story"), model.ChatOptions{})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if !stream.Next() || stream.Current().Content != "Once" {
		t.Fatalf("expected first delta, err %v", stream.Err())
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stream.Next() {
		t.Error("no deltas after Close")
	}
}

func TestOllamaErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind model.ErrorKind
	}{
		{"missing model", http.StatusNotFound, `{"error":"model \"llama9\" not found, try pulling it first"}`, model.KindInvalidRequest},
		{"server error", http.StatusInternalServerError, `{}`, model.KindProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			p := newTestOllama(t, srv.URL)

			_, err := p.Chat(context.Background(), testutil.SingleUserMessage("Hi"), model.ChatOptions{Model: "llama9"})
			if model.KindOf(err) != tt.wantKind {
				t.Errorf("got %v, want %s", err, tt.wantKind)
			}
		})
	}
}

func TestOllamaUnreachable(t *testing.T) {
	p := newTestOllama(t, "http://127.0.0.1:1")

	_, err := p.Chat(context.Background(), testutil.SingleUserMessage("Hi"), model.ChatOptions{})
	if !errors.Is(err, model.ErrProviderUnavailable) {
		t.Errorf("expected provider_unavailable, got %v", err)
	}
	if p.HealthCheck(context.Background()) {
		t.Error("expected unhealthy")
	}
	if !strings.Contains(p.LastError(), "ollama") {
		t.Errorf("last error should name the provider, got %q", p.LastError())
	}
}

func TestOllamaHealthCheckAndCapabilities(t *testing.T) {
	srv := newVendorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, `{"models":[{"name":"llama3.1:latest","model":"llama3.1:latest","size":4661224676},{"name":"qwen2.5:7b","model":"qwen2.5:7b","size":4683087332}]}`)
	})
	p, err := NewOllamaProvider(model.ProviderConfig{
		ProviderID: IDOllama,
		BaseURL:    srv.URL,
		Extra:      map[string]any{"num_ctx": int64(32768)},
	})
	if err != nil {
		t.Fatalf("NewOllamaProvider: %v", err)
	}

	if !p.HealthCheck(context.Background()) {
		t.Fatalf("expected healthy: %s", p.LastError())
	}
	caps := p.Capabilities(context.Background())
	if caps.MaxContextTokens != 32768 {
		t.Errorf("num_ctx should override the context size, got %d", caps.MaxContextTokens)
	}
	if len(caps.SupportedModels) != 2 || caps.SupportedModels[0] != "llama3.1:latest" {
		t.Errorf("models: %v", caps.SupportedModels)
	}
}

func TestOllamaConfigValidation(t *testing.T) {
	for _, url := range []string{"localhost:11434", "ftp://host", "http://"} {
		if _, err := NewOllamaProvider(model.ProviderConfig{ProviderID: IDOllama, BaseURL: url}); !errors.Is(err, model.ErrConfig) {
			t.Errorf("%q: expected config error, got %v", url, err)
		}
	}
	p, err := NewOllamaProvider(model.ProviderConfig{ProviderID: IDOllama})
	if err != nil {
		t.Fatalf("no API key or URL should be needed: %v", err)
	}
	if p.ValidateConfig() != nil {
		t.Error("default config should validate")
	}
}
