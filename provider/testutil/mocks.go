package testutil

import (
	"context"
	"mcpchat/model"
	"sync"
	"sync/atomic"
)

// MockProvider implements model.Provider for testing
type MockProvider struct {
	// Configurable responses
	ChatFunc         func(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error)
	ChatStreamFunc   func(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error)
	HealthCheckFunc  func(ctx context.Context) bool
	CapabilitiesFunc func(ctx context.Context) model.Capabilities
	// HealthError is reported by LastError after a failed health check.
	HealthError string

	// State
	id        string
	lastError string
	chatCalls atomic.Int32
	closed    atomic.Int32
	mu        sync.Mutex
	lastOpts  model.ChatOptions
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(id string) *MockProvider {
	mock := &MockProvider{id: id}
	mock.ChatFunc = mock.defaultChat
	mock.ChatStreamFunc = mock.defaultChatStream
	mock.HealthCheckFunc = func(ctx context.Context) bool { return true }
	mock.CapabilitiesFunc = func(ctx context.Context) model.Capabilities {
		return model.Capabilities{
			SupportsStreaming: true,
			SupportsTools:     true,
			MaxContextTokens:  8192,
			SupportedModels:   []string{"mock-model-1", "mock-model-2"},
		}
	}
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	// Default: echo back a mock response
	return &model.Response{
		Content:      "Mock response",
		Model:        "mock-model-1",
		FinishReason: model.FinishStop,
		Usage:        model.NewUsage(3, 2),
	}, nil
}

func (m *MockProvider) defaultChatStream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
	return NewMockStream("mock-model-1",
		model.Delta{Content: "Mock "},
		model.Delta{Content: "response"},
		model.Delta{Done: true, FinishReason: model.FinishStop, Usage: model.NewUsage(3, 2)},
	), nil
}

func (m *MockProvider) ID() string { return m.id }

func (m *MockProvider) ValidateConfig() error { return nil }

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, opts model.ChatOptions) (*model.Response, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, err
	}
	m.chatCalls.Add(1)
	m.mu.Lock()
	m.lastOpts = opts
	m.mu.Unlock()
	return m.ChatFunc(ctx, messages, opts)
}

func (m *MockProvider) ChatStream(ctx context.Context, messages []model.Message, opts model.ChatOptions) (model.Stream, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, err
	}
	m.chatCalls.Add(1)
	m.mu.Lock()
	m.lastOpts = opts
	m.mu.Unlock()
	return m.ChatStreamFunc(ctx, messages, opts)
}

func (m *MockProvider) NormalizeMessages(messages []model.Message) (any, error) {
	if err := model.ValidateMessages(messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (m *MockProvider) HealthCheck(ctx context.Context) bool {
	ok := m.HealthCheckFunc(ctx)
	m.mu.Lock()
	if ok {
		m.lastError = ""
	} else if m.HealthError != "" {
		m.lastError = m.HealthError
	} else {
		m.lastError = "mock health check failed"
	}
	m.mu.Unlock()
	return ok
}

func (m *MockProvider) LastError() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastError
}

func (m *MockProvider) Capabilities(ctx context.Context) model.Capabilities {
	return m.CapabilitiesFunc(ctx)
}

func (m *MockProvider) Close() error {
	m.closed.Add(1)
	return nil
}

// ChatCalls returns how many Chat and ChatStream calls reached the mock.
func (m *MockProvider) ChatCalls() int { return int(m.chatCalls.Load()) }

// Closed returns how many times Close was called.
func (m *MockProvider) Closed() int { return int(m.closed.Load()) }

// LastOptions returns the options of the most recent call.
func (m *MockProvider) LastOptions() model.ChatOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOpts
}

// MockStream replays a fixed list of deltas.
type MockStream struct {
	model  string
	deltas []model.Delta
	pos    int
	cur    model.Delta
	err    error
	closed atomic.Bool
	resp   model.Response
}

// NewMockStream returns a stream over deltas. The last delta should have
// Done set.
func NewMockStream(modelName string, deltas ...model.Delta) *MockStream {
	return &MockStream{model: modelName, deltas: deltas}
}

// WithError makes the stream fail with err after the deltas run out.
func (s *MockStream) WithError(err error) *MockStream {
	s.err = err
	return s
}

func (s *MockStream) Next() bool {
	if s.closed.Load() || s.pos >= len(s.deltas) {
		return false
	}
	s.cur = s.deltas[s.pos]
	s.pos++
	s.resp.Content += s.cur.Content
	if s.cur.Done {
		s.resp.FinishReason = s.cur.FinishReason
		s.resp.Usage = s.cur.Usage
		s.resp.ToolCalls = s.cur.ToolCalls
	}
	return true
}

func (s *MockStream) Current() model.Delta { return s.cur }

func (s *MockStream) Err() error {
	if s.pos >= len(s.deltas) {
		return s.err
	}
	return nil
}

func (s *MockStream) Close() error {
	s.closed.Store(true)
	return nil
}

// IsClosed reports whether Close was called.
func (s *MockStream) IsClosed() bool { return s.closed.Load() }

func (s *MockStream) Response() *model.Response {
	resp := s.resp
	resp.Model = s.model
	return &resp
}
