package provider

import (
	"context"
	"errors"
	"io"
	"mcpchat/model"
	"sync/atomic"
	"testing"
)

// fakeSource replays chunks, then err (io.EOF when nil).
type fakeSource struct {
	chunks []chunk
	err    error
	pos    int
	closed atomic.Int32
}

func (f *fakeSource) next() (chunk, error) {
	if f.pos < len(f.chunks) {
		c := f.chunks[f.pos]
		f.pos++
		return c, nil
	}
	if f.err != nil {
		return chunk{}, f.err
	}
	return chunk{}, io.EOF
}

func (f *fakeSource) close() error {
	f.closed.Add(1)
	return nil
}

func newTestStream(src chunkSource) (*deltaStream, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	return newDeltaStream(ctx, cancel, "openai", "gpt-test", src, classifyOpenAI), cancel
}

func collect(s model.Stream) []model.Delta {
	var out []model.Delta
	for s.Next() {
		out = append(out, s.Current())
	}
	return out
}

func TestDeltaStreamHappyPath(t *testing.T) {
	src := &fakeSource{chunks: []chunk{
		{model: "gpt-test-2025"},
		{content: "Hi"},
		{content: " there!"},
		{finish: model.FinishStop, usage: model.NewUsage(5, 3)},
	}}
	s, _ := newTestStream(src)

	deltas := collect(s)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d: %+v", len(deltas), deltas)
	}
	if deltas[0].Content != "Hi" || deltas[1].Content != " there!" {
		t.Errorf("content deltas out of order: %+v", deltas)
	}
	last := deltas[2]
	if !last.Done || last.FinishReason != model.FinishStop {
		t.Errorf("bad terminal delta: %+v", last)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 8 {
		t.Errorf("bad usage: %+v", last.Usage)
	}
	if s.Err() != nil {
		t.Errorf("unexpected error: %v", s.Err())
	}
	if src.closed.Load() != 1 {
		t.Errorf("source should be closed once, got %d", src.closed.Load())
	}

	resp := s.Response()
	if resp.Content != "Hi there!" || resp.Model != "gpt-test-2025" {
		t.Errorf("bad accumulated response: %+v", resp)
	}
	if s.Next() {
		t.Error("Next after terminal delta should be false")
	}
}

func TestDeltaStreamToolCallsFinish(t *testing.T) {
	src := &fakeSource{chunks: []chunk{
		{finish: model.FinishStop, toolCalls: []model.ToolCall{{ID: "c1", Name: "get_weather", Arguments: map[string]any{}}}},
	}}
	s, _ := newTestStream(src)

	deltas := collect(s)
	if len(deltas) != 1 {
		t.Fatalf("expected only the terminal delta, got %d", len(deltas))
	}
	if deltas[0].FinishReason != model.FinishToolCalls || len(deltas[0].ToolCalls) != 1 {
		t.Errorf("tool calls should force tool_calls finish: %+v", deltas[0])
	}
}

func TestDeltaStreamNoFinishSignal(t *testing.T) {
	src := &fakeSource{chunks: []chunk{{content: "partial"}}}
	s, _ := newTestStream(src)

	deltas := collect(s)
	if len(deltas) != 2 {
		t.Fatalf("expected content and terminal delta, got %d", len(deltas))
	}
	if deltas[1].FinishReason != model.FinishError {
		t.Errorf("expected error finish, got %q", deltas[1].FinishReason)
	}
	if !errors.Is(s.Err(), model.ErrProviderUnavailable) {
		t.Errorf("expected provider_unavailable, got %v", s.Err())
	}
}

func TestDeltaStreamMidStreamFailure(t *testing.T) {
	src := &fakeSource{
		chunks: []chunk{{content: "Hel"}},
		err:    errors.New("connection reset by peer"),
	}
	s, _ := newTestStream(src)

	deltas := collect(s)
	if len(deltas) != 2 || deltas[0].Content != "Hel" {
		t.Fatalf("unexpected deltas: %+v", deltas)
	}
	if !deltas[1].Done || deltas[1].FinishReason != model.FinishError {
		t.Errorf("expected error terminal delta, got %+v", deltas[1])
	}
	if model.KindOf(s.Err()) != model.KindProviderUnavailable {
		t.Errorf("expected classified error, got %v", s.Err())
	}
	if s.Response().Content != "Hel" {
		t.Errorf("partial content should be kept, got %q", s.Response().Content)
	}
}

func TestDeltaStreamConsumerCancel(t *testing.T) {
	src := &fakeSource{
		chunks: []chunk{{content: "a"}},
		err:    context.Canceled,
	}
	s, cancel := newTestStream(src)

	if !s.Next() || s.Current().Content != "a" {
		t.Fatal("expected first delta")
	}
	cancel()
	if s.Next() {
		t.Error("no terminal delta after cancellation")
	}
	if !errors.Is(s.Err(), context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", s.Err())
	}
}

func TestDeltaStreamClose(t *testing.T) {
	src := &fakeSource{chunks: []chunk{{content: "a"}, {content: "b"}, {finish: model.FinishStop}}}
	s, _ := newTestStream(src)

	if !s.Next() {
		t.Fatal("expected first delta")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if s.Next() {
		t.Error("Next after Close should be false")
	}
	if src.closed.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closed.Load())
	}
	if s.ctx.Err() == nil {
		t.Error("stream context should be cancelled by Close")
	}
}

type fakeSDKStream struct {
	events []string
	pos    int
	err    error
	closed bool
}

func (f *fakeSDKStream) Next() bool {
	if f.pos >= len(f.events) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeSDKStream) Current() string { return f.events[f.pos-1] }
func (f *fakeSDKStream) Err() error      { return f.err }
func (f *fakeSDKStream) Close() error {
	f.closed = true
	return nil
}

func TestSDKSourceFlush(t *testing.T) {
	sdk := &fakeSDKStream{events: []string{"x", "y"}}
	flushes := 0
	src := &sdkSource[string]{
		stream: sdk,
		onEvent: func(ev string) (chunk, error) {
			return chunk{content: ev}, nil
		},
		flush: func() (chunk, bool) {
			flushes++
			return chunk{finish: model.FinishLength}, true
		},
	}
	s, _ := newTestStream(src)

	deltas := collect(s)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(deltas))
	}
	if deltas[2].FinishReason != model.FinishLength {
		t.Errorf("flush chunk should set finish, got %q", deltas[2].FinishReason)
	}
	if flushes != 1 {
		t.Errorf("flush ran %d times", flushes)
	}
	if !sdk.closed {
		t.Error("sdk stream should be closed after terminal delta")
	}
}
