package provider

import (
	"context"
	"errors"
	"io"
	"mcpchat/model"
	"strings"
	"sync"
	"sync/atomic"
)

// chunk is one decoded piece of a vendor stream. Any field may be empty; a
// source reports the end of the stream with io.EOF.
type chunk struct {
	content   string
	model     string
	finish    model.FinishReason
	usage     *model.Usage
	toolCalls []model.ToolCall
}

// chunkSource is the vendor-specific half of a stream. next blocks until the
// next chunk is read from the network. close must be safe to call while next
// is blocked in another goroutine.
type chunkSource interface {
	next() (chunk, error)
	close() error
}

// sdkStream is the iterator shape shared by the OpenAI and Anthropic SDK
// streams.
type sdkStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// deltaStream turns a chunkSource into a model.Stream. It only reads from the
// source when the consumer calls Next.
type deltaStream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	provider string
	src      chunkSource
	classify func(provider string, err error) error

	cur  model.Delta
	err  error
	done bool

	closed    atomic.Bool
	closeOnce sync.Once

	content   strings.Builder
	model     string
	finish    model.FinishReason
	usage     *model.Usage
	toolCalls []model.ToolCall
}

func newDeltaStream(ctx context.Context, cancel context.CancelFunc, provider, modelName string, src chunkSource, classify func(string, error) error) *deltaStream {
	return &deltaStream{
		ctx:      ctx,
		cancel:   cancel,
		provider: provider,
		src:      src,
		classify: classify,
		model:    modelName,
	}
}

// Next advances to the next delta. It returns false after the terminal delta,
// after Close, or once the stream context is cancelled.
func (s *deltaStream) Next() bool {
	if s.done || s.closed.Load() {
		return false
	}
	for {
		c, err := s.src.next()
		if err != nil {
			return s.fail(err)
		}
		s.absorb(c)
		if c.content != "" {
			s.cur = model.Delta{Content: c.content}
			return true
		}
	}
}

func (s *deltaStream) absorb(c chunk) {
	s.content.WriteString(c.content)
	if c.model != "" {
		s.model = c.model
	}
	if c.finish != "" {
		s.finish = c.finish
	}
	if c.usage != nil {
		s.usage = c.usage
	}
	s.toolCalls = append(s.toolCalls, c.toolCalls...)
}

func (s *deltaStream) fail(err error) bool {
	if s.closed.Load() {
		s.done = true
		return false
	}
	if ctxErr := s.ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		// Cancelled by the consumer: no terminal delta.
		s.err = ctxErr
		s.done = true
		s.shutdown()
		return false
	}
	if errors.Is(err, io.EOF) {
		if s.finish == "" {
			s.err = model.NewError(model.KindProviderUnavailable, s.provider, "stream ended without a finish signal")
			return s.terminal(model.FinishError)
		}
		return s.terminal(s.finish)
	}
	s.err = s.classify(s.provider, err)
	return s.terminal(model.FinishError)
}

func (s *deltaStream) terminal(reason model.FinishReason) bool {
	s.finish = reason
	resp := s.Response()
	s.cur = model.Delta{
		Done:         true,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
		ToolCalls:    resp.ToolCalls,
	}
	s.done = true
	s.shutdown()
	return true
}

func (s *deltaStream) Current() model.Delta { return s.cur }

func (s *deltaStream) Err() error { return s.err }

// Close stops the stream and releases the connection. Safe to call more than
// once and from another goroutine.
func (s *deltaStream) Close() error {
	s.closed.Store(true)
	return s.shutdown()
}

func (s *deltaStream) shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.src.close()
	})
	return err
}

func (s *deltaStream) Response() *model.Response {
	resp := &model.Response{
		Content:      s.content.String(),
		Model:        s.model,
		FinishReason: s.finish,
		Usage:        s.usage,
		ToolCalls:    s.toolCalls,
	}
	if resp.FinishReason != model.FinishError {
		resp.Normalize()
	}
	return resp
}

// sdkSource adapts an SDK iterator. onEvent decodes one event; flush runs
// once after the iterator is drained and may return a final chunk.
type sdkSource[T any] struct {
	stream  sdkStream[T]
	onEvent func(T) (chunk, error)
	flush   func() (chunk, bool)
	flushed bool
}

func (s *sdkSource[T]) next() (chunk, error) {
	if s.flushed {
		return chunk{}, io.EOF
	}
	if s.stream.Next() {
		return s.onEvent(s.stream.Current())
	}
	if err := s.stream.Err(); err != nil {
		return chunk{}, err
	}
	s.flushed = true
	if s.flush != nil {
		if c, ok := s.flush(); ok {
			return c, nil
		}
	}
	return chunk{}, io.EOF
}

func (s *sdkSource[T]) close() error {
	return s.stream.Close()
}
