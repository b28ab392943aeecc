package chat

import (
	"context"
	"mcpchat/config"
	"mcpchat/model"
	"sync"
	"time"
)

// leasedStream releases its adapter lease and request timeout as soon as
// the terminal delta has been read or Close is called, whichever is first.
// Close may come from another goroutine; while a Next is in flight the
// lease is kept until that Next returns.
type leasedStream struct {
	inner    model.Stream
	ctx      context.Context
	provider string
	timeout  time.Duration
	service  *Service
	started  time.Time

	release func()
	once    sync.Once

	mu       sync.Mutex
	pulling  bool
	closed   bool
	done     bool
	finished bool
	err      error
}

func (s *leasedStream) Next() bool {
	s.mu.Lock()
	if s.closed || s.done {
		s.mu.Unlock()
		return false
	}
	s.pulling = true
	s.mu.Unlock()

	ok := s.inner.Next()
	var last bool
	if ok {
		last = s.inner.Current().Done
	}

	s.mu.Lock()
	s.pulling = false
	closed := s.closed
	if last {
		s.done = true
	}
	s.mu.Unlock()

	switch {
	case closed:
		// Closed while pulling: whatever the vendor sent is dropped.
		s.finish(nil)
		return false
	case !ok:
		s.finish(s.innerErr())
		return false
	case last:
		s.finish(s.innerErr())
	}
	return true
}

func (s *leasedStream) Current() model.Delta { return s.inner.Current() }

func (s *leasedStream) Err() error {
	s.mu.Lock()
	finished, err := s.finished, s.err
	s.mu.Unlock()
	if finished {
		return err
	}
	return s.innerErr()
}

// innerErr must only run on the goroutine that drives Next.
func (s *leasedStream) innerErr() error {
	if err := s.inner.Err(); err != nil {
		return s.service.timeoutOr(s.ctx, s.provider, s.timeout, err)
	}
	return nil
}

func (s *leasedStream) Response() *model.Response { return s.inner.Response() }

func (s *leasedStream) Close() error {
	s.mu.Lock()
	s.closed = true
	pulling := s.pulling
	s.mu.Unlock()

	err := s.inner.Close()
	if !pulling {
		s.finish(nil)
	}
	return err
}

// finish records err and gives back the lease once. err has to be read
// before the request context is cancelled, or a timeout would look like a
// cancellation.
func (s *leasedStream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.finished = true
		s.mu.Unlock()

		s.inner.Close()
		s.release()
		if config.Debug {
			config.DebugLog.Printf("[Chat] %s stream finished after %s (err=%v)",
				s.provider, time.Since(s.started), err)
		}
	})
}
