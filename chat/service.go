// Package chat routes unified chat requests to the configured provider
// adapters.
package chat

import (
	"context"
	"errors"
	"fmt"
	"mcpchat/config"
	"mcpchat/health"
	"mcpchat/model"
	"mcpchat/provider"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTimeout bounds a whole chat call, including every streamed delta.
const DefaultTimeout = 120 * time.Second

// Service is the single entry point the HTTP layer and CLI talk to. It owns
// the registry lifecycle and never lets vendor error types escape.
type Service struct {
	registry *provider.Registry
	monitor  *health.Monitor

	mu       sync.RWMutex
	timeout  time.Duration
	limiters map[string]*rate.Limiter
	secrets  []string
}

// Option configures a Service.
type Option func(*Service)

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService builds a service over reg. monitor may be nil, in which case a
// monitor with default settings is created.
func NewService(reg *provider.Registry, monitor *health.Monitor, opts ...Option) *Service {
	if monitor == nil {
		monitor = health.NewMonitor(reg)
	}
	s := &Service{
		registry: reg,
		monitor:  monitor,
		timeout:  DefaultTimeout,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the adapter registry the service routes through.
func (s *Service) Registry() *provider.Registry { return s.registry }

// Monitor returns the health monitor.
func (s *Service) Monitor() *health.Monitor { return s.monitor }

// HandleChat sends a batch request and returns the complete response.
func (s *Service) HandleChat(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, s.normalize(req.ProviderID, err)
	}

	p, release, err := s.acquire(req.ProviderID)
	if err != nil {
		return nil, s.normalize(req.ProviderID, err)
	}
	defer release()

	if err := s.allow(req.ProviderID); err != nil {
		return nil, err
	}

	timeout := s.chatTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Chat(ctx, req.Messages, req.Options())
	if err != nil {
		err = s.timeoutOr(ctx, req.ProviderID, timeout, err)
		if config.Debug {
			config.DebugLog.Printf("[Chat] %s chat failed after %s: %v", req.ProviderID, time.Since(start), err)
		}
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Printf("[Chat] %s chat done in %s (model=%s finish=%s)",
			req.ProviderID, time.Since(start), resp.Model, resp.FinishReason)
	}
	return resp, nil
}

// StreamChat starts a streamed request. The returned stream holds the
// adapter lease and the request timeout until its terminal delta is
// consumed or it is closed.
func (s *Service) StreamChat(ctx context.Context, req model.Request) (model.Stream, error) {
	if err := validateRequest(req); err != nil {
		return nil, s.normalize(req.ProviderID, err)
	}

	p, release, err := s.acquire(req.ProviderID)
	if err != nil {
		return nil, s.normalize(req.ProviderID, err)
	}

	if err := s.allow(req.ProviderID); err != nil {
		release()
		return nil, err
	}

	timeout := s.chatTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)

	inner, err := p.ChatStream(ctx, req.Messages, req.Options())
	if err != nil {
		err = s.timeoutOr(ctx, req.ProviderID, timeout, err)
		cancel()
		release()
		return nil, err
	}

	if config.Debug {
		config.DebugLog.Printf("[Chat] %s stream started", req.ProviderID)
	}
	return &leasedStream{
		inner:    inner,
		ctx:      ctx,
		provider: req.ProviderID,
		timeout:  timeout,
		service:  s,
		started:  time.Now(),
		release: func() {
			cancel()
			release()
		},
	}, nil
}

// acquire leases the adapter, reporting ids nobody registered as
// unknown_provider rather than not_configured.
func (s *Service) acquire(id string) (model.Provider, func(), error) {
	if err := s.registry.Known(id); err != nil {
		return nil, nil, err
	}
	return s.registry.Acquire(id)
}

func validateRequest(req model.Request) error {
	if req.ProviderID == "" {
		return model.NewError(model.KindInvalidRequest, "", "provider is required")
	}
	return model.ValidateMessages(req.Messages)
}

// allow applies the client-side request budget of a provider, if any.
func (s *Service) allow(id string) error {
	s.mu.RLock()
	lim := s.limiters[id]
	s.mu.RUnlock()
	if lim == nil {
		return nil
	}

	r := lim.Reserve()
	if d := r.Delay(); d > 0 {
		r.Cancel()
		e := model.NewError(model.KindRateLimit, id, "request budget exhausted")
		e.RetryAfter = d
		return e
	}
	return nil
}

func (s *Service) chatTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeout
}

// timeoutOr reports a timeout when the service's own deadline fired and
// normalizes err otherwise.
func (s *Service) timeoutOr(ctx context.Context, id string, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return model.NewError(model.KindTimeout, id, fmt.Sprintf("request timed out after %s", timeout))
	}
	return s.normalize(id, err)
}

// normalize converts err into a fresh *model.Error without its cause chain,
// so callers never see vendor SDK types. Cancellation by the caller is
// returned unchanged.
func (s *Service) normalize(id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) && model.KindOf(err) == "" {
		return context.Canceled
	}

	var src *model.Error
	if !errors.As(err, &src) {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.NewError(model.KindTimeout, id, "request timed out")
		}
		src = model.WrapError(model.KindProviderUnavailable, id, err, "request failed")
	}

	out := &model.Error{
		Kind:       src.Kind,
		Provider:   src.Provider,
		Message:    src.Message,
		StatusCode: src.StatusCode,
		RetryAfter: src.RetryAfter,
	}
	if out.Provider == "" {
		out.Provider = id
	}
	if src.Err != nil {
		s.mu.RLock()
		secrets := s.secrets
		s.mu.RUnlock()
		detail := config.RedactText(src.Err.Error(), secrets...)
		if out.Message == "" {
			out.Message = detail
		} else {
			out.Message += ": " + detail
		}
	}
	return out
}

// ListProviders returns every provider id the registry can build, sorted.
func (s *Service) ListProviders() []string {
	return s.registry.Registered()
}

// ConfiguredProviders returns the ids with a live adapter, sorted.
func (s *Service) ConfiguredProviders() []string {
	return s.registry.Configured()
}

// ProviderHealth checks one provider now. Unknown ids are an error; known
// but unconfigured ids report Configured=false.
func (s *Service) ProviderHealth(ctx context.Context, id string) (model.ProviderStatus, error) {
	if err := s.registry.Known(id); err != nil {
		return model.ProviderStatus{}, s.normalize(id, err)
	}
	return s.monitor.Check(ctx, id), nil
}

// Capabilities describes a configured provider. A model list lookup gets the
// monitor's timeout; past it the cached or built-in list is served.
func (s *Service) Capabilities(ctx context.Context, id string) (model.Capabilities, error) {
	p, release, err := s.registry.Acquire(id)
	if err != nil {
		return model.Capabilities{}, s.normalize(id, err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, s.monitor.Timeout())
	defer cancel()
	return p.Capabilities(ctx), nil
}

// ProviderStatuses checks every registered provider concurrently.
func (s *Service) ProviderStatuses(ctx context.Context) []model.ProviderStatus {
	return s.monitor.CheckAll(ctx)
}

// Reconfigure rebuilds one adapter from new settings. Requests already
// running on the old adapter finish on it.
func (s *Service) Reconfigure(cfg model.ProviderConfig) error {
	if _, err := s.registry.Configure(cfg); err != nil {
		return s.normalize(cfg.ProviderID, err)
	}
	s.mu.Lock()
	s.setLimiter(cfg)
	if cfg.APIKey != "" && !slices.Contains(s.secrets, cfg.APIKey) {
		s.secrets = append(s.secrets, cfg.APIKey)
	}
	s.mu.Unlock()
	return nil
}

// ApplyConfig brings the live adapters, request budgets and timeout in line
// with cfg. It returns the providers that failed to configure; they keep
// their previous adapter.
func (s *Service) ApplyConfig(cfg *config.Config) map[string]error {
	failed := provider.InitializeProviders(s.registry, cfg)

	s.mu.Lock()
	s.timeout = cfg.ChatTimeout()
	// Keys are only ever added: a provider that failed to reconfigure, or an
	// adapter still draining, keeps running on its old key.
	for _, key := range cfg.Secrets() {
		if !slices.Contains(s.secrets, key) {
			s.secrets = append(s.secrets, key)
		}
	}
	s.limiters = make(map[string]*rate.Limiter)
	for _, pc := range cfg.ProviderSettings() {
		s.setLimiter(pc)
	}
	s.mu.Unlock()

	for id, err := range failed {
		failed[id] = s.normalize(id, err)
	}
	if config.Debug {
		config.DebugLog.Printf("[Chat] Applied config: %d provider(s) live, %d failed",
			len(s.registry.Configured()), len(failed))
	}
	return failed
}

// setLimiter installs the request budget from Extra["requests_per_minute"].
// The caller must hold s.mu.
func (s *Service) setLimiter(cfg model.ProviderConfig) {
	n, ok := cfg.ExtraInt("requests_per_minute")
	if !ok || n <= 0 {
		delete(s.limiters, cfg.ProviderID)
		return
	}
	s.limiters[cfg.ProviderID] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// Close closes every adapter once its in-flight requests finish.
func (s *Service) Close() error {
	return s.registry.Close()
}
