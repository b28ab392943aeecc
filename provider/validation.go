package provider

import (
	"context"
	"fmt"
	"mcpchat/config"
	"mcpchat/model"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// defaultMaxRetries is how often the SDK clients retry retryable failures
// before the error reaches the caller. Extra["max_retries"] overrides it.
const defaultMaxRetries = 2

// withDefaults returns a copy of cfg with the vendor base URL filled in.
func withDefaults(cfg model.ProviderConfig, baseURL string) model.ProviderConfig {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	return cfg
}

// validateBaseURL requires an absolute http(s) URL.
func validateBaseURL(id, raw string) error {
	if raw == "" {
		return model.NewError(model.KindConfig, id, "base_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return model.NewError(model.KindConfig, id, fmt.Sprintf("base_url %q is not a valid http(s) URL", raw))
	}
	return nil
}

// validateRemote checks the settings every hosted vendor needs.
func validateRemote(id string, cfg model.ProviderConfig) error {
	if cfg.APIKey == "" {
		return model.NewError(model.KindConfig, id, "api_key is required")
	}
	return validateBaseURL(id, cfg.BaseURL)
}

// resolveModel picks the request model, then Extra["default_model"], then the
// vendor default.
func resolveModel(requested string, cfg model.ProviderConfig, fallback string) string {
	if m := strings.TrimSpace(requested); m != "" {
		return m
	}
	if m := cfg.ExtraString("default_model"); m != "" {
		return m
	}
	return fallback
}

// requirePrefix returns a model check for vendors that only serve one model
// family.
func requirePrefix(id, prefix string) func(string) error {
	return func(name string) error {
		if !strings.HasPrefix(name, prefix) {
			return model.NewError(model.KindInvalidRequest, id,
				fmt.Sprintf("model %q is not supported; model names must start with %q", name, prefix))
		}
		return nil
	}
}

func maxRetries(cfg model.ProviderConfig) int {
	if n, ok := cfg.ExtraInt("max_retries"); ok && n >= 0 {
		return n
	}
	return defaultMaxRetries
}

// newHTTPClient gives each adapter its own connection pool so Close can
// release it without touching other adapters.
func newHTTPClient() *http.Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}
	return &http.Client{Transport: transport.Clone()}
}

// healthState records the outcome of the most recent health check.
type healthState struct {
	mu      sync.Mutex
	lastErr string
}

// probe runs fn and records its outcome. It never panics.
func (h *healthState) probe(ctx context.Context, id string, fn func(context.Context) error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.set(fmt.Sprintf("health check panicked: %v", r))
			ok = false
		}
	}()

	err := fn(ctx)
	if err != nil {
		h.set(err.Error())
		if config.Debug {
			config.DebugLog.Printf("[Provider] %s health check failed: %v", id, err)
		}
		return false
	}
	h.set("")
	return true
}

func (h *healthState) set(msg string) {
	h.mu.Lock()
	h.lastErr = msg
	h.mu.Unlock()
}

func (h *healthState) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

// modelCache holds the result of one successful list-models call. Failed
// calls are not cached, so the static fallback is served until the vendor
// answers. Concurrent misses share one call, and no lock is held while it
// runs.
type modelCache struct {
	mu       sync.Mutex
	models   []string
	fetched  bool
	fallback []string
	group    singleflight.Group
}

func newModelCache(fallback []string) *modelCache {
	return &modelCache{fallback: fallback}
}

// get returns the cached list, fetching it first when none is cached. A
// caller whose ctx ends first, or is already done, gets the fallback.
func (c *modelCache) get(ctx context.Context, fetch func(context.Context) ([]string, error)) []string {
	if ids, ok := c.cached(); ok {
		return ids
	}
	if ctx.Err() != nil {
		return slices.Clone(c.fallback)
	}

	ch := c.group.DoChan("models", func() (any, error) {
		ids, err := fetch(ctx)
		if err == nil {
			c.store(ids)
		}
		return ids, err
	})
	select {
	case r := <-ch:
		if ids, _ := r.Val.([]string); r.Err == nil && len(ids) > 0 {
			return slices.Clone(ids)
		}
	case <-ctx.Done():
	}
	return slices.Clone(c.fallback)
}

func (c *modelCache) cached() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.fetched {
		return nil, false
	}
	return slices.Clone(c.models), true
}

func (c *modelCache) store(ids []string) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	c.models = ids
	c.fetched = true
	c.mu.Unlock()
}
