package provider

import (
	"fmt"
	"mcpchat/config"
	"mcpchat/model"
	"sort"
	"sync"

	"github.com/sahilm/fuzzy"
)

// Constructor builds an adapter from its settings.
type Constructor func(cfg model.ProviderConfig) (model.Provider, error)

// liveAdapter is an installed adapter plus the requests currently using it.
type liveAdapter struct {
	provider model.Provider
	inflight sync.WaitGroup
}

// Registry maps provider ids to constructors and owns at most one live
// adapter per id. Replacing an adapter never disturbs requests that already
// hold it: the old instance is closed once its last lease is released.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	live         map[string]*liveAdapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		constructors: make(map[string]Constructor),
		live:         make(map[string]*liveAdapter),
	}
}

// NewDefaultRegistry returns a registry with every built-in adapter
// registered and none configured.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(IDOpenAI, func(cfg model.ProviderConfig) (model.Provider, error) {
		return NewOpenAIProvider(cfg)
	})
	r.Register(IDAnthropic, func(cfg model.ProviderConfig) (model.Provider, error) {
		return NewAnthropicProvider(cfg)
	})
	r.Register(IDOllama, func(cfg model.ProviderConfig) (model.Provider, error) {
		return NewOllamaProvider(cfg)
	})
	r.Register(IDGemini, func(cfg model.ProviderConfig) (model.Provider, error) {
		return NewGeminiProvider(cfg)
	})
	r.Register(IDOpenRouter, func(cfg model.ProviderConfig) (model.Provider, error) {
		return NewOpenRouterProvider(cfg)
	})
	return r
}

// Register installs or replaces the constructor for id. Adapters already
// built are not affected.
func (r *Registry) Register(id string, ctor Constructor) {
	r.mu.Lock()
	r.constructors[id] = ctor
	r.mu.Unlock()
}

// Build constructs a fresh adapter without installing it.
func (r *Registry) Build(cfg model.ProviderConfig) (model.Provider, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[cfg.ProviderID]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownProvider(cfg.ProviderID, r.Registered())
	}

	p, err := ctor(cfg)
	if err != nil {
		return nil, withProvider(err, cfg.ProviderID)
	}
	return p, nil
}

// unknownProvider builds an unknown_provider error with a suggestion when
// the id looks like a typo of a registered one.
func unknownProvider(id string, registered []string) error {
	msg := fmt.Sprintf("unknown provider %q", id)
	if id != "" {
		if matches := fuzzy.Find(id, registered); len(matches) > 0 {
			msg += fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
		}
	}
	return model.NewError(model.KindUnknownProvider, id, msg)
}

// Configure builds an adapter and installs it as the live instance for its
// id. The adapter it replaces is closed after its in-flight requests finish.
// On error the previous instance stays live.
func (r *Registry) Configure(cfg model.ProviderConfig) (model.Provider, error) {
	p, err := r.Build(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.live[cfg.ProviderID]
	r.live[cfg.ProviderID] = &liveAdapter{provider: p}
	r.mu.Unlock()

	if config.Debug {
		config.DebugLog.Printf("[Registry] Configured provider %s: %s", cfg.ProviderID, cfg)
	}
	retire(old)
	return p, nil
}

// retire closes a replaced adapter once nothing uses it.
func retire(old *liveAdapter) {
	if old == nil {
		return
	}
	go func() {
		old.inflight.Wait()
		if err := old.provider.Close(); err != nil && config.Debug {
			config.DebugLog.Printf("[Registry] Closing replaced %s adapter: %v", old.provider.ID(), err)
		}
	}()
}

// Resolve returns the live adapter for id.
func (r *Registry) Resolve(id string) (model.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	la, ok := r.live[id]
	if !ok {
		return nil, missing(id)
	}
	return la.provider, nil
}

// Known returns an unknown_provider error, with a typo suggestion, when no
// constructor is registered for id.
func (r *Registry) Known(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.constructors[id]; ok {
		return nil
	}
	ids := make([]string, 0, len(r.constructors))
	for k := range r.constructors {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	return unknownProvider(id, ids)
}

// missing reports an id without a live adapter, registered or not.
func missing(id string) error {
	return model.NewError(model.KindNotConfigured, id, fmt.Sprintf("provider %q is not configured", id))
}

// Acquire leases the live adapter for one request. release must be called
// exactly once when the request is finished, including on stream close.
func (r *Registry) Acquire(id string) (model.Provider, func(), error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	la, ok := r.live[id]
	if !ok {
		return nil, nil, missing(id)
	}
	la.inflight.Add(1)
	var once sync.Once
	return la.provider, func() { once.Do(la.inflight.Done) }, nil
}

// Remove uninstalls the live adapter for id, closing it once idle.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	old := r.live[id]
	delete(r.live, id)
	r.mu.Unlock()
	retire(old)
}

// Registered returns the ids that have a constructor, sorted.
func (r *Registry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Configured returns the ids that have a live adapter, sorted.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.live))
	for id := range r.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close removes every live adapter and waits for them to be closed.
func (r *Registry) Close() error {
	r.mu.Lock()
	live := r.live
	r.live = make(map[string]*liveAdapter)
	r.mu.Unlock()

	var firstErr error
	for _, la := range live {
		la.inflight.Wait()
		if err := la.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
