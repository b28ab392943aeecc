// Package health probes configured providers and keeps their latest status.
package health

import (
	"context"
	"fmt"
	"mcpchat/config"
	"mcpchat/model"
	"mcpchat/provider"
	"sort"
	"sync"
	"time"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 60 * time.Second
)

// Recorder receives every status the monitor computes.
type Recorder interface {
	Record(ctx context.Context, status model.ProviderStatus) error
}

// Monitor checks provider health on demand and, once started, on a fixed
// interval. A hung adapter never blocks a caller past the timeout.
type Monitor struct {
	registry *provider.Registry
	timeout  time.Duration
	interval time.Duration
	recorder Recorder

	mu   sync.RWMutex
	last map[string]model.ProviderStatus

	stop chan struct{}
	done chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRecorder sends each computed status to r.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func NewMonitor(reg *provider.Registry, opts ...Option) *Monitor {
	m := &Monitor{
		registry: reg,
		timeout:  DefaultTimeout,
		interval: DefaultInterval,
		last:     make(map[string]model.ProviderStatus),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout is the limit each provider check runs under.
func (m *Monitor) Timeout() time.Duration { return m.timeout }

type probeResult struct {
	healthy bool
	models  []string
	lastErr string
}

// Check probes one provider. Providers that are registered but not
// configured report Configured=false without any network call.
func (m *Monitor) Check(ctx context.Context, id string) model.ProviderStatus {
	status := model.ProviderStatus{ProviderID: id, AvailableModels: []string{}}

	p, release, err := m.registry.Acquire(id)
	if err != nil {
		if kerr := m.registry.Known(id); kerr != nil {
			err = kerr
		}
		status.Error = err.Error()
		status.CheckedAt = time.Now().UTC()
		m.store(ctx, status)
		return status
	}
	status.Configured = true

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	results := make(chan probeResult, 1)
	go func() {
		defer release()
		var r probeResult
		r.healthy = p.HealthCheck(ctx)
		if r.healthy {
			r.models = p.Capabilities(ctx).SupportedModels
		} else {
			r.lastErr = p.LastError()
		}
		results <- r
	}()

	select {
	case r := <-results:
		status.Healthy = r.healthy
		status.Error = r.lastErr
		if r.models != nil {
			status.AvailableModels = r.models
		}
	case <-ctx.Done():
		status.Error = fmt.Sprintf("health check did not finish within %s", m.timeout)
	}
	status.CheckedAt = time.Now().UTC()

	if config.Debug {
		config.DebugLog.Printf("[Health] %s healthy=%v %s", id, status.Healthy, status.Error)
	}
	m.store(ctx, status)
	return status
}

// CheckAll probes every registered provider concurrently. The result is
// sorted by provider id; a slow provider is reported unhealthy on its own.
func (m *Monitor) CheckAll(ctx context.Context) []model.ProviderStatus {
	ids := m.registry.Registered()
	statuses := make([]model.ProviderStatus, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Go(func() {
			statuses[i] = m.Check(ctx, id)
		})
	}
	wg.Wait()

	return statuses
}

// Start refreshes every provider now and then on each interval until Stop
// is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.CheckAll(ctx)
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if config.Debug {
		config.DebugLog.Printf("[Health] Monitor started (interval %s, timeout %s)", m.interval, m.timeout)
	}
}

// Stop halts the periodic refresh and waits for it to exit.
func (m *Monitor) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}

// Snapshot returns the most recent status of every provider checked so far,
// sorted by id.
func (m *Monitor) Snapshot() []model.ProviderStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.ProviderStatus, 0, len(m.last))
	for _, s := range m.last {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

func (m *Monitor) store(ctx context.Context, status model.ProviderStatus) {
	m.mu.Lock()
	m.last[status.ProviderID] = status
	m.mu.Unlock()

	if m.recorder == nil {
		return
	}
	// The probe context may already be spent.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := m.recorder.Record(rctx, status); err != nil && config.Debug {
		config.DebugLog.Printf("[Health] Failed to record %s status: %v", status.ProviderID, err)
	}
}
