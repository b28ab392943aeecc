package health

import (
	"context"
	"mcpchat/model"
	"mcpchat/provider"
	"mcpchat/provider/testutil"
	"strings"
	"sync"
	"testing"
	"time"
)

type memRecorder struct {
	mu       sync.Mutex
	statuses []model.ProviderStatus
}

func (r *memRecorder) Record(ctx context.Context, status model.ProviderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statuses)
}

// newRegistry registers one mock per id and configures those in configured.
func newRegistry(t *testing.T, mocks map[string]*testutil.MockProvider, configured ...string) *provider.Registry {
	t.Helper()
	reg := provider.NewRegistry()
	for id, mock := range mocks {
		reg.Register(id, func(cfg model.ProviderConfig) (model.Provider, error) {
			return mock, nil
		})
	}
	for _, id := range configured {
		if _, err := reg.Configure(model.ProviderConfig{ProviderID: id}); err != nil {
			t.Fatalf("Configure %s: %v", id, err)
		}
	}
	return reg
}

func TestCheck(t *testing.T) {
	healthy := testutil.NewMockProvider("alpha")
	broken := testutil.NewMockProvider("beta")
	broken.HealthCheckFunc = func(ctx context.Context) bool { return false }
	broken.HealthError = "beta: authentication failed (HTTP 401)"

	reg := newRegistry(t, map[string]*testutil.MockProvider{
		"alpha": healthy,
		"beta":  broken,
		"gamma": testutil.NewMockProvider("gamma"),
	}, "alpha", "beta")
	m := NewMonitor(reg)

	tests := []struct {
		id         string
		configured bool
		healthy    bool
		models     int
		errSubstr  string
	}{
		{"alpha", true, true, 2, ""},
		{"beta", true, false, 0, "authentication failed"},
		{"gamma", false, false, 0, "not configured"},
		{"delta", false, false, 0, "unknown provider"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			s := m.Check(context.Background(), tt.id)
			if s.ProviderID != tt.id || s.Configured != tt.configured || s.Healthy != tt.healthy {
				t.Errorf("status: %+v", s)
			}
			if len(s.AvailableModels) != tt.models {
				t.Errorf("models: %v", s.AvailableModels)
			}
			if s.AvailableModels == nil {
				t.Error("available models should be an empty list, not nil")
			}
			if !strings.Contains(s.Error, tt.errSubstr) {
				t.Errorf("error %q should contain %q", s.Error, tt.errSubstr)
			}
			if s.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
		})
	}
}

func TestCheckHungProvider(t *testing.T) {
	hung := testutil.NewMockProvider("slow")
	unblock := make(chan struct{})
	hung.HealthCheckFunc = func(ctx context.Context) bool {
		<-unblock
		return true
	}
	defer close(unblock)

	reg := newRegistry(t, map[string]*testutil.MockProvider{
		"slow": hung,
		"fast": testutil.NewMockProvider("fast"),
	}, "slow", "fast")
	m := NewMonitor(reg, WithTimeout(50*time.Millisecond))

	start := time.Now()
	statuses := m.CheckAll(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("CheckAll blocked on a hung provider for %s", elapsed)
	}

	if len(statuses) != 2 || statuses[0].ProviderID != "fast" || statuses[1].ProviderID != "slow" {
		t.Fatalf("statuses should be sorted by id: %+v", statuses)
	}
	if !statuses[0].Healthy {
		t.Error("fast provider should stay healthy")
	}
	if statuses[1].Healthy || !strings.Contains(statuses[1].Error, "did not finish") {
		t.Errorf("slow provider: %+v", statuses[1])
	}
}

func TestCheckAllFailuresStayIndependent(t *testing.T) {
	broken := testutil.NewMockProvider("a")
	broken.HealthCheckFunc = func(ctx context.Context) bool { return false }
	broken.HealthError = "a: unreachable"
	slow := testutil.NewMockProvider("b")
	slow.HealthCheckFunc = func(ctx context.Context) bool {
		time.Sleep(20 * time.Millisecond)
		return ctx.Err() == nil
	}

	reg := newRegistry(t, map[string]*testutil.MockProvider{"a": broken, "b": slow}, "a", "b")
	m := NewMonitor(reg, WithTimeout(time.Second))
	if m.Timeout() != time.Second {
		t.Errorf("Timeout: %s", m.Timeout())
	}

	statuses := m.CheckAll(context.Background())
	if statuses[0].Healthy {
		t.Errorf("a: %+v", statuses[0])
	}
	if !statuses[1].Healthy {
		t.Errorf("a failing check must not cut b short: %+v", statuses[1])
	}
}

func TestSnapshotAndRecorder(t *testing.T) {
	reg := newRegistry(t, map[string]*testutil.MockProvider{
		"b": testutil.NewMockProvider("b"),
		"a": testutil.NewMockProvider("a"),
	}, "a", "b")
	rec := &memRecorder{}
	m := NewMonitor(reg, WithRecorder(rec))

	if len(m.Snapshot()) != 0 {
		t.Fatal("snapshot should start empty")
	}
	m.CheckAll(context.Background())

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].ProviderID != "a" || snap[1].ProviderID != "b" {
		t.Errorf("snapshot: %+v", snap)
	}
	if rec.count() != 2 {
		t.Errorf("recorder saw %d statuses, want 2", rec.count())
	}
}

func TestStartStop(t *testing.T) {
	mock := testutil.NewMockProvider("a")
	reg := newRegistry(t, map[string]*testutil.MockProvider{"a": mock}, "a")
	rec := &memRecorder{}
	m := NewMonitor(reg, WithInterval(10*time.Millisecond), WithRecorder(rec))

	m.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop()

	if rec.count() < 3 {
		t.Fatalf("expected periodic checks, got %d", rec.count())
	}
	n := rec.count()
	time.Sleep(50 * time.Millisecond)
	if rec.count() != n {
		t.Error("checks continued after Stop")
	}
}
