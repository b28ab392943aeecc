package storage

import (
	"context"
	"mcpchat/model"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestLog(t *testing.T) *StatusLog {
	t.Helper()
	l, err := NewStatusLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewStatusLog: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestStatusLogRecordAndHistory(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	statuses := []model.ProviderStatus{
		{ProviderID: "openai", Configured: true, Healthy: true, AvailableModels: []string{"gpt-4o"}, CheckedAt: base},
		{ProviderID: "openai", Configured: true, Healthy: false, Error: "openai: authentication failed (HTTP 401)", CheckedAt: base.Add(time.Minute)},
		{ProviderID: "ollama", Configured: false, CheckedAt: base.Add(2 * time.Minute)},
	}
	for _, s := range statuses {
		if err := l.Record(ctx, s); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	history, err := l.History(ctx, "openai", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}

	newest := history[0]
	if newest.Healthy || newest.Error == "" || !newest.CheckedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("newest record first: %+v", newest)
	}
	if !reflect.DeepEqual(newest.AvailableModels, []string{}) {
		t.Errorf("missing models should read back as empty: %v", newest.AvailableModels)
	}
	if !reflect.DeepEqual(history[1].AvailableModels, []string{"gpt-4o"}) || !history[1].Configured {
		t.Errorf("oldest record: %+v", history[1])
	}
	if newest.ID == "" || newest.ID == history[1].ID {
		t.Error("records need distinct ids")
	}

	limited, err := l.History(ctx, "openai", 1)
	if err != nil || len(limited) != 1 || limited[0].ID != newest.ID {
		t.Errorf("limit: %+v %v", limited, err)
	}

	none, err := l.History(ctx, "anthropic", 10)
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("unknown provider should give an empty list: %v %v", none, err)
	}
}

func TestStatusLogPrune(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		l.Record(ctx, model.ProviderStatus{ProviderID: "ollama", CheckedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	n, err := l.Prune(ctx, base.Add(3*time.Hour))
	if err != nil || n != 3 {
		t.Fatalf("Prune: %d %v", n, err)
	}
	history, _ := l.History(ctx, "ollama", 0)
	if len(history) != 2 {
		t.Errorf("expected 2 records left, got %d", len(history))
	}
}

func TestStatusLogReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	l, err := NewStatusLog(dir)
	if err != nil {
		t.Fatalf("NewStatusLog: %v", err)
	}
	l.Record(ctx, model.ProviderStatus{ProviderID: "gemini", Healthy: true})
	l.Close()

	l, err = NewStatusLog(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	history, err := l.History(ctx, "gemini", 0)
	if err != nil || len(history) != 1 || !history[0].Healthy {
		t.Errorf("history after reopen: %+v %v", history, err)
	}
	if history[0].CheckedAt.IsZero() {
		t.Error("zero CheckedAt should be stamped on record")
	}
}

func TestStatusLogConcurrentRecord(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Record(ctx, model.ProviderStatus{ProviderID: "openai", Healthy: true}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	history, _ := l.History(ctx, "openai", 0)
	if len(history) != 10 {
		t.Errorf("expected 10 records, got %d", len(history))
	}
}
