package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "config.toml")
	write := func(port int) {
		t.Helper()
		fc := DefaultFileConfig()
		fc.DataDirectory = dataDir
		fc.Server.Port = port
		if err := SaveFile(path, fc); err != nil {
			t.Fatalf("SaveFile: %v", err)
		}
	}
	write(8000)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	reloaded := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	// Writes to other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	write(8123)

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 8123 {
			t.Errorf("Port = %d, want 8123", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the config changed")
	}
}

func TestWatcherKeepsConfigOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	fc := DefaultFileConfig()
	fc.DataDirectory = filepath.Join(dir, "data")
	if err := SaveFile(path, fc); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond
	reloaded := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[server\nport = "), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("handler called with broken config: %+v", cfg.Server)
	case <-time.After(300 * time.Millisecond):
	}
}
