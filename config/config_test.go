package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "config.toml", `
data_directory = "`+dataDir+`"
default_provider = "openai"

[server]
port = 9000
chat_timeout = "30s"

[[providers]]
id = "openai"
enabled = true
default_model = "gpt-4o-mini"
requests_per_minute = 60

[[providers]]
id = "anthropic"
enabled = false

[[tool_servers]]
name = "files"
command = "mcp-files"
args = ["--root", "/tmp"]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != path {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.DefaultProvider != "openai" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected config: %+v", cfg.FileConfig)
	}
	// Unset fields keep their defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.ChatTimeout() != 30*time.Second {
		t.Errorf("ChatTimeout = %s", cfg.ChatTimeout())
	}
	if len(cfg.ToolServers) != 1 || cfg.ToolServers[0].Args[1] != "/tmp" {
		t.Errorf("ToolServers = %+v", cfg.ToolServers)
	}

	if p, _ := cfg.Provider("openai"); p.BaseURL != "" {
		t.Errorf("file entry inherited a default base URL: %q", p.BaseURL)
	}

	settings := cfg.ProviderSettings()
	if len(settings) != 1 || settings[0].ProviderID != "openai" {
		t.Fatalf("ProviderSettings = %+v", settings)
	}
	if settings[0].Extra["default_model"] != "gpt-4o-mini" || settings[0].Extra["requests_per_minute"] != 60 {
		t.Errorf("Extra = %v", settings[0].Extra)
	}
}

func TestLoadYAML(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, "config.yaml", `
data_directory: `+dataDir+`
server:
  port: 8100
providers:
  - id: ollama
    enabled: true
    base_url: http://gpu-box:11434
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8100 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
	if p, ok := cfg.Provider("ollama"); !ok || p.BaseURL != "http://gpu-box:11434" {
		t.Errorf("ollama = %+v", p)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("MCPCHAT_DATA_DIR", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("Path = %q, want empty", cfg.Path)
	}
	if cfg.Addr() != "127.0.0.1:8000" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCPCHAT_DATA_DIR", t.TempDir())
	t.Setenv("MCPCHAT_HOST", "0.0.0.0")
	t.Setenv("MCPCHAT_PORT", "9999")
	t.Setenv("MCPCHAT_DEFAULT_PROVIDER", "gemini")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:9999" || cfg.DefaultProvider != "gemini" {
		t.Errorf("overrides not applied: %s %s", cfg.Addr(), cfg.DefaultProvider)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FileConfig)
		wantErr string
	}{
		{"defaults", func(*FileConfig) {}, ""},
		{"missing id", func(c *FileConfig) { c.Providers = append(c.Providers, ProviderConfig{}) }, "id is required"},
		{"duplicate id", func(c *FileConfig) {
			c.Providers = append(c.Providers, ProviderConfig{ID: "ollama"})
		}, "duplicate id"},
		{"negative rpm", func(c *FileConfig) { c.Providers[0].RequestsPerMinute = -1 }, "requests_per_minute"},
		{"tool server without command", func(c *FileConfig) {
			c.ToolServers = []ToolServerConfig{{Name: "files"}}
		}, "name and command are required"},
		{"dotted tool server name", func(c *FileConfig) {
			c.ToolServers = []ToolServerConfig{{Name: "my.files", Command: "x"}}
		}, "must not contain"},
		{"duplicate tool server", func(c *FileConfig) {
			c.ToolServers = []ToolServerConfig{{Name: "a", Command: "x"}, {Name: "a", Command: "y"}}
		}, "duplicate name"},
		{"bad port", func(c *FileConfig) { c.Server.Port = 70000 }, "out of range"},
		{"bad credential method", func(c *FileConfig) { c.Security.CredentialMethod = "vault" }, "credential_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{FileConfig: *DefaultFileConfig()}
			tt.mutate(&cfg.FileConfig)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"45", 45 * time.Second},
		{" 10s ", 10 * time.Second},
		{"-3s", 5 * time.Second},
		{"0", 5 * time.Second},
		{"soon", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseDuration(tt.raw, 5*time.Second); got != tt.want {
			t.Errorf("parseDuration(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	store := NewCredentialStore(SecurityPlainText, "")
	store.Set("openai", "sk-from-store-0000")
	cfg := &Config{CredentialStore: store}

	t.Setenv("OPENAI_API_KEY", "")
	if got := cfg.APIKey("openai"); got != "sk-from-store-0000" {
		t.Errorf("store key = %q", got)
	}

	t.Setenv("OPENAI_API_KEY", "  sk-from-env-1111  ")
	if got := cfg.APIKey("openai"); got != "sk-from-env-1111" {
		t.Errorf("env key = %q", got)
	}

	if got := APIKeyEnvVar("open-router"); got != "OPEN_ROUTER_API_KEY" {
		t.Errorf("APIKeyEnvVar = %q", got)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("sk-abcdefghijkl1234"); got != "****1234" {
		t.Errorf("Redact = %q", got)
	}
	if got := Redact("short"); got != "****" {
		t.Errorf("Redact short = %q", got)
	}
	if got := Redact(""); got != "" {
		t.Errorf("Redact empty = %q", got)
	}

	key := "sk-live-abcdefghijkl9876"
	text := `POST https://api.example.com/v1?key=` + key + `: 401 invalid key "` + key + `"`
	got := RedactText(text, key, "ab")
	if strings.Contains(got, key) {
		t.Errorf("RedactText left the key in %q", got)
	}
	if strings.Count(got, "****9876") != 2 {
		t.Errorf("RedactText = %q", got)
	}
}

func TestSecrets(t *testing.T) {
	store := NewCredentialStore(SecurityPlainText, "")
	store.Set("anthropic", "sk-ant-0123456789")
	cfg := &Config{FileConfig: FileConfig{Providers: []ProviderConfig{{ID: "anthropic"}, {ID: "ollama"}}}, CredentialStore: store}
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_API_KEY", "")

	secrets := cfg.Secrets()
	if len(secrets) != 1 || secrets[0] != "sk-ant-0123456789" {
		t.Errorf("Secrets = %v", secrets)
	}
}

func TestSetProviderEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := &Config{FileConfig: *DefaultFileConfig(), Path: path}

	if err := cfg.SetProviderEnabled("openrouter", true); err != nil {
		t.Fatalf("SetProviderEnabled: %v", err)
	}
	if err := cfg.SetProviderEnabled("ollama", false); err != nil {
		t.Fatalf("SetProviderEnabled: %v", err)
	}

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	saved := &Config{FileConfig: *fc}
	if p, _ := saved.Provider("openrouter"); !p.Enabled || p.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("openrouter = %+v", p)
	}
	if p, _ := saved.Provider("ollama"); p.Enabled {
		t.Errorf("ollama should be disabled")
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := CreateDefaultConfig(path); err != nil {
		t.Fatalf("CreateDefaultConfig: %v", err)
	}
	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	cfg := &Config{FileConfig: *fc}
	if err := cfg.Validate(); err != nil {
		t.Errorf("template does not validate: %v", err)
	}
	if _, ok := cfg.Provider("anthropic"); !ok {
		t.Error("template should list anthropic")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}
