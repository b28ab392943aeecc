package config

import (
	"fmt"
	"io"
	"log"
	"mcpchat/model"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds the HTTP server and monitor settings.
type ServerConfig struct {
	Host           string `toml:"host" yaml:"host"`
	Port           int    `toml:"port" yaml:"port"`
	ChatTimeout    string `toml:"chat_timeout" yaml:"chat_timeout"`
	HealthTimeout  string `toml:"health_timeout" yaml:"health_timeout"`
	HealthInterval string `toml:"health_interval" yaml:"health_interval"`
}

// ProviderConfig is one [[providers]] entry. API keys never live here; they
// come from the environment or the credential store.
type ProviderConfig struct {
	ID                string         `toml:"id" yaml:"id"`
	Enabled           bool           `toml:"enabled" yaml:"enabled"`
	BaseURL           string         `toml:"base_url,omitempty" yaml:"base_url,omitempty"`
	DefaultModel      string         `toml:"default_model,omitempty" yaml:"default_model,omitempty"`
	RequestsPerMinute int            `toml:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
	Extra             map[string]any `toml:"extra,omitempty" yaml:"extra,omitempty"`
}

// ToolServerConfig is one [[tool_servers]] entry: an MCP server started over
// stdio.
type ToolServerConfig struct {
	Name    string            `toml:"name" yaml:"name"`
	Command string            `toml:"command" yaml:"command"`
	Args    []string          `toml:"args,omitempty" yaml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty" yaml:"env,omitempty"`
}

// SecurityConfig selects how API keys are stored on disk.
type SecurityConfig struct {
	CredentialMethod SecurityMethod `toml:"credential_method" yaml:"credential_method"`
	SSHKeyPath       string         `toml:"ssh_key_path,omitempty" yaml:"ssh_key_path,omitempty"`
}

// FileConfig is the on-disk document.
type FileConfig struct {
	DataDirectory   string             `toml:"data_directory" yaml:"data_directory"`
	DefaultProvider string             `toml:"default_provider,omitempty" yaml:"default_provider,omitempty"`
	Server          ServerConfig       `toml:"server" yaml:"server"`
	Providers       []ProviderConfig   `toml:"providers" yaml:"providers"`
	ToolServers     []ToolServerConfig `toml:"tool_servers,omitempty" yaml:"tool_servers,omitempty"`
	Security        SecurityConfig     `toml:"security" yaml:"security"`
}

// Config is the loaded configuration.
type Config struct {
	FileConfig

	// Path is the file the config was read from ("" when none existed).
	Path            string
	CredentialStore *CredentialStore
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) ChatTimeout() time.Duration {
	return parseDuration(c.Server.ChatTimeout, DefaultChatTimeout)
}

func (c *Config) HealthTimeout() time.Duration {
	return parseDuration(c.Server.HealthTimeout, DefaultHealthTimeout)
}

func (c *Config) HealthInterval() time.Duration {
	return parseDuration(c.Server.HealthInterval, DefaultHealthInterval)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Provider returns the [[providers]] entry for id.
func (c *Config) Provider(id string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// APIKey resolves the key for a provider. The <ID>_API_KEY environment
// variable wins over the credential store.
func (c *Config) APIKey(providerID string) string {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnvVar(providerID))); key != "" {
		return key
	}
	if c.CredentialStore != nil {
		return c.CredentialStore.Get(providerID)
	}
	return ""
}

// APIKeyEnvVar returns the environment variable consulted for a provider's
// key, e.g. OPENAI_API_KEY.
func APIKeyEnvVar(providerID string) string {
	id := strings.ToUpper(strings.ReplaceAll(providerID, "-", "_"))
	return id + "_API_KEY"
}

// ProviderSettings converts the enabled providers into adapter settings with
// their API keys resolved.
func (c *Config) ProviderSettings() []model.ProviderConfig {
	var out []model.ProviderConfig
	for _, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		out = append(out, c.providerSettings(p))
	}
	return out
}

func (c *Config) providerSettings(p ProviderConfig) model.ProviderConfig {
	extra := make(map[string]any, len(p.Extra)+2)
	for k, v := range p.Extra {
		extra[k] = v
	}
	if p.DefaultModel != "" {
		extra["default_model"] = p.DefaultModel
	}
	if p.RequestsPerMinute > 0 {
		extra["requests_per_minute"] = p.RequestsPerMinute
	}
	return model.ProviderConfig{
		ProviderID: p.ID,
		APIKey:     c.APIKey(p.ID),
		BaseURL:    p.BaseURL,
		Extra:      extra,
	}
}

// Validate checks the document for mistakes that would otherwise surface
// later as confusing adapter errors.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.RequestsPerMinute < 0 {
			return fmt.Errorf("providers[%d]: requests_per_minute must not be negative", i)
		}
	}
	names := make(map[string]bool)
	for i, s := range c.ToolServers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("tool_servers[%d]: name and command are required", i)
		}
		if strings.Contains(s.Name, ".") {
			return fmt.Errorf("tool_servers[%d]: name %q must not contain '.'", i, s.Name)
		}
		if names[s.Name] {
			return fmt.Errorf("tool_servers[%d]: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Security.CredentialMethod {
	case SecurityPlainText, SecuritySSHKey:
	default:
		return fmt.Errorf("security.credential_method %q is not one of %q, %q",
			c.Security.CredentialMethod, SecurityPlainText, SecuritySSHKey)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dataDir := os.Getenv("MCPCHAT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if host := os.Getenv("MCPCHAT_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("MCPCHAT_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if p := os.Getenv("MCPCHAT_DEFAULT_PROVIDER"); p != "" {
		c.DefaultProvider = p
	}
}

func CheckDebug() bool {
	debug := os.Getenv("MCPCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog enables the debug logger when MCPCHAT_DEBUG is set, writing to
// <dataDir>/debug.log.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")

	// Create debug log with secure permissions (0600 - may contain sensitive debug info)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	InitDebugWriter(f)
	DebugLog.Printf("Log path: %s", logPath)
}

// InitDebugWriter enables the debug logger on w. The server uses it to log to
// stderr.
func InitDebugWriter(w io.Writer) {
	Debug = true
	DebugLog = log.New(w, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (MCPCHAT_DEBUG=%s) ===", os.Getenv("MCPCHAT_DEBUG"))
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file yields the defaults. Credentials are loaded from the
// data directory.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigFilePath()
	}

	cfg := &Config{FileConfig: *DefaultFileConfig()}
	if FileExists(path) {
		fc, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.FileConfig = *fc
		cfg.Path = path
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	dataDir := cfg.DataDir()
	if err := ensurePrivateDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	keyPath := ExpandPath(cfg.Security.SSHKeyPath)
	if cfg.Security.CredentialMethod == SecuritySSHKey && keyPath == "" {
		if keys := FindSSHKeys(); len(keys) > 0 {
			keyPath = keys[0]
		}
	}
	store := NewCredentialStore(cfg.Security.CredentialMethod, keyPath)
	if pass := os.Getenv("MCPCHAT_SSH_PASSPHRASE"); pass != "" {
		store.SetPassphrase(pass)
	}
	if err := store.Load(dataDir); err != nil {
		// Keys from the environment still work without the store.
		if Debug {
			DebugLog.Printf("[Config] Credential store unavailable: %v", err)
		}
	}
	cfg.CredentialStore = store

	return cfg, nil
}
