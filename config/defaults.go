package config

import "time"

const (
	DefaultChatTimeout    = 120 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultHealthInterval = 60 * time.Second
)

func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		DataDirectory:   GetDefaultDataDir(),
		DefaultProvider: "ollama",
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			ChatTimeout:    "120s",
			HealthTimeout:  "5s",
			HealthInterval: "60s",
		},
		Providers: []ProviderConfig{
			{ID: "ollama", Enabled: true, BaseURL: "http://localhost:11434"},
		},
		Security: SecurityConfig{
			CredentialMethod: SecurityPlainText,
		},
	}
}

func GenerateConfigTemplate() string {
	return `# mcpchat configuration
# Location: ~/.config/mcpchat/config.toml (override with MCPCHAT_CONFIG)
# This file uses TOML format: https://toml.io
# API keys are read from <ID>_API_KEY (e.g. OPENAI_API_KEY) or the
# credential store in the data directory. Never put them in this file.

# Directory for credentials, the status log and debug.log
data_directory = "~/.local/share/mcpchat"

# Provider used when a request names none
default_provider = "ollama"

[server]
host = "127.0.0.1"
port = 8000
chat_timeout = "120s"
health_timeout = "5s"
health_interval = "60s"

[[providers]]
id = "ollama"
enabled = true
base_url = "http://localhost:11434"
default_model = "llama3.1"

[[providers]]
id = "openai"
enabled = false
default_model = "gpt-4o-mini"
# requests_per_minute = 60

[[providers]]
id = "anthropic"
enabled = false
default_model = "claude-sonnet-4-5-20250929"

[[providers]]
id = "gemini"
enabled = false
default_model = "gemini-2.0-flash"

[[providers]]
id = "openrouter"
enabled = false

# MCP tool servers started over stdio. Their tools are advertised to models.
# [[tool_servers]]
# name = "filesystem"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]

[security]
# "plaintext" stores keys in credentials.toml (0600),
# "ssh_key" encrypts them into credentials.enc with a key derived from your SSH key
credential_method = "plaintext"
# ssh_key_path = "~/.ssh/id_ed25519"
`
}
