package config

import (
	"fmt"
)

// SetAPIKey stores a provider key in the credential store and persists it.
func (c *Config) SetAPIKey(providerID, apiKey string) error {
	if c.CredentialStore == nil {
		return fmt.Errorf("credential store is not loaded")
	}
	if err := c.CredentialStore.Set(providerID, apiKey); err != nil {
		return fmt.Errorf("failed to set API key: %w", err)
	}
	if err := c.CredentialStore.Save(c.DataDir()); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	if Debug {
		DebugLog.Printf("[Config] Stored API key for %s (%s)", providerID, Redact(apiKey))
	}
	return nil
}

// DeleteAPIKey removes a provider key from the credential store.
func (c *Config) DeleteAPIKey(providerID string) error {
	if c.CredentialStore == nil {
		return fmt.Errorf("credential store is not loaded")
	}
	if err := c.CredentialStore.Delete(providerID); err != nil {
		return err
	}
	return c.CredentialStore.Save(c.DataDir())
}

// SetProviderEnabled toggles a provider and writes the config file. Unknown
// providers are added with their default base URL.
func (c *Config) SetProviderEnabled(providerID string, enabled bool) error {
	found := false
	for i := range c.Providers {
		if c.Providers[i].ID == providerID {
			c.Providers[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		c.Providers = append(c.Providers, ProviderConfig{
			ID:      providerID,
			Enabled: enabled,
			BaseURL: defaultBaseURL(providerID),
		})
	}

	path := c.Path
	if path == "" {
		path = GetConfigFilePath()
	}
	if err := SaveFile(path, &c.FileConfig); err != nil {
		return err
	}
	c.Path = path
	return nil
}

// defaultBaseURL returns the default base URL for a provider
func defaultBaseURL(providerID string) string {
	switch providerID {
	case "ollama":
		return "http://localhost:11434"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta/openai/"
	default:
		return ""
	}
}
