package provider

import (
	"mcpchat/config"
)

// InitializeProviders configures every enabled provider from cfg in reg.
//
// This function is the single entry point for provider initialization.
// It handles:
//   - Resolving API keys (environment first, then the credential store)
//   - Building each enabled adapter through the registry
//   - Graceful degradation (logs failures but doesn't fail)
//
// Providers that are disabled in cfg but live in reg are removed, so the
// function can be called again after a config reload.
//
// Returns the ids that failed to configure, with the reason for each.
func InitializeProviders(reg *Registry, cfg *config.Config) map[string]error {
	failed := make(map[string]error)
	wanted := make(map[string]bool)

	for _, pc := range cfg.ProviderSettings() {
		wanted[pc.ProviderID] = true
		if _, err := reg.Configure(pc); err != nil {
			// Log warning but don't fail - allow app to start
			failed[pc.ProviderID] = err
			if config.Debug {
				config.DebugLog.Printf("[Provider] Warning: failed to initialize provider %s: %v", pc.ProviderID, err)
			}
			continue
		}
		if config.Debug {
			config.DebugLog.Printf("[Provider] Initialized provider: %s", pc.ProviderID)
		}
	}

	for _, id := range reg.Configured() {
		if !wanted[id] {
			reg.Remove(id)
			if config.Debug {
				config.DebugLog.Printf("[Provider] Removed disabled provider: %s", id)
			}
		}
	}

	return failed
}
