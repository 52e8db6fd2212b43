package config

import (
	"fmt"
)

// DefaultProviders is the providers list written to a new user config.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{ID: "openai", Name: "OpenAI", Enabled: true},
		{ID: "anthropic", Name: "Anthropic", Enabled: true},
		{ID: "openrouter", Name: "OpenRouter"},
		{ID: "gemini", Name: "Gemini"},
		{ID: "ollama", Name: "Ollama", BaseURL: "http://localhost:11434"},
	}
}

// ProviderDisplayName returns the display name for a provider
func ProviderDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic", "claude":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	case "gemini", "google":
		return "Gemini"
	default:
		return providerID
	}
}

// SetProviderEnabled updates the enabled flag of a provider in the user
// config on disk, adding the entry if it is missing.
func SetProviderEnabled(dataDir, providerID string, enabled bool) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	found := false
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			cfg.Providers[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			ID:      providerID,
			Name:    ProviderDisplayName(providerID),
			Enabled: enabled,
		})
	}

	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// SetAPIKey stores key for providerID in the credential store and persists
// it. An empty key removes the entry.
func (c *Config) SetAPIKey(providerID, key string) error {
	if c.CredentialStore == nil {
		c.CredentialStore = NewCredentialStore(c.Security, c.SSHKeyPath)
	}
	if key == "" {
		c.CredentialStore.Delete(providerID)
	} else {
		c.CredentialStore.Set(providerID, key)
	}
	if err := c.CredentialStore.Save(c.DataDir()); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}
