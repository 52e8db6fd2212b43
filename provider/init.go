package provider

import (
	"fmt"

	"go.uber.org/zap"

	"gptcli/config"
	"gptcli/model"
)

// Open creates the provider with the given config ID, using the base URL
// and API key the configuration resolves for it.
func Open(cfg *config.Config, id string, logger *zap.Logger) (model.Provider, error) {
	t := MapProviderIDToType(id)
	modelName := ""
	if id == cfg.Provider {
		modelName = cfg.Model
	}
	p, err := NewProvider(Config{
		Type:    t,
		BaseURL: cfg.ProviderBaseURL(id),
		APIKey:  cfg.APIKey(id),
		Model:   modelName,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", id, err)
	}
	return p, nil
}

// InitializeProviders creates every enabled provider in the configuration,
// plus the default provider even if it is not listed.
//
// Providers that fail to initialize (typically a missing API key) are
// logged and skipped so the rest remain usable.
func InitializeProviders(cfg *config.Config, logger *zap.Logger) map[string]model.Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := make(map[string]model.Provider)

	ids := []string{cfg.Provider}
	for _, pc := range cfg.Providers {
		if pc.Enabled && pc.ID != cfg.Provider {
			ids = append(ids, pc.ID)
		}
	}

	for _, id := range ids {
		p, err := Open(cfg, id, logger)
		if err != nil {
			logger.Warn("provider unavailable", zap.String("provider", id), zap.Error(err))
			continue
		}
		providers[id] = p
		logger.Debug("initialized provider", zap.String("provider", id), zap.String("model", p.GetModel()))
	}
	return providers
}
