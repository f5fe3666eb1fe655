package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/veilcheck-inc/veilcheck-engine/pkg/config"
)

// NewClient constructs the provider client selected by configuration.
// Returns (nil, nil) when the provider is disabled; callers treat a nil
// client as "AI fallback off".
func NewClient(cfg *config.ProviderConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Kind {
	case "openai":
		return NewOpenAIClient(&Config{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
		}, logger)
	case "anthropic":
		return NewAnthropicClient(&Config{
			Model:  cfg.Model,
			APIKey: cfg.APIKey,
		}, logger)
	case "disabled", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Kind)
	}
}
