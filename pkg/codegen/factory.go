package codegen

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/config"
)

// NewGenerator creates a Generator from configuration, selecting the provider
// backend. Returns the Generator interface to enable mock injection in tests.
func NewGenerator(cfg *config.GeneratorConfig, logger *zap.Logger) (Generator, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicGenerator(&AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
	case "openai":
		return NewOpenAIGenerator(&OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
