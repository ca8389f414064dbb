package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/trustline-data/trustline-engine/pkg/config"
)

// NewExecutor builds the configured sandbox executor.
func NewExecutor(ctx context.Context, cfg *config.SandboxConfig, logger *zap.Logger) (Executor, error) {
	switch cfg.Mode {
	case "http":
		return NewHTTPExecutor(&HTTPConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
		}, logger)
	case "wasm":
		return NewWasmExecutor(ctx, cfg.WasmModulePath, logger)
	default:
		return nil, fmt.Errorf("unknown sandbox mode: %s", cfg.Mode)
	}
}
