package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds a zap logger appropriate for the environment.
// "local" gets human-readable development output; anything else gets
// production JSON output.
func New(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}
