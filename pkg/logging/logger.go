package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Local environments get the
// human-readable development encoder; everything else logs structured JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "local" || env == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
