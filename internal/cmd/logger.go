package cmd

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/teelog/internal/config"
	"github.com/Iron-Ham/teelog/internal/logging"
)

// CreateLogger creates the diagnostic logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
//
// It must be called before a capture starts: the warning on failure goes to
// stderr.
func CreateLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	rotationConfig := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}

	logger, err := logging.NewLoggerWithRotation(cfg.Logging.ResolveDir(), cfg.Logging.Level, rotationConfig)
	if err != nil {
		// Log creation failure shouldn't prevent the capture from running
		fmt.Fprintf(os.Stderr, "Warning: failed to create logger: %v\n", err)
		return logging.NopLogger()
	}

	return logger
}
